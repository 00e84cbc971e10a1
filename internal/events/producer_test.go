package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPublishSendsJSON(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var e Event
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		if e.Type != OrderPaid || e.OrderID != 9 || !e.At.Equal(at) || e.ID == "" {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := NewWithSyncProducer(sp, "seatswap.orders", discard())
	require.NoError(t, p.Publish(context.Background(), Event{Type: OrderPaid, OrderID: 9, ActorID: 3, At: at}))
	require.NoError(t, p.Close())
}

func TestPublishSurfacesBrokerError(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewWithSyncProducer(sp, "seatswap.orders", discard())
	err := p.Publish(context.Background(), Event{Type: OrderShipped, OrderID: 1})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestMockModeWithoutBrokers(t *testing.T) {
	p, err := NewProducer(nil, "seatswap", discard())
	require.NoError(t, err)

	assert.True(t, p.mockMode)
	assert.Equal(t, "seatswap.orders", p.topic)
	assert.NoError(t, p.Publish(context.Background(), Event{Type: ListingCreated, ListingID: 5}))
	assert.NoError(t, p.Close())
}
