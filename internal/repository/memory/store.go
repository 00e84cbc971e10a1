// Package memory is an in-process implementation of the repository contracts.
// Transactions are fully serialized: RunTx works on a private copy of the
// state and swaps it in on commit.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/kirinyoku/seatswap/internal/domain"
	"github.com/kirinyoku/seatswap/internal/repository"
)

type state struct {
	seq           int64
	events        map[int64]domain.Event
	members       map[int64]domain.Member
	listings      map[int64]domain.Listing
	reservations  map[int64]domain.Reservation
	orders        map[int64]domain.Order
	payments      map[int64]domain.Payment
	notifications map[int64]domain.Notification
	ratings       map[int64]domain.Rating
}

func newState() *state {
	return &state{
		events:        map[int64]domain.Event{},
		members:       map[int64]domain.Member{},
		listings:      map[int64]domain.Listing{},
		reservations:  map[int64]domain.Reservation{},
		orders:        map[int64]domain.Order{},
		payments:      map[int64]domain.Payment{},
		notifications: map[int64]domain.Notification{},
		ratings:       map[int64]domain.Rating{},
	}
}

func (s *state) clone() *state {
	return &state{
		seq:           s.seq,
		events:        maps.Clone(s.events),
		members:       maps.Clone(s.members),
		listings:      maps.Clone(s.listings),
		reservations:  maps.Clone(s.reservations),
		orders:        maps.Clone(s.orders),
		payments:      maps.Clone(s.payments),
		notifications: maps.Clone(s.notifications),
		ratings:       maps.Clone(s.ratings),
	}
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

type Store struct {
	mu         sync.Mutex
	st         *state
	commitHook func() error
}

func New() *Store {
	return &Store{st: newState()}
}

// SetCommitHook installs fn to run right before a transaction is committed.
// A non-nil error aborts the commit.
func (s *Store) SetCommitHook(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitHook = fn
}

// RunTx must not call back into the Store's own accessors; use tx instead.
func (s *Store) RunTx(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Repos) error,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	txState := s.st.clone()
	if err := fn(ctx, repos{h: handle{store: s, tx: txState}}); err != nil {
		return err
	}

	if s.commitHook != nil {
		if err := s.commitHook(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}

	s.st = txState

	return nil
}

func (s *Store) live() handle { return handle{store: s} }

func (s *Store) Listings() repository.Listings           { return listingRepo{s.live()} }
func (s *Store) Reservations() repository.Reservations   { return reservationRepo{s.live()} }
func (s *Store) Orders() repository.Orders               { return orderRepo{s.live()} }
func (s *Store) Payments() repository.Payments           { return paymentRepo{s.live()} }
func (s *Store) Notifications() repository.Notifications { return notificationRepo{s.live()} }
func (s *Store) Events() repository.Events               { return eventRepo{s.live()} }
func (s *Store) Members() repository.Members             { return memberRepo{s.live()} }
func (s *Store) Ratings() repository.Ratings             { return ratingRepo{s.live()} }
func (s *Store) Stats() repository.Stats                 { return statsRepo{s.live()} }

// handle points either at a transaction's private state or at the live
// state, which is then guarded by the store mutex per call.
type handle struct {
	store *Store
	tx    *state
}

func (h handle) do(fn func(st *state) error) error {
	if h.tx != nil {
		return fn(h.tx)
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return fn(h.store.st)
}

type repos struct {
	h handle
}

func (r repos) Listings() repository.Listings           { return listingRepo{r.h} }
func (r repos) Reservations() repository.Reservations   { return reservationRepo{r.h} }
func (r repos) Orders() repository.Orders               { return orderRepo{r.h} }
func (r repos) Payments() repository.Payments           { return paymentRepo{r.h} }
func (r repos) Notifications() repository.Notifications { return notificationRepo{r.h} }
func (r repos) Events() repository.Events               { return eventRepo{r.h} }
func (r repos) Members() repository.Members             { return memberRepo{r.h} }
func (r repos) Ratings() repository.Ratings             { return ratingRepo{r.h} }
func (r repos) Stats() repository.Stats                 { return statsRepo{r.h} }

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func notFound(op string) error {
	return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
}

func conflict(op string) error {
	return fmt.Errorf("%s:%w", op, repository.ErrConflict)
}
