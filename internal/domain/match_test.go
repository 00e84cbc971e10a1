package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriceRange(t *testing.T) {
	tests := []struct {
		in      string
		want    PriceRange
		wantErr bool
	}{
		{in: "100-200", want: PriceRange{Low: 100, High: 200}},
		{in: " 0-0 ", want: PriceRange{}},
		{in: "401-699", want: PriceRange{Low: 401, High: 699}},
		{in: "200-100", wantErr: true},
		{in: "-5-10", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "10-", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePriceRange(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPriceRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSeatArea(t *testing.T) {
	a, err := ParseSeatArea("內野")
	require.NoError(t, err)
	assert.Equal(t, AreaInfield, a)

	a, err = ParseSeatArea("Outfield")
	require.NoError(t, err)
	assert.Equal(t, AreaOutfield, a)

	_, err = ParseSeatArea("balcony")
	assert.ErrorIs(t, err, ErrInvalidSeatArea)

	_, err = ParseListingArea("none")
	assert.ErrorIs(t, err, ErrInvalidSeatArea)
}

func TestReservationMatches(t *testing.T) {
	anything := Reservation{PriceRanges: []PriceRange{{}}, SeatArea: AreaNone}
	narrow := Reservation{PriceRanges: []PriceRange{{Low: 100, High: 200}}, SeatArea: AreaInfield}

	listings := []Listing{
		{Price: 50, SeatArea: AreaInfield},
		{Price: 100, SeatArea: AreaInfield},
		{Price: 200, SeatArea: AreaInfield},
		{Price: 150, SeatArea: AreaOutfield},
		{Price: 201, SeatArea: AreaInfield},
		{Price: 99999, SeatArea: AreaOutfield},
	}

	for _, l := range listings {
		assert.True(t, anything.Matches(l), "wildcard reservation must match %+v", l)
	}

	var got []int64
	for _, l := range listings {
		if narrow.Matches(l) {
			got = append(got, l.Price)
		}
	}
	assert.Equal(t, []int64{100, 200}, got)
}

func TestReservationMatchesAnyOfSeveralRanges(t *testing.T) {
	r := Reservation{
		PriceRanges: []PriceRange{{Low: 0, High: 400}, {Low: 401, High: 699}},
		SeatArea:    AreaNone,
	}
	assert.True(t, r.Matches(Listing{Price: 600, SeatArea: AreaInfield}))
	assert.False(t, r.Matches(Listing{Price: 700, SeatArea: AreaInfield}))
}

func TestPriceRangeJSON(t *testing.T) {
	b, err := json.Marshal([]PriceRange{{Low: 1, High: 2}, {}})
	require.NoError(t, err)
	assert.JSONEq(t, `["1-2","0-0"]`, string(b))

	var back []PriceRange
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, []PriceRange{{Low: 1, High: 2}, {}}, back)
}
