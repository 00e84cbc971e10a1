package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidPriceRange = errors.New("invalid price range")
	ErrInvalidSeatArea   = errors.New("invalid seat area")
)

type SeatArea string

const (
	AreaNone     SeatArea = "none"
	AreaInfield  SeatArea = "infield"
	AreaOutfield SeatArea = "outfield"
)

var areaAliases = map[string]SeatArea{
	"none":     AreaNone,
	"any":      AreaNone,
	"infield":  AreaInfield,
	"內野":       AreaInfield,
	"outfield": AreaOutfield,
	"外野":       AreaOutfield,
}

// ParseSeatArea accepts canonical names and the venue's local labels.
func ParseSeatArea(s string) (SeatArea, error) {
	a, ok := areaAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeatArea, s)
	}
	return a, nil
}

// ParseListingArea is ParseSeatArea without the wildcard: a ticket always sits somewhere.
func ParseListingArea(s string) (SeatArea, error) {
	a, err := ParseSeatArea(s)
	if err != nil {
		return "", err
	}
	if a == AreaNone {
		return "", fmt.Errorf("%w: listing needs a concrete area", ErrInvalidSeatArea)
	}
	return a, nil
}

// PriceRange is a closed interval. The zero range means any price.
type PriceRange struct {
	Low  int64
	High int64
}

func (r PriceRange) Any() bool { return r.Low == 0 && r.High == 0 }

func (r PriceRange) Contains(price int64) bool {
	return r.Any() || (r.Low <= price && price <= r.High)
}

func (r PriceRange) String() string {
	return fmt.Sprintf("%d-%d", r.Low, r.High)
}

func (r PriceRange) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *PriceRange) UnmarshalText(b []byte) error {
	pr, err := ParsePriceRange(string(b))
	if err != nil {
		return err
	}
	*r = pr
	return nil
}

// ParsePriceRange parses "low-high".
func ParsePriceRange(s string) (PriceRange, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return PriceRange{}, fmt.Errorf("%w: %q", ErrInvalidPriceRange, s)
	}

	low, err := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
	if err != nil {
		return PriceRange{}, fmt.Errorf("%w: %q", ErrInvalidPriceRange, s)
	}

	high, err := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
	if err != nil {
		return PriceRange{}, fmt.Errorf("%w: %q", ErrInvalidPriceRange, s)
	}

	if low < 0 || high < low {
		return PriceRange{}, fmt.Errorf("%w: %q", ErrInvalidPriceRange, s)
	}

	return PriceRange{Low: low, High: high}, nil
}

func ParsePriceRanges(ss []string) ([]PriceRange, error) {
	out := make([]PriceRange, 0, len(ss))
	for _, s := range ss {
		r, err := ParsePriceRange(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (r Reservation) PriceMatches(price int64) bool {
	for _, pr := range r.PriceRanges {
		if pr.Contains(price) {
			return true
		}
	}
	return false
}

func (r Reservation) AreaMatches(area SeatArea) bool {
	return r.SeatArea == AreaNone || r.SeatArea == area
}

// Matches reports whether l satisfies both the price and the seat filter of r.
func (r Reservation) Matches(l Listing) bool {
	return r.PriceMatches(l.Price) && r.AreaMatches(l.SeatArea)
}
