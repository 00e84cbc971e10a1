package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/seatswap/internal/domain"
	"github.com/kirinyoku/seatswap/internal/repository"
	redisrepo "github.com/kirinyoku/seatswap/internal/repository/redis"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	LeaderboardTTL  time.Duration
	LeaderboardSize int
	SummaryTTL      time.Duration
	// PriceBoardSize bounds TopEventPrices.
	PriceBoardSize int
}

type Service struct {
	store  repository.Store
	cache  redisrepo.KV
	sf     singleflight.Group
	logger *slog.Logger
	cfg    Config
	now    func() time.Time
}

// New accepts a nil cache; reads then always hit the store.
func New(store repository.Store, cache redisrepo.KV, logger *slog.Logger, cfg Config) *Service {
	if cfg.LeaderboardTTL <= 0 {
		cfg.LeaderboardTTL = 10 * time.Minute
	}

	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = 5
	}

	if cfg.SummaryTTL <= 0 {
		cfg.SummaryTTL = time.Minute
	}

	if cfg.PriceBoardSize <= 0 {
		cfg.PriceBoardSize = 5
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:  store,
		cache:  cache,
		logger: logger,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// TopEvents ranks the events held in the current calendar month by the
// number of completed trades.
//
// Parameters:
//   - ctx: request-scoped context.
//
// Returns:
//   - []domain.EventSales: at most LeaderboardSize entries, best first.
//   - error: storage failures only; cache failures fall back to the store.
func (s *Service) TopEvents(ctx context.Context) ([]domain.EventSales, error) {
	const op = "service.query.TopEvents"

	now := s.now()
	from, to := monthBounds(now.Year(), now.Month())

	load := func(ctx context.Context) ([]domain.EventSales, error) {
		out, err := s.store.Stats().TopEvents(ctx, from, to, s.cfg.LeaderboardSize)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = []domain.EventSales{}
		}
		return out, nil
	}

	out, err := cachedJSON(ctx, s, redisrepo.KeyTopEvents(now), s.cfg.LeaderboardTTL, load)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (s *Service) Summary(ctx context.Context) (domain.TradeSummary, error) {
	const op = "service.query.Summary"

	out, err := cachedJSON(ctx, s, redisrepo.KeyTradeSummary(), s.cfg.SummaryTTL, s.store.Stats().Summary)
	if err != nil {
		return domain.TradeSummary{}, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Events lists every event held in the given calendar month, earliest
// first. A zero year or month means the current one.
func (s *Service) Events(ctx context.Context, year, month int) ([]domain.Event, error) {
	const op = "service.query.Events"

	from, to, err := s.period(year, month)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	out, err := s.store.Events().Between(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	if out == nil {
		out = []domain.Event{}
	}

	return out, nil
}

// Schedule is Events narrowed to games that still have listings for sale,
// each with its open listing count.
func (s *Service) Schedule(ctx context.Context, year, month int) ([]domain.EventAvailability, error) {
	const op = "service.query.Schedule"

	from, to, err := s.period(year, month)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	out, err := s.store.Events().OnSale(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	if out == nil {
		out = []domain.EventAvailability{}
	}

	return out, nil
}

// TeamRanks counts this month's completed trades per team. A game counts
// once for its home team and once for its away team.
func (s *Service) TeamRanks(ctx context.Context) ([]domain.TeamTrades, error) {
	const op = "service.query.TeamRanks"

	now := s.now()
	from, to := monthBounds(now.Year(), now.Month())

	load := func(ctx context.Context) ([]domain.TeamTrades, error) {
		out, err := s.store.Stats().TeamTrades(ctx, from, to)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = []domain.TeamTrades{}
		}
		return out, nil
	}

	out, err := cachedJSON(ctx, s, redisrepo.KeyTeamRanks(now), s.cfg.LeaderboardTTL, load)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// TopEventPrices ranks events by this month's completed trades and reports
// the median traded price of each.
//
// Parameters:
//   - ctx: request-scoped context.
//
// Returns:
//   - []domain.EventMedianPrice: at most PriceBoardSize entries, most traded first.
//   - error: storage failures only.
func (s *Service) TopEventPrices(ctx context.Context) ([]domain.EventMedianPrice, error) {
	const op = "service.query.TopEventPrices"

	now := s.now()
	from, to := monthBounds(now.Year(), now.Month())

	load := func(ctx context.Context) ([]domain.EventMedianPrice, error) {
		out, err := s.store.Stats().MedianPrices(ctx, from, to, s.cfg.PriceBoardSize)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = []domain.EventMedianPrice{}
		}
		return out, nil
	}

	out, err := cachedJSON(ctx, s, redisrepo.KeyTopEventPrices(now), s.cfg.LeaderboardTTL, load)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (s *Service) period(year, month int) (time.Time, time.Time, error) {
	now := s.now()
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	if year < 1 || month < 1 || month > 12 {
		return time.Time{}, time.Time{}, ErrInvalidPeriod
	}
	from, to := monthBounds(year, time.Month(month))
	return from, to, nil
}

func monthBounds(year int, month time.Month) (time.Time, time.Time) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

func cachedJSON[T any](
	ctx context.Context,
	s *Service,
	key string,
	ttl time.Duration,
	load func(ctx context.Context) (T, error),
) (T, error) {
	if s.cache == nil {
		return load(ctx)
	}

	return redisrepo.GetOrSetJSON(ctx, s.cache, &s.sf, key, ttl, load, func(err error) {
		s.logger.Warn("stats cache unavailable", "key", key, "error", err)
	})
}
