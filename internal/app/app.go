package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirinyoku/seatswap/internal/auth"
	"github.com/kirinyoku/seatswap/internal/config"
	"github.com/kirinyoku/seatswap/internal/events"
	"github.com/kirinyoku/seatswap/internal/gateway"
	"github.com/kirinyoku/seatswap/internal/imagestore"
	"github.com/kirinyoku/seatswap/internal/notify"
	"github.com/kirinyoku/seatswap/internal/postgres"
	"github.com/kirinyoku/seatswap/internal/redis"
	"github.com/kirinyoku/seatswap/internal/repository"
	"github.com/kirinyoku/seatswap/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/seatswap/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/seatswap/internal/repository/redis"
	"github.com/kirinyoku/seatswap/internal/service"
	"github.com/kirinyoku/seatswap/internal/service/payment"
	httpgin "github.com/kirinyoku/seatswap/internal/transport/http/gin"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	matchRequestsPerWindow = 10
	matchWindow            = time.Minute
	idempotencyTTL         = 24 * time.Hour
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	closers    []func() error
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx := context.Background()
	a := &App{cfg: cfg, logger: logger}

	// Storage
	var store repository.Store
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		store = memory.New()
	default:
		dsn := postgres.DSN(
			cfg.Postgres.User,
			cfg.Postgres.Password,
			cfg.Postgres.Host,
			cfg.Postgres.Port,
			cfg.Postgres.Name,
			cfg.Postgres.SSLMode,
		)

		pool, err := postgres.New(ctx, postgres.Config{DSN: dsn})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })

		if cfg.Postgres.Migrate {
			if err := postgresrepo.Migrate(ctx, pool); err != nil {
				a.close()
				return nil, fmt.Errorf("failed to apply schema: %w", err)
			}
		}

		store = postgresrepo.NewStore(pool)
	}

	// Redis is optional: without it the stats cache, the idempotency
	// replay and the match limiter are off and pay claims stay in process.
	var (
		cache   service.Cache
		limiter *redisrepo.SlidingWindowLimiter
		idem    httpgin.Idempotency
		locker  payment.Locker = memory.NewLocker()
	)
	if cfg.Redis.Addr != "" {
		rdb, err := redis.New(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)

		idemStore := redisrepo.NewIdempotencyStore(rdb, idempotencyTTL)
		cache = redisrepo.New(rdb)
		limiter = redisrepo.NewSlidingWindowLimiter(rdb, redisrepo.KeyRateLimitPrefix("match"), matchRequestsPerWindow, matchWindow)
		idem = idemStore
		locker = idemStore
	} else {
		logger.Warn("REDIS_ADDR not set; cache, idempotency keys and match rate limiting are disabled")
	}

	// Outbound email: the queue when a broker is configured, SMTP otherwise
	// and as fallback.
	var primary, fallback notify.Sender
	if cfg.Mail.AMQPURL != "" {
		q := notify.NewQueue(cfg.Mail.AMQPURL, cfg.Mail.Queue)
		a.closers = append(a.closers, q.Close)
		primary = q
	}
	if cfg.Mail.SMTPHost != "" {
		fallback = notify.NewSMTP(notify.SMTPConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.SMTPUser,
			Password: cfg.Mail.SMTPPass,
			From:     cfg.Mail.From,
		})
	}
	mailer := notify.New(primary, fallback, logger)

	gw, err := newGateway(cfg.Payment)
	if err != nil {
		a.close()
		return nil, err
	}

	producer, err := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize kafka producer: %w", err)
	}
	a.closers = append(a.closers, producer.Close)

	images, err := imagestore.NewLocal(cfg.Images.Dir, cfg.Images.BaseURL, cfg.Images.MaxBytes)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize image store: %w", err)
	}

	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	deps := service.Deps{
		Store:     store,
		Images:    images,
		Gateway:   gw,
		Locker:    locker,
		Cache:     cache,
		Mailer:    mailer,
		Publisher: producer,
		Tokens:    tokens,
		Logger:    logger,
	}
	if limiter != nil {
		deps.Limiter = limiter
	}

	services := service.NewServices(deps, service.Config{
		Payment: payment.Config{
			Currency: cfg.Payment.Currency,
			Timeout:  cfg.Payment.Timeout,
		},
	})

	var globalLimiter *rate.Limiter
	if cfg.Server.RateLimit > 0 {
		globalLimiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst)
	}

	router := httpgin.NewRouter(services, httpgin.Options{
		Auth:           tokens,
		Idem:           idem,
		AdminKey:       cfg.Auth.AdminKey,
		ImagesDir:      images.Dir(),
		Limiter:        globalLimiter,
		MaxUploadBytes: 8 * cfg.Images.MaxBytes,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func newGateway(cfg config.PaymentConfig) (gateway.Gateway, error) {
	switch cfg.Provider {
	case config.ProviderStripe:
		return gateway.NewStripe(cfg.StripeSecretKey, cfg.Timeout), nil
	case config.ProviderTapPay:
		return gateway.NewTapPay(gateway.TapPayConfig{
			PartnerKey: cfg.TapPayPartnerKey,
			MerchantID: cfg.TapPayMerchantID,
			Env:        cfg.TapPayEnv,
			Timeout:    cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

// close releases resources in reverse order of acquisition.
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
