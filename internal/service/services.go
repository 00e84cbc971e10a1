package service

import (
	"log/slog"

	"github.com/kirinyoku/seatswap/internal/events"
	"github.com/kirinyoku/seatswap/internal/gateway"
	"github.com/kirinyoku/seatswap/internal/notify"
	"github.com/kirinyoku/seatswap/internal/repository"
	redisrepo "github.com/kirinyoku/seatswap/internal/repository/redis"
	"github.com/kirinyoku/seatswap/internal/service/admin"
	"github.com/kirinyoku/seatswap/internal/service/effects"
	"github.com/kirinyoku/seatswap/internal/service/listing"
	"github.com/kirinyoku/seatswap/internal/service/notification"
	"github.com/kirinyoku/seatswap/internal/service/orders"
	"github.com/kirinyoku/seatswap/internal/service/payment"
	"github.com/kirinyoku/seatswap/internal/service/query"
	"github.com/kirinyoku/seatswap/internal/service/rating"
	"github.com/kirinyoku/seatswap/internal/service/reservation"
)

type Services struct {
	Listing      *listing.Service
	Orders       *orders.Service
	Payment      *payment.Service
	Reservation  *reservation.Service
	Notification *notification.Service
	Rating       *rating.Service
	Query        *query.Service
	Admin        *admin.Service
}

type Config struct {
	Listing     listing.Config
	Payment     payment.Config
	Reservation reservation.Config
	Query       query.Config
}

// Cache is the aggregate cache: read-through for stats, invalidated on shipment.
type Cache interface {
	redisrepo.KV
	orders.Invalidator
}

// Deps are the collaborators shared by the services. Cache and Limiter may
// be nil; Mailer and Publisher may be nil as well.
type Deps struct {
	Store     repository.Store
	Images    listing.ImageStore
	Gateway   gateway.Gateway
	Locker    payment.Locker
	Limiter   orders.Limiter
	Cache     Cache
	Mailer    notify.Mailer
	Publisher events.Publisher
	Tokens    admin.TokenIssuer
	Logger    *slog.Logger
}

func NewServices(d Deps, cfg Config) *Services {
	fx := effects.New(d.Mailer, d.Publisher, d.Logger)

	var (
		kv          redisrepo.KV
		invalidator orders.Invalidator
	)
	if d.Cache != nil {
		kv, invalidator = d.Cache, d.Cache
	}

	return &Services{
		Listing:      listing.New(d.Store, d.Images, fx, cfg.Listing),
		Orders:       orders.New(d.Store, d.Limiter, invalidator, fx),
		Payment:      payment.New(d.Store, d.Gateway, d.Locker, fx, cfg.Payment),
		Reservation:  reservation.New(d.Store, cfg.Reservation),
		Notification: notification.New(d.Store),
		Rating:       rating.New(d.Store),
		Query:        query.New(d.Store, kv, fx.Logger(), cfg.Query),
		Admin:        admin.New(d.Store, d.Tokens),
	}
}
