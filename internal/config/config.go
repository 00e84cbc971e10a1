package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Payment  PaymentConfig
	Mail     MailConfig
	Kafka    KafkaConfig
	Images   ImagesConfig
}

type ServerConfig struct {
	Host string
	Port int
	// RateLimit is the process-wide request budget per second; 0 disables it.
	RateLimit float64
	RateBurst int
}

type StoreConfig struct {
	Driver string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	Migrate  bool
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	AdminKey  string
}

type PaymentConfig struct {
	Provider         string
	Currency         string
	Timeout          time.Duration
	TapPayPartnerKey string
	TapPayMerchantID string
	TapPayEnv        string
	StripeSecretKey  string
}

type MailConfig struct {
	AMQPURL  string
	Queue    string
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	From     string
}

type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
}

type ImagesConfig struct {
	Dir      string
	BaseURL  string
	MaxBytes int64
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	ProviderTapPay = "tappay"
	ProviderStripe = "stripe"
)

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverPort, err := envInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rateLimit, err := envFloat("SERVER_RATE_LIMIT", 100)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rateBurst, err := envInt("SERVER_RATE_BURST", 200)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host:      envString("SERVER_HOST", "localhost"),
		Port:      serverPort,
		RateLimit: rateLimit,
		RateBurst: rateBurst,
	}

	driver := strings.ToLower(envString("STORE_DRIVER", DriverPostgres))
	if driver != DriverPostgres && driver != DriverMemory {
		return nil, fmt.Errorf("%s: invalid STORE_DRIVER %q", op, driver)
	}

	postgresPort, err := envInt("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	migrate, err := envBool("POSTGRES_MIGRATE", false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresCfg := PostgresConfig{
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Name:     os.Getenv("POSTGRES_DB"),
		Host:     envString("POSTGRES_HOST", "localhost"),
		Port:     postgresPort,
		SSLMode:  envString("POSTGRES_SSLMODE", "disable"),
		Migrate:  migrate,
	}

	if driver == DriverPostgres {
		for name, v := range map[string]string{
			"POSTGRES_USER":     postgresCfg.User,
			"POSTGRES_PASSWORD": postgresCfg.Password,
			"POSTGRES_DB":       postgresCfg.Name,
		} {
			if v == "" {
				return nil, fmt.Errorf("%s: missing %s", op, name)
			}
		}
	}

	redisDB, err := envInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisCfg := RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	tokenTTL, err := envDuration("AUTH_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	authCfg := AuthConfig{
		JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
		TokenTTL:  tokenTTL,
		AdminKey:  os.Getenv("AUTH_ADMIN_KEY"),
	}
	if authCfg.JWTSecret == "" {
		return nil, fmt.Errorf("%s: missing AUTH_JWT_SECRET", op)
	}

	payTimeout, err := envDuration("PAYMENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if payTimeout <= 0 || payTimeout > 10*time.Second {
		return nil, fmt.Errorf("%s: PAYMENT_TIMEOUT must be in (0, 10s], got %s", op, payTimeout)
	}

	paymentCfg := PaymentConfig{
		Provider:         strings.ToLower(envString("PAYMENT_PROVIDER", ProviderTapPay)),
		Currency:         envString("PAYMENT_CURRENCY", "TWD"),
		Timeout:          payTimeout,
		TapPayPartnerKey: os.Getenv("TAPPAY_PARTNER_KEY"),
		TapPayMerchantID: os.Getenv("TAPPAY_MERCHANT_ID"),
		TapPayEnv:        envString("TAPPAY_ENV", "sandbox"),
		StripeSecretKey:  os.Getenv("STRIPE_SECRET_KEY"),
	}

	switch paymentCfg.Provider {
	case ProviderTapPay:
	case ProviderStripe:
		if paymentCfg.StripeSecretKey == "" {
			return nil, fmt.Errorf("%s: missing STRIPE_SECRET_KEY", op)
		}
	default:
		return nil, fmt.Errorf("%s: invalid PAYMENT_PROVIDER %q", op, paymentCfg.Provider)
	}

	mailCfg, err := loadMail()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	kafkaCfg := KafkaConfig{
		Brokers:     envList("KAFKA_BROKERS"),
		TopicPrefix: envString("KAFKA_TOPIC_PREFIX", "seatswap"),
	}

	maxBytes, err := envInt("IMAGES_MAX_BYTES", 5<<20)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	imagesCfg := ImagesConfig{
		Dir:      envString("IMAGES_DIR", "./data/images"),
		BaseURL:  envString("IMAGES_BASE_URL", "/images"),
		MaxBytes: int64(maxBytes),
	}

	return &Config{
		Server:   serverCfg,
		Store:    StoreConfig{Driver: driver},
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Auth:     authCfg,
		Payment:  paymentCfg,
		Mail:     mailCfg,
		Kafka:    kafkaCfg,
		Images:   imagesCfg,
	}, nil
}

// LoadMail reads only the mail settings, for processes that do nothing else.
func LoadMail() (MailConfig, error) {
	const op = "config.LoadMail"

	_ = godotenv.Load()

	cfg, err := loadMail()
	if err != nil {
		return MailConfig{}, fmt.Errorf("%s: %w", op, err)
	}

	return cfg, nil
}

func loadMail() (MailConfig, error) {
	smtpPort, err := envInt("SMTP_PORT", 587)
	if err != nil {
		return MailConfig{}, err
	}

	return MailConfig{
		AMQPURL:  os.Getenv("AMQP_URL"),
		Queue:    envString("MAIL_QUEUE", "email.outbound"),
		SMTPHost: os.Getenv("SMTP_HOST"),
		SMTPPort: smtpPort,
		SMTPUser: os.Getenv("SMTP_USER"),
		SMTPPass: os.Getenv("SMTP_PASS"),
		From:     envString("MAIL_FROM", "no-reply@seatswap.local"),
	}, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// envList splits a comma separated value, dropping blanks.
func envList(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
