package config

import "time"

type Config struct {
	Web      Web
	DB       DB
	Gateway  Gateway
	Catalog  Catalog
	Kafka    Kafka
	Auth     Auth
	Limit    Limit
	Purchase Purchase
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:8000"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:40s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

type DB struct {
	User         string `conf:"default:postgres"`
	Password     string `conf:"default:postgres,mask"`
	Host         string `conf:"default:localhost:5432"`
	Name         string `conf:"default:checkout"`
	MaxIdleConns int    `conf:"default:5"`
	MaxOpenConns int    `conf:"default:20"`
	DisableTLS   bool   `conf:"default:true"`
}

// Gateway holds the card gateway account. The write timeout of the web
// server must stay above Timeout or callers are cut off mid-charge.
type Gateway struct {
	APIKey      string        `conf:"mask"`
	SecretKey   string        `conf:"mask"`
	BaseURL     string        `conf:"default:https://sandbox-api.iyzipay.com"`
	NonceHeader string        `conf:"default:x-iyzi-rnd"`
	Locale      string        `conf:"default:tr"`
	Currency    string        `conf:"default:TRY"`
	CallbackURL string        `conf:"default:http://localhost:8000/purchases/3ds/callback"`
	Timeout     time.Duration `conf:"default:30s"`
}

type Catalog struct {
	BaseURL             string        `conf:"default:http://localhost:8081"`
	Timeout             time.Duration `conf:"default:3s"`
	BreakerMaxRequests  uint32        `conf:"default:3"`
	BreakerInterval     time.Duration `conf:"default:60s"`
	BreakerTimeout      time.Duration `conf:"default:30s"`
	BreakerMinRequests  uint32        `conf:"default:5"`
	BreakerFailureRatio float64       `conf:"default:0.5"`
}

type Kafka struct {
	Enabled      bool          `conf:"default:true"`
	Brokers      []string      `conf:"default:localhost:9092"`
	Topic        string        `conf:"default:payment-success"`
	PollInterval time.Duration `conf:"default:2s"`
	BatchSize    int           `conf:"default:50"`
}

type Auth struct {
	JWTSecret string `conf:"mask"`
}

type Limit struct {
	Burst    int           `conf:"default:5"`
	Interval time.Duration `conf:"default:2s"`
	Expiry   time.Duration `conf:"default:10m"`
}

type Purchase struct {
	Provider      string        `conf:"default:IYZICO"`
	StaleAfter    time.Duration `conf:"default:30m"`
	SweepInterval time.Duration `conf:"default:5m"`
}
