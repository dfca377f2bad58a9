package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`

	EventStream   string `env:"EVENT_STREAM" envDefault:"ledger-events"`
	ConsumerGroup string `env:"CONSUMER_GROUP" envDefault:"ledger-ingest"`
	ConsumerName  string `env:"CONSUMER_NAME"`

	BatchSize     int   `env:"BATCH_SIZE" envDefault:"10"`
	ReceiveWaitS  int   `env:"RECEIVE_WAIT_S" envDefault:"2"`
	VisibilityS   int   `env:"VISIBILITY_TIMEOUT_S" envDefault:"900"`
	RetryDelayS   int   `env:"RETRY_DELAY_S" envDefault:"30"`
	MaxDeliveries int64 `env:"MAX_DELIVERIES" envDefault:"0"`
	StreamMaxLen  int64 `env:"STREAM_MAX_LEN" envDefault:"100000"`
	Workers       int   `env:"WORKERS" envDefault:"1"`

	MetricsPort int    `env:"METRICS_PORT" envDefault:"9102"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
