// Package config loads service configuration from environment variables via
// envconfig. A .env file is honored in development; real deployments set the
// environment directly.
package config

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// SweepSecret gates POST /v1/internal/sweep. Empty disables the endpoint;
	// the in-process scheduler keeps running either way.
	SweepSecret   string        `envconfig:"SWEEP_SECRET"`
	SweepSchedule string        `envconfig:"SWEEP_SCHEDULE" default:"@every 5m"`
	SweepTimeout  time.Duration `envconfig:"SWEEP_TIMEOUT" default:"1m"`

	// Payment gateway credentials (Razorpay-style key/secret basic auth).
	GatewayBaseURL   string `envconfig:"GATEWAY_BASE_URL" default:"https://api.razorpay.com"`
	GatewayKeyID     string `envconfig:"GATEWAY_KEY_ID" required:"true"`
	GatewayKeySecret string `envconfig:"GATEWAY_KEY_SECRET" required:"true"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	PayoutMaxWorkers int `envconfig:"PAYOUT_MAX_WORKERS" default:"10"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	if c.PayoutMaxWorkers <= 0 {
		return errors.New("PAYOUT_MAX_WORKERS must be > 0")
	}
	return nil
}
