package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	SiteURL     string `default:"http://localhost:8080" usage:"Public base URL for payment redirect links" flag:"site-url"`
	JWT         JWTConfig
	Stripe      StripeConfig
	SMTP        SMTPConfig
	Orders      OrdersConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// JWTConfig controls access/refresh token issuance.
type JWTConfig struct {
	Secret     string        `usage:"HMAC secret for signing tokens (STORE_JWT_SECRET)" flag:"jwt-secret"`
	AccessTTL  time.Duration `default:"15m"  usage:"Access token lifetime" flag:"jwt-access-ttl"`
	RefreshTTL time.Duration `default:"720h" usage:"Refresh token lifetime" flag:"jwt-refresh-ttl"`
}

// StripeConfig holds the payment provider credentials.
type StripeConfig struct {
	SecretKey     string `usage:"Stripe API secret key (STORE_STRIPE_SECRET_KEY)" flag:"stripe-secret-key"`
	WebhookSecret string `usage:"Stripe webhook endpoint signing secret" flag:"stripe-webhook-secret"`
}

// SMTPConfig holds the mail relay settings. When Host is empty, order
// confirmations are logged instead of sent.
type SMTPConfig struct {
	Host     string `usage:"SMTP relay host; empty disables mail delivery" flag:"smtp-host"`
	Port     int    `default:"587" usage:"SMTP relay port" flag:"smtp-port"`
	Username string `usage:"SMTP username" flag:"smtp-username"`
	Password string `usage:"SMTP password" flag:"smtp-password"`
	From     string `default:"orders@localhost" usage:"Sender address for order mail" flag:"smtp-from"`
}

// OrdersConfig controls the stale-order sweeper.
type OrdersConfig struct {
	PendingTTL    time.Duration `default:"24h" usage:"Age after which pending orders are failed" flag:"orders-pending-ttl"`
	SweepInterval time.Duration `default:"1h"  usage:"How often stale pending orders are swept" flag:"orders-sweep-interval"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT secret is required: set STORE_JWT_SECRET")
	}
	if cfg.Stripe.SecretKey == "" {
		return nil, errors.New("Stripe secret key is required: set STORE_STRIPE_SECRET_KEY")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
