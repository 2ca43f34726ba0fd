package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/fishnet/internal/domain/sale"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (FISHNET_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string        `usage:"PostgreSQL connection URL (FISHNET_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string        `default:"" usage:"Base URL for relative species pictures" flag:"image-base-url"`
	JWTSecret    string        `usage:"HMAC secret for bearer tokens" flag:"jwt-secret"`
	TokenTTL     time.Duration `default:"24h" usage:"Bearer token lifetime" flag:"token-ttl"`
	BcryptCost   int           `default:"10" usage:"bcrypt cost for account passwords" flag:"bcrypt-cost"`
	APIKeyPepper string        `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	MaxBodyBytes int64         `default:"1048576" usage:"Request body limit in bytes" flag:"max-body-bytes"`
	Sales        SalesConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
	Health       HealthConfig
}

// SalesConfig controls sale placement.
type SalesConfig struct {
	DefaultShippingProvider string         `default:"standard" usage:"Shipping provider used when a sale omits one"`
	StockMode               sale.StockMode `default:"best_effort" usage:"Stock handling: best_effort or atomic"`
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

// HealthConfig controls the background liveness and readiness checks.
type HealthConfig struct {
	Interval      time.Duration `default:"10s"   usage:"Health check polling interval" flag:"health-interval"`
	MaxGoroutines int           `default:"10000" usage:"Goroutine count above which liveness fails" flag:"health-max-goroutines"`
	MaxGCPause    time.Duration `default:"500ms" usage:"GC pause above which liveness fails" flag:"health-max-gc-pause"`
}

// LoadConfig loads configuration from environment variables and YAML files,
// then applies platform defaults and checks required settings.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "FISHNET",
		Files:     []string{"config.yaml", "/etc/fishnet/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set FISHNET_DATABASE_URL or DATABASE_URL")
	case c.JWTSecret == "":
		return errors.New("JWT secret is required: set FISHNET_JWT_SECRET")
	case c.TokenTTL <= 0:
		return errors.Errorf("token TTL must be positive, got %s", c.TokenTTL)
	}
	switch c.Sales.StockMode {
	case sale.StockBestEffort, sale.StockAtomic:
	default:
		return errors.Errorf("unknown stock mode %q", c.Sales.StockMode)
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	if c.Health.Interval <= 0 || c.Health.MaxGoroutines <= 0 || c.Health.MaxGCPause <= 0 {
		return errors.New("health interval and limits must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided variables such as DATABASE_URL
// and PORT onto the FISHNET_-prefixed configuration.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv("DATABASE_URL")
	}
	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
