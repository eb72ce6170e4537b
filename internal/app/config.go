package app

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds the storefront configuration, loadable from environment
// variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	API      APIConfig
	Storage  StorageConfig
	Checkout CheckoutConfig
	Gateway  GatewayConfig
}

// APIConfig points at the shop REST API.
type APIConfig struct {
	BaseURL string        `default:"http://127.0.0.1:8000" usage:"Shop API base URL" flag:"api-url"`
	Timeout time.Duration `default:"15s" usage:"Per-request timeout"`
}

// StorageConfig selects where the cart, token and receipts are kept.
type StorageConfig struct {
	Backend   string `default:"file" usage:"Storage backend: file, memory, redis or postgres"`
	Dir       string `usage:"Directory of the file backend (default: user config dir)"`
	Namespace string `usage:"Key prefix, to keep several profiles in one backend"`

	RedisAddr     string        `default:"127.0.0.1:6379" usage:"Redis address" flag:"redis-addr"`
	RedisPassword string        `usage:"Redis password"`
	RedisDB       int           `default:"0" usage:"Redis database"`
	RedisTTL      time.Duration `default:"0s" usage:"Expire stored keys after this long (0 keeps them)"`

	DatabaseURL string `usage:"PostgreSQL connection URL (SHOP_STORAGE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`

	ReceiptLimit int `default:"50" usage:"How many order receipts to keep"`
}

// CheckoutConfig tunes checkout.
type CheckoutConfig struct {
	RevalidatePrices bool `default:"false" usage:"Re-fetch cart prices before placing an order"`
}

// GatewayConfig configures the local HTTP gateway.
type GatewayConfig struct {
	Addr           string        `default:"127.0.0.1:8080" usage:"Gateway listen address"`
	HealthInterval time.Duration `default:"10s" usage:"Interval between health checks"`
	RateLimit      RateLimitConfig
	CORS           CORSConfig
	Graceful       GracefulConfig
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window (0 disables)"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins []string `default:"http://localhost:5173" usage:"Allowed CORS origins"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"0s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"10s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadOptions controls LoadConfig.
type LoadOptions struct {
	// SkipFlags leaves command-line parsing to the caller.
	SkipFlags bool
	// Files overrides the config file search list.
	Files []string
}

// DefaultFiles lists the config files read in order: ./shop.yaml, then
// $XDG_CONFIG_HOME/shop/config.yaml.
func DefaultFiles() []string {
	files := []string{"shop.yaml"}
	if dir, err := os.UserConfigDir(); err == nil {
		files = append(files, filepath.Join(dir, "shop", "config.yaml"))
	}
	return files
}

// LoadConfig loads configuration from environment variables, YAML files and,
// unless skipped, flags.
func LoadConfig(opts LoadOptions) (*Config, error) {
	files := opts.Files
	if files == nil {
		files = DefaultFiles()
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		SkipFlags: opts.SkipFlags,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills values derived from the environment.
func (c *Config) applyDefaults() {
	if c.Storage.DatabaseURL == "" {
		c.Storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Storage.Dir == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			c.Storage.Dir = filepath.Join(dir, "shop")
		} else {
			c.Storage.Dir = ".shop"
		}
	}
}

// Validate checks field combinations.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFile, BackendMemory, BackendRedis:
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("postgres backend needs a database URL: set SHOP_STORAGE_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.API.BaseURL == "" {
		return errors.New("api base url is empty")
	}
	return nil
}
