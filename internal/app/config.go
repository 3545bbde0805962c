package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Order stores.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (PIZZA_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Store       string `default:"postgres" usage:"Order store: postgres or mongo"`
	DatabaseURL string `usage:"PostgreSQL connection URL (PIZZA_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Timezone    string `default:"America/Sao_Paulo" usage:"Time zone of the store's business day"`
	Mongo       MongoConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// MongoConfig selects the document store used when Store is mongo.
type MongoConfig struct {
	URL      string `usage:"MongoDB connection URL (PIZZA_MONGO_URL or MONGO_URL)" flag:"mongo-url"`
	Database string `default:"pizza" usage:"MongoDB database name"`
}

// RedisConfig enables the shared event bus and the catalog cache. With
// neither URL nor Addr set both stay in-process.
type RedisConfig struct {
	URL        string        `usage:"Redis URL, takes precedence over Addr (PIZZA_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	Addr       string        `usage:"Redis address host:port" flag:"redis-addr"`
	Password   string        `usage:"Redis password"`
	DB         int           `default:"0" usage:"Redis database index"`
	Stream     string        `default:"pizza.orders.delivered" usage:"Stream carrying delivered orders"`
	Group      string        `default:"pizza-loyalty" usage:"Consumer group shared by all API replicas"`
	CatalogTTL time.Duration `default:"5m" usage:"Variation catalog cache TTL" flag:"catalog-ttl"`
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

// LoadConfig loads configuration from environment variables and YAML config
// files, then applies platform defaults and validates the result.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PIZZA",
		Files:     []string{"config.yaml", "/etc/pizza/config.yaml"},
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

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set PIZZA_DATABASE_URL or DATABASE_URL")
	}
	switch c.Store {
	case StorePostgres:
	case StoreMongo:
		if c.Mongo.URL == "" {
			return errors.New("mongo store selected without PIZZA_MONGO_URL or MONGO_URL")
		}
	default:
		return errors.Errorf("unknown store %q", c.Store)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// RedisEnabled reports whether a Redis server is configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.URL != "" || c.Redis.Addr != ""
}

// Location returns the time zone that defines "today" and date ranges.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "load timezone %q", c.Timezone)
	}
	return loc, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's PIZZA_-prefixed configuration.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv("DATABASE_URL")
	}
	if c.Mongo.URL == "" {
		c.Mongo.URL = getenv("MONGO_URL")
	}
	if c.Redis.URL == "" && c.Redis.Addr == "" {
		c.Redis.URL = getenv("REDIS_URL")
	}
	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
