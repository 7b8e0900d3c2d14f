package config

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "7070"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultBackendBaseURL  = "https://api.totallyindian.com"
	defaultBackendTimeout  = 20 * time.Second
	defaultRefreshSkew     = 30 * time.Second
	defaultStoreDriver     = "file"
	defaultStorePath       = ".shopcore"
	defaultRedisAddr       = "127.0.0.1:6379"
	defaultRedisKeyPrefix  = "shopcore"
	defaultCountry         = "IN"
	defaultCurrency        = "INR"
	defaultContextTTL      = 5 * time.Minute
	defaultRatesTTL        = time.Hour
	defaultSearchDebounce  = 300 * time.Millisecond
	defaultGeoLookupURL    = "https://ipapi.co/json/"
	defaultUserAgent       = "totally-shopcore/1.0"
	defaultShutdownTimeout = 10 * time.Second
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Store   StoreConfig
	Pricing PricingConfig
	Search  SearchConfig
}

// ServerConfig configures the local HTTP facade.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// BackendConfig points the client at the remote storefront backend.
type BackendConfig struct {
	BaseURL     string
	Timeout     time.Duration
	UserAgent   string
	RefreshSkew time.Duration
}

// StoreConfig selects and parameterises the local key/value store.
type StoreConfig struct {
	Driver      string // memory | file | redis
	Path        string // file driver: directory holding the store document
	RedisAddr   string
	RedisDB     int
	RedisPrefix string
}

// PricingConfig carries location and currency defaults and cache windows.
type PricingConfig struct {
	DefaultCountry  string
	DefaultCurrency string
	ContextTTL      time.Duration
	RatesTTL        time.Duration
	GeoLookupURL    string
}

// SearchConfig tunes the debounced search helper.
type SearchConfig struct {
	Debounce time.Duration
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "SHOP_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "SHOP_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "SHOP_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "SHOP_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "SHOP_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Backend: BackendConfig{
			BaseURL:     stringWithDefault(lookup, "SHOP_BACKEND_BASE_URL", defaultBackendBaseURL),
			Timeout:     durationWithDefault(lookup, "SHOP_BACKEND_TIMEOUT", defaultBackendTimeout),
			UserAgent:   stringWithDefault(lookup, "SHOP_BACKEND_USER_AGENT", defaultUserAgent),
			RefreshSkew: durationWithDefault(lookup, "SHOP_BACKEND_REFRESH_SKEW", defaultRefreshSkew),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(stringWithDefault(lookup, "SHOP_STORE_DRIVER", defaultStoreDriver)),
			Path:        stringWithDefault(lookup, "SHOP_STORE_PATH", defaultStorePath),
			RedisAddr:   stringWithDefault(lookup, "SHOP_STORE_REDIS_ADDR", defaultRedisAddr),
			RedisDB:     intWithDefault(lookup, "SHOP_STORE_REDIS_DB", 0),
			RedisPrefix: stringWithDefault(lookup, "SHOP_STORE_REDIS_PREFIX", defaultRedisKeyPrefix),
		},
		Pricing: PricingConfig{
			DefaultCountry:  strings.ToUpper(stringWithDefault(lookup, "SHOP_PRICING_DEFAULT_COUNTRY", defaultCountry)),
			DefaultCurrency: strings.ToUpper(stringWithDefault(lookup, "SHOP_PRICING_DEFAULT_CURRENCY", defaultCurrency)),
			ContextTTL:      durationWithDefault(lookup, "SHOP_PRICING_CONTEXT_TTL", defaultContextTTL),
			RatesTTL:        durationWithDefault(lookup, "SHOP_PRICING_RATES_TTL", defaultRatesTTL),
			GeoLookupURL:    stringWithDefault(lookup, "SHOP_PRICING_GEO_URL", defaultGeoLookupURL),
		},
		Search: SearchConfig{
			Debounce: durationWithDefault(lookup, "SHOP_SEARCH_DEBOUNCE", defaultSearchDebounce),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if strings.TrimSpace(cfg.Server.Port) == "" {
		invalid = append(invalid, "Server.Port")
	}
	if parsed, err := url.Parse(cfg.Backend.BaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		invalid = append(invalid, "Backend.BaseURL")
	}
	switch cfg.Store.Driver {
	case "memory", "file", "redis":
	default:
		invalid = append(invalid, "Store.Driver")
	}
	if cfg.Store.Driver == "file" && strings.TrimSpace(cfg.Store.Path) == "" {
		invalid = append(invalid, "Store.Path")
	}
	if cfg.Store.Driver == "redis" && strings.TrimSpace(cfg.Store.RedisAddr) == "" {
		invalid = append(invalid, "Store.RedisAddr")
	}
	if len(cfg.Pricing.DefaultCountry) != 2 {
		invalid = append(invalid, "Pricing.DefaultCountry")
	}
	if len(cfg.Pricing.DefaultCurrency) != 3 {
		invalid = append(invalid, "Pricing.DefaultCurrency")
	}
	if cfg.Search.Debounce < 0 {
		invalid = append(invalid, "Search.Debounce")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
