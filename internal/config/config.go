package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Cache backends accepted by cache.backend.
const (
	BackendRedis     = "redis"
	BackendMemcached = "memcached"
	BackendInMemory  = "in_memory"
)

// Auth modes accepted by auth.mode.
const (
	AuthModePermissive = "permissive"
	AuthModeEnforce    = "enforce"
)

const defaultWeatherAPIURL = "https://api.weatherapi.com/v1"

// Config holds service configuration loaded from YAML, .env and env.
type Config struct {
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	DrainInterval      time.Duration

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	CacheBackend string

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisPoolSize     int
	RedisMinIdleConns int
	RedisPoolTimeout  time.Duration
	RedisDialTimeout  time.Duration
	RedisReadTimeout  time.Duration
	RedisWriteTimeout time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	WarmEnabled  bool
	WarmCities   []string
	WarmInterval time.Duration
	WarmTimeout  time.Duration

	AuthAddr             string
	AuthMethod           string
	AuthTimeout          time.Duration
	AuthMode             string
	AuthSecurityDisabled bool

	ForecastMaxDays  int
	ForecastLocation *time.Location
	CoalesceEnabled  bool
	CoalesceTimeout  time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	OverloadWindow    time.Duration
	OverloadDeniedPct int
	DegradedWindow    time.Duration
	DegradedErrorPct  int

	TrackedCities []string
}

type fileConfig struct {
	Server struct {
		Port           string `yaml:"port"`
		ReadTimeout    string `yaml:"read_timeout"`
		WriteTimeout   string `yaml:"write_timeout"`
		RequestTimeout string `yaml:"request_timeout"`
		Shutdown       struct {
			Timeout       string `yaml:"timeout"`
			DrainInterval string `yaml:"drain_interval"`
		} `yaml:"shutdown"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL            string `yaml:"url"`
		Timeout        string `yaml:"timeout"`
		CircuitBreaker struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"weather_api"`

	Cache struct {
		Backend string `yaml:"backend"`
		Redis   struct {
			Addr         string `yaml:"addr"`
			Password     string `yaml:"password"`
			DB           int    `yaml:"db"`
			PoolSize     int    `yaml:"pool_size"`
			MinIdleConns int    `yaml:"min_idle_conns"`
			PoolTimeout  string `yaml:"pool_timeout"`
			DialTimeout  string `yaml:"dial_timeout"`
			ReadTimeout  string `yaml:"read_timeout"`
			WriteTimeout string `yaml:"write_timeout"`
		} `yaml:"redis"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Warm struct {
			Enabled  bool     `yaml:"enabled"`
			Cities   []string `yaml:"cities"`
			Interval string   `yaml:"interval"`
			Timeout  string   `yaml:"timeout"`
		} `yaml:"warm"`
	} `yaml:"cache"`

	Auth struct {
		Addr             string `yaml:"addr"`
		Method           string `yaml:"method"`
		Timeout          string `yaml:"timeout"`
		Mode             string `yaml:"mode"`
		SecurityDisabled bool   `yaml:"security_disabled"`
	} `yaml:"auth"`

	Forecast struct {
		MaxDays  int    `yaml:"max_days"`
		Timezone string `yaml:"timezone"`
		Coalesce struct {
			Enabled bool   `yaml:"enabled"`
			Timeout string `yaml:"timeout"`
		} `yaml:"coalesce"`
	} `yaml:"forecast"`

	RateLimit struct {
		RPS   int `yaml:"rps"`
		Burst int `yaml:"burst"`
	} `yaml:"rate_limit"`

	Health struct {
		OverloadWindow    string `yaml:"overload_window"`
		OverloadDeniedPct int    `yaml:"overload_denied_pct"`
		DegradedWindow    string `yaml:"degraded_window"`
		DegradedErrorPct  int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Metrics struct {
		TrackedCities []string `yaml:"tracked_cities"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	RedisPassword string `yaml:"redis_password"`
}

// Load reads .env (if present), config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml,
// then applies env overrides. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	// Existing env wins over .env.
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := readSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := fromFile(fc)

	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), os.Getenv("API_KEY"), sec.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}
	if cfg.RedisPassword == "" {
		cfg.RedisPassword = sec.RedisPassword
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	loc, err := loadLocation(fc.Forecast.Timezone)
	if err != nil {
		return nil, err
	}
	cfg.ForecastLocation = loc

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func fromFile(fc fileConfig) *Config {
	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.ServerReadTimeout = parseDuration(fc.Server.ReadTimeout, 10*time.Second)
	cfg.ServerWriteTimeout = parseDuration(fc.Server.WriteTimeout, 15*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Server.RequestTimeout, 5*time.Second)
	cfg.ShutdownTimeout = parseDuration(fc.Server.Shutdown.Timeout, 30*time.Second)
	cfg.DrainInterval = parseDuration(fc.Server.Shutdown.DrainInterval, 100*time.Millisecond)

	cfg.WeatherAPIURL = fc.WeatherAPI.URL
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = defaultWeatherAPIURL
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 2*time.Second)

	cb := fc.WeatherAPI.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled
	cfg.CircuitBreakerFailureThreshold = positiveOr(cb.FailureThreshold, 5)
	cfg.CircuitBreakerSuccessThreshold = positiveOr(cb.SuccessThreshold, 2)
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = BackendRedis
	}

	rc := fc.Cache.Redis
	cfg.RedisAddr = strings.TrimSpace(rc.Addr)
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	cfg.RedisPassword = rc.Password
	cfg.RedisDB = rc.DB
	cfg.RedisPoolSize = positiveOr(rc.PoolSize, 20)
	cfg.RedisMinIdleConns = rc.MinIdleConns
	cfg.RedisPoolTimeout = parseDuration(rc.PoolTimeout, time.Second)
	cfg.RedisDialTimeout = parseDuration(rc.DialTimeout, 2*time.Second)
	cfg.RedisReadTimeout = parseDuration(rc.ReadTimeout, 500*time.Millisecond)
	cfg.RedisWriteTimeout = parseDuration(rc.WriteTimeout, 500*time.Millisecond)

	cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(fc.Cache.Memcached.MaxIdleConns, 2)

	cfg.WarmEnabled = fc.Cache.Warm.Enabled
	cfg.WarmCities = fc.Cache.Warm.Cities
	cfg.WarmInterval = parseDuration(fc.Cache.Warm.Interval, 30*time.Minute)
	cfg.WarmTimeout = parseDuration(fc.Cache.Warm.Timeout, 10*time.Second)

	cfg.AuthAddr = strings.TrimSpace(fc.Auth.Addr)
	if cfg.AuthAddr == "" {
		cfg.AuthAddr = "localhost:50051"
	}
	// Empty keeps the gateway's default AuthUser path.
	cfg.AuthMethod = strings.TrimSpace(fc.Auth.Method)
	cfg.AuthTimeout = parseDuration(fc.Auth.Timeout, 2*time.Second)
	cfg.AuthMode = strings.TrimSpace(strings.ToLower(fc.Auth.Mode))
	if cfg.AuthMode == "" {
		cfg.AuthMode = AuthModePermissive
	}
	cfg.AuthSecurityDisabled = fc.Auth.SecurityDisabled

	cfg.ForecastMaxDays = positiveOr(fc.Forecast.MaxDays, 14)
	cfg.CoalesceEnabled = fc.Forecast.Coalesce.Enabled
	cfg.CoalesceTimeout = parseDuration(fc.Forecast.Coalesce.Timeout, 5*time.Second)

	cfg.RateLimitRPS = positiveOr(fc.RateLimit.RPS, 100)
	cfg.RateLimitBurst = positiveOr(fc.RateLimit.Burst, 250)

	cfg.OverloadWindow = parseDuration(fc.Health.OverloadWindow, 60*time.Second)
	cfg.OverloadDeniedPct = positiveOr(fc.Health.OverloadDeniedPct, 80)
	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = positiveOr(fc.Health.DegradedErrorPct, 5)

	cfg.TrackedCities = fc.Metrics.TrackedCities
	return cfg
}

// applyEnv layers environment overrides on top of file values.
func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("BASE_URL")); v != "" {
		cfg.WeatherAPIURL = v
	}
	if v := strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND"))); v != "" {
		cfg.CacheBackend = v
	}

	host, port, _ := net.SplitHostPort(cfg.RedisAddr)
	if v := strings.TrimSpace(os.Getenv("REDIS_HOST")); v != "" {
		host = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_PORT")); v != "" {
		port = v
	}
	if host != "" && port != "" {
		cfg.RedisAddr = net.JoinHostPort(host, port)
	}

	if v := strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")); v != "" {
		cfg.MemcachedAddrs = v
	}

	authHost, authPort, _ := net.SplitHostPort(cfg.AuthAddr)
	if v := strings.TrimSpace(os.Getenv("AUTH_HOST")); v != "" {
		authHost = v
	}
	if v := strings.TrimSpace(os.Getenv("AUTH_PORT")); v != "" {
		authPort = v
	}
	if authHost != "" && authPort != "" {
		cfg.AuthAddr = net.JoinHostPort(authHost, authPort)
	}

	if v := strings.TrimSpace(os.Getenv("SECURITY_DISABLED")); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SECURITY_DISABLED must be a boolean, got %q", v)
		}
		cfg.AuthSecurityDisabled = disabled
	}
	if v := strings.TrimSpace(strings.ToLower(os.Getenv("AUTH_MODE"))); v != "" {
		cfg.AuthMode = v
	}
	return nil
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("forecast.timezone %q: %w", name, err)
	}
	return loc, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// validate performs post-load validation. RequestTimeout is raised above WeatherAPITimeout
// when needed so the provider deadline fires first.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case BackendRedis, BackendMemcached, BackendInMemory:
	default:
		return fmt.Errorf("cache.backend must be redis, memcached or in_memory, got %q", cfg.CacheBackend)
	}
	switch cfg.AuthMode {
	case AuthModePermissive, AuthModeEnforce:
	default:
		return fmt.Errorf("auth.mode must be permissive or enforce, got %q", cfg.AuthMode)
	}
	if cfg.WarmEnabled && len(cfg.WarmCities) == 0 {
		return fmt.Errorf("cache.warm.cities required when cache warming is enabled")
	}
	return nil
}
