package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"ENV_NAME", "WEATHER_API_KEY", "API_KEY", "BASE_URL", "CACHE_BACKEND",
	"REDIS_HOST", "REDIS_PORT", "MEMCACHED_ADDRS", "AUTH_HOST", "AUTH_PORT",
	"SECURITY_DISABLED", "AUTH_MODE",
}

// clearEnv unsets every variable Load reads and restores them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_FailsWhenNoAPIKey(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	chdir(t, dir)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error when no WEATHER_API_KEY and no secrets file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "WEATHER_API_KEY") {
		t.Errorf("Load() error = %v, want message containing WEATHER_API_KEY", err)
	}
}

func TestLoad_SucceedsWithSecretsFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: key-from-secrets-file\nredis_password: s3cret\n")
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-secrets-file" {
		t.Errorf("WeatherAPIKey = %q, want key from secrets file", cfg.WeatherAPIKey)
	}
	if cfg.RedisPassword != "s3cret" {
		t.Errorf("RedisPassword = %q, want password from secrets file", cfg.RedisPassword)
	}
}

func TestLoad_APIKeyEnvPrecedence(t *testing.T) {
	tests := []struct {
		name          string
		weatherAPIKey string
		apiKey        string
		want          string
	}{
		{"WEATHER_API_KEY wins", "from-weather-api-key", "from-api-key", "from-weather-api-key"},
		{"API_KEY fallback", "", "from-api-key", "from-api-key"},
		{"secrets file last", "", "", "from-secrets"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if tt.weatherAPIKey != "" {
				t.Setenv("WEATHER_API_KEY", tt.weatherAPIKey)
			}
			if tt.apiKey != "" {
				t.Setenv("API_KEY", tt.apiKey)
			}
			dir := t.TempDir()
			writeEnvFile(t, dir, minimalEnvYAML)
			writeSecretsFile(t, dir, "weather_api_key: from-secrets\n")
			chdir(t, dir)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.WeatherAPIKey != tt.want {
				t.Errorf("WeatherAPIKey = %q, want %q", cfg.WeatherAPIKey, tt.want)
			}
		})
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("API_KEY=from-dotenv\nCACHE_BACKEND=memcached\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "from-dotenv" {
		t.Errorf("WeatherAPIKey = %q, want from-dotenv", cfg.WeatherAPIKey)
	}
	if cfg.CacheBackend != BackendMemcached {
		t.Errorf("CacheBackend = %q, want memcached", cfg.CacheBackend)
	}
}

func TestLoad_DotEnvDoesNotOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "from-env")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("API_KEY=from-dotenv\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "from-env" {
		t.Errorf("WeatherAPIKey = %q, want from-env", cfg.WeatherAPIKey)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_NAME", "nonexistent")
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	dir := t.TempDir()
	writeEnvFile(t, dir, "server:\n  port: \"9090\"\n")
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.WeatherAPIURL != defaultWeatherAPIURL {
		t.Errorf("WeatherAPIURL = %q, want %q", cfg.WeatherAPIURL, defaultWeatherAPIURL)
	}
	if cfg.WeatherAPITimeout != 2*time.Second {
		t.Errorf("WeatherAPITimeout = %v, want 2s", cfg.WeatherAPITimeout)
	}
	if cfg.CacheBackend != BackendRedis {
		t.Errorf("CacheBackend = %q, want redis", cfg.CacheBackend)
	}
	if cfg.RedisAddr != "localhost:6379" || cfg.RedisPoolSize != 20 || cfg.RedisPoolTimeout != time.Second {
		t.Errorf("redis defaults = %q/%d/%v, want localhost:6379/20/1s", cfg.RedisAddr, cfg.RedisPoolSize, cfg.RedisPoolTimeout)
	}
	if cfg.AuthAddr != "localhost:50051" {
		t.Errorf("AuthAddr = %q, want localhost:50051", cfg.AuthAddr)
	}
	if cfg.AuthMethod != "" {
		t.Errorf("AuthMethod = %q, want empty (gateway default)", cfg.AuthMethod)
	}
	if cfg.AuthMode != AuthModePermissive {
		t.Errorf("AuthMode = %q, want permissive", cfg.AuthMode)
	}
	if cfg.AuthSecurityDisabled {
		t.Error("AuthSecurityDisabled = true, want false by default")
	}
	if cfg.ForecastMaxDays != 14 {
		t.Errorf("ForecastMaxDays = %d, want 14", cfg.ForecastMaxDays)
	}
	if cfg.ForecastLocation != time.Local {
		t.Errorf("ForecastLocation = %v, want Local", cfg.ForecastLocation)
	}
	if cfg.CoalesceEnabled || cfg.WarmEnabled || cfg.CircuitBreakerEnabled {
		t.Error("optional features should default to disabled")
	}
}

func TestLoad_FullFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	yaml := `
server:
  port: "8081"
  request_timeout: "4s"
  shutdown:
    timeout: "10s"
    drain_interval: "50ms"
weather_api:
  url: "https://provider.example.com/v1"
  timeout: "1s"
  circuit_breaker:
    enabled: true
    failure_threshold: 3
    timeout: "15s"
cache:
  backend: "memcached"
  redis:
    addr: "redis:6380"
    pool_size: 8
    min_idle_conns: 2
    pool_timeout: "250ms"
  memcached:
    addrs: "mc1:11211,mc2:11211"
    timeout: "200ms"
    max_idle_conns: 4
  warm:
    enabled: true
    cities: ["London", "Paris"]
    interval: "15m"
auth:
  addr: "auth:6000"
  method: "/ru.pobopo.weather.grpc.AuthService/authUser"
  timeout: "500ms"
  mode: "enforce"
forecast:
  max_days: 10
  timezone: "UTC"
  coalesce:
    enabled: true
    timeout: "3s"
rate_limit:
  rps: 5
  burst: 10
health:
  overload_window: "30s"
  overload_denied_pct: 90
  degraded_window: "45s"
  degraded_error_pct: 10
metrics:
  tracked_cities: ["London"]
`
	dir := t.TempDir()
	writeEnvFile(t, dir, yaml)
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"ServerPort", cfg.ServerPort, "8081"},
		{"RequestTimeout", cfg.RequestTimeout, 4 * time.Second},
		{"ShutdownTimeout", cfg.ShutdownTimeout, 10 * time.Second},
		{"DrainInterval", cfg.DrainInterval, 50 * time.Millisecond},
		{"WeatherAPIURL", cfg.WeatherAPIURL, "https://provider.example.com/v1"},
		{"WeatherAPITimeout", cfg.WeatherAPITimeout, time.Second},
		{"CircuitBreakerEnabled", cfg.CircuitBreakerEnabled, true},
		{"CircuitBreakerFailureThreshold", cfg.CircuitBreakerFailureThreshold, 3},
		{"CircuitBreakerSuccessThreshold", cfg.CircuitBreakerSuccessThreshold, 2},
		{"CircuitBreakerTimeout", cfg.CircuitBreakerTimeout, 15 * time.Second},
		{"CacheBackend", cfg.CacheBackend, BackendMemcached},
		{"RedisAddr", cfg.RedisAddr, "redis:6380"},
		{"RedisPoolSize", cfg.RedisPoolSize, 8},
		{"RedisMinIdleConns", cfg.RedisMinIdleConns, 2},
		{"RedisPoolTimeout", cfg.RedisPoolTimeout, 250 * time.Millisecond},
		{"MemcachedAddrs", cfg.MemcachedAddrs, "mc1:11211,mc2:11211"},
		{"MemcachedTimeout", cfg.MemcachedTimeout, 200 * time.Millisecond},
		{"MemcachedMaxIdleConns", cfg.MemcachedMaxIdleConns, 4},
		{"WarmEnabled", cfg.WarmEnabled, true},
		{"WarmCities", strings.Join(cfg.WarmCities, ","), "London,Paris"},
		{"WarmInterval", cfg.WarmInterval, 15 * time.Minute},
		{"WarmTimeout", cfg.WarmTimeout, 10 * time.Second},
		{"AuthAddr", cfg.AuthAddr, "auth:6000"},
		{"AuthMethod", cfg.AuthMethod, "/ru.pobopo.weather.grpc.AuthService/authUser"},
		{"AuthTimeout", cfg.AuthTimeout, 500 * time.Millisecond},
		{"AuthMode", cfg.AuthMode, AuthModeEnforce},
		{"ForecastMaxDays", cfg.ForecastMaxDays, 10},
		{"ForecastLocation", cfg.ForecastLocation.String(), "UTC"},
		{"CoalesceEnabled", cfg.CoalesceEnabled, true},
		{"CoalesceTimeout", cfg.CoalesceTimeout, 3 * time.Second},
		{"RateLimitRPS", cfg.RateLimitRPS, 5},
		{"RateLimitBurst", cfg.RateLimitBurst, 10},
		{"OverloadWindow", cfg.OverloadWindow, 30 * time.Second},
		{"OverloadDeniedPct", cfg.OverloadDeniedPct, 90},
		{"DegradedWindow", cfg.DegradedWindow, 45 * time.Second},
		{"DegradedErrorPct", cfg.DegradedErrorPct, 10},
		{"TrackedCities", strings.Join(cfg.TrackedCities, ","), "London"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	t.Setenv("BASE_URL", "http://localhost:9999/v1")
	t.Setenv("CACHE_BACKEND", "IN_MEMORY")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6390")
	t.Setenv("MEMCACHED_ADDRS", "mc:11211")
	t.Setenv("AUTH_HOST", "authgate")
	t.Setenv("AUTH_PORT", "7000")
	t.Setenv("SECURITY_DISABLED", "true")
	t.Setenv("AUTH_MODE", "enforce")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIURL != "http://localhost:9999/v1" {
		t.Errorf("WeatherAPIURL = %q, want BASE_URL value", cfg.WeatherAPIURL)
	}
	if cfg.CacheBackend != BackendInMemory {
		t.Errorf("CacheBackend = %q, want in_memory", cfg.CacheBackend)
	}
	if cfg.RedisAddr != "cache.internal:6390" {
		t.Errorf("RedisAddr = %q, want cache.internal:6390", cfg.RedisAddr)
	}
	if cfg.MemcachedAddrs != "mc:11211" {
		t.Errorf("MemcachedAddrs = %q, want mc:11211", cfg.MemcachedAddrs)
	}
	if cfg.AuthAddr != "authgate:7000" {
		t.Errorf("AuthAddr = %q, want authgate:7000", cfg.AuthAddr)
	}
	if !cfg.AuthSecurityDisabled {
		t.Error("AuthSecurityDisabled = false, want true from SECURITY_DISABLED")
	}
	if cfg.AuthMode != AuthModeEnforce {
		t.Errorf("AuthMode = %q, want enforce", cfg.AuthMode)
	}
}

func TestLoad_RedisHostOnlyKeepsFilePort(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	t.Setenv("REDIS_HOST", "redis-primary")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML+"cache:\n  redis:\n    addr: \"localhost:6400\"\n")
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RedisAddr != "redis-primary:6400" {
		t.Errorf("RedisAddr = %q, want redis-primary:6400", cfg.RedisAddr)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML+"cache:\n  redis:\n    pool_timeout: \"invalid\"\n")
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RedisPoolTimeout != time.Second {
		t.Errorf("RedisPoolTimeout = %v, want default 1s", cfg.RedisPoolTimeout)
	}
}

func TestLoad_RequestTimeoutRaisedAboveProviderTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	dir := t.TempDir()
	writeEnvFile(t, dir, "weather_api:\n  timeout: \"3s\"\nserver:\n  request_timeout: \"2s\"\n")
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout != 4*time.Second {
		t.Errorf("RequestTimeout = %v, want 4s (provider timeout + 1s)", cfg.RequestTimeout)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "zero provider timeout",
			yaml:    "weather_api:\n  timeout: \"0s\"\n",
			wantErr: "weather_api.timeout",
		},
		{
			name:    "unknown cache backend",
			yaml:    "cache:\n  backend: \"etcd\"\n",
			wantErr: "cache.backend",
		},
		{
			name:    "unknown auth mode",
			yaml:    minimalEnvYAML,
			env:     map[string]string{"AUTH_MODE": "lenient"},
			wantErr: "auth.mode",
		},
		{
			name:    "security disabled not boolean",
			yaml:    minimalEnvYAML,
			env:     map[string]string{"SECURITY_DISABLED": "maybe"},
			wantErr: "SECURITY_DISABLED",
		},
		{
			name:    "warming without cities",
			yaml:    "cache:\n  warm:\n    enabled: true\n",
			wantErr: "cache.warm.cities",
		},
		{
			name:    "unknown timezone",
			yaml:    "forecast:\n  timezone: \"Mars/Olympus\"\n",
			wantErr: "forecast.timezone",
		},
		{
			name:    "invalid config yaml",
			yaml:    "not: valid: yaml: [[[",
			wantErr: "parse config file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("WEATHER_API_KEY", "test-key-1234567890")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			dir := t.TempDir()
			writeEnvFile(t, dir, tt.yaml)
			chdir(t, dir)

			cfg, err := Load()
			if err == nil {
				t.Fatalf("Load() expected error containing %q, got nil", tt.wantErr)
			}
			if cfg != nil {
				t.Fatalf("Load() expected nil config on error, got %+v", cfg)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want message containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_InvalidSecretsYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "not valid: yaml: [[[")
	chdir(t, dir)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid secrets YAML, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "parse secrets file") {
		t.Errorf("Load() error = %v, want message about parse secrets file", err)
	}
}

func TestLoad_ProjectDevConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	chdir(t, findProjectRoot(t))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIURL == "" || cfg.ServerPort == "" {
		t.Errorf("Load() did not populate config from config/dev.yaml")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Second},
		{"  ", time.Second},
		{"bogus", time.Second},
		{"0s", time.Second},
		{"-5s", time.Second},
		{"250ms", 250 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.in, time.Second); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := parseDurationOrZero("0s", time.Second); got != 0 {
		t.Errorf("parseDurationOrZero(0s) = %v, want 0", got)
	}
}

const minimalEnvYAML = `
server:
  port: "8080"
weather_api:
  url: "https://api.example.com/v1"
  timeout: "2s"
`

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	secretsDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(secretsDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secretsDir, "secrets.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
