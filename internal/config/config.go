package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"dayplan/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Google     GoogleConfig     `yaml:"google"`
	Security   SecurityConfig   `yaml:"security"`
	Sync       SyncConfig       `yaml:"sync"`
	Planning   PlanningConfig   `yaml:"planning"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	Timezone    string `yaml:"timezone"`
}

type DatabaseConfig struct {
	Path     string         `yaml:"path"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	DBName         string `yaml:"dbname"`
	SSLMode        string `yaml:"sslmode"`
	MaxConnections int    `yaml:"max_connections"`
}

// DSN returns a lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type GoogleConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURI  string   `yaml:"redirect_uri"`
	CalendarID   string   `yaml:"calendar_id"`
	Scopes       []string `yaml:"scopes"`
	RPS          float64  `yaml:"rps"`
	Burst        int      `yaml:"burst"`
}

// Configured reports whether sync with Google can run at all. Without a
// client id and secret every sync trigger is a silent no-op.
func (g GoogleConfig) Configured() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type SecurityConfig struct {
	// TokenEncryptionKey is 32 bytes given as hex, base64 or raw text.
	TokenEncryptionKey string `yaml:"token_encryption_key"`
}

type SyncConfig struct {
	MaxRetries          int           `yaml:"max_retries"`
	InitialDelay        time.Duration `yaml:"initial_delay"`
	MaxDelay            time.Duration `yaml:"max_delay"`
	BackoffFactor       float64       `yaml:"backoff_factor"`
	ImmediateRetries    int           `yaml:"immediate_retries"`
	ImmediateRetryDelay time.Duration `yaml:"immediate_retry_delay"`
	BatchSize           int           `yaml:"batch_size"`
	DrainSchedule       string        `yaml:"drain_schedule"`
	DefaultDomainID     int64         `yaml:"default_domain_id"`
	ExportTimeout       time.Duration `yaml:"export_timeout"`
	StaleClaim          time.Duration `yaml:"stale_claim"`
}

type PlanningConfig struct {
	WorkdayStartHour       int   `yaml:"workday_start_hour"`
	WorkdayEndHour         int   `yaml:"workday_end_hour"`
	PeakHours              []int `yaml:"peak_hours"`
	LowHours               []int `yaml:"low_hours"`
	DefaultDurationMinutes int   `yaml:"default_duration_minutes"`
}

func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" && c.Database.Postgres.Host == "" {
		return errors.New("database path or postgres host is required")
	}

	if c.Google.Configured() {
		if _, err := c.Security.Key(); err != nil {
			return err
		}
	}

	if c.Planning.WorkdayStartHour < 0 || c.Planning.WorkdayEndHour > 24 ||
		c.Planning.WorkdayStartHour >= c.Planning.WorkdayEndHour {
		return fmt.Errorf("invalid workday window %d-%d", c.Planning.WorkdayStartHour, c.Planning.WorkdayEndHour)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.App.Timezone, err)
	}

	return ValidateHours(append(append([]int(nil), c.Planning.PeakHours...), c.Planning.LowHours...))
}

func ValidateHours(hours []int) error {
	for _, h := range hours {
		if h < 0 || h > 23 {
			return fmt.Errorf("hour %d out of range 0-23", h)
		}
	}
	return nil
}

// Location resolves App.Timezone, defaulting to the process local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" || strings.EqualFold(c.App.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.App.Timezone)
}

// Key decodes TokenEncryptionKey and checks it is exactly 32 bytes.
func (s SecurityConfig) Key() ([]byte, error) {
	raw := strings.TrimSpace(s.TokenEncryptionKey)
	if raw == "" {
		return nil, errors.New("security.token_encryption_key is required when google sync is configured")
	}

	var key []byte
	if decoded, err := hex.DecodeString(raw); err == nil && len(decoded) == 32 {
		key = decoded
	} else if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil && len(decoded) == 32 {
		key = decoded
	} else {
		key = []byte(raw)
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("token encryption key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		c.Google.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		c.Google.ClientSecret = v
	}
	if v := os.Getenv("GOOGLE_REDIRECT_URI"); v != "" {
		c.Google.RedirectURI = v
	}
	if v := os.Getenv("TOKEN_ENCRYPTION_KEY"); v != "" {
		c.Security.TokenEncryptionKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "dayplan"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Database.Postgres.Host != "" {
		if c.Database.Postgres.Port == 0 {
			c.Database.Postgres.Port = 5432
		}
		if c.Database.Postgres.SSLMode == "" {
			c.Database.Postgres.SSLMode = "disable"
		}
	}

	// Google defaults
	if c.Google.CalendarID == "" {
		c.Google.CalendarID = "primary"
	}
	if len(c.Google.Scopes) == 0 {
		c.Google.Scopes = []string{
			"https://www.googleapis.com/auth/calendar",
			"https://www.googleapis.com/auth/tasks",
		}
	}
	if c.Google.RPS == 0 {
		c.Google.RPS = 5
	}
	if c.Google.Burst == 0 {
		c.Google.Burst = 10
	}

	// Sync defaults
	if c.Sync.MaxRetries == 0 {
		c.Sync.MaxRetries = 5
	}
	if c.Sync.InitialDelay == 0 {
		c.Sync.InitialDelay = 30 * time.Second
	}
	if c.Sync.MaxDelay == 0 {
		c.Sync.MaxDelay = 30 * time.Minute
	}
	if c.Sync.BackoffFactor == 0 {
		c.Sync.BackoffFactor = 2
	}
	if c.Sync.ImmediateRetryDelay == 0 {
		c.Sync.ImmediateRetryDelay = 500 * time.Millisecond
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = models.DefaultQueueBatchSize
	}
	if c.Sync.DrainSchedule == "" {
		c.Sync.DrainSchedule = "@every 1m"
	}
	if c.Sync.ExportTimeout == 0 {
		c.Sync.ExportTimeout = 30 * time.Second
	}
	if c.Sync.StaleClaim == 0 {
		c.Sync.StaleClaim = 10 * time.Minute
	}

	// Planning defaults
	if c.Planning.WorkdayStartHour == 0 && c.Planning.WorkdayEndHour == 0 {
		c.Planning.WorkdayStartHour = 8
		c.Planning.WorkdayEndHour = 18
	}
	if c.Planning.DefaultDurationMinutes == 0 {
		c.Planning.DefaultDurationMinutes = models.DefaultEstimatedMinutes
	}
	if len(c.Planning.PeakHours) == 0 {
		c.Planning.PeakHours = []int{9, 10, 11}
	}
	if len(c.Planning.LowHours) == 0 {
		c.Planning.LowHours = []int{14, 15}
	}
}
