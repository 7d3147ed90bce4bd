package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Session    SessionConfig    `yaml:"session"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Google     GoogleConfig     `yaml:"google"`
	Search     SearchConfig     `yaml:"search"`
	Storage    StorageConfig    `yaml:"storage"`
	Exports    ExportConfig     `yaml:"exports"`
}

// BookingConfig bounds what a booking request may ask for.
type BookingConfig struct {
	ViewingWindowDays int `yaml:"viewing_window_days"`
	MaxAdvanceDays    int `yaml:"max_advance_days"`
	MaxLeaseMonths    int `yaml:"max_lease_months"`
	MaxStayNights     int `yaml:"max_stay_nights"`
	RequestRateLimit  int `yaml:"request_rate_limit"`
	RequestRateWindow int `yaml:"request_rate_window"` // seconds
}

type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled       bool  `yaml:"enabled"`
	Port          int   `yaml:"port"`
	MaxUploadSize int64 `yaml:"max_upload_size"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled       bool           `yaml:"enabled"`
	HeaderAPIKey  string         `yaml:"header_api_key"`
	HeaderExtra   string         `yaml:"header_extra"`
	HeaderSession string         `yaml:"header_session"`
	APIKeys       []APIClientKey `yaml:"api_keys"`
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

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

// LoggingConfig.Output is stdout, stderr, file, or tee (stdout and file).
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
	Caller   bool   `yaml:"caller"`
}

type GoogleConfig struct {
	Enabled               bool            `yaml:"enabled"`
	GoogleCredentialsFile string          `yaml:"credentials_file"`
	BookingSpreadSheetID  string          `yaml:"bookings_spreadsheet_id"`
	SheetName             string          `yaml:"sheet_name"`
	Retry                 SyncRetryConfig `yaml:"retry"`
}

// SyncRetryConfig controls how failed sheet sync tasks back off.
// Jitter is a fraction of the delay in [0, 1].
type SyncRetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Backoff      float64       `yaml:"backoff"`
	Jitter       float64       `yaml:"jitter"`
}

type SearchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	URL      string        `yaml:"url"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type StorageConfig struct {
	BasePath      string `yaml:"base_path"`
	PublicBaseURL string `yaml:"public_base_url"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; variables already in the environment win.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
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

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE") {
		return errors.New("telegram bot token is required when telegram is enabled")
	}
	if c.Google.Enabled && (c.Google.GoogleCredentialsFile == "" || c.Google.BookingSpreadSheetID == "") {
		return errors.New("google credentials_file and bookings_spreadsheet_id are required when google is enabled")
	}
	if c.Search.Enabled && c.Search.URL == "" {
		return errors.New("search url is required when search is enabled")
	}
	if c.Google.Retry.Jitter < 0 || c.Google.Retry.Jitter > 1 {
		return errors.New("google.retry.jitter must be between 0 and 1")
	}
	if c.Booking.ViewingWindowDays < 0 || c.Booking.MaxAdvanceDays < 0 {
		return errors.New("booking windows must not be negative")
	}

	return ValidateAPIKeys(c.API.Auth.APIKeys)
}

// ValidateAPIKeys rejects empty and duplicate client keys.
func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if k.Key == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client '%s'", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "rentals"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.MaxUploadSize == 0 {
		c.API.HTTP.MaxUploadSize = 10 << 20
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
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
	if c.API.Auth.HeaderSession == "" {
		c.API.Auth.HeaderSession = "x-session-token"
	}

	if c.Booking.ViewingWindowDays == 0 {
		c.Booking.ViewingWindowDays = 14
	}
	if c.Booking.MaxAdvanceDays == 0 {
		c.Booking.MaxAdvanceDays = 365
	}
	if c.Booking.MaxLeaseMonths == 0 {
		c.Booking.MaxLeaseMonths = 24
	}
	if c.Booking.MaxStayNights == 0 {
		c.Booking.MaxStayNights = 90
	}
	if c.Booking.RequestRateLimit == 0 {
		c.Booking.RequestRateLimit = 10
	}
	if c.Booking.RequestRateWindow == 0 {
		c.Booking.RequestRateWindow = 3600
	}

	if c.Session.TTL == 0 {
		c.Session.TTL = 24 * time.Hour
	}
	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 7
	}
	if c.Google.SheetName == "" {
		c.Google.SheetName = "Bookings"
	}
	if c.Google.Retry.MaxRetries == 0 {
		c.Google.Retry.MaxRetries = 5
	}
	if c.Google.Retry.InitialDelay == 0 {
		c.Google.Retry.InitialDelay = 2 * time.Second
	}
	if c.Google.Retry.MaxDelay == 0 {
		c.Google.Retry.MaxDelay = time.Minute
	}
	if c.Google.Retry.Backoff == 0 {
		c.Google.Retry.Backoff = 2
	}
	if c.Search.Timeout == 0 {
		c.Search.Timeout = 5 * time.Second
	}
	if c.Search.CacheTTL == 0 {
		c.Search.CacheTTL = 5 * time.Minute
	}
	if c.Storage.BasePath == "" {
		c.Storage.BasePath = "data/blobs"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "data/exports"
	}
}
