package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Booking    BookingConfig    `yaml:"booking"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// TelegramConfig настраивает уведомления менеджерам о новых записях.
type TelegramConfig struct {
	Enabled        bool    `yaml:"enabled"`
	BotToken       string  `yaml:"bot_token"`
	ManagerChatIDs []int64 `yaml:"manager_chat_ids"`
	QueueSize      int     `yaml:"queue_size"`
	Debug          bool    `yaml:"debug"`
}

type DatabaseConfig struct {
	Driver        string         `yaml:"driver"`
	Path          string         `yaml:"path"`
	BusyTimeoutMS int            `yaml:"busy_timeout_ms"`
	Postgres      PostgresConfig `yaml:"postgres"`
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

// DSN builds a lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type RedisConfig struct {
	Address     string        `yaml:"address"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"pool_size"`
	SettingsTTL time.Duration `yaml:"settings_ttl"`
}

// BookingConfig tunes the allocator's retry loop and store timeouts.
type BookingConfig struct {
	MaxRetries        int           `yaml:"max_retries"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
	StoreTimeout      time.Duration `yaml:"store_timeout"`
	LockTTL           time.Duration `yaml:"lock_ttl"`
	LockWait          time.Duration `yaml:"lock_wait"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	CORS      APICORSConfig      `yaml:"cors"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type APICORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func Load(configPath string) (*Config, error) {
	// .env необязателен: в контейнере переменные приходят из окружения
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
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
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case DriverPostgres:
		if c.Database.Postgres.Host == "" || c.Database.Postgres.DBName == "" {
			return errors.New("postgres host and dbname are required")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
			return errors.New("telegram bot token is required when notifications are enabled")
		}
		if len(c.Telegram.ManagerChatIDs) == 0 {
			return errors.New("telegram manager_chat_ids are required when notifications are enabled")
		}
	}

	if c.Booking.MaxRetries < 0 {
		return errors.New("booking max_retries must not be negative")
	}
	if c.API.RateLimit.RPS < 0 {
		return errors.New("api rate_limit rps must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.BusyTimeoutMS == 0 {
		c.Database.BusyTimeoutMS = 5000
	}
	if c.Database.Postgres.Port == 0 {
		c.Database.Postgres.Port = 5432
	}
	if c.Database.Postgres.SSLMode == "" {
		c.Database.Postgres.SSLMode = "disable"
	}

	if c.Redis.SettingsTTL == 0 {
		c.Redis.SettingsTTL = 5 * time.Minute
	}

	if c.Booking.MaxRetries == 0 {
		c.Booking.MaxRetries = 3
	}
	if c.Booking.RetryInitialDelay == 0 {
		c.Booking.RetryInitialDelay = 20 * time.Millisecond
	}
	if c.Booking.RetryMaxDelay == 0 {
		c.Booking.RetryMaxDelay = 500 * time.Millisecond
	}
	if c.Booking.StoreTimeout == 0 {
		c.Booking.StoreTimeout = 5 * time.Second
	}
	if c.Booking.LockTTL == 0 {
		c.Booking.LockTTL = 10 * time.Second
	}
	if c.Booking.LockWait == 0 {
		c.Booking.LockWait = 3 * time.Second
	}

	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Telegram.QueueSize == 0 {
		c.Telegram.QueueSize = 256
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "./data/backups"
	}
}
