package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"http_server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Security       SecurityConfig       `mapstructure:"security"`
	Ledger         LedgerConfig         `mapstructure:"ledger"`
	Notification   NotificationConfig   `mapstructure:"notification"`
	ObjectStorage  ObjectStorageConfig  `mapstructure:"object_storage"`
	Accountability AccountabilityConfig `mapstructure:"accountability"`
	Observability  ObservabilityConfig  `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LedgerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowSimulated bool          `mapstructure:"allow_simulated"`
}

type NotificationConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type ObjectStorageConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Bucket         string        `mapstructure:"bucket"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AccountabilityConfig controls the verification window and sweeper cadence.
type AccountabilityConfig struct {
	UploadWindow      time.Duration `mapstructure:"upload_window"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	ReminderThreshold time.Duration `mapstructure:"reminder_threshold"`
	ReminderCooldown  time.Duration `mapstructure:"reminder_cooldown"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds a Config from environment variables for container
// deployments where no config.yml is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:           getEnv("SERVER_BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("SERVER_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		Security: SecurityConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Ledger: LedgerConfig{
			BaseURL:        getEnv("LEDGER_BASE_URL", ""),
			APIKey:         getEnv("LEDGER_API_KEY", ""),
			RequestTimeout: getEnvAsDuration("LEDGER_REQUEST_TIMEOUT", 10*time.Second),
			AllowSimulated: getEnv("LEDGER_ALLOW_SIMULATED", "true") == "true",
		},
		Notification: NotificationConfig{
			BaseURL:        getEnv("NOTIFICATION_BASE_URL", ""),
			APIKey:         getEnv("NOTIFICATION_API_KEY", ""),
			RequestTimeout: getEnvAsDuration("NOTIFICATION_REQUEST_TIMEOUT", 10*time.Second),
		},
		ObjectStorage: ObjectStorageConfig{
			BaseURL:        getEnv("OBJECT_STORAGE_BASE_URL", ""),
			Bucket:         getEnv("OBJECT_STORAGE_BUCKET", "withdrawal-proofs"),
			RequestTimeout: getEnvAsDuration("OBJECT_STORAGE_REQUEST_TIMEOUT", 10*time.Second),
		},
		Accountability: AccountabilityConfig{
			UploadWindow:      getEnvAsDuration("UPLOAD_WINDOW", 24*time.Hour),
			SweepInterval:     getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
			ReminderThreshold: getEnvAsDuration("REMINDER_THRESHOLD", 30*time.Minute),
			ReminderCooldown:  getEnvAsDuration("REMINDER_COOLDOWN", 30*time.Minute),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Ledger.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("ledger config: %v", err))
	}

	if err := c.Accountability.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("accountability config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *LedgerConfig) Validate() error {
	if c.BaseURL == "" && !c.AllowSimulated {
		return errors.New("ledger base_url is required when simulation is disabled")
	}
	return nil
}

func (c *AccountabilityConfig) Validate() error {
	if c.UploadWindow <= 0 {
		return errors.New("upload_window must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweep_interval must be positive")
	}
	if c.ReminderThreshold <= 0 || c.ReminderCooldown <= 0 {
		return errors.New("reminder_threshold and reminder_cooldown must be positive")
	}
	return nil
}
