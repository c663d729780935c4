package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var (
	ErrInvalidStorage  = errors.New("invalid_storage_config")
	ErrInvalidNotifier = errors.New("invalid_notifier_config")
	ErrInvalidDatabase = errors.New("invalid_database_config")
)

const (
	StorageDriverS3     = "s3"
	StorageDriverLocal  = "local"
	StorageDriverMemory = "memory"

	NotifierDriverSMTP = "smtp"
	NotifierDriverNoop = "noop"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	SchedulerEnabled bool
	InternalToken    string

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBSQLitePath      string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Storage  StorageConfig
	Notifier NotifierConfig
	Redis    RedisConfig
}

// TelemetryConfig carries the logging and OpenTelemetry exporter settings.
type TelemetryConfig struct {
	LogLevel       string
	LogFormat      string
	TracingEnabled bool
	MetricsEnabled bool
	Endpoint       string
	Protocol       string
	SamplingRatio  float64
}

type StorageConfig struct {
	Driver          string
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	LocalRoot       string
}

type NotifierConfig struct {
	Driver   string
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "feeflow"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		SchedulerEnabled: getenvBool("SCHEDULER_ENABLED", true),
		InternalToken:    strings.TrimSpace(getenv("INTERNAL_API_TOKEN", "")),

		Telemetry: TelemetryConfig{
			LogLevel:       strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:      strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			TracingEnabled: getenvBool("OTEL_TRACING_ENABLED", getenvBool("OTEL_ENABLED", false)),
			MetricsEnabled: getenvBool("OTEL_METRICS_ENABLED", getenvBool("OTEL_ENABLED", false)),
			Endpoint:       strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
			Protocol:       strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio:  getenvRatio("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "feeflow"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBSQLitePath:      getenv("DATABASE_SQLITE_PATH", "feeflow.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Storage: StorageConfig{
			Driver:          strings.ToLower(getenv("STORAGE_DRIVER", StorageDriverLocal)),
			Bucket:          strings.TrimSpace(getenv("STORAGE_BUCKET", "")),
			Region:          strings.TrimSpace(getenv("STORAGE_REGION", "ap-southeast-2")),
			Endpoint:        strings.TrimSpace(getenv("STORAGE_ENDPOINT", "")),
			AccessKeyID:     strings.TrimSpace(getenv("STORAGE_ACCESS_KEY_ID", "")),
			SecretAccessKey: strings.TrimSpace(getenv("STORAGE_SECRET_ACCESS_KEY", "")),
			ForcePathStyle:  getenvBool("STORAGE_FORCE_PATH_STYLE", false),
			LocalRoot:       getenv("STORAGE_LOCAL_ROOT", "./data/documents"),
		},
		Notifier: NotifierConfig{
			Driver:   strings.ToLower(getenv("NOTIFIER_DRIVER", NotifierDriverSMTP)),
			Host:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: strings.TrimSpace(getenv("SMTP_USERNAME", "")),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     strings.TrimSpace(getenv("SMTP_FROM", "")),
			FromName: getenv("SMTP_FROM_NAME", "Accounts"),
		},
		Redis: RedisConfig{
			Enabled:  getenvBool("REDIS_ENABLED", false),
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
	}

	return cfg
}

// Validate fails fast on configuration the pipeline cannot run without.
func (c Config) Validate() error {
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	return c.Notifier.Validate()
}

func (c Config) ValidateDatabase() error {
	switch c.DBType {
	case "postgres", "mysql":
		if strings.TrimSpace(c.DBHost) == "" || strings.TrimSpace(c.DBName) == "" {
			return fmt.Errorf("%w: host and name are required", ErrInvalidDatabase)
		}
	case "sqlite":
	default:
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidDatabase, c.DBType)
	}
	return nil
}

func (s StorageConfig) Validate() error {
	switch s.Driver {
	case StorageDriverS3:
		if s.Bucket == "" {
			return fmt.Errorf("%w: bucket is required", ErrInvalidStorage)
		}
		if s.Region == "" {
			return fmt.Errorf("%w: region is required", ErrInvalidStorage)
		}
		if (s.AccessKeyID == "") != (s.SecretAccessKey == "") {
			return fmt.Errorf("%w: access key id and secret must be set together", ErrInvalidStorage)
		}
	case StorageDriverLocal:
		if strings.TrimSpace(s.LocalRoot) == "" {
			return fmt.Errorf("%w: local root is required", ErrInvalidStorage)
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("%w: unsupported driver %q", ErrInvalidStorage, s.Driver)
	}
	return nil
}

func (n NotifierConfig) Validate() error {
	switch n.Driver {
	case NotifierDriverSMTP:
		if n.Host == "" {
			return fmt.Errorf("%w: smtp host is required", ErrInvalidNotifier)
		}
		if n.Port <= 0 {
			return fmt.Errorf("%w: smtp port must be positive", ErrInvalidNotifier)
		}
		if n.From == "" {
			return fmt.Errorf("%w: sender address is required", ErrInvalidNotifier)
		}
	case NotifierDriverNoop:
	default:
		return fmt.Errorf("%w: unsupported driver %q", ErrInvalidNotifier, n.Driver)
	}
	return nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvRatio(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 || parsed > 1 {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
