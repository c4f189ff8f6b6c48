package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	HTTP       HTTPConfig
	Rollup     RollupConfig
	Workers    WorkerConfig
	SMTP       SMTPConfig
	Log        LogConfig
	Engine     EngineConfig
	EnginePath string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

type KafkaConfig struct {
	Brokers        []string
	TopicAnomalies string
	NumPartitions  int
	GroupID        string
}

type HTTPConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type RollupConfig struct {
	HourlyDelay   time.Duration
	DailyTime     string
	MigrationsDir string
}

type WorkerConfig struct {
	Count     int
	QueueSize int
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment, after loading an optional
// .env file. When ENGINE_CONFIG names a YAML file the engine options are
// read from it on top of the defaults.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "fleet_user"),
			Password: getEnv("DB_PASSWORD", "fleet_pass"),
			DBName:   getEnv("DB_NAME", "fleet_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			CacheTTL: getEnvAsDuration("REDIS_CACHE_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:        strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicAnomalies: getEnv("KAFKA_TOPIC_ANOMALIES", "fleet.analytics.anomalies"),
			NumPartitions:  getEnvAsInt("KAFKA_NUM_PARTITIONS", 6),
			GroupID:        getEnv("KAFKA_GROUP_ID", "fleet-notifier"),
		},
		HTTP: HTTPConfig{
			Port:            getEnvAsInt("HTTP_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("HTTP_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Rollup: RollupConfig{
			HourlyDelay:   getEnvAsDuration("ROLLUP_HOURLY_DELAY", 5*time.Minute),
			DailyTime:     getEnv("ROLLUP_DAILY_TIME", "00:05"),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),
		},
		Workers: WorkerConfig{
			Count:     getEnvAsInt("WORKER_COUNT", 8),
			QueueSize: getEnvAsInt("WORKER_QUEUE_SIZE", 256),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "fleet-analytics@example.com"),
			To:       getEnv("SMTP_TO", "fleet-ops@example.com"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Engine:     DefaultEngine(),
		EnginePath: getEnv("ENGINE_CONFIG", ""),
	}

	config.Engine.RemoveOutliers = getEnvAsBool("ENGINE_REMOVE_OUTLIERS", config.Engine.RemoveOutliers)

	if config.EnginePath != "" {
		engine, err := LoadEngine(config.EnginePath)
		if err != nil {
			return nil, err
		}
		config.Engine = *engine
	}
	if _, err := parseDailyTime(config.Rollup.DailyTime); err != nil {
		return nil, fmt.Errorf("config: ROLLUP_DAILY_TIME: %w", err)
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// parseDailyTime checks an "HH:MM" wall-clock time
func parseDailyTime(s string) (time.Time, error) {
	return time.Parse("15:04", s)
}
