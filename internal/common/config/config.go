package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/uma-arai/sbcntr-happypaws/internal/common/database"
)

// DuplicatePolicy は同一の顧客・ペットによる同一クラスへの重複予約の扱いです
type DuplicatePolicy string

const (
	// DuplicateAllow は重複予約を許可します
	DuplicateAllow DuplicatePolicy = "allow"
	// DuplicateReject は有効な予約が既にある場合に新規予約を拒否します
	DuplicateReject DuplicatePolicy = "reject"
)

type Config struct {
	DB  database.Config
	SFN struct {
		TaskToken string
	}
	EnableTracing bool
	Local         bool
	AutoMigrate   bool

	HTTP     HTTPConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Booking  BookingConfig
	LogLevel string
}

type HTTPConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type RedisConfig struct {
	URL            string
	IdempotencyTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	// NotificationGroup は通知ワーカーのコンシューマグループです
	NotificationGroup string
}

// BookingConfig は予約受付の挙動を制御します
type BookingConfig struct {
	MaxRetries      int
	RetryBackoff    time.Duration
	DuplicatePolicy DuplicatePolicy
}

// defaultJWTSecret はローカル開発用の署名鍵です。LOCAL以外では使えません
const defaultJWTSecret = "local_dev_secret"

// LoadServerConfig はAPIサーバー用に設定を読み込みます
// トークンを発行するため、LoadConfigの検証に加えて署名鍵を検証します
func LoadServerConfig() (*Config, error) {
	cfg, err := LoadConfig("")
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateAuth(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig は設定を読み込みます
func LoadConfig(taskToken string) (*Config, error) {
	cfg := &Config{
		DB: database.Config{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvAsIntOrDefault("DB_PORT", 5432),
			UserName: getEnvOrDefault("DB_USERNAME", "sbcntrapp"),
			Password: getEnvOrDefault("DB_PASSWORD", "password"),
			DBName:   getEnvOrDefault("DB_NAME", "happypaws"),
		},
		EnableTracing: false,
		Local:         os.Getenv("ENV") == "LOCAL",
		AutoMigrate:   getEnvAsBoolOrDefault("DB_AUTO_MIGRATE", false),
		HTTP: HTTPConfig{
			Port:            getEnvOrDefault("PORT", "8080"),
			ReadTimeout:     getEnvAsDurationOrDefault("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDurationOrDefault("HTTP_WRITE_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDurationOrDefault("HTTP_REQUEST_TIMEOUT", 5*time.Second),
			ShutdownTimeout: getEnvAsDurationOrDefault("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnvOrDefault("JWT_SECRET", defaultJWTSecret),
			TokenTTL:  getEnvAsDurationOrDefault("JWT_TTL", 24*time.Hour),
		},
		Redis: RedisConfig{
			URL:            os.Getenv("REDIS_URL"),
			IdempotencyTTL: getEnvAsDurationOrDefault("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers:           splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:             getEnvOrDefault("KAFKA_BOOKING_TOPIC", "happypaws.bookings"),
			NotificationGroup: getEnvOrDefault("KAFKA_NOTIFICATION_GROUP", "happypaws.notifications"),
		},
		Booking: BookingConfig{
			MaxRetries:      getEnvAsIntOrDefault("BOOKING_MAX_RETRIES", 3),
			RetryBackoff:    getEnvAsDurationOrDefault("BOOKING_RETRY_BACKOFF", 20*time.Millisecond),
			DuplicatePolicy: DuplicatePolicy(strings.ToLower(getEnvOrDefault("BOOKING_DUPLICATE_POLICY", string(DuplicateAllow)))),
		},
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}
	cfg.SFN.TaskToken = taskToken

	// 環境変数[SBCNTR_ENABLE_TRACING]を見てトレースを有効にする。対応しているTracingはAWS_XRAYのみ。
	// 環境変数[AWS_XRAY_SDK_DISABLED]がtrueの場合は必ずトレースを無効にする。
	enableKey := os.Getenv("SBCNTR_ENABLE_TRACING")
	if !sdkDisabled() && (strings.ToLower(enableKey) == "true" || enableKey == "1") {
		os.Setenv("AWS_XRAY_SDK_DISABLED", "FALSE")
		cfg.EnableTracing = true
	} else {
		os.Setenv("AWS_XRAY_SDK_DISABLED", "TRUE")
		cfg.EnableTracing = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate は設定値をまとめて検証し、問題をすべて列挙したエラーを返します
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.HTTP.Port); err != nil || port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("PORT must be between 1 and 65535, got: %s", c.HTTP.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		problems = append(problems, fmt.Sprintf("DB_PORT must be between 1 and 65535, got: %d", c.DB.Port))
	}
	if c.Auth.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET cannot be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		problems = append(problems, fmt.Sprintf("JWT_TTL must be positive, got: %s", c.Auth.TokenTTL))
	}
	if c.Booking.MaxRetries < 0 {
		problems = append(problems, fmt.Sprintf("BOOKING_MAX_RETRIES cannot be negative, got: %d", c.Booking.MaxRetries))
	}
	if c.Booking.RetryBackoff < 0 {
		problems = append(problems, fmt.Sprintf("BOOKING_RETRY_BACKOFF cannot be negative, got: %s", c.Booking.RetryBackoff))
	}
	switch c.Booking.DuplicatePolicy {
	case DuplicateAllow, DuplicateReject:
	default:
		problems = append(problems, fmt.Sprintf("BOOKING_DUPLICATE_POLICY must be allow or reject, got: %s", c.Booking.DuplicatePolicy))
	}
	if c.HTTP.RequestTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("HTTP_REQUEST_TIMEOUT must be positive, got: %s", c.HTTP.RequestTimeout))
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("HTTP_SHUTDOWN_TIMEOUT must be positive, got: %s", c.HTTP.ShutdownTimeout))
	}

	if len(problems) > 0 {
		msg := "configuration validation failed:\n"
		for i, p := range problems {
			msg += fmt.Sprintf("  %d. %s\n", i+1, p)
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}

// ValidateAuth はトークンの署名鍵を検証します
// LOCAL以外では既定の署名鍵を拒否します
func (c *Config) ValidateAuth() error {
	switch {
	case c.Auth.JWTSecret == "":
		return fmt.Errorf("JWT_SECRET cannot be empty")
	case !c.Local && c.Auth.JWTSecret == defaultJWTSecret:
		return fmt.Errorf("JWT_SECRET must be set outside the LOCAL environment")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	log.Printf("Environment variable %s is not set, using default value", key)
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Check if SDK is disabled
func sdkDisabled() bool {
	disableKey := os.Getenv("AWS_XRAY_SDK_DISABLED")
	return strings.ToLower(disableKey) == "true"
}
