package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Email    EmailConfig
	Gateway  GatewayConfig
	Auth     AuthConfig
	Orders   OrderConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	OrderCreated     string
	PaymentConfirmed string
	PaymentFailed    string
	SecurityAlerts   string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	From         string
}

// GatewayConfig holds the payment gateway credentials. KeySecret doubles as
// the shared secret for callback signature verification.
type GatewayConfig struct {
	KeyID     string
	KeySecret string
	Currency  string
	Timeout   time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

type OrderConfig struct {
	OperatorEmail        string
	SongUnlockFeeMinor   int64
	SongStandardFeeMinor int64
	SongExpressFeeMinor  int64
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "aaroh_user"),
			Password:     getEnv("DB_PASSWORD", "aaroh_pass"),
			Database:     getEnv("DB_NAME", "aaroh_orders"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			GroupID: getEnv("KAFKA_GROUP_ID", "aaroh-orders-group"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				OrderCreated:     getEnv("KAFKA_TOPIC_ORDER_CREATED", "order-created"),
				PaymentConfirmed: getEnv("KAFKA_TOPIC_PAYMENT_CONFIRMED", "payment-confirmed"),
				PaymentFailed:    getEnv("KAFKA_TOPIC_PAYMENT_FAILED", "payment-failed"),
				SecurityAlerts:   getEnv("KAFKA_TOPIC_SECURITY_ALERTS", "security-alerts"),
			},
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:     getEnvInt("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			From:         getEnv("SMTP_FROM", "orders@aaroh.in"),
		},
		Gateway: GatewayConfig{
			KeyID:     getEnv("GATEWAY_KEY_ID", ""),
			KeySecret: getEnv("GATEWAY_KEY_SECRET", ""),
			Currency:  getEnv("GATEWAY_CURRENCY", "INR"),
			Timeout:   time.Duration(getEnvInt("GATEWAY_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Orders: OrderConfig{
			OperatorEmail:        getEnv("OPERATOR_EMAIL", "ops@aaroh.in"),
			SongUnlockFeeMinor:   int64(getEnvInt("SONG_UNLOCK_FEE_MINOR", 49900)),
			SongStandardFeeMinor: int64(getEnvInt("SONG_STANDARD_FEE_MINOR", 149900)),
			SongExpressFeeMinor:  int64(getEnvInt("SONG_EXPRESS_FEE_MINOR", 249900)),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
