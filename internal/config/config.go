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
	Auth     AuthConfig
	Cards    CardConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	EntryRecorded     string
	EntryDeparted     string
	TouristRegistered string
}

type AuthConfig struct {
	// OIDC issuer used to verify staff tokens, e.g.
	// http://auth.checkin.local:8080/realms/event-checkin
	OIDCIssuer string
	// Identity-provider admin API (Keycloak) reached with an M2M token.
	KeycloakURL    string
	KeycloakRealm  string
	ClientID       string
	ClientSecret   string
	RegisterSecKey string
	RegisterAdmKey string
}

type CardConfig struct {
	QRSecret string
	OutDir   string
	FontPath string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8085"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_ADDR", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				EntryRecorded:     getEnv("KAFKA_TOPIC_ENTRY_RECORDED", "checkin.entry.recorded"),
				EntryDeparted:     getEnv("KAFKA_TOPIC_ENTRY_DEPARTED", "checkin.entry.departed"),
				TouristRegistered: getEnv("KAFKA_TOPIC_TOURIST_REGISTERED", "checkin.tourist.registered"),
			},
		},
		Auth: AuthConfig{
			OIDCIssuer:     getEnv("OIDC_ISSUER", ""),
			KeycloakURL:    getEnv("KEYCLOAK_URL", ""),
			KeycloakRealm:  getEnv("KEYCLOAK_REALM", "event-checkin"),
			ClientID:       getEnv("CHECKIN_CLIENT_ID", ""),
			ClientSecret:   getEnv("CHECKIN_CLIENT_SECRET", ""),
			RegisterSecKey: getEnv("REGISTER_SECURITY_KEY", ""),
			RegisterAdmKey: getEnv("REGISTER_ADMIN_KEY", ""),
		},
		Cards: CardConfig{
			QRSecret: getEnv("QR_SECRET_KEY", ""),
			OutDir:   getEnv("CARD_OUT_DIR", "static/cards"),
			FontPath: getEnv("CARD_FONT_PATH", "./fonts/DejaVuSans.ttf"),
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
