package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	LogMode    string

	StoreDriver string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBMigrate   bool

	RedisURL     string
	RedisChannel string

	JWTSecret      string
	AllowedOrigins []string

	// Envelope encryption
	KeyService        string
	MasterKeyID       string
	LocalMasterKey    string
	AWSRegion         string
	EnvelopeScheme    string
	KeyServiceTimeout time.Duration

	// Realtime connections
	MaxConnsPerUser   int
	ProbeInterval     time.Duration
	ProbeTimeout      time.Duration
	IdleTimeout       time.Duration
	IdleCheckInterval time.Duration
}

func Load() *Config {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: reading .env: %v", err)
	}

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogMode:    getEnv("LOG_MODE", "development"),

		StoreDriver: getEnv("STORE_DRIVER", "postgres"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "sprout"),
		DBPassword:  getEnv("DB_PASSWORD", "sprout_dev_password"),
		DBName:      getEnv("DB_NAME", "sprout"),
		DBMigrate:   getEnvBool("DB_MIGRATE", true),

		RedisURL:     getEnv("REDIS_URL", ""),
		RedisChannel: getEnv("REDIS_CHANNEL", "sprout:realtime"),

		JWTSecret:      getEnv("JWT_SECRET", "dev-secret-change-me"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),

		KeyService:        getEnv("KEY_SERVICE", "local"),
		MasterKeyID:       getEnv("MASTER_KEY_ID", "sprout-chat"),
		LocalMasterKey:    getEnv("LOCAL_MASTER_KEY", ""),
		AWSRegion:         getEnv("AWS_REGION", "eu-central-1"),
		EnvelopeScheme:    getEnv("ENVELOPE_SCHEME", "AES256-GCM/v1"),
		KeyServiceTimeout: getEnvDuration("KEY_SERVICE_TIMEOUT", 5*time.Second),

		MaxConnsPerUser:   getEnvInt("WS_MAX_CONNS_PER_USER", 5),
		ProbeInterval:     getEnvDuration("WS_PROBE_INTERVAL", 30*time.Second),
		ProbeTimeout:      getEnvDuration("WS_PROBE_TIMEOUT", 10*time.Second),
		IdleTimeout:       getEnvDuration("WS_IDLE_TIMEOUT", 5*time.Minute),
		IdleCheckInterval: getEnvDuration("WS_IDLE_CHECK_INTERVAL", time.Minute),
	}
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: %s=%q is not an integer, using %d", key, v, fallback)
		return fallback
	}
	return i
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("config: %s=%q is not a positive duration, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
