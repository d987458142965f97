package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	RedisAddr     string
	RedisPassword string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	EventsFile    string
	AdminSubjects []string
	AllowedOrigin string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	// Загружаем .env файл, если он есть. Ошибку не считаем фатальной.
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSecretKey:      os.Getenv("JWT_SECRET_KEY"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:  os.Getenv("TWILIO_FROM_NUMBER"),
		EventsFile:        os.Getenv("EVENTS_FILE"),
		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	required := map[string]string{
		"DATABASE_URL":         cfg.DatabaseURL,
		"JWT_SECRET_KEY":       cfg.JWTSecretKey,
		"REDIS_ADDR":           cfg.RedisAddr,
		"TWILIO_ACCOUNT_SID":   cfg.TwilioAccountSID,
		"TWILIO_AUTH_TOKEN":    cfg.TwilioAuthToken,
		"TWILIO_FROM_NUMBER":   cfg.TwilioFromNumber,
		"R2_ACCOUNT_ID":        cfg.R2AccountID,
		"R2_ACCESS_KEY_ID":     cfg.R2AccessKeyID,
		"R2_SECRET_ACCESS_KEY": cfg.R2SecretAccessKey,
		"R2_BUCKET_NAME":       cfg.R2BucketName,
		"R2_PUBLIC_BASE_URL":   cfg.R2PublicBaseURL,
	}
	for name, value := range required {
		if value == "" {
			return nil, fmt.Errorf("%s environment variable is not set", name)
		}
	}

	if cfg.EventsFile == "" {
		cfg.EventsFile = "config/events.json"
	}

	// Origin фронтенда для CORS и websocket-рукопожатия.
	// "*" оставляем только как дефолт для локальной разработки.
	cfg.AllowedOrigin = os.Getenv("ALLOWED_ORIGIN")
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}

	// Список UID администраторов через запятую (может быть пустым).
	for _, s := range strings.Split(os.Getenv("ADMIN_SUBJECTS"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.AdminSubjects = append(cfg.AdminSubjects, s)
		}
	}

	portStr := os.Getenv("SERVER_PORT")
	if portStr == "" {
		portStr = "8080" // Порт по умолчанию
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}
	cfg.ServerPort = port

	return cfg, nil
}
