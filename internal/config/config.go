package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	DB struct {
		DSN string
	}
	API struct {
		Port     string
		BasePath string
	}
	Logging struct {
		Dir   string
		Level string
	}
	Escalation struct {
		ScanInterval time.Duration
	}
	Schedule struct {
		HorizonWeeks   int
		ExtendInterval time.Duration
	}
	Notify struct {
		MaxWorkers   int
		PollInterval time.Duration
		MaxAttempts  int
		Backoff      time.Duration
	}
	Email struct {
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		FromName   string
	}
	Telegram struct {
		BotToken string
	}
	SMS struct {
		AccountSID string
		AuthToken  string
		FromNumber string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// Kafka settings
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// Database DSN
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	// Logging
	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Worker settings
	cfg.Escalation.ScanInterval = durationEnv("SCAN_INTERVAL")
	cfg.Schedule.ExtendInterval = durationEnv("EXTEND_INTERVAL")
	if hw, err := strconv.Atoi(os.Getenv("HORIZON_WEEKS")); err == nil {
		cfg.Schedule.HorizonWeeks = hw
	}
	if mw, err := strconv.Atoi(os.Getenv("NOTIFY_MAX_WORKERS")); err == nil {
		cfg.Notify.MaxWorkers = mw
	}
	cfg.Notify.PollInterval = durationEnv("NOTIFY_POLL_INTERVAL")
	if ma, err := strconv.Atoi(os.Getenv("NOTIFY_MAX_ATTEMPTS")); err == nil {
		cfg.Notify.MaxAttempts = ma
	}
	cfg.Notify.Backoff = durationEnv("NOTIFY_BACKOFF")

	// Email settings
	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	if p, err := strconv.Atoi(os.Getenv("EMAIL_SMTP_PORT")); err == nil {
		cfg.Email.SMTPPort = p
	}
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.FromName = os.Getenv("EMAIL_FROM_NAME")

	// Telegram settings
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")

	// SMS settings
	cfg.SMS.AccountSID = os.Getenv("SMS_ACCOUNT_SID")
	cfg.SMS.AuthToken = os.Getenv("SMS_AUTH_TOKEN")
	cfg.SMS.FromNumber = os.Getenv("SMS_FROM_NUMBER")

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.Kafka.Broker == "" {
		missing = append(missing, "KAFKA_BROKER")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "incident_events"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "oncall-service"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Escalation.ScanInterval == 0 {
		cfg.Escalation.ScanInterval = 5 * time.Second
	}
	if cfg.Schedule.HorizonWeeks == 0 {
		cfg.Schedule.HorizonWeeks = 12
	}
	if cfg.Schedule.ExtendInterval == 0 {
		cfg.Schedule.ExtendInterval = 6 * time.Hour
	}
	if cfg.Notify.MaxWorkers == 0 {
		cfg.Notify.MaxWorkers = 4
	}
	if cfg.Notify.PollInterval == 0 {
		cfg.Notify.PollInterval = 2 * time.Second
	}
	if cfg.Notify.MaxAttempts == 0 {
		cfg.Notify.MaxAttempts = 3
	}
	if cfg.Notify.Backoff == 0 {
		cfg.Notify.Backoff = 2 * time.Second
	}

	return cfg, nil
}

func durationEnv(key string) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return 0
}
