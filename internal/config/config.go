package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment describes the deployment the process runs in. It is passed
// explicitly to the components that change behaviour with it.
type Environment struct {
	Name         string
	DryRun       bool
	MaskContacts bool
}

func (e Environment) IsProduction() bool {
	return e.Name == "production"
}

// Rates are the advisory per-message prices used by the cost estimator.
type Rates struct {
	EmailBase       string
	EmailLengthRate string
	WhatsAppBase    string
	WhatsAppLong    string
	SMSBase         string
	SMSLong         string
}

// Config holds application configuration loaded from environment.
type Config struct {
	App Environment
	API struct {
		Port     string
		BasePath string
	}
	DB struct {
		Storage string
		DSN     string
	}
	Kafka struct {
		Broker      string
		Topic       string
		GroupID     string
		EventsTopic string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
		TTL      time.Duration
	}
	Email struct {
		Provider   string
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		From       string
		FromName   string
		SESRegion  string
	}
	WhatsApp struct {
		AccountSID string
		AuthToken  string
		FromNumber string
	}
	SMS struct {
		Provider   string
		AccountSID string
		AuthToken  string
		FromNumber string
		SNSRegion  string
		SenderID   string
	}
	Telegram struct {
		BotToken string
		ChatID   int64
	}
	Logging struct {
		Dir   string
		Level string
	}
	Notification struct {
		QueueSize         int
		MaxWorkers        int
		TransmitTimeout   time.Duration
		SchedulerInterval time.Duration
		PhonePattern      string
		PhoneCountryCode  string
		RatePerSecond     int
	}
	Cost Rates
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	var cfg Config

	// App environment
	cfg.App.Name = getenv("APP_ENV")
	cfg.App.DryRun = parseBool(getenv("DRY_RUN"))
	cfg.App.MaskContacts = parseBool(getenv("MASK_CONTACTS"))

	// API settings
	cfg.API.Port = getenv("API_PORT")
	cfg.API.BasePath = getenv("API_BASE_PATH")

	// Storage
	cfg.DB.Storage = getenv("STORAGE")
	cfg.DB.DSN = getenv("DB_DSN")

	// Kafka settings
	cfg.Kafka.Broker = getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = getenv("KAFKA_GROUP_ID")
	cfg.Kafka.EventsTopic = getenv("KAFKA_EVENTS_TOPIC")

	// Redis template cache
	cfg.Redis.Addr = getenv("REDIS_ADDR")
	cfg.Redis.Password = getenv("REDIS_PASSWORD")
	if db, err := strconv.Atoi(getenv("REDIS_DB")); err == nil {
		cfg.Redis.DB = db
	}

	// Email settings
	cfg.Email.Provider = getenv("EMAIL_PROVIDER")
	cfg.Email.SMTPServer = getenv("EMAIL_SMTP_SERVER")
	if p, err := strconv.Atoi(getenv("EMAIL_SMTP_PORT")); err == nil {
		cfg.Email.SMTPPort = p
	}
	cfg.Email.Username = getenv("EMAIL_USERNAME")
	cfg.Email.Password = getenv("EMAIL_PASSWORD")
	cfg.Email.From = getenv("EMAIL_FROM")
	cfg.Email.FromName = getenv("EMAIL_FROM_NAME")
	cfg.Email.SESRegion = getenv("EMAIL_SES_REGION")

	// WhatsApp settings
	cfg.WhatsApp.AccountSID = getenv("WHATSAPP_ACCOUNT_SID")
	cfg.WhatsApp.AuthToken = getenv("WHATSAPP_AUTH_TOKEN")
	cfg.WhatsApp.FromNumber = getenv("WHATSAPP_FROM_NUMBER")

	// SMS settings
	cfg.SMS.Provider = getenv("SMS_PROVIDER")
	cfg.SMS.AccountSID = getenv("SMS_ACCOUNT_SID")
	cfg.SMS.AuthToken = getenv("SMS_AUTH_TOKEN")
	cfg.SMS.FromNumber = getenv("SMS_FROM_NUMBER")
	cfg.SMS.SNSRegion = getenv("SMS_SNS_REGION")
	cfg.SMS.SenderID = getenv("SMS_SENDER_ID")

	// Telegram ops alerts
	cfg.Telegram.BotToken = getenv("TELEGRAM_BOT_TOKEN")
	if id, err := strconv.ParseInt(getenv("TELEGRAM_CHAT_ID"), 10, 64); err == nil {
		cfg.Telegram.ChatID = id
	}

	// Logging
	cfg.Logging.Dir = getenv("LOG_DIR")
	cfg.Logging.Level = getenv("LOG_LEVEL")

	// Notification worker settings
	if qs, err := strconv.Atoi(getenv("QUEUE_SIZE")); err == nil {
		cfg.Notification.QueueSize = qs
	}
	if mw, err := strconv.Atoi(getenv("MAX_WORKERS")); err == nil {
		cfg.Notification.MaxWorkers = mw
	}
	if d, err := time.ParseDuration(getenv("NOTIFICATION_TRANSMIT_TIMEOUT")); err == nil {
		cfg.Notification.TransmitTimeout = d
	}
	if d, err := time.ParseDuration(getenv("NOTIFICATION_SCHEDULER_INTERVAL")); err == nil {
		cfg.Notification.SchedulerInterval = d
	}
	if d, err := time.ParseDuration(getenv("TEMPLATE_CACHE_TTL")); err == nil {
		cfg.Redis.TTL = d
	}
	cfg.Notification.PhonePattern = getenv("PHONE_PATTERN")
	cfg.Notification.PhoneCountryCode = strings.TrimPrefix(getenv("PHONE_COUNTRY_CODE"), "+")
	if r, err := strconv.Atoi(getenv("PROVIDER_RATE_PER_SECOND")); err == nil {
		cfg.Notification.RatePerSecond = r
	}

	// Cost rates
	cfg.Cost = Rates{
		EmailBase:       getenv("COST_EMAIL_BASE"),
		EmailLengthRate: getenv("COST_EMAIL_LENGTH_RATE"),
		WhatsAppBase:    getenv("COST_WHATSAPP_BASE"),
		WhatsAppLong:    getenv("COST_WHATSAPP_LONG"),
		SMSBase:         getenv("COST_SMS_BASE"),
		SMSLong:         getenv("COST_SMS_LONG"),
	}

	applyDefaults(&cfg)

	// Validate required settings
	missing := []string{}
	if cfg.DB.Storage == "postgres" && cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.Email.Provider == "ses" && cfg.Email.SESRegion == "" {
		missing = append(missing, "EMAIL_SES_REGION")
	}
	if cfg.SMS.Provider == "sns" && cfg.SMS.SNSRegion == "" {
		missing = append(missing, "SMS_SNS_REGION")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "development"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":9191"
	}
	if !strings.HasPrefix(cfg.API.Port, ":") && !strings.Contains(cfg.API.Port, ":") {
		cfg.API.Port = ":" + cfg.API.Port
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.DB.Storage == "" {
		cfg.DB.Storage = "postgres"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "notification_requests"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "notification-dispatch"
	}
	if cfg.Kafka.EventsTopic == "" {
		cfg.Kafka.EventsTopic = "notification_events"
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = 5 * time.Minute
	}
	if cfg.Email.Provider == "" {
		cfg.Email.Provider = "smtp"
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = 587
	}
	if cfg.Email.From == "" {
		cfg.Email.From = cfg.Email.Username
	}
	if cfg.SMS.Provider == "" {
		cfg.SMS.Provider = "twilio"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Notification.QueueSize == 0 {
		cfg.Notification.QueueSize = 500
	}
	if cfg.Notification.MaxWorkers == 0 {
		cfg.Notification.MaxWorkers = 10
	}
	if cfg.Notification.TransmitTimeout == 0 {
		cfg.Notification.TransmitTimeout = 30 * time.Second
	}
	if cfg.Notification.SchedulerInterval == 0 {
		cfg.Notification.SchedulerInterval = 15 * time.Second
	}
	if cfg.Notification.PhonePattern == "" {
		cfg.Notification.PhonePattern = `^(\+90|0)?5\d{9}$`
	}
	if cfg.Notification.PhoneCountryCode == "" {
		cfg.Notification.PhoneCountryCode = "90"
	}
	if cfg.Notification.RatePerSecond == 0 {
		cfg.Notification.RatePerSecond = 10
	}
	defaultRate(&cfg.Cost.EmailBase, "0.001")
	defaultRate(&cfg.Cost.EmailLengthRate, "0.0005")
	defaultRate(&cfg.Cost.WhatsAppBase, "0.05")
	defaultRate(&cfg.Cost.WhatsAppLong, "0.08")
	defaultRate(&cfg.Cost.SMSBase, "0.03")
	defaultRate(&cfg.Cost.SMSLong, "0.06")
}

func (c Config) validate() error {
	switch c.DB.Storage {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid STORAGE %q: want postgres or memory", c.DB.Storage)
	}
	switch c.Email.Provider {
	case "smtp", "ses":
	default:
		return fmt.Errorf("invalid EMAIL_PROVIDER %q: want smtp or ses", c.Email.Provider)
	}
	switch c.SMS.Provider {
	case "twilio", "sns":
	default:
		return fmt.Errorf("invalid SMS_PROVIDER %q: want twilio or sns", c.SMS.Provider)
	}
	if _, err := regexp.Compile(c.Notification.PhonePattern); err != nil {
		return fmt.Errorf("invalid PHONE_PATTERN: %w", err)
	}
	if c.Notification.MaxWorkers < 0 || c.Notification.QueueSize < 0 {
		return fmt.Errorf("QUEUE_SIZE and MAX_WORKERS must be positive")
	}
	return nil
}

func defaultRate(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
