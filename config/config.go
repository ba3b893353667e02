package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	awspkg "github.com/aravind-gm/oranew/pkg/aws"
)

type Config struct {
	Port string
	Env  string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	RedisURL string // empty disables idempotency keys and webhook markers

	JWTSecret string

	PaymentWebhookSecret  string
	StripeSecretKey       string
	StripeWebhookKey      string
	PaymentEventsQueueURL string // SQS queue carrying verified payment events
	Currency              string

	OrderEventsBackend     string // sns | kafka | http | none
	OrderEventsTopicARN    string
	CouponEventsTopicARN   string
	KafkaBrokers           []string
	KafkaOrderTopic        string
	NotificationServiceURL string
	NotificationTimeout    time.Duration

	AWSRegion           string
	AWSEndpoint         string
	AWSUseSecrets       bool
	AWSSecretsPrefix    string
	CloudWatchEnabled   bool
	CloudWatchNamespace string
	CloudWatchLogGroup  string

	ReservationTTL        time.Duration
	LockSweepInterval     time.Duration
	GSTRate               float64
	FreeShippingThreshold float64
	FlatShippingFee       float64

	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
	RetryMultiplier      float64
	RetryMaxInterval     time.Duration

	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
}

// SecretGetter resolves secrets by key. Implemented by awspkg.SecretsClient.
type SecretGetter interface {
	GetSecret(ctx context.Context, key string) (string, error)
	GetSecretFields(ctx context.Context, key string) (map[string]string, error)
}

// LoadConfig reads .env (when present) and the process environment. With
// AWS_USE_SECRETS=true, credentials are overridden from Secrets Manager.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	if cfg.AWSUseSecrets {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		awsCfg, err := awspkg.LoadAWSConfig(ctx, awspkg.Options{Region: cfg.AWSRegion, Endpoint: cfg.AWSEndpoint})
		if err != nil {
			return nil, err
		}
		ApplySecrets(ctx, cfg, awspkg.NewSecretsClient(awsCfg, cfg.AWSSecretsPrefix))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from the environment without validating it.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port: getEnv("PORT", "8085"),
		Env:  getEnv("APP_ENV", "development"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "Asia/Kolkata"),

		RedisURL: os.Getenv("REDIS_URL"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		PaymentWebhookSecret:  os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		StripeSecretKey:       os.Getenv("STRIPE_API_KEY"),
		StripeWebhookKey:      os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PaymentEventsQueueURL: os.Getenv("PAYMENT_EVENTS_QUEUE_URL"),
		Currency:              getEnv("CURRENCY", "INR"),

		OrderEventsBackend:     strings.ToLower(getEnv("ORDER_EVENTS_BACKEND", "none")),
		OrderEventsTopicARN:    os.Getenv("ORDER_EVENTS_TOPIC_ARN"),
		CouponEventsTopicARN:   os.Getenv("COUPON_EVENTS_TOPIC_ARN"),
		KafkaBrokers:           splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaOrderTopic:        getEnv("KAFKA_ORDER_TOPIC", "order.events"),
		NotificationServiceURL: getEnv("NOTIFICATION_SERVICE_URL", "http://notification-service:8089"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSEndpoint:         os.Getenv("AWS_ENDPOINT"),
		AWSUseSecrets:       os.Getenv("AWS_USE_SECRETS") == "true",
		AWSSecretsPrefix:    getEnv("AWS_SECRETS_PREFIX", "oranew/"),
		CloudWatchEnabled:   os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CloudWatchNamespace: getEnv("CLOUDWATCH_NAMESPACE", "Oranew"),
		CloudWatchLogGroup:  getEnv("CLOUDWATCH_LOG_GROUP", "/oranew/services"),

		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	var err error
	if cfg.NotificationTimeout, err = getEnvDuration("NOTIFICATION_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReservationTTL, err = getEnvDuration("RESERVATION_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.LockSweepInterval, err = getEnvDuration("LOCK_SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.GSTRate, err = getEnvFloat("GST_RATE", 0.18); err != nil {
		return nil, err
	}
	if cfg.FreeShippingThreshold, err = getEnvFloat("FREE_SHIPPING_THRESHOLD", 999); err != nil {
		return nil, err
	}
	if cfg.FlatShippingFee, err = getEnvFloat("FLAT_SHIPPING_FEE", 99); err != nil {
		return nil, err
	}
	if cfg.RetryMaxAttempts, err = getEnvInt("DB_RETRY_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.RetryInitialInterval, err = getEnvDuration("DB_RETRY_INITIAL_INTERVAL", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.RetryMultiplier, err = getEnvFloat("DB_RETRY_MULTIPLIER", 2); err != nil {
		return nil, err
	}
	if cfg.RetryMaxInterval, err = getEnvDuration("DB_RETRY_MAX_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getEnvFloat("RATE_LIMIT_RPS", 20); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getEnvInt("RATE_LIMIT_BURST", 40); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplySecrets overrides credentials with values from Secrets Manager. Missing
// secrets keep the environment values.
func ApplySecrets(ctx context.Context, cfg *Config, sm SecretGetter) {
	if m, err := sm.GetSecretFields(ctx, "DB_CREDENTIALS"); err == nil {
		override(&cfg.PostgresUser, m["POSTGRES_USER"])
		override(&cfg.PostgresPassword, m["POSTGRES_PASSWORD"])
		override(&cfg.PostgresDB, m["POSTGRES_DB"])
		override(&cfg.PostgresHost, m["POSTGRES_HOST"])
		override(&cfg.PostgresPort, m["POSTGRES_PORT"])
	}

	secrets := map[string]*string{
		"PAYMENT_WEBHOOK_SECRET": &cfg.PaymentWebhookSecret,
		"STRIPE_API_KEY":         &cfg.StripeSecretKey,
		"STRIPE_WEBHOOK_SECRET":  &cfg.StripeWebhookKey,
		"JWT_SECRET":             &cfg.JWTSecret,
	}
	for name, dst := range secrets {
		if v, err := sm.GetSecret(ctx, name); err == nil {
			override(dst, v)
		}
	}
}

// Validate checks the settings the process cannot start without.
func (c *Config) Validate() error {
	if c.PostgresUser == "" || c.PostgresPassword == "" || c.PostgresDB == "" || c.PostgresHost == "" {
		return fmt.Errorf("database config incomplete")
	}
	if c.PaymentWebhookSecret == "" {
		return fmt.Errorf("PAYMENT_WEBHOOK_SECRET is required")
	}
	if c.GSTRate < 0 || c.GSTRate > 1 {
		return fmt.Errorf("GST_RATE must be between 0 and 1")
	}
	if c.ReservationTTL <= 0 {
		return fmt.Errorf("RESERVATION_TTL must be positive")
	}
	switch c.OrderEventsBackend {
	case "none", "http":
	case "sns":
		if c.OrderEventsTopicARN == "" {
			return fmt.Errorf("ORDER_EVENTS_TOPIC_ARN is required for the sns backend")
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for the kafka backend")
		}
	default:
		return fmt.Errorf("unknown ORDER_EVENTS_BACKEND %q", c.OrderEventsBackend)
	}
	return nil
}

// DSN returns the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
