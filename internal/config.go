package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Pricing       PricingConfig       `mapstructure:"pricing"`
	Mpesa         MpesaConfig         `mapstructure:"mpesa"`
	Paystack      PaystackConfig      `mapstructure:"paystack"`
	Reconcile     ReconcileConfig     `mapstructure:"reconcile"`
	Simulator     SimulatorConfig     `mapstructure:"simulator"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

// SecurityConfig covers token verification for admin routes. Tokens are
// minted by the platform's external auth provider; this service only
// verifies them.
type SecurityConfig struct {
	AdminJWTSecret string `mapstructure:"admin_jwt_secret"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PricingConfig is the platform pricing rule: a vote purchase must satisfy
// amount == price_per_vote * votes, in the smallest currency unit.
type PricingConfig struct {
	PricePerVote int64  `mapstructure:"price_per_vote"`
	Currency     string `mapstructure:"currency"`
}

// MpesaConfig configures the push (STK prompt) gateway adapter.
type MpesaConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ConsumerKey    string        `mapstructure:"consumer_key"`
	ConsumerSecret string        `mapstructure:"consumer_secret"`
	ShortCode      string        `mapstructure:"short_code"`
	Passkey        string        `mapstructure:"passkey"`
	CallbackURL    string        `mapstructure:"callback_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PaystackConfig configures the redirect (hosted checkout) gateway adapter.
type PaystackConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	SecretKey      string        `mapstructure:"secret_key"`
	CallbackURL    string        `mapstructure:"callback_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ReconcileConfig bounds how long a payment attempt may stay pending before
// it is expired as failed(timeout), and how the sweep command batches work.
type ReconcileConfig struct {
	PendingTTL    time.Duration `mapstructure:"pending_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepBatch    int           `mapstructure:"sweep_batch"`
}

// SimulatorConfig drives the local gateway simulator used in development.
type SimulatorConfig struct {
	MpesaWebhookURL    string        `mapstructure:"mpesa_webhook_url"`
	PaystackWebhookURL string        `mapstructure:"paystack_webhook_url"`
	PaystackSecret     string        `mapstructure:"paystack_secret"`
	MaxWorkers         int           `mapstructure:"max_workers"`
	JobQueueSize       int           `mapstructure:"job_queue_size"`
	SettleDelay        time.Duration `mapstructure:"settle_delay"`
	SuccessRate        float64       `mapstructure:"success_rate"`
}

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds a Config from environment variables, used for
// container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:           getEnv("SERVER_BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("SERVER_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		Security: SecurityConfig{
			AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
		Pricing: PricingConfig{
			PricePerVote: int64(getEnvAsInt("PRICE_PER_VOTE", 1000)),
			Currency:     getEnv("CURRENCY", "KES"),
		},
		Mpesa: MpesaConfig{
			BaseURL:        getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:    getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret: getEnv("MPESA_CONSUMER_SECRET", ""),
			ShortCode:      getEnv("MPESA_SHORT_CODE", ""),
			Passkey:        getEnv("MPESA_PASSKEY", ""),
			CallbackURL:    getEnv("MPESA_CALLBACK_URL", ""),
			RequestTimeout: getEnvAsDuration("MPESA_REQUEST_TIMEOUT", 30*time.Second),
		},
		Paystack: PaystackConfig{
			BaseURL:        getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
			SecretKey:      getEnv("PAYSTACK_SECRET_KEY", ""),
			CallbackURL:    getEnv("PAYSTACK_CALLBACK_URL", ""),
			RequestTimeout: getEnvAsDuration("PAYSTACK_REQUEST_TIMEOUT", 30*time.Second),
		},
		Reconcile: ReconcileConfig{
			PendingTTL:    getEnvAsDuration("RECONCILE_PENDING_TTL", 5*time.Minute),
			SweepInterval: getEnvAsDuration("RECONCILE_SWEEP_INTERVAL", time.Minute),
			SweepBatch:    getEnvAsInt("RECONCILE_SWEEP_BATCH", 100),
		},
		Simulator: SimulatorConfig{
			MpesaWebhookURL:    getEnv("SIM_MPESA_WEBHOOK_URL", "http://localhost:8080/api/v1/webhooks/mpesa"),
			PaystackWebhookURL: getEnv("SIM_PAYSTACK_WEBHOOK_URL", "http://localhost:8080/api/v1/webhooks/paystack"),
			PaystackSecret:     getEnv("SIM_PAYSTACK_SECRET", "sk_test_simulator"),
			MaxWorkers:         getEnvAsInt("SIM_MAX_WORKERS", 10),
			JobQueueSize:       getEnvAsInt("SIM_JOB_QUEUE_SIZE", 100),
			SettleDelay:        getEnvAsDuration("SIM_SETTLE_DELAY", 3*time.Second),
			SuccessRate:        0.9,
		},
	}
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Pricing.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("pricing config: %v", err))
	}

	if err := c.Reconcile.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("reconcile config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *PricingConfig) Validate() error {
	if c.PricePerVote <= 0 {
		return errors.New("price_per_vote must be positive")
	}
	if c.Currency == "" {
		return errors.New("currency is required")
	}
	return nil
}

func (c *ReconcileConfig) Validate() error {
	if c.PendingTTL <= 0 {
		return errors.New("pending_ttl must be positive")
	}
	if c.SweepBatch <= 0 {
		return errors.New("sweep_batch must be positive")
	}
	return nil
}
