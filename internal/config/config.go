package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flexprice/flexbill/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Auth       AuthConfig       `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	PubSub     PubSubConfig     `mapstructure:"pubsub" validate:"required"`
	Kafka      KafkaConfig
	Webhook    Webhook          `validate:"required"`
	Billing    BillingConfig    `validate:"required"`
	Scheduler  SchedulerConfig  `validate:"required"`
	Secrets    SecretsConfig    `validate:"required"`
	Sentry     SentryConfig
	Metrics    MetricsConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
}

type AuthConfig struct {
	// Secret signs and verifies the tenant JWTs issued by the auth collaborator
	Secret string `validate:"required"`
	// APIKeys maps hashed API keys to tenant ids
	APIKeys map[string]string `mapstructure:"api_keys"`
	// CronKey is the hashed key the cron trigger endpoints accept
	CronKey string `mapstructure:"cron_key"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host                   string
	Port                   int
	User                   string
	Password               string
	DBName                 string `mapstructure:"dbname"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
}

type PubSubConfig struct {
	Driver types.PubSubType `validate:"required,oneof=memory kafka"`
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string `mapstructure:"consumer_group"`
	ClientID      string `mapstructure:"client_id"`
}

type BillingConfig struct {
	DefaultGracePeriodDays int           `mapstructure:"default_grace_period_days" validate:"min=0,max=30"`
	FailureThreshold       int           `mapstructure:"failure_threshold" validate:"min=1"`
	PendingPaymentTTL      time.Duration `mapstructure:"pending_payment_ttl" validate:"required"`
	RetentionDays          int           `mapstructure:"retention_days" validate:"min=1"`
	MaxPaymentRetries      int           `mapstructure:"max_payment_retries" validate:"min=0"`
	PaymentSuccessURL      string        `mapstructure:"payment_success_url"`
	PaymentCancelURL       string        `mapstructure:"payment_cancel_url"`
}

type SchedulerConfig struct {
	Enabled    bool
	Workers    int               `validate:"min=1"`
	Schedules  map[string]string `validate:"required"`
	JobTimeout time.Duration     `mapstructure:"job_timeout"`
}

type SecretsConfig struct {
	EncryptionKey string `mapstructure:"encryption_key" validate:"required"`
}

type SentryConfig struct {
	Enabled     bool
	DSN         string
	Environment string
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

func NewConfig() (*Configuration, error) {
	// a missing .env is fine, real deployments use the environment directly
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/flexbill")

	v.SetEnvPrefix("FLEXBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", types.LogLevelInfo)
	v.SetDefault("pubsub.driver", types.MemoryPubSub)
	v.SetDefault("postgres.max_open_conns", 20)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 30)
	v.SetDefault("webhook.topic", "webhook.deliveries")
	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("webhook.max_attempts", 4)
	v.SetDefault("webhook.retry_delays", []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute})
	v.SetDefault("webhook.rate_limit", 50)
	v.SetDefault("billing.default_grace_period_days", types.DefaultGracePeriodDays)
	v.SetDefault("billing.failure_threshold", 3)
	v.SetDefault("billing.pending_payment_ttl", 24*time.Hour)
	v.SetDefault("billing.retention_days", 90)
	v.SetDefault("billing.max_payment_retries", 3)
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.job_timeout", 10*time.Minute)
	v.SetDefault("scheduler.schedules", DefaultSchedules())
	v.SetDefault("metrics.path", "/metrics")
}

// DefaultSchedules are the cron specs of the scheduled jobs, all in UTC
func DefaultSchedules() map[string]string {
	return map[string]string{
		types.JobTrialExpiration:    "0 0 * * *",
		types.JobRenewalDue:         "5 0 * * *",
		types.JobPaymentRetry:       "0 6 * * *",
		types.JobPendingTransaction: "0 * * * *",
		types.JobGracePeriodExpiry:  "10 0 * * *",
		types.JobScheduledCancel:    "15 0 * * *",
		types.JobPendingInvoices:    "20 0 * * *",
		types.JobDeliveryRetry:      "* * * * *",
		types.JobPrune:              "0 3 * * 0",
	}
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts, tests or other non-web applications
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		PubSub:     PubSubConfig{Driver: types.MemoryPubSub},
		Webhook:    DefaultWebhookConfig(),
		Billing: BillingConfig{
			DefaultGracePeriodDays: types.DefaultGracePeriodDays,
			FailureThreshold:       3,
			PendingPaymentTTL:      24 * time.Hour,
			RetentionDays:          90,
			MaxPaymentRetries:      3,
		},
		Scheduler: SchedulerConfig{
			Workers:    4,
			Schedules:  DefaultSchedules(),
			JobTimeout: 10 * time.Minute,
		},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
