package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	JWT     JWTConfig
	Payment PaymentConfig
	Kafka   KafkaConfig
	Fee     FeeConfig
}

type AppConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// PaymentConfig configures both settlement rails
type PaymentConfig struct {
	RedirectBaseURL   string
	RedirectReturnURL string
	RedirectSecret    string
	PushBaseURL       string
	PushSecret        string
	ProviderTimeout   time.Duration
	SessionTTL        time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type FeeConfig struct {
	DefaultConsultationFee decimal.Decimal
}

// LoadConfig reads the given env file (if present) and overlays the process
// environment.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var pathErr *fs.PathError
		if !errors.As(err, &pathErr) {
			return nil, err
		}
	}

	defaultFee, err := decimal.NewFromString(v.GetString("FEE_DEFAULT_CONSULTATION"))
	if err != nil {
		defaultFee = decimal.NewFromInt(150)
	}

	var brokers []string
	for _, b := range strings.Split(v.GetString("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	config := &Config{
		App: AppConfig{
			Port:     stringOr(v, "APP_PORT", "8080"),
			Env:      stringOr(v, "APP_ENV", "development"),
			LogLevel: stringOr(v, "APP_LOG_LEVEL", "info"),
		},
		DB: DBConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     stringOr(v, "DB_PORT", "5432"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Name:     v.GetString("DB_NAME"),
			SSLMode:  stringOr(v, "DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     stringOr(v, "REDIS_HOST", "localhost"),
			Port:     stringOr(v, "REDIS_PORT", "6379"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:        v.GetString("JWT_SECRET"),
			AccessExpiry:  durationOr(v, "JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: durationOr(v, "JWT_REFRESH_EXPIRY", 7*24*time.Hour),
		},
		Payment: PaymentConfig{
			RedirectBaseURL:   v.GetString("PAYMENT_REDIRECT_BASE_URL"),
			RedirectReturnURL: v.GetString("PAYMENT_REDIRECT_RETURN_URL"),
			RedirectSecret:    v.GetString("PAYMENT_REDIRECT_SECRET"),
			PushBaseURL:       v.GetString("PAYMENT_PUSH_BASE_URL"),
			PushSecret:        v.GetString("PAYMENT_PUSH_SECRET"),
			ProviderTimeout:   durationOr(v, "PAYMENT_PROVIDER_TIMEOUT", 10*time.Second),
			SessionTTL:        durationOr(v, "PAYMENT_SESSION_TTL", time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers: brokers,
			Topic:   stringOr(v, "KAFKA_TOPIC", "clinic.events"),
		},
		Fee: FeeConfig{
			DefaultConsultationFee: defaultFee,
		},
	}

	return config, nil
}

func stringOr(v *viper.Viper, key, fallback string) string {
	if s := v.GetString(key); s != "" {
		return s
	}
	return fallback
}

func durationOr(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return fallback
	}
	return d
}
