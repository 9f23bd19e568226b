/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Supported persistence backends and connectors.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"

	ConnectorMock          = "mock"
	ConnectorBancoComercio = "banco_comercio"
)

// Config holds all the configuration variables for the payment-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	PersistenceBackend         string `mapstructure:"PERSISTENCE_BACKEND"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	DatabaseSchema             string `mapstructure:"DATABASE_SCHEMA"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	PaymentEventExchange       string `mapstructure:"PAYMENT_EVENT_EXCHANGE"`
	Connector                  string `mapstructure:"CONNECTOR"`
	BDCBaseURL                 string `mapstructure:"BDC_BASE_URL"`
	BDCClientID                string `mapstructure:"BDC_CLIENT_ID"`
	BDCClientSecret            string `mapstructure:"BDC_CLIENT_SECRET"`
	BDCSecretKey               string `mapstructure:"BDC_SECRET_KEY"`
	KYCAmountThreshold         string `mapstructure:"KYC_AMOUNT_THRESHOLD"`
	MockFailureConcepts        string `mapstructure:"MOCK_FAILURE_CONCEPTS"`
	MockFailureAmountThreshold string `mapstructure:"MOCK_FAILURE_AMOUNT_THRESHOLD"`
	TransferRateLimitPerMinute int    `mapstructure:"TRANSFER_RATE_LIMIT_PER_MINUTE"`
}

// MockFailureConceptList splits the comma-separated MOCK_FAILURE_CONCEPTS
// value into trimmed upper-case concepts.
func (c Config) MockFailureConceptList() []string {
	raw := strings.TrimSpace(c.MockFailureConcepts)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	concepts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			concepts = append(concepts, p)
		}
	}
	return concepts
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("PERSISTENCE_BACKEND", BackendMemory)
	viper.SetDefault("DATABASE_SCHEMA", "")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "pagoflex:rate_limit")
	viper.SetDefault("PAYMENT_EVENT_EXCHANGE", "pagoflex.payment_events")
	viper.SetDefault("CONNECTOR", ConnectorMock)
	viper.SetDefault("KYC_AMOUNT_THRESHOLD", "1000")
	viper.SetDefault("MOCK_FAILURE_CONCEPTS", "REJECT,FAIL")
	viper.SetDefault("TRANSFER_RATE_LIMIT_PER_MINUTE", 60)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PERSISTENCE_BACKEND")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("DATABASE_SCHEMA")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "PAYMENT_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PAYMENT_EVENT_EXCHANGE")
	_ = viper.BindEnv("CONNECTOR")
	_ = viper.BindEnv("BDC_BASE_URL")
	_ = viper.BindEnv("BDC_CLIENT_ID")
	_ = viper.BindEnv("BDC_CLIENT_SECRET")
	_ = viper.BindEnv("BDC_SECRET_KEY")
	_ = viper.BindEnv("KYC_AMOUNT_THRESHOLD")
	_ = viper.BindEnv("MOCK_FAILURE_CONCEPTS")
	_ = viper.BindEnv("MOCK_FAILURE_AMOUNT_THRESHOLD")
	_ = viper.BindEnv("TRANSFER_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.PersistenceBackend = strings.ToLower(strings.TrimSpace(config.PersistenceBackend))
	switch config.PersistenceBackend {
	case BackendMemory, BackendPostgres:
	case "":
		config.PersistenceBackend = BackendMemory
	default:
		log.Printf("level=warn component=config msg=\"unknown persistence backend; falling back to memory\" backend=%q", config.PersistenceBackend)
		config.PersistenceBackend = BackendMemory
	}
	if config.PersistenceBackend == BackendPostgres && strings.TrimSpace(config.DatabaseURL) == "" {
		log.Printf("level=warn component=config msg=\"postgres backend selected without DATABASE_URL; falling back to memory\"")
		config.PersistenceBackend = BackendMemory
	}

	config.Connector = strings.ToLower(strings.TrimSpace(config.Connector))
	switch config.Connector {
	case ConnectorMock, ConnectorBancoComercio:
	case "":
		config.Connector = ConnectorMock
	default:
		log.Printf("level=warn component=config msg=\"unknown connector; falling back to mock\" connector=%q", config.Connector)
		config.Connector = ConnectorMock
	}
	if config.Connector == ConnectorBancoComercio && strings.TrimSpace(config.BDCBaseURL) == "" {
		log.Printf("level=warn component=config msg=\"banco_comercio connector selected without BDC_BASE_URL; falling back to mock\"")
		config.Connector = ConnectorMock
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "pagoflex:rate_limit"
	}

	if config.TransferRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative rate limit configured; disabling rate limiting\" limit=%d", config.TransferRateLimitPerMinute)
		config.TransferRateLimitPerMinute = 0
	}

	return
}
