package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func bindEnvVariables() {
	viper.BindEnv("broker.type", "BROKER_TYPE")
	viper.BindEnv("broker.mqtt.host", "BROKER_MQTT_HOST")
	viper.BindEnv("broker.mqtt.port", "BROKER_MQTT_PORT")
	viper.BindEnv("broker.mqtt.username", "BROKER_MQTT_USERNAME")
	viper.BindEnv("broker.mqtt.password", "BROKER_MQTT_PASSWORD")
	viper.BindEnv("broker.mqtt.tls_enabled", "BROKER_MQTT_TLS_ENABLED")
	viper.BindEnv("broker.mqtt.ca_cert_path", "BROKER_MQTT_CA_CERT_PATH")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("toll.tollbooth_id", "TOLL_TOLLBOOTH_ID")
	viper.BindEnv("toll.correlation_ttl", "TOLL_CORRELATION_TTL")
}

func applyDefaults(cfg *Config) {
	if cfg.Broker.Type == "" {
		cfg.Broker.Type = "mqtt"
	}
	if cfg.Broker.MQTT.Port == 0 {
		cfg.Broker.MQTT.Port = 1883
	}
	if cfg.Pricing.Currency == "" {
		cfg.Pricing.Currency = "EUR"
	}
}
