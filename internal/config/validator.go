package config

import (
	"fmt"
)

// ValidateToll checks the settings a toll-service instance cannot run without.
func ValidateToll(cfg *Config) error {
	if err := validateBroker(cfg); err != nil {
		return err
	}
	if cfg.Toll.TollboothID == "" {
		return fmt.Errorf("toll.tollbooth_id is required")
	}
	if cfg.Toll.CorrelationTTL < 0 {
		return fmt.Errorf("toll.correlation_ttl must not be negative")
	}
	return nil
}

// ValidateCamera checks the settings a camera-service instance cannot run without.
func ValidateCamera(cfg *Config) error {
	return validateBroker(cfg)
}

// ValidatePricing checks the settings a pricing-service instance cannot run without.
func ValidatePricing(cfg *Config) error {
	if err := validateBroker(cfg); err != nil {
		return err
	}
	pg := cfg.Database.Postgres
	if pg.Host == "" || pg.User == "" || pg.DBName == "" {
		return fmt.Errorf("database.postgres host, user and dbname are required")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535], got %d", cfg.Server.Port)
	}
	return nil
}

func validateBroker(cfg *Config) error {
	switch cfg.Broker.Type {
	case "mqtt":
		if cfg.Broker.MQTT.Host == "" {
			return fmt.Errorf("broker.mqtt.host is required")
		}
		if cfg.Broker.MQTT.TLSEnabled && cfg.Broker.MQTT.CACertPath == "" {
			return fmt.Errorf("broker.mqtt.ca_cert_path is required when TLS is enabled")
		}
		if cfg.Broker.MQTT.ConnectTimeout < 0 || cfg.Broker.MQTT.KeepAlive < 0 {
			return fmt.Errorf("broker.mqtt timeouts must not be negative")
		}
	case "memory":
		// no settings
	default:
		return fmt.Errorf("unknown broker type: %s", cfg.Broker.Type)
	}
	return nil
}
