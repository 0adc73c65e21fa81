package broker

import (
	"fmt"

	"tollgrid/internal/config"
	"tollgrid/internal/logger"
)

func NewClient(cfg config.BrokerConfig, serviceName string, log logger.Logger) (Client, error) {
	switch cfg.Type {
	case "mqtt":
		return NewMQTTClient(cfg.MQTT, serviceName, log)
	case "memory":
		return NewMemoryBus(log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
