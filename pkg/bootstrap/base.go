package bootstrap

import (
	"context"
	"fmt"

	"tollgrid/internal/broker"
	"tollgrid/internal/config"
	"tollgrid/internal/logger"
)

type Base struct {
	Config *config.Config
	Logger logger.Logger
	Bus    broker.Client
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitBus creates and connects the broker client. A failed initial
// connection is fatal to startup; everything after that reconnects on its own.
func (b *Base) InitBus(ctx context.Context, serviceName string) error {
	bus, err := broker.NewClient(b.Config.Broker, serviceName, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create broker client: %w", err)
	}

	if err := bus.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect broker client: %w", err)
	}

	b.Bus = bus
	return nil
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	if b.Bus != nil {
		if err := b.Bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("bus close error: %w", err))
		}
	}

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
