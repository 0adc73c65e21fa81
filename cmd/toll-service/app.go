package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"tollgrid/internal/config"
	"tollgrid/internal/logger"
	"tollgrid/internal/toll"
	"tollgrid/pkg/bootstrap"
	"tollgrid/pkg/health"
	"tollgrid/pkg/metrics"
)

type App struct {
	*bootstrap.Base
	orchestrator *toll.Orchestrator
	server       *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("toll-service")
	}
	return &App{
		Base: bootstrap.NewBase(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.InitBus(ctx, "toll-service"); err != nil {
		return fmt.Errorf("failed to initialize bus: %w", err)
	}

	sessions := toll.NewSessionStore()
	a.orchestrator = toll.NewOrchestrator(
		a.Bus,
		a.Config.Toll.TollboothID,
		sessions,
		a.Config.Toll.CorrelationTTL,
		a.Logger,
	)
	if err := a.orchestrator.Subscribe(); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	metrics.RegisterTollMetrics()

	a.initHTTPServer()
	return nil
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewConnectionChecker("broker", a.Bus.Connected))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.orchestrator.Start(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.Shutdown(shutdownCtx, func(ctx context.Context) []error {
			var errs []error
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
			return errs
		})
	})

	return g.Wait()
}
