package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"tollgrid/internal/config"
	"tollgrid/internal/logger"
	"tollgrid/internal/pricing"
	"tollgrid/pkg/bootstrap"
	"tollgrid/pkg/circuitbreaker"
	"tollgrid/pkg/health"
	"tollgrid/pkg/metrics"
	"tollgrid/pkg/middleware"
	"tollgrid/pkg/ratelimit"
)

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector
	db          *sql.DB
	service     pricing.Service
	server      *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("pricing-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db

	if err := a.InitBus(ctx, "pricing-service"); err != nil {
		return fmt.Errorf("failed to initialize bus: %w", err)
	}

	a.initService()
	if err := pricing.Subscribe(a.Bus, a.service); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	metrics.RegisterPricingMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}
	if a.Config.RateLimit.Enabled {
		metrics.RegisterRateLimitMetrics()
	}

	a.initHTTPServer()
	return nil
}

func (a *App) initService() {
	var fares pricing.FareRepository = pricing.NewFareRepository(a.db)
	if a.Config.CircuitBreaker.Enabled {
		cbCfg := circuitbreaker.DefaultConfig("fare-lookup")
		if a.Config.CircuitBreaker.MaxRequests > 0 {
			cbCfg.MaxRequests = a.Config.CircuitBreaker.MaxRequests
		}
		if a.Config.CircuitBreaker.Interval > 0 {
			cbCfg.Interval = a.Config.CircuitBreaker.Interval
		}
		if a.Config.CircuitBreaker.Timeout > 0 {
			cbCfg.Timeout = a.Config.CircuitBreaker.Timeout
		}
		fares = pricing.NewCircuitBreakerFareRepository(fares, cbCfg)
	}

	a.service = pricing.NewService(
		a.Bus,
		pricing.NewTripRepository(a.db),
		pricing.NewDebtRepository(a.db),
		fares,
		pricing.NewTollboothRepository(a.db),
		a.Config.Pricing.Currency,
		a.Logger,
	)
}

func (a *App) initHTTPServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RecoveryMiddleware(a.Logger))

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	healthRegistry.Register(health.NewConnectionChecker("broker", a.Bus.Connected))

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	tokens := make(middleware.TokenRoles, len(a.Config.Auth.Tokens))
	for _, tc := range a.Config.Auth.Tokens {
		tokens[tc.Token] = tc.Roles
	}

	limits := ratelimit.DefaultConfig()
	if a.Config.RateLimit.RPS > 0 {
		limits.RPS = a.Config.RateLimit.RPS
	}
	if a.Config.RateLimit.Burst > 0 {
		limits.Burst = a.Config.RateLimit.Burst
	}

	handler := pricing.NewHandler(a.service, a.Logger)
	handler.RegisterRoutes(router, tokens, limits)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds * time.Second,
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
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.Shutdown(shutdownCtx, func(ctx context.Context) []error {
			var errs []error
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
			if err := a.db.Close(); err != nil {
				errs = append(errs, fmt.Errorf("database close error: %w", err))
			}
			return errs
		})
	})

	return g.Wait()
}
