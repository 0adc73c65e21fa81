package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tollgrid/internal/config"
	"tollgrid/internal/logger"
	"tollgrid/pkg/migrations"
	"tollgrid/pkg/retry"
)

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	pg := dc.Config.Database.Postgres

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		pg.User,
		pg.Password,
		pg.Host,
		pg.Port,
		pg.DBName,
		pg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The database container may still be starting; give it a short window.
	pingPolicy := retry.Policy{
		MaxAttempts:     5,
		InitialInterval: time.Second,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}
	if err := retry.Retry(ctx, pingPolicy, func() error {
		return db.PingContext(ctx)
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dc.Logger.Info("PostgreSQL connected successfully")

	if dc.Config.Database.RunMigrations {
		dir := dc.Config.Database.MigrationsDir
		if dir == "" {
			dir = "migrations/postgres"
		}
		if err := migrations.RunPostgres(db, dir, dc.Logger); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}
