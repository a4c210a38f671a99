// Package database provides unified database management for the
// mining client. It coordinates operations across PostgreSQL, Redis,
// and InfluxDB databases.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/bardlex/powminer/internal/database/influx"
	"github.com/bardlex/powminer/internal/database/postgres"
	"github.com/bardlex/powminer/internal/database/redis"
	"github.com/bardlex/powminer/pkg/circuit"
	"github.com/bardlex/powminer/pkg/errors"
	"github.com/bardlex/powminer/pkg/retry"
)

// Manager coordinates all database operations across PostgreSQL, Redis, and InfluxDB.
type Manager struct {
	Postgres *postgres.Client
	Redis    *redis.Client
	Influx   *influx.Client

	DevFeeAssignments *postgres.DevFeeAssignmentRepository

	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
}

// Config holds configuration for all database systems.
type Config struct {
	Postgres *postgres.Config
	Redis    *redis.Config
	Influx   *influx.Config
}

// NewManager creates a new database manager with all connections.
func NewManager(cfg *Config) (*Manager, error) {
	pgClient, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "postgres_connection",
			"failed to connect to PostgreSQL database")
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		if closeErr := pgClient.Close(); closeErr != nil {
			origErr := errors.Wrap(err, errors.ErrorTypeDatabase, "redis_connection",
				"failed to connect to Redis database")
			closeErr = errors.Wrap(closeErr, errors.ErrorTypeDatabase, "postgres_cleanup",
				"failed to close PostgreSQL connection during error cleanup")
			return nil, errors.New(errors.ErrorTypeDatabase, "connection_failure",
				"multiple database connection failures").
				WithContext("redis_error", origErr.Error()).
				WithContext("postgres_cleanup_error", closeErr.Error())
		}
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "redis_connection",
			"failed to connect to Redis database")
	}

	influxClient, err := influx.NewClient(cfg.Influx)
	if err != nil {
		var closeErrs []error
		if closeErr := pgClient.Close(); closeErr != nil {
			closeErrs = append(closeErrs, closeErr)
		}
		if closeErr := redisClient.Close(); closeErr != nil {
			closeErrs = append(closeErrs, closeErr)
		}

		origErr := errors.Wrap(err, errors.ErrorTypeDatabase, "influx_connection",
			"failed to connect to InfluxDB database")

		if len(closeErrs) > 0 {
			return nil, origErr.WithContext("cleanup_errors", fmt.Sprintf("%v", closeErrs))
		}
		return nil, origErr
	}

	cbConfig := &circuit.Config{
		MaxFailures:     3,
		SuccessRequired: 2,
		Timeout:         30 * time.Second,
		ResetTimeout:    60 * time.Second,
	}

	return &Manager{
		Postgres:          pgClient,
		Redis:             redisClient,
		Influx:            influxClient,
		DevFeeAssignments: postgres.NewDevFeeAssignmentRepository(pgClient),
		circuitBreaker:    circuit.New(cbConfig),
		retryConfig:       retry.DatabaseConfig(),
	}, nil
}

// Close closes all database connections.
func (m *Manager) Close() error {
	var errs []error

	if err := m.Postgres.Close(); err != nil {
		errs = append(errs, fmt.Errorf("PostgreSQL close error: %w", err))
	}

	if err := m.Redis.Close(); err != nil {
		errs = append(errs, fmt.Errorf("redis close error: %w", err))
	}

	m.Influx.Close()

	if len(errs) > 0 {
		return fmt.Errorf("database close errors: %v", errs)
	}

	return nil
}

// Health checks the health of all database connections.
func (m *Manager) Health(ctx context.Context) error {
	if err := m.Postgres.Health(ctx); err != nil {
		return fmt.Errorf("PostgreSQL health check failed: %w", err)
	}

	if err := m.Redis.Health(ctx); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	if err := m.Influx.Health(ctx); err != nil {
		return fmt.Errorf("InfluxDB health check failed: %w", err)
	}

	return nil
}

// High-level operations that coordinate across multiple databases.

// RecordSubmission records one submission outcome across all relevant
// databases: the dev-fee assignment audit trail in PostgreSQL when the
// submission was an accepted dev-fee draw (critical operation), and an
// outcome metric in InfluxDB (best effort).
func (m *Manager) RecordSubmission(ctx context.Context, address, challengeID string, accepted, isDevFee bool) error {
	return m.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, m.retryConfig, func() error {
			if isDevFee && accepted {
				if err := m.DevFeeAssignments.RecordAssignment(ctx, address, challengeID); err != nil {
					return errors.Wrap(err, errors.ErrorTypeDatabase, "record_devfee_assignment",
						"failed to persist dev-fee assignment").
						WithContext("address", address).
						WithContext("challenge_id", challengeID)
				}
			}

			m.Influx.WriteSubmissionMetric(address, challengeID, accepted, isDevFee)

			return nil
		})
	})
}

// RecordDevFeeRatio writes the live user:dev-fee solution ratio to
// InfluxDB, best-effort: a dashboard tracking dev-fee debt over time
// is a convenience, not something mining correctness depends on.
func (m *Manager) RecordDevFeeRatio(userSolutions, devFeeSolutions int64, ratio float64) {
	m.Influx.WriteDevFeeRatioMetric(userSolutions, devFeeSolutions, ratio)
}

// RecordHashrateSample records one worker throughput sample in Redis
// (for the live distributed average) and InfluxDB (for history),
// both best-effort.
func (m *Manager) RecordHashrateSample(ctx context.Context, address string, workerID int, hashesPerSecond float64) {
	if err := m.Redis.RecordHashrateSample(ctx, address, workerID, hashesPerSecond, 10*time.Minute); err != nil {
		redisErr := errors.Wrap(err, errors.ErrorTypeDatabase, "redis_hashrate_sample",
			"failed to record hashrate sample in Redis (non-critical)")
		redisErr.Retryable = false
		fmt.Printf("Warning: %v\n", redisErr)
	}

	m.Influx.WriteHashrateMetric(address, workerID, hashesPerSecond)
}

// StartPeriodicTasks starts background tasks for database maintenance.
func (m *Manager) StartPeriodicTasks(ctx context.Context) {
	// Flush InfluxDB writes every 10 seconds.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Influx.Flush()
			}
		}
	}()
}
