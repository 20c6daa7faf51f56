package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"solar-analyzer/migrations"
	"solar-analyzer/pkg/logging"
	"solar-analyzer/pkg/metrics"
)

const (
	poolMonitorInterval = 10 * time.Second
	connectTimeout      = 5 * time.Second
	healthCheckTimeout  = 2 * time.Second
	// migrationLockID serialises migrations across instances
	migrationLockID = 72541903
)

// Config holds database connection configuration
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// PostgresDB wraps sqlx.DB with monitoring and metrics
type PostgresDB struct {
	db      *sqlx.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	config  Config

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewPostgresDB opens a connection pool and verifies it with a ping
func NewPostgresDB(ctx context.Context, cfg Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*PostgresDB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is empty")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info(ctx, "[DB_INIT] PostgreSQL connection established", logging.Fields{
		"max_open_conns":    cfg.MaxOpenConns,
		"max_idle_conns":    cfg.MaxIdleConns,
		"conn_max_lifetime": cfg.ConnMaxLifetime.String(),
	})

	pgDB := &PostgresDB{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
		config:  cfg,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go pgDB.monitorConnectionPool()

	return pgDB, nil
}

// Close stops the pool monitor and closes the database connection
func (p *PostgresDB) Close() error {
	p.stopOnce.Do(func() {
		close(p.stop)
		<-p.done
	})

	p.logger.Info(context.Background(), "[DB_CLOSE] Closing database connection", logging.Fields{})
	return p.db.Close()
}

// ExecContext executes a command with context and metrics
func (p *PostgresDB) ExecContext(ctx context.Context, queryType, query string, args ...interface{}) (sql.Result, error) {
	defer p.observe(ctx, queryType, p.startTimer(queryType))

	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		p.metrics.RecordDBError("exec_error")
		p.logger.Error(ctx, "[DB_EXEC_ERROR] Command failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return nil, err
	}

	return result, nil
}

// GetContext executes a query that returns a single row. sql.ErrNoRows is
// returned as is and not counted as an error.
func (p *PostgresDB) GetContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	defer p.observe(ctx, queryType, p.startTimer(queryType))

	err := p.db.GetContext(ctx, dest, query, args...)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		p.metrics.RecordDBError("get_error")
		p.logger.Error(ctx, "[DB_GET_ERROR] Get query failed", logging.Fields{
			"query_type": queryType,
		}, err)
	}

	return err
}

// SelectContext executes a query that returns multiple rows
func (p *PostgresDB) SelectContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	defer p.observe(ctx, queryType, p.startTimer(queryType))

	if err := p.db.SelectContext(ctx, dest, query, args...); err != nil {
		p.metrics.RecordDBError("select_error")
		p.logger.Error(ctx, "[DB_SELECT_ERROR] Select query failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return err
	}

	return nil
}

// NamedGetContext runs a named query such as an INSERT ... RETURNING and
// scans the single returned row into dest.
func (p *PostgresDB) NamedGetContext(ctx context.Context, queryType string, dest interface{}, query string, arg interface{}) error {
	defer p.observe(ctx, queryType, p.startTimer(queryType))

	rows, err := p.db.NamedQueryContext(ctx, query, arg)
	if err != nil {
		p.metrics.RecordDBError("named_query_error")
		p.logger.Error(ctx, "[DB_NAMED_QUERY_ERROR] Named query failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	return rows.StructScan(dest)
}

func (p *PostgresDB) startTimer(queryType string) *metrics.Timer {
	return p.metrics.NewTimer(p.metrics.DBQueryDuration.WithLabelValues(queryType))
}

func (p *PostgresDB) observe(ctx context.Context, queryType string, timer *metrics.Timer) {
	duration := timer.ObserveDuration()

	p.logger.Debug(ctx, "[DB_QUERY] Query executed", logging.Fields{
		"query_type":  queryType,
		"duration_ms": duration.Milliseconds(),
	})
}

// monitorConnectionPool periodically updates connection pool metrics until Close
func (p *PostgresDB) monitorConnectionPool() {
	defer close(p.done)

	ticker := time.NewTicker(poolMonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}

		stats := p.db.Stats()
		p.metrics.UpdateDBConnectionPool(stats.InUse, stats.Idle, stats.OpenConnections)

		if p.config.MaxOpenConns <= 0 {
			continue
		}
		utilization := float64(stats.InUse) / float64(p.config.MaxOpenConns)
		if utilization > 0.8 {
			p.logger.Warn(context.Background(), "[DB_POOL_WARNING] Connection pool utilization high", logging.Fields{
				"in_use":      stats.InUse,
				"idle":        stats.Idle,
				"total":       stats.OpenConnections,
				"max_open":    p.config.MaxOpenConns,
				"utilization": fmt.Sprintf("%.2f%%", utilization*100),
			})
		}
	}
}

// HealthCheck performs a database health check
func (p *PostgresDB) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := p.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

type gooseLogger struct {
	logger *logging.StructuredLogger
}

func (l *gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal(context.Background(), "[DB_MIGRATE_FATAL] "+strings.TrimSpace(fmt.Sprintf(format, v...)), logging.Fields{}, nil)
}

func (l *gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(context.Background(), "[DB_MIGRATE] "+strings.TrimSpace(fmt.Sprintf(format, v...)), logging.Fields{})
}

// Migrate applies all pending migrations
func (p *PostgresDB) Migrate(ctx context.Context) error {
	return p.migrate(ctx, func(db *sql.DB) error {
		return goose.UpContext(ctx, db, ".")
	})
}

// MigrateDown rolls back the most recent migration
func (p *PostgresDB) MigrateDown(ctx context.Context) error {
	return p.migrate(ctx, func(db *sql.DB) error {
		return goose.DownContext(ctx, db, ".")
	})
}

// MigrationStatus logs the state of every known migration
func (p *PostgresDB) MigrationStatus(ctx context.Context) error {
	return p.migrate(ctx, func(db *sql.DB) error {
		return goose.StatusContext(ctx, db, ".")
	})
}

// migrate runs fn under a Postgres advisory lock so that only one instance
// migrates at a time.
func (p *PostgresDB) migrate(ctx context.Context, fn func(*sql.DB) error) error {
	conn, err := p.db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockID)
	}()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(&gooseLogger{logger: p.logger})

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := fn(p.db.DB); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
