package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"slotkeeper/internal/config"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	// ErrSerialization означает, что транзакция проиграла гонку и её можно повторить.
	ErrSerialization          = errors.New("transaction serialization failure")
	ErrConcurrentModification = errors.New("booking was modified concurrently")
	ErrBookingNotFound        = errors.New("booking not found")
	ErrBookingNotActive       = errors.New("booking is not active")
	ErrResourceNotFound       = errors.New("resource not found")
	ErrResourceExists         = errors.New("resource already exists")
	ErrDuplicateKey           = errors.New("duplicate key")
	ErrSettingsNotFound       = errors.New("booking settings not found")
)

type DB struct {
	*sql.DB
	driver  string
	path    string
	builder squirrel.StatementBuilderType
	logger  *zerolog.Logger
}

// NewDB opens (and creates if needed) a SQLite database file.
// Writers take the RESERVED lock at BEGIN, so a read-validate-write
// transaction is serialized against every other writer.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	return NewSQLiteDB(path, 5000, logger)
}

func NewSQLiteDB(path string, busyTimeoutMS int, logger *zerolog.Logger) (*DB, error) {
	// Создаем директорию для БД, если её нет
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on", path, busyTimeoutMS)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		DB:      sqlDB,
		driver:  config.DriverSQLite,
		path:    path,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		logger:  logger,
	}
	if err := db.init(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("sqlite database initialized")
	return db, nil
}

// NewPostgresDB opens a PostgreSQL database. Write transactions run at
// SERIALIZABLE isolation.
func NewPostgresDB(cfg config.PostgresConfig, logger *zerolog.Logger) (*DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxConnections > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	}

	db := &DB{
		DB:      sqlDB,
		driver:  config.DriverPostgres,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		logger:  logger,
	}
	if err := db.init(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	logger.Info().Str("host", cfg.Host).Str("dbname", cfg.DBName).Msg("postgres database initialized")
	return db, nil
}

// Open picks the backend from config.
func Open(cfg config.DatabaseConfig, logger *zerolog.Logger) (*DB, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgresDB(cfg.Postgres, logger)
	case config.DriverSQLite, "":
		busy := cfg.BusyTimeoutMS
		if busy <= 0 {
			busy = 5000
		}
		return NewSQLiteDB(cfg.Path, busy, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func (db *DB) Driver() string {
	return db.driver
}

// Path is the SQLite file path; empty for PostgreSQL.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) init() error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.createTables(); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            booking_date TEXT NOT NULL,
            start_time TEXT NOT NULL,
            resource_id TEXT NOT NULL DEFAULT 'auto',
            duration_minutes INTEGER NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            customer_name TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            service_name TEXT NOT NULL DEFAULT '',
            comment TEXT NOT NULL DEFAULT '',
            version INTEGER NOT NULL DEFAULT 1,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS resources (
            id TEXT PRIMARY KEY,
            display_name TEXT NOT NULL,
            active BOOLEAN NOT NULL DEFAULT TRUE,
            sort_order INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        )`,
		// Настройки хранятся одной JSON-строкой с id = 1
		`CREATE TABLE IF NOT EXISTS booking_settings (
            id INTEGER PRIMARY KEY,
            payload TEXT NOT NULL,
            updated_at TIMESTAMP NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_date_status ON bookings(booking_date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_resource_date ON bookings(resource_id, booking_date)`,
		`CREATE INDEX IF NOT EXISTS idx_resources_active ON resources(active, sort_order)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// beginWrite starts a transaction for a read-validate-write unit.
func (db *DB) beginWrite(ctx context.Context) (*sql.Tx, error) {
	opts := &sql.TxOptions{}
	if db.driver == config.DriverPostgres {
		opts.Isolation = sql.LevelSerializable
	}
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	return tx, nil
}

// classify maps driver lock/serialization errors to ErrSerialization.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// serialization_failure, deadlock_detected
		if pqErr.Code == "40001" || pqErr.Code == "40P01" {
			return fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		// unique_violation
		if pqErr.Code == "23505" {
			return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
		}
	}
	return err
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
