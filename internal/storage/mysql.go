package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/go-sql-driver/mysql"

	"sbx/internal/domain"
)

const queryTimeout = 10 * time.Second

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sbx_runs (
		run_id VARCHAR(36) NOT NULL PRIMARY KEY,
		total_suites INT NOT NULL,
		total_tests INT NOT NULL,
		passed_tests INT NOT NULL,
		failed_tests INT NOT NULL,
		skipped_tests INT NOT NULL,
		errors INT NOT NULL,
		covered_files INT NOT NULL,
		duration_seconds DOUBLE NOT NULL,
		concurrency INT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sbx_failures (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		run_id VARCHAR(36) NOT NULL,
		test_id VARCHAR(512) NOT NULL,
		test_name TEXT NOT NULL,
		suite_path TEXT NOT NULL,
		log MEDIUMTEXT NOT NULL,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		INDEX idx_sbx_failures_run (run_id)
	)`,
}

// databaseName limits the archive database to names safe to quote
var databaseName = regexp.MustCompile(`^[A-Za-z0-9_$-]{1,64}$`)

// MySQLStorage archives run records in MySQL
type MySQLStorage struct {
	db *sql.DB
}

// ParseDSN validates a MySQL DSN and enables time parsing
func ParseDSN(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	if cfg.DBName == "" {
		return nil, fmt.Errorf("invalid mysql dsn: no database name")
	}
	cfg.ParseTime = true
	return cfg, nil
}

// NewMySQLStorage connects to the database and creates the tables if needed
func NewMySQLStorage(dsn string) (*MySQLStorage, error) {
	cfg, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := ensureDatabase(ctx, cfg); err != nil {
		return nil, err
	}

	db, err := open(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database server: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return &MySQLStorage{db: db}, nil
}

func open(cfg *mysql.Config) (*sql.DB, error) {
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	return sql.OpenDB(connector), nil
}

// ensureDatabase creates the archive database on the server when missing
func ensureDatabase(ctx context.Context, cfg *mysql.Config) error {
	if !databaseName.MatchString(cfg.DBName) {
		return fmt.Errorf("invalid database name: %s", cfg.DBName)
	}

	server := cfg.Clone()
	server.DBName = ""
	db, err := open(server)
	if err != nil {
		return err
	}
	defer db.Close()

	var exists bool
	query := "SELECT EXISTS(SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?)"
	if err := db.QueryRowContext(ctx, query, cfg.DBName).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check database %s: %w", cfg.DBName, err)
	}
	if exists {
		return nil
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.DBName)); err != nil {
		return fmt.Errorf("failed to create database %s: %w", cfg.DBName, err)
	}
	return nil
}

// Save implements Storage. Saving the same run again replaces its failures.
func (s *MySQLStorage) Save(record *domain.RunRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	m := record.Meta
	created, err := time.Parse(time.RFC3339, m.Timestamp)
	if err != nil {
		created = time.Now()
	}
	_, err = tx.ExecContext(ctx, `REPLACE INTO sbx_runs
		(run_id, total_suites, total_tests, passed_tests, failed_tests, skipped_tests,
		 errors, covered_files, duration_seconds, concurrency, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.RunID, m.TotalSuites, m.TotalTests, m.PassedTests, m.FailedTests, m.SkippedTests,
		m.Errors, m.CoveredFiles, m.DurationSeconds, m.Concurrency, created.UTC())
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sbx_failures WHERE run_id = ?`, m.RunID); err != nil {
		return fmt.Errorf("clear failures: %w", err)
	}
	for _, f := range record.Details {
		path, err := json.Marshal(f.SuitePath)
		if err != nil {
			return fmt.Errorf("encode suite path: %w", err)
		}
		logs, err := json.Marshal(f.Log)
		if err != nil {
			return fmt.Errorf("encode log: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO sbx_failures
			(run_id, test_id, test_name, suite_path, log, resolved) VALUES (?, ?, ?, ?, ?, ?)`,
			m.RunID, f.ID, f.TestName, string(path), string(logs), f.Resolved)
		if err != nil {
			return fmt.Errorf("save failure %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

// Load implements Storage, returning the most recent run
func (s *MySQLStorage) Load() (*domain.RunRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var (
		record  domain.RunRecord
		created time.Time
	)
	m := &record.Meta
	err := s.db.QueryRowContext(ctx, `SELECT run_id, total_suites, total_tests, passed_tests,
		failed_tests, skipped_tests, errors, covered_files, duration_seconds, concurrency, created_at
		FROM sbx_runs ORDER BY created_at DESC LIMIT 1`).Scan(
		&m.RunID, &m.TotalSuites, &m.TotalTests, &m.PassedTests, &m.FailedTests, &m.SkippedTests,
		&m.Errors, &m.CoveredFiles, &m.DurationSeconds, &m.Concurrency, &created)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	m.Timestamp = created.Format(time.RFC3339)
	m.Duration = (time.Duration(m.DurationSeconds * float64(time.Second))).String()

	rows, err := s.db.QueryContext(ctx, `SELECT test_id, test_name, suite_path, log, resolved
		FROM sbx_failures WHERE run_id = ? ORDER BY id`, m.RunID)
	if err != nil {
		return nil, fmt.Errorf("load failures: %w", err)
	}
	defer rows.Close()

	record.Details = []domain.Failure{}
	for rows.Next() {
		var f domain.Failure
		var path, logs string
		if err := rows.Scan(&f.ID, &f.TestName, &path, &logs, &f.Resolved); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		if err := json.Unmarshal([]byte(path), &f.SuitePath); err != nil {
			return nil, fmt.Errorf("decode suite path: %w", err)
		}
		if err := json.Unmarshal([]byte(logs), &f.Log); err != nil {
			return nil, fmt.Errorf("decode log: %w", err)
		}
		record.Details = append(record.Details, f)
	}
	return &record, rows.Err()
}

// Close closes the database handle
func (s *MySQLStorage) Close() error {
	return s.db.Close()
}
