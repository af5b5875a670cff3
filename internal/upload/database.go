package upload

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
)

// Environment variables holding the database credentials
const (
	EnvHost     = "ROCM_JAX_DB_HOSTNAME"
	EnvUser     = "ROCM_JAX_DB_USERNAME"
	EnvPassword = "ROCM_JAX_DB_PASSWORD"
	EnvName     = "ROCM_JAX_DB_NAME"
)

const (
	insertRunQuery = `INSERT INTO ci_test_runs (
		runner_label, ubuntu_version, rocm_version,
		logs_dir, github_run_id, commit_sha,
		created_at, total, passed, failed, skipped
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertCaseQuery = `INSERT INTO ci_test_cases (
		run_id, nodeid, outcome, duration, longrepr, message
	) VALUES (?, ?, ?, ?, ?, ?)`
)

// DBConfig holds the database connection settings
type DBConfig struct {
	Host     string
	User     string
	Password string
	Name     string
}

// DBConfigFromEnv reads the connection settings from the environment
func DBConfigFromEnv() (DBConfig, error) {
	cfg := DBConfig{
		Host:     os.Getenv(EnvHost),
		User:     os.Getenv(EnvUser),
		Password: os.Getenv(EnvPassword),
		Name:     os.Getenv(EnvName),
	}

	var missing []string
	for _, f := range []struct{ env, value string }{
		{EnvHost, cfg.Host},
		{EnvUser, cfg.User},
		{EnvName, cfg.Name},
	} {
		if f.value == "" {
			missing = append(missing, f.env)
		}
	}
	if len(missing) > 0 {
		return cfg, fmt.Errorf("database settings missing from environment: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

// DSN returns the go-sql-driver/mysql data source name
func (c DBConfig) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = c.Host
	if _, _, err := net.SplitHostPort(c.Host); err != nil {
		mc.Addr = net.JoinHostPort(c.Host, "3306")
	}
	mc.DBName = c.Name
	mc.ParseTime = true
	return mc.FormatDSN()
}

// Uploader writes records to the results database
type Uploader struct {
	db *sql.DB
}

// NewUploader wraps an open database handle
func NewUploader(db *sql.DB) *Uploader {
	return &Uploader{db: db}
}

// Open connects to the database described by cfg
func Open(ctx context.Context, cfg DBConfig) (*Uploader, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database server: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database server: %w", err)
	}
	return &Uploader{db: db}, nil
}

// Close closes the database handle
func (u *Uploader) Close() error {
	return u.db.Close()
}

// Upload inserts every record in one transaction. Nothing is kept if any insert fails.
func (u *Uploader) Upload(ctx context.Context, records []Record) (err error) {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Msg("Rollback failed")
			}
		}
	}()

	for _, rec := range records {
		if err = insertRecord(ctx, tx, rec); err != nil {
			return fmt.Errorf("upload %s: %w", rec.Name, err)
		}
		log.Debug().Str("report", rec.Name).Int("cases", len(rec.Cases)).Bool("placeholder", rec.Placeholder).Msg("Uploaded report")
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec Record) error {
	r := rec.Run
	res, err := tx.ExecContext(ctx, insertRunQuery,
		r.RunnerLabel, r.UbuntuVersion, r.RocmVersion,
		r.LogsDir, r.GithubRunID, r.CommitSHA,
		r.Created, r.Total, r.Passed, r.Failed, r.Skipped,
	)
	if err != nil {
		return fmt.Errorf("insert test run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("test run id: %w", err)
	}

	for _, c := range rec.Cases {
		if _, err := tx.ExecContext(ctx, insertCaseQuery,
			runID, c.NodeID, c.Outcome, c.Duration, c.Longrepr, c.Message,
		); err != nil {
			return fmt.Errorf("insert test case %s: %w", c.NodeID, err)
		}
	}
	return nil
}
