// Package database provides the Guard daemon's persistence layer:
// health-check results, alerts, ISP scans, chain-integrity checks, and
// report snapshots. Two backends share one schema and query set —
// lib/pq for production Postgres, modernc.org/sqlite for embedded/dev
// deployments — selected by the DSN scheme, following
// pkg/metering/sqlmeter.go's plain database/sql repository shape.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Driver identifies the backing SQL engine.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// Client wraps a *sql.DB with the Guard's schema and query set.
type Client struct {
	db     *sql.DB
	driver Driver
}

// Open connects using dsn, inferring the driver from its scheme:
// "postgres://..." selects Postgres, anything else (a file path, or
// ":memory:") selects the embedded sqlite driver.
func Open(ctx context.Context, dsn string) (*Client, error) {
	driver := DriverSQLite
	driverName := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = DriverPostgres
		driverName = "postgres"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database: ping %s: %w", driver, err)
	}

	c := &Client{db: db, driver: driver}
	if err := c.migrate(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) placeholder(n int) string {
	if c.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (c *Client) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS health_checks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			probe TEXT NOT NULL,
			ok INTEGER NOT NULL,
			detail TEXT,
			checked_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fingerprint TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			detail TEXT,
			fired_at TIMESTAMP NOT NULL,
			resolved_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS isp_scans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			domain_id TEXT NOT NULL,
			profile_json TEXT NOT NULL,
			valid INTEGER NOT NULL DEFAULT 1,
			scanned_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chain_checks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ok INTEGER NOT NULL,
			reason TEXT,
			checked_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS guard_reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			report_json TEXT NOT NULL,
			generated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS hash_baselines (
			domain_id TEXT PRIMARY KEY,
			content_hash TEXT NOT NULL,
			established_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
	if c.driver == DriverPostgres {
		for i, s := range stmts {
			stmts[i] = strings.ReplaceAll(s, "INTEGER PRIMARY KEY AUTOINCREMENT", "BIGSERIAL PRIMARY KEY")
		}
	}
	for _, s := range stmts {
		if _, err := c.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("database: migrate: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error { return c.db.Close() }

// Ping verifies the connection is still alive, for use as a Guard
// health probe.
func (c *Client) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

// RecordHealthCheck persists one HealthProbe result.
func (c *Client) RecordHealthCheck(ctx context.Context, probe string, ok bool, detail string, at time.Time) error {
	q := fmt.Sprintf(`INSERT INTO health_checks (probe, ok, detail, checked_at) VALUES (%s, %s, %s, %s)`,
		c.placeholder(1), c.placeholder(2), c.placeholder(3), c.placeholder(4))
	_, err := c.db.ExecContext(ctx, q, probe, boolToInt(ok), detail, at.UTC())
	return err
}

// RecordAlert persists a fired AlertEngine alert.
func (c *Client) RecordAlert(ctx context.Context, fingerprint, severity, title, detail string, firedAt time.Time) error {
	q := fmt.Sprintf(`INSERT INTO alerts (fingerprint, severity, title, detail, fired_at) VALUES (%s, %s, %s, %s, %s)`,
		c.placeholder(1), c.placeholder(2), c.placeholder(3), c.placeholder(4), c.placeholder(5))
	_, err := c.db.ExecContext(ctx, q, fingerprint, severity, title, detail, firedAt.UTC())
	return err
}

// RecordISPScan persists an ISPScanner result; profile is marshaled to
// JSON. valid reflects whether the scan passed required-field and
// hash-baseline validation, consulted by ReportBuilder's verified
// formula.
func (c *Client) RecordISPScan(ctx context.Context, domainID string, profile interface{}, valid bool, at time.Time) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("database: marshal profile: %w", err)
	}
	q := fmt.Sprintf(`INSERT INTO isp_scans (domain_id, profile_json, valid, scanned_at) VALUES (%s, %s, %s, %s)`,
		c.placeholder(1), c.placeholder(2), c.placeholder(3), c.placeholder(4))
	_, err = c.db.ExecContext(ctx, q, domainID, string(data), boolToInt(valid), at.UTC())
	return err
}

// GetHashBaseline returns the last recorded content hash for
// domainID, used by ISPScanner's tamper check.
func (c *Client) GetHashBaseline(ctx context.Context, domainID string) (string, bool, error) {
	q := fmt.Sprintf(`SELECT content_hash FROM hash_baselines WHERE domain_id = %s`, c.placeholder(1))
	var hash string
	err := c.db.QueryRowContext(ctx, q, domainID).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

// SetHashBaseline upserts the recorded content hash for domainID.
func (c *Client) SetHashBaseline(ctx context.Context, domainID, contentHash string, at time.Time) error {
	q := fmt.Sprintf(`INSERT INTO hash_baselines (domain_id, content_hash, established_at, updated_at) VALUES (%s, %s, %s, %s)
		ON CONFLICT(domain_id) DO UPDATE SET content_hash = %s, updated_at = %s`,
		c.placeholder(1), c.placeholder(2), c.placeholder(3), c.placeholder(4), c.placeholder(5), c.placeholder(6))
	_, err := c.db.ExecContext(ctx, q, domainID, contentHash, at.UTC(), at.UTC(), contentHash, at.UTC())
	return err
}

// RecordChainCheck persists a ChainWatcher verification result.
func (c *Client) RecordChainCheck(ctx context.Context, ok bool, reason string, at time.Time) error {
	q := fmt.Sprintf(`INSERT INTO chain_checks (ok, reason, checked_at) VALUES (%s, %s, %s)`,
		c.placeholder(1), c.placeholder(2), c.placeholder(3))
	_, err := c.db.ExecContext(ctx, q, boolToInt(ok), reason, at.UTC())
	return err
}

// RecordReport persists a ReportBuilder snapshot; report is marshaled to JSON.
func (c *Client) RecordReport(ctx context.Context, report interface{}, at time.Time) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("database: marshal report: %w", err)
	}
	q := fmt.Sprintf(`INSERT INTO guard_reports (report_json, generated_at) VALUES (%s, %s)`,
		c.placeholder(1), c.placeholder(2))
	_, err = c.db.ExecContext(ctx, q, string(data), at.UTC())
	return err
}

// RecentHealthChecks returns the last limit health-check rows across all probes.
func (c *Client) RecentHealthChecks(ctx context.Context, limit int) ([]HealthCheckRow, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT probe, ok, detail, checked_at FROM health_checks ORDER BY checked_at DESC LIMIT `+fmt.Sprint(limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []HealthCheckRow
	for rows.Next() {
		var r HealthCheckRow
		var okInt int
		if err := rows.Scan(&r.Probe, &okInt, &r.Detail, &r.CheckedAt); err != nil {
			return nil, err
		}
		r.OK = okInt != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// HealthCheckRow is one row of health_checks.
type HealthCheckRow struct {
	Probe     string
	OK        bool
	Detail    string
	CheckedAt time.Time
}

// RecentChainChecks returns the last limit chain-watcher verification rows.
func (c *Client) RecentChainChecks(ctx context.Context, limit int) ([]ChainCheckRow, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT ok, reason, checked_at FROM chain_checks ORDER BY checked_at DESC LIMIT `+fmt.Sprint(limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ChainCheckRow
	for rows.Next() {
		var r ChainCheckRow
		var okInt int
		var reason sql.NullString
		if err := rows.Scan(&okInt, &reason, &r.CheckedAt); err != nil {
			return nil, err
		}
		r.OK = okInt != 0
		r.Reason = reason.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// ChainCheckRow is one row of chain_checks.
type ChainCheckRow struct {
	OK        bool
	Reason    string
	CheckedAt time.Time
}

// RecentISPScans returns the last limit ISP-scan rows across all domains.
func (c *Client) RecentISPScans(ctx context.Context, limit int) ([]ISPScanRow, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT domain_id, valid, scanned_at FROM isp_scans ORDER BY scanned_at DESC LIMIT `+fmt.Sprint(limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ISPScanRow
	for rows.Next() {
		var r ISPScanRow
		var validInt int
		if err := rows.Scan(&r.DomainID, &validInt, &r.ScannedAt); err != nil {
			return nil, err
		}
		r.Valid = validInt != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// ISPScanRow is one row of isp_scans.
type ISPScanRow struct {
	DomainID  string
	Valid     bool
	ScannedAt time.Time
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
