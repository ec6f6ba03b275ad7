package metering

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SQLMeter implements Meter over plain database/sql, supporting both
// Postgres and the embedded sqlite driver — selected by the DSN
// scheme, the same way pkg/database.Open does for the Guard's own
// tables.
type SQLMeter struct {
	db     *sql.DB
	driver string // "postgres" or "sqlite"
}

// NewSQLMeter wraps db as a Meter. driverName is "postgres" or
// "sqlite" (whatever name was passed to sql.Open), used only to pick
// the bind-parameter style.
func NewSQLMeter(db *sql.DB, driverName string) *SQLMeter {
	return &SQLMeter{db: db, driver: driverName}
}

func (m *SQLMeter) placeholder(n int) string {
	if m.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS usage_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	quantity BIGINT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_usage_events_tenant_time ON usage_events(tenant_id, timestamp);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS usage_events (
	id BIGSERIAL PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	quantity BIGINT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	metadata JSONB
);
CREATE INDEX IF NOT EXISTS idx_usage_events_tenant_time ON usage_events(tenant_id, timestamp);
`

// Init creates the usage_events table for the selected dialect.
func (m *SQLMeter) Init(ctx context.Context) error {
	schema := sqliteSchema
	if m.driver == "postgres" {
		schema = postgresSchema
	}
	for _, stmt := range strings.Split(schema, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("metering: migrate: %w", err)
		}
	}
	return nil
}

// Record stores a single usage event.
func (m *SQLMeter) Record(ctx context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	metadataJSON, err := marshalMetadata(event.Metadata)
	if err != nil {
		return err
	}

	q := fmt.Sprintf(`INSERT INTO usage_events (tenant_id, event_type, quantity, timestamp, metadata) VALUES (%s, %s, %s, %s, %s)`,
		m.placeholder(1), m.placeholder(2), m.placeholder(3), m.placeholder(4), m.placeholder(5))
	if _, err := m.db.ExecContext(ctx, q, event.TenantID, event.EventType, event.Quantity, event.Timestamp, metadataJSON); err != nil {
		return fmt.Errorf("metering: failed to record event: %w", err)
	}
	return nil
}

// RecordBatch stores multiple events in a single transaction.
func (m *SQLMeter) RecordBatch(ctx context.Context, events []Event) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("metering: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := fmt.Sprintf(`INSERT INTO usage_events (tenant_id, event_type, quantity, timestamp, metadata) VALUES (%s, %s, %s, %s, %s)`,
		m.placeholder(1), m.placeholder(2), m.placeholder(3), m.placeholder(4), m.placeholder(5))
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("metering: failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, event := range events {
		if err := event.Validate(); err != nil {
			return err
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = now
		}
		metadataJSON, err := marshalMetadata(event.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, event.TenantID, event.EventType, event.Quantity, event.Timestamp, metadataJSON); err != nil {
			return fmt.Errorf("metering: failed to insert event: %w", err)
		}
	}

	return tx.Commit()
}

// GetUsage retrieves aggregated usage for all event types.
func (m *SQLMeter) GetUsage(ctx context.Context, tenantID string, period Period) (*Usage, error) {
	q := fmt.Sprintf(`SELECT event_type, SUM(quantity) FROM usage_events WHERE tenant_id = %s AND timestamp >= %s AND timestamp < %s GROUP BY event_type`,
		m.placeholder(1), m.placeholder(2), m.placeholder(3))
	rows, err := m.db.QueryContext(ctx, q, tenantID, period.Start, period.End)
	if err != nil {
		return nil, fmt.Errorf("metering: failed to query usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	usage := &Usage{
		TenantID:   tenantID,
		Period:     period,
		Totals:     make(map[EventType]int64),
		LastUpdate: time.Now().UTC(),
	}

	for rows.Next() {
		var eventType EventType
		var total int64
		if err := rows.Scan(&eventType, &total); err != nil {
			return nil, fmt.Errorf("metering: failed to scan row: %w", err)
		}
		usage.Totals[eventType] = total
	}

	return usage, rows.Err()
}

// GetUsageByType retrieves usage for a specific event type.
func (m *SQLMeter) GetUsageByType(ctx context.Context, tenantID string, eventType EventType, period Period) (int64, error) {
	q := fmt.Sprintf(`SELECT SUM(quantity) FROM usage_events WHERE tenant_id = %s AND event_type = %s AND timestamp >= %s AND timestamp < %s`,
		m.placeholder(1), m.placeholder(2), m.placeholder(3), m.placeholder(4))
	var total sql.NullInt64
	if err := m.db.QueryRowContext(ctx, q, tenantID, eventType, period.Start, period.End).Scan(&total); err != nil {
		return 0, fmt.Errorf("metering: failed to query usage by type: %w", err)
	}
	return total.Int64, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("metering: failed to marshal metadata: %w", err)
	}
	return data, nil
}
