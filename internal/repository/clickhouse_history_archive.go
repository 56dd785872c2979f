package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/domain/repository"
	pkgch "SignalEngine/pkg/clickhouse"
	applogger "SignalEngine/pkg/logger"
)

const DefaultHistoryTable = "signal_history"

// HistorySchema returns the DDL for the archive table. Rows are versioned so
// ReplacingMergeTree keeps the latest state of each signal.
func HistorySchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            signal_id      String,
            history_id     String,
            asset          LowCardinality(String),
            type           LowCardinality(String),
            strength       UInt8,
            confidence     Float64,
            level          LowCardinality(String),
            status         LowCardinality(String),
            ts             DateTime64(3),
            expiry_time    DateTime64(3),
            actual_outcome String,
            accuracy       Nullable(Float64),
            payload        String,
            version        UInt64
        ) ENGINE = ReplacingMergeTree(version)
        ORDER BY (asset, signal_id)`, database, table),
	}
}

// ClickHouseHistoryArchive appends one row per history state change.
type ClickHouseHistoryArchive struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

var _ repository.HistoryArchive = (*ClickHouseHistoryArchive)(nil)

func NewClickHouseHistoryArchive(ch *pkgch.Client, table string) *ClickHouseHistoryArchive {
	return NewClickHouseHistoryArchiveDB(ch.DB(), table)
}

// NewClickHouseHistoryArchiveDB wraps an existing *sql.DB.
func NewClickHouseHistoryArchiveDB(db *sql.DB, table string) *ClickHouseHistoryArchive {
	if table == "" {
		table = DefaultHistoryTable
	}
	return &ClickHouseHistoryArchive{db: db, table: table}
}

// SetLogger injects a structured logger.
func (a *ClickHouseHistoryArchive) SetLogger(l *applogger.Logger) { a.l = l }

func (a *ClickHouseHistoryArchive) Record(ctx context.Context, e *models.HistoryEntry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}
	var outcome string
	if e.Outcome != nil {
		outcome = e.Outcome.ActualOutcome
	}
	var accuracy sql.NullFloat64
	if e.Accuracy != nil {
		accuracy = sql.NullFloat64{Float64: *e.Accuracy, Valid: true}
	}
	version := e.AddedToHistoryAt
	if e.OutcomeUpdatedAt != nil {
		version = *e.OutcomeUpdatedAt
	}
	if e.UpdatedAt != nil && e.UpdatedAt.After(version) {
		version = *e.UpdatedAt
	}

	q := fmt.Sprintf(`INSERT INTO %s (signal_id, history_id, asset, type, strength, confidence, level, status, ts, expiry_time, actual_outcome, accuracy, payload, version)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, a.table)
	_, err = a.db.ExecContext(ctx, q,
		e.SignalID,
		e.HistoryID,
		e.Asset,
		string(e.Type),
		uint8(e.Strength),
		e.Confidence,
		string(e.Level),
		string(e.Status),
		e.Timestamp,
		e.ExpiryTime,
		outcome,
		accuracy,
		string(payload),
		uint64(version.UnixNano()),
	)
	if err != nil {
		if a.l != nil {
			a.l.Error("clickhouse history insert error",
				applogger.String("table", a.table),
				applogger.String("signal_id", e.SignalID),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("insert history row: %w", err)
	}
	return nil
}

func (a *ClickHouseHistoryArchive) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}
