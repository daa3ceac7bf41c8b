package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"Detector/internal/domain/models"
	"Detector/internal/domain/repository"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ClickHouseCandleArchive stores closed candles in a ReplacingMergeTree table.
type ClickHouseCandleArchive struct {
	db    execer
	table string
}

// NewClickHouseCandleArchive creates the archive over a pooled connection.
func NewClickHouseCandleArchive(db execer, table string) *ClickHouseCandleArchive {
	if table == "" {
		table = "candles"
	}
	return &ClickHouseCandleArchive{db: db, table: table}
}

// CandleArchiveSchema returns the idempotent DDL for database.table.
func CandleArchiveSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	open_time DateTime64(3, 'UTC'),
	symbol LowCardinality(String),
	interval LowCardinality(String),
	open Float64,
	high Float64,
	low Float64,
	close Float64,
	volume Float64,
	trades UInt32,
	inserted_at DateTime DEFAULT now()
) ENGINE = ReplacingMergeTree(inserted_at)
ORDER BY (symbol, interval, open_time)`, database, table),
	}
}

func (a *ClickHouseCandleArchive) StoreCandle(ctx context.Context, c models.Candle) error {
	if c.Symbol.Name == "" || c.Time == 0 {
		return fmt.Errorf("store candle: symbol and time are required")
	}
	q := fmt.Sprintf("INSERT INTO %s (open_time, symbol, interval, open, high, low, close, volume, trades) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", a.table)
	_, err := a.db.ExecContext(ctx, q,
		time.UnixMilli(c.Time).UTC(),
		c.Symbol.Name,
		string(c.Interval),
		c.Open,
		c.High,
		c.Low,
		c.Close,
		c.Volume,
		uint32(c.Trades),
	)
	if err != nil {
		return fmt.Errorf("store candle %s %s: %w", c.Symbol.Name, c.Interval, err)
	}
	return nil
}

var _ repository.CandleSink = (*ClickHouseCandleArchive)(nil)
