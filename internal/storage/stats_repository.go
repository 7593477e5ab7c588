package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chain-explorer/internal/models"
)

// DailyStat is an aggregated per-day transaction count and native volume
type DailyStat struct {
	Day      time.Time `json:"day"`
	TxCount  uint64    `json:"txCount"`
	Volume   string    `json:"volume"`
	GasSpent uint64    `json:"gasSpent"`
}

// StatsRepository mirrors ingested transactions into ClickHouse for the
// aggregate stats surface. The mirror is advisory; Postgres remains the
// system of record.
type StatsRepository struct {
	db *ClickHouseDB
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *ClickHouseDB) *StatsRepository {
	return &StatsRepository{db: db}
}

// MirrorTransactions batch-inserts transaction facts for aggregation.
// ClickHouse inserts are append-only; replays of the same block produce
// duplicate rows that the ReplacingMergeTree engine collapses by hash.
func (r *StatsRepository) MirrorTransactions(ctx context.Context, transactions []*models.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO transaction_facts (
			hash, block_number, from_address, to_address, value,
			gas_used, status, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare stats batch: %w", err)
	}

	for _, tx := range transactions {
		to := ""
		if tx.To != nil {
			to = strings.ToLower(*tx.To)
		}

		err = batch.Append(
			strings.ToLower(tx.Hash),
			tx.BlockNumber,
			strings.ToLower(tx.From),
			to,
			tx.Value,
			tx.GasUsed,
			tx.Status,
			time.Unix(tx.Timestamp, 0).UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to append transaction %s to stats batch: %w", tx.Hash, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send stats batch: %w", err)
	}

	return nil
}

// DailyStats returns per-day transaction counts and native volume for the
// trailing window of days, oldest day first
func (r *StatsRepository) DailyStats(ctx context.Context, days int) ([]*DailyStat, error) {
	if days <= 0 || days > 365 {
		days = 14
	}

	query := `
		SELECT
			toStartOfDay(timestamp) AS day,
			count() AS tx_count,
			toString(sum(toUInt256OrZero(value))) AS volume,
			sum(gas_used) AS gas_spent
		FROM transaction_facts FINAL
		WHERE timestamp >= now() - INTERVAL ? DAY
		GROUP BY day
		ORDER BY day ASC
	`

	rows, err := r.db.Conn().Query(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var stats []*DailyStat
	for rows.Next() {
		var stat DailyStat

		if err := rows.Scan(&stat.Day, &stat.TxCount, &stat.Volume, &stat.GasSpent); err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}

		stats = append(stats, &stat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily stats: %w", err)
	}

	return stats, nil
}
