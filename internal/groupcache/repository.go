package groupcache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/dsl"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/indicators"
)

// Repository handles group return cache database operations.
// Database: groupcache.db (group_returns table), keyed (group_id, record_date).
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new group return repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "groupcache").Logger(),
	}
}

// WriteHistoricalReturn upserts one day of a group's return series.
// Re-writing the same key with the same inputs yields the same stored
// value; different inputs simply replace the prior entry (last write wins).
func (r *Repository) WriteHistoricalReturn(
	groupID string,
	recordDate time.Time,
	groupName string,
	selections map[string]string,
	dailyReturn decimal.Decimal,
) error {
	blob, err := msgpack.Marshal(selections)
	if err != nil {
		return fmt.Errorf("failed to encode selections for group %s: %w", groupID, err)
	}

	query := `
		INSERT INTO group_returns (group_id, record_date, group_name, selections, portfolio_daily_return, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (group_id, record_date) DO UPDATE SET
			group_name = excluded.group_name,
			selections = excluded.selections,
			portfolio_daily_return = excluded.portfolio_daily_return,
			updated_at = excluded.updated_at`

	_, err = r.db.Exec(query,
		groupID,
		recordDate.Format("2006-01-02"),
		groupName,
		blob,
		dailyReturn.String(),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to write historical return %s@%s: %w", groupID, recordDate.Format("2006-01-02"), err)
	}
	return nil
}

// LookupHistoricalReturns returns the group's return series over a lookback
// window of trading days ending at endDate, ordered oldest first. Days with
// no cached entry are simply absent (no data, not an error).
func (r *Repository) LookupHistoricalReturns(groupID string, lookbackDays int, endDate time.Time) ([]dsl.DatedReturn, error) {
	start := indicators.TradingWeekdaysBack(endDate, lookbackDays)

	query := `
		SELECT record_date, portfolio_daily_return
		FROM group_returns
		WHERE group_id = ? AND record_date > ? AND record_date <= ?
		ORDER BY record_date ASC`

	rows, err := r.db.Query(query, groupID, start.Format("2006-01-02"), endDate.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query historical returns for %s: %w", groupID, err)
	}
	defer rows.Close()

	var series []dsl.DatedReturn
	for rows.Next() {
		var dateStr, retStr string
		if err := rows.Scan(&dateStr, &retStr); err != nil {
			return nil, fmt.Errorf("failed to scan historical return: %w", err)
		}

		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid stored record date %q: %w", dateStr, err)
		}
		ret, err := decimal.NewFromString(retStr)
		if err != nil {
			return nil, fmt.Errorf("invalid stored return %q: %w", retStr, err)
		}

		series = append(series, dsl.DatedReturn{Date: date, Return: ret})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating historical returns for %s: %w", groupID, err)
	}

	return series, nil
}

// GetSelections returns the cached symbol weights for one day, or nil when
// the day has no entry.
func (r *Repository) GetSelections(groupID string, recordDate time.Time) (map[string]string, error) {
	query := `SELECT selections FROM group_returns WHERE group_id = ? AND record_date = ?`

	var blob []byte
	err := r.db.QueryRow(query, groupID, recordDate.Format("2006-01-02")).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query selections for %s: %w", groupID, err)
	}

	var selections map[string]string
	if err := msgpack.Unmarshal(blob, &selections); err != nil {
		return nil, fmt.Errorf("failed to decode selections for %s: %w", groupID, err)
	}
	return selections, nil
}

// CountInWindow counts cached entries for a group within the lookback
// window. Used by the backfill verification step.
func (r *Repository) CountInWindow(groupID string, lookbackDays int, endDate time.Time) (int, error) {
	start := indicators.TradingWeekdaysBack(endDate, lookbackDays)

	query := `
		SELECT COUNT(*) FROM group_returns
		WHERE group_id = ? AND record_date > ? AND record_date <= ?`

	var count int
	err := r.db.QueryRow(query, groupID, start.Format("2006-01-02"), endDate.Format("2006-01-02")).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cached returns for %s: %w", groupID, err)
	}
	return count, nil
}

// Clear removes every cached entry. Explicit, instance-scoped state reset
// for tests and full re-backfills.
func (r *Repository) Clear() error {
	if _, err := r.db.Exec(`DELETE FROM group_returns`); err != nil {
		return fmt.Errorf("failed to clear group return cache: %w", err)
	}
	r.log.Info().Msg("Cleared group return cache")
	return nil
}
