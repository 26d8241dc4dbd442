package marketdata

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/database"
)

// Store is the SQLite-backed bar repository.
// Database: bars.db (bars table).
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a new bar store
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("repo", "bars").Logger(),
	}
}

// GetBars returns up to limit most recent bars for the symbol, oldest first
func (s *Store) GetBars(symbol string, limit int) ([]Bar, error) {
	query := `
		SELECT symbol, ts, open, high, low, close, volume
		FROM bars WHERE symbol = ?
		ORDER BY ts DESC LIMIT ?`

	rows, err := s.db.Query(query, strings.ToUpper(symbol), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []Bar
	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars for %s: %w", symbol, err)
	}

	// Query returns newest first for the LIMIT; callers expect oldest first.
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}

	return bars, nil
}

// GetLatestBar returns the most recent bar for the symbol, or nil when none exists
func (s *Store) GetLatestBar(symbol string) (*Bar, error) {
	query := `
		SELECT symbol, ts, open, high, low, close, volume
		FROM bars WHERE symbol = ?
		ORDER BY ts DESC LIMIT 1`

	row := s.db.QueryRow(query, strings.ToUpper(symbol))
	bar, err := scanBarRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest bar for %s: %w", symbol, err)
	}
	return &bar, nil
}

// GetBarsUpTo returns up to limit bars at or before the cutoff date, oldest first.
// Used by the historical cutoff adapter to enforce point-in-time discipline.
func (s *Store) GetBarsUpTo(symbol string, limit int, cutoff time.Time) ([]Bar, error) {
	endOfDay := time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 23, 59, 59, 0, time.UTC)

	query := `
		SELECT symbol, ts, open, high, low, close, volume
		FROM bars WHERE symbol = ? AND ts <= ?
		ORDER BY ts DESC LIMIT ?`

	rows, err := s.db.Query(query, strings.ToUpper(symbol), endOfDay.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s up to %s: %w", symbol, cutoff.Format("2006-01-02"), err)
	}
	defer rows.Close()

	var bars []Bar
	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars for %s: %w", symbol, err)
	}

	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}

	return bars, nil
}

// UpsertBar inserts or replaces a bar, keyed by (symbol, ts)
func (s *Store) UpsertBar(bar Bar) error {
	query := `
		INSERT INTO bars (symbol, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, ts) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume`

	_, err := s.db.Exec(query,
		strings.ToUpper(bar.Symbol),
		bar.Timestamp.Unix(),
		bar.Open.String(),
		bar.High.String(),
		bar.Low.String(),
		bar.Close.String(),
		bar.Volume,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert bar %s@%s: %w", bar.Symbol, bar.Timestamp.Format("2006-01-02"), err)
	}
	return nil
}

// UpsertBars inserts a batch of bars in one transaction
func (s *Store) UpsertBars(bars []Bar) error {
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO bars (symbol, ts, open, high, low, close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (symbol, ts) DO UPDATE SET
				open = excluded.open,
				high = excluded.high,
				low = excluded.low,
				close = excluded.close,
				volume = excluded.volume`)
		if err != nil {
			return fmt.Errorf("failed to prepare bar insert: %w", err)
		}
		defer stmt.Close()

		for _, bar := range bars {
			if _, err := stmt.Exec(
				strings.ToUpper(bar.Symbol),
				bar.Timestamp.Unix(),
				bar.Open.String(),
				bar.High.String(),
				bar.Low.String(),
				bar.Close.String(),
				bar.Volume,
			); err != nil {
				return fmt.Errorf("failed to insert bar %s@%s: %w", bar.Symbol, bar.Timestamp.Format("2006-01-02"), err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bar batch upsert: %w", err)
	}

	s.log.Debug().Int("count", len(bars)).Msg("Upserted bar batch")
	return nil
}

// LoadCSV seeds the store from a CSV file with header:
// symbol,date,open,high,low,close,volume (date as YYYY-MM-DD).
// Returns the number of bars loaded.
func (s *Store) LoadCSV(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open CSV %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 7

	// Skip header
	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("failed to read CSV header from %s: %w", path, err)
	}

	var bars []Bar
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read CSV row from %s: %w", path, err)
		}

		bar, err := parseCSVBar(record)
		if err != nil {
			return 0, fmt.Errorf("bad CSV row in %s: %w", path, err)
		}
		bars = append(bars, bar)
	}

	if err := s.UpsertBars(bars); err != nil {
		return 0, err
	}

	s.log.Info().Str("path", path).Int("bars", len(bars)).Msg("Loaded bars from CSV")
	return len(bars), nil
}

func parseCSVBar(record []string) (Bar, error) {
	day, err := time.Parse("2006-01-02", record[1])
	if err != nil {
		return Bar{}, fmt.Errorf("invalid date %q: %w", record[1], err)
	}

	prices := make([]decimal.Decimal, 4)
	for i, field := range record[2:6] {
		prices[i], err = decimal.NewFromString(field)
		if err != nil {
			return Bar{}, fmt.Errorf("invalid price %q: %w", field, err)
		}
	}

	volume, err := strconv.ParseInt(record[6], 10, 64)
	if err != nil {
		return Bar{}, fmt.Errorf("invalid volume %q: %w", record[6], err)
	}

	return Bar{
		Symbol:    strings.ToUpper(record[0]),
		Timestamp: time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    volume,
	}, nil
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBar(rows *sql.Rows) (Bar, error) {
	return scanBarRow(rows)
}

func scanBarRow(row rowScanner) (Bar, error) {
	var bar Bar
	var ts int64
	var open, high, low, closePx string

	if err := row.Scan(&bar.Symbol, &ts, &open, &high, &low, &closePx, &bar.Volume); err != nil {
		if err == sql.ErrNoRows {
			return Bar{}, err
		}
		return Bar{}, fmt.Errorf("failed to scan bar: %w", err)
	}

	bar.Timestamp = time.Unix(ts, 0).UTC()

	var err error
	if bar.Open, err = decimal.NewFromString(open); err != nil {
		return Bar{}, fmt.Errorf("invalid stored open price %q: %w", open, err)
	}
	if bar.High, err = decimal.NewFromString(high); err != nil {
		return Bar{}, fmt.Errorf("invalid stored high price %q: %w", high, err)
	}
	if bar.Low, err = decimal.NewFromString(low); err != nil {
		return Bar{}, fmt.Errorf("invalid stored low price %q: %w", low, err)
	}
	if bar.Close, err = decimal.NewFromString(closePx); err != nil {
		return Bar{}, fmt.Errorf("invalid stored close price %q: %w", closePx, err)
	}

	return bar, nil
}
