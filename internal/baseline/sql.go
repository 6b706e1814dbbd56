package baseline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"optionflow/internal/models"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SQLStore is a Store backed by SQLite or PostgreSQL.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQL opens the store, creates its tables and verifies the connection.
// For sqlite, dsn is a file path whose directory is created if needed.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty %s dsn", driver)
	}

	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1) // single writer
		if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set WAL mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS historical_windows (
			date               TEXT NOT NULL,
			strike             TEXT NOT NULL,
			contract_type      TEXT NOT NULL,
			time_bucket        TEXT NOT NULL,
			window_start       TEXT NOT NULL,
			total_volume       BIGINT NOT NULL,
			buy_volume         BIGINT NOT NULL,
			sell_volume        BIGINT NOT NULL,
			buy_pressure_ratio DOUBLE PRECISION NOT NULL,
			trade_count        BIGINT NOT NULL,
			avg_trade_size     DOUBLE PRECISION NOT NULL,
			large_trade_count  BIGINT NOT NULL,
			PRIMARY KEY (date, strike, contract_type, time_bucket, window_start)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_historical_windows_key ON historical_windows(strike, contract_type, time_bucket, date)`,
		`CREATE TABLE IF NOT EXISTS baseline_metrics (
			strike        TEXT NOT NULL,
			contract_type TEXT NOT NULL,
			time_bucket   TEXT NOT NULL,
			payload       TEXT NOT NULL,
			computed_at   BIGINT NOT NULL,
			PRIMARY KEY (strike, contract_type, time_bucket)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) StoreHistoricalData(ctx context.Context, points []models.HistoricalDataPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO historical_windows
			(date, strike, contract_type, time_bucket, window_start, total_volume, buy_volume, sell_volume,
			 buy_pressure_ratio, trade_count, avg_trade_size, large_trade_count)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (date, strike, contract_type, time_bucket, window_start) DO UPDATE SET
			total_volume       = excluded.total_volume,
			buy_volume         = excluded.buy_volume,
			sell_volume        = excluded.sell_volume,
			buy_pressure_ratio = excluded.buy_pressure_ratio,
			trade_count        = excluded.trade_count,
			avg_trade_size     = excluded.avg_trade_size,
			large_trade_count  = excluded.large_trade_count`))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx,
			p.Date, p.Strike.String(), string(p.Type), p.TimeBucket, p.Window,
			p.TotalVolume, p.BuyVolume, p.SellVolume,
			p.BuyPressureRatio, p.TradeCount, p.AvgTradeSize, p.LargeTradeCount,
		); err != nil {
			return fmt.Errorf("failed to insert historical point %s %s: %w", p.Date, p.Key().Series, err)
		}
	}

	return tx.Commit()
}

func (s *SQLStore) GetHistoricalData(ctx context.Context, key models.BaselineKey, lookbackDays int, asOf time.Time) ([]models.HistoricalDataPoint, error) {
	from, to := lookbackRange(lookbackDays, asOf)

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT date, strike, contract_type, time_bucket, window_start, total_volume, buy_volume, sell_volume,
		       buy_pressure_ratio, trade_count, avg_trade_size, large_trade_count
		FROM historical_windows
		WHERE strike = ? AND contract_type = ? AND time_bucket = ? AND date >= ? AND date <= ?
		ORDER BY date, window_start`),
		key.Series.Strike, string(key.Series.Type), key.TimeBucket, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query historical data: %w", err)
	}
	defer rows.Close()

	var out []models.HistoricalDataPoint
	for rows.Next() {
		var (
			p      models.HistoricalDataPoint
			strike string
			typ    string
		)
		if err := rows.Scan(&p.Date, &strike, &typ, &p.TimeBucket, &p.Window,
			&p.TotalVolume, &p.BuyVolume, &p.SellVolume,
			&p.BuyPressureRatio, &p.TradeCount, &p.AvgTradeSize, &p.LargeTradeCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan historical point: %w", err)
		}
		if p.Strike, err = decimal.NewFromString(strike); err != nil {
			return nil, fmt.Errorf("bad stored strike %q: %w", strike, err)
		}
		p.Type = models.ContractType(typ)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLStore) StoreBaselineMetrics(ctx context.Context, m models.BaselineMetrics) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("json marshal failed: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO baseline_metrics (strike, contract_type, time_bucket, payload, computed_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT (strike, contract_type, time_bucket) DO UPDATE SET
			payload     = excluded.payload,
			computed_at = excluded.computed_at`),
		m.Key.Series.Strike, string(m.Key.Series.Type), m.Key.TimeBucket, string(payload), m.ComputedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert baseline %s/%s: %w", m.Key.Series, m.Key.TimeBucket, err)
	}
	return nil
}

func (s *SQLStore) GetBaselineMetrics(ctx context.Context, key models.BaselineKey) (*models.BaselineMetrics, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT payload FROM baseline_metrics
		WHERE strike = ? AND contract_type = ? AND time_bucket = ?`),
		key.Series.Strike, string(key.Series.Type), key.TimeBucket,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query baseline: %w", err)
	}

	var m models.BaselineMetrics
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return nil, fmt.Errorf("json unmarshal failed: %w", err)
	}
	return &m, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
