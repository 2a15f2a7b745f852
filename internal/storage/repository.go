package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertLevelSampleSQL = `INSERT INTO level_samples (
        bucket_ts,
        symbol,
        interval,
        min_price,
        min_support,
        max_price,
        max_support,
        last_close,
        balance,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    ON CONFLICT (bucket_ts, symbol) DO UPDATE
    SET
        interval    = EXCLUDED.interval,
        min_price   = EXCLUDED.min_price,
        min_support = EXCLUDED.min_support,
        max_price   = EXCLUDED.max_price,
        max_support = EXCLUDED.max_support,
        last_close  = EXCLUDED.last_close,
        balance     = EXCLUDED.balance,
        status      = EXCLUDED.status,
        error       = EXCLUDED.error;`

	listSamplesBetweenSQL = `SELECT
        bucket_ts, symbol, interval,
        min_price, min_support, max_price, max_support,
        last_close, balance, status, error, created_at
    FROM level_samples
    WHERE bucket_ts >= $1
      AND bucket_ts < $2
    ORDER BY bucket_ts;`

	listRecentSamplesSQL = `SELECT
        bucket_ts, symbol, interval,
        min_price, min_support, max_price, max_support,
        last_close, balance, status, error, created_at
    FROM level_samples
    ORDER BY bucket_ts DESC
    LIMIT $1;`

	insertAlertSQL = `INSERT INTO alerts (
        sample_ts,
        symbol,
        min_price,
        min_support,
        max_price,
        max_support,
        near_min,
        near_max
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING id, sample_ts, symbol, min_price, min_support, max_price, max_support, near_min, near_max, created_at;`

	listRecentAlertsSQL = `SELECT
        id, sample_ts, symbol,
        min_price, min_support, max_price, max_support,
        near_min, near_max, created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// LevelSampleStore defines operations for level sample persistence.
type LevelSampleStore interface {
	UpsertLevelSample(ctx context.Context, sample LevelSample) error
	ListSamplesBetween(ctx context.Context, from, to time.Time) ([]LevelSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]LevelSample, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to level samples and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Best effort; the server releases the lock when the session ends.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertLevelSample persists or updates a level sample.
func (s *Store) UpsertLevelSample(ctx context.Context, sample LevelSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if sample.Error != nil {
		errMsg = *sample.Error
	}

	_, execErr := pool.Exec(ctx, upsertLevelSampleSQL,
		sample.Bucket,
		sample.Symbol,
		sample.Interval,
		decimalArg(sample.MinPrice),
		sample.MinSupport,
		decimalArg(sample.MaxPrice),
		sample.MaxSupport,
		decimalArg(sample.LastClose),
		decimalArg(sample.Balance),
		sample.Status,
		errMsg,
	)
	if execErr != nil {
		return fmt.Errorf("upsert level sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists samples within a time window.
func (s *Store) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]LevelSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows)
}

// ListRecentSamples lists the latest samples, newest first.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]LevelSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows)
}

// InsertAlert records an emitted alert.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.SampleTS,
		alert.Symbol,
		alert.MinPrice.String(),
		alert.MinSupport,
		alert.MaxPrice.String(),
		alert.MaxSupport,
		alert.NearMin,
		alert.NearMax,
	)
	stored, scanErr := scanAlert(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return stored, nil
}

// ListRecentAlerts lists the latest emitted alerts, newest first.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0)
	for rows.Next() {
		alert, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// DeleteAlertsBefore removes alert records older than the cutoff.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); err != nil {
		return fmt.Errorf("delete alerts: %w", err)
	}
	return nil
}

func collectSamples(rows pgx.Rows) ([]LevelSample, error) {
	samples := make([]LevelSample, 0)
	for rows.Next() {
		sample, scanErr := scanLevelSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

func scanLevelSample(row pgx.Row) (LevelSample, error) {
	var (
		bucket     time.Time
		symbol     string
		interval   string
		minPrice   sql.NullString
		minSupport int
		maxPrice   sql.NullString
		maxSupport int
		lastClose  sql.NullString
		balance    sql.NullString
		status     string
		errMsg     sql.NullString
		createdAt  time.Time
	)

	if err := row.Scan(
		&bucket, &symbol, &interval,
		&minPrice, &minSupport, &maxPrice, &maxSupport,
		&lastClose, &balance, &status, &errMsg, &createdAt,
	); err != nil {
		return LevelSample{}, err
	}

	sample := LevelSample{
		Bucket:     bucket,
		Symbol:     symbol,
		Interval:   interval,
		MinSupport: minSupport,
		MaxSupport: maxSupport,
		Status:     status,
		CreatedAt:  createdAt,
	}

	var err error
	if sample.MinPrice, err = optionalDecimal(minPrice); err != nil {
		return LevelSample{}, fmt.Errorf("parse min price: %w", err)
	}
	if sample.MaxPrice, err = optionalDecimal(maxPrice); err != nil {
		return LevelSample{}, fmt.Errorf("parse max price: %w", err)
	}
	if sample.LastClose, err = optionalDecimal(lastClose); err != nil {
		return LevelSample{}, fmt.Errorf("parse last close: %w", err)
	}
	if sample.Balance, err = optionalDecimal(balance); err != nil {
		return LevelSample{}, fmt.Errorf("parse balance: %w", err)
	}
	if errMsg.Valid {
		msg := errMsg.String
		sample.Error = &msg
	}

	return sample, nil
}

func scanAlert(row pgx.Row) (AlertRecord, error) {
	var (
		alert       AlertRecord
		minPriceStr string
		maxPriceStr string
	)

	if err := row.Scan(
		&alert.ID, &alert.SampleTS, &alert.Symbol,
		&minPriceStr, &alert.MinSupport, &maxPriceStr, &alert.MaxSupport,
		&alert.NearMin, &alert.NearMax, &alert.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	var err error
	if alert.MinPrice, err = decimal.NewFromString(minPriceStr); err != nil {
		return AlertRecord{}, fmt.Errorf("parse min price: %w", err)
	}
	if alert.MaxPrice, err = decimal.NewFromString(maxPriceStr); err != nil {
		return AlertRecord{}, fmt.Errorf("parse max price: %w", err)
	}
	return alert, nil
}

func optionalDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func decimalArg(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

var (
	_ LevelSampleStore = (*Store)(nil)
	_ AlertStore       = (*Store)(nil)
	_ AdvisoryLocker   = (*Store)(nil)
)
