package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/oracle-backend/internal/models"
)

type PriceRepo struct {
	pool *pgxpool.Pool
}

func NewPriceRepo(pool *pgxpool.Pool) *PriceRepo {
	return &PriceRepo{pool: pool}
}

// Upsert writes a daily price record keyed by (token, network, timestamp).
// Existing rows are overwritten; the backfill worker may refill gaps later.
func (r *PriceRepo) Upsert(ctx context.Context, rec *models.PriceRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO historical_prices (token, network, timestamp, price, date)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (token, network, timestamp)
		 DO UPDATE SET price = EXCLUDED.price, date = EXCLUDED.date`,
		rec.Token, rec.Network, rec.Timestamp, rec.Price, rec.Date,
	)
	return err
}

// GetExact returns the record at exactly the given timestamp, or nil.
func (r *PriceRepo) GetExact(ctx context.Context, token string, network models.Network, ts int64) (*models.PriceRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, token, network, timestamp, price, date, created_at
		 FROM historical_prices
		 WHERE token = $1 AND network = $2 AND timestamp = $3`,
		token, network, ts,
	)
	return scanRecord(row)
}

// NearestBefore returns the record closest at-or-before ts, or nil.
func (r *PriceRepo) NearestBefore(ctx context.Context, token string, network models.Network, ts int64) (*models.PriceRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, token, network, timestamp, price, date, created_at
		 FROM historical_prices
		 WHERE token = $1 AND network = $2 AND timestamp <= $3
		 ORDER BY timestamp DESC LIMIT 1`,
		token, network, ts,
	)
	return scanRecord(row)
}

// NearestAfter returns the record closest at-or-after ts, or nil.
func (r *PriceRepo) NearestAfter(ctx context.Context, token string, network models.Network, ts int64) (*models.PriceRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, token, network, timestamp, price, date, created_at
		 FROM historical_prices
		 WHERE token = $1 AND network = $2 AND timestamp >= $3
		 ORDER BY timestamp ASC LIMIT 1`,
		token, network, ts,
	)
	return scanRecord(row)
}

// History returns all records for a token/network pair, ascending by timestamp.
func (r *PriceRepo) History(ctx context.Context, token string, network models.Network) ([]models.HistoryPoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT timestamp, price FROM historical_prices
		 WHERE token = $1 AND network = $2
		 ORDER BY timestamp ASC`,
		token, network,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.HistoryPoint
	for rows.Next() {
		var h models.HistoryPoint
		if err := rows.Scan(&h.Timestamp, &h.Price); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*models.PriceRecord, error) {
	var rec models.PriceRecord
	var date time.Time
	err := row.Scan(&rec.ID, &rec.Token, &rec.Network, &rec.Timestamp, &rec.Price, &date, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.Date = date.Format("2006-01-02")
	return &rec, nil
}
