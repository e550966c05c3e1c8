package evaluation

import (
	"context"
	"fmt"
	"time"

	"evalhub/internal/platform/querier"
)

// GetOrCreateBucket inserts the bucket unless one already exists for the
// period and then reads back whichever row won. created reports whether this
// call inserted it.
func (s *Store) GetOrCreateBucket(ctx context.Context, id string, period Period, at time.Time) (Bucket, bool, error) {
	return getOrCreateBucket(ctx, s.DB, id, period, at)
}

func getOrCreateBucket(ctx context.Context, q querier.Querier, id string, period Period, at time.Time) (Bucket, bool, error) {
	affected, err := q.Exec(ctx, `
    INSERT INTO period_buckets (id, year, month, created_at)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (year, month) DO NOTHING
  `, id, period.Year, period.Month, at)
	if err != nil {
		return Bucket{}, false, fmt.Errorf("insert bucket: %w", err)
	}
	bucket, err := bucketByPeriod(ctx, q, period)
	if err != nil {
		return Bucket{}, false, err
	}
	return bucket, affected == 1, nil
}

func (s *Store) GetBucket(ctx context.Context, bucketID string) (Bucket, error) {
	return bucketByID(ctx, s.DB, bucketID)
}

func (s *Store) ListBuckets(ctx context.Context) ([]Bucket, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT b.id, b.year, b.month, b.created_at,
      (SELECT COUNT(*) FROM evaluations e WHERE e.bucket_id = b.id)
    FROM period_buckets b
    ORDER BY b.year DESC, b.month DESC
  `)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()

	out := []Bucket{}
	for rows.Next() {
		var b Bucket
		var count int64
		if err := rows.Scan(&b.ID, &b.Year, &b.Month, &b.CreatedAt, &count); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		b.CreatedAt = b.CreatedAt.UTC()
		b.RecordCount = int(count)
		out = append(out, b)
	}
	return out, rows.Err()
}

func bucketByPeriod(ctx context.Context, q querier.Querier, period Period) (Bucket, error) {
	var b Bucket
	var count int64
	err := q.QueryRow(ctx, `
    SELECT b.id, b.year, b.month, b.created_at,
      (SELECT COUNT(*) FROM evaluations e WHERE e.bucket_id = b.id)
    FROM period_buckets b
    WHERE b.year = $1 AND b.month = $2
  `, period.Year, period.Month).Scan(&b.ID, &b.Year, &b.Month, &b.CreatedAt, &count)
	if querier.IsNoRows(err) {
		return Bucket{}, fmt.Errorf("bucket %s: %w", period, ErrNotFound)
	}
	if err != nil {
		return Bucket{}, fmt.Errorf("read bucket: %w", err)
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.RecordCount = int(count)
	return b, nil
}

func bucketByID(ctx context.Context, q querier.Querier, bucketID string) (Bucket, error) {
	var b Bucket
	var count int64
	err := q.QueryRow(ctx, `
    SELECT b.id, b.year, b.month, b.created_at,
      (SELECT COUNT(*) FROM evaluations e WHERE e.bucket_id = b.id)
    FROM period_buckets b
    WHERE b.id = $1
  `, bucketID).Scan(&b.ID, &b.Year, &b.Month, &b.CreatedAt, &count)
	if querier.IsNoRows(err) {
		return Bucket{}, fmt.Errorf("bucket %s: %w", bucketID, ErrNotFound)
	}
	if err != nil {
		return Bucket{}, fmt.Errorf("read bucket: %w", err)
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.RecordCount = int(count)
	return b, nil
}
