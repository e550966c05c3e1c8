package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"evalhub/internal/platform/querier"
)

var (
	ErrIdempotencyConflict   = errors.New("idempotency key conflicts with existing request")
	ErrIdempotencyInProgress = errors.New("idempotency key is held by a request still in progress")
)

const IdempotencyHeader = "Idempotency-Key"

// pendingResponse marks a reserved key whose request has not finished yet.
const pendingResponse = ""

type IdempotencyStore struct {
	db  querier.DB
	now func() time.Time
}

func NewIdempotencyStore(db querier.DB) *IdempotencyStore {
	return &IdempotencyStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Reserve claims key for this request before any work runs. It returns
// reserved=true when the caller owns the key and must finish with Complete or
// Release. Otherwise it returns the stored response of the request that owns
// it, ErrIdempotencyConflict for a different request hash, or
// ErrIdempotencyInProgress while the owner is still running.
func (s *IdempotencyStore) Reserve(ctx context.Context, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error) {
	if s == nil || s.db == nil {
		return nil, true, nil
	}
	n, err := s.db.Exec(ctx, `
    INSERT INTO idempotency_keys (user_id, idem_key, endpoint, request_hash, response_json, created_at)
    VALUES ($1, $2, $3, $4, $5, $6)
    ON CONFLICT (user_id, idem_key, endpoint) DO NOTHING
  `, userID, key, endpoint, requestHash, pendingResponse, s.now())
	if err != nil {
		return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if n == 1 {
		return nil, true, nil
	}

	var storedHash, stored string
	err = s.db.QueryRow(ctx, `
    SELECT request_hash, response_json
    FROM idempotency_keys
    WHERE user_id = $1 AND idem_key = $2 AND endpoint = $3
  `, userID, key, endpoint).Scan(&storedHash, &stored)
	if querier.IsNoRows(err) {
		// Released between our insert and read; the caller may retry.
		return nil, false, ErrIdempotencyInProgress
	}
	if err != nil {
		return nil, false, fmt.Errorf("read idempotency key: %w", err)
	}
	if storedHash != requestHash {
		return nil, false, ErrIdempotencyConflict
	}
	if stored == pendingResponse {
		return nil, false, ErrIdempotencyInProgress
	}
	return json.RawMessage(stored), false, nil
}

// Complete stores the response for a key reserved by this request.
func (s *IdempotencyStore) Complete(ctx context.Context, userID, endpoint, key string, response json.RawMessage) error {
	if s == nil || s.db == nil {
		return nil
	}
	if _, err := s.db.Exec(ctx, `
    UPDATE idempotency_keys
    SET response_json = $1
    WHERE user_id = $2 AND idem_key = $3 AND endpoint = $4 AND response_json = $5
  `, string(response), userID, key, endpoint, pendingResponse); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release drops a reservation whose request failed so the key can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, userID, endpoint, key string) error {
	if s == nil || s.db == nil {
		return nil
	}
	if _, err := s.db.Exec(ctx, `
    DELETE FROM idempotency_keys
    WHERE user_id = $1 AND idem_key = $2 AND endpoint = $3 AND response_json = $4
  `, userID, key, endpoint, pendingResponse); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
