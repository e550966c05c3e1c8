package auth

import (
	"context"
	"fmt"
	"time"

	"evalhub/internal/platform/querier"
)

type Store struct {
	DB querier.DB
}

func NewStore(db querier.DB) *Store {
	return &Store{DB: db}
}

type User struct {
	ID           string
	Name         string
	Email        string
	Role         string
	PasswordHash string
	MFAEnabled   bool
	MFASecretEnc []byte
	LastLogin    *time.Time
	Archived     bool
}

const userColumns = `id, name, email, role, password_hash, mfa_enabled, mfa_secret_enc, last_login, archived_at`

func scanUser(row querier.Row) (User, error) {
	var u User
	var archivedAt *time.Time
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.PasswordHash, &u.MFAEnabled,
		&u.MFASecretEnc, &u.LastLogin, &archivedAt); err != nil {
		return User{}, err
	}
	u.Archived = archivedAt != nil
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(s.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM supervisors WHERE email = $1`, email))
	if querier.IsNoRows(err) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) UserByID(ctx context.Context, id string) (User, error) {
	u, err := scanUser(s.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM supervisors WHERE id = $1`, id))
	if querier.IsNoRows(err) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.DB.Exec(ctx, "UPDATE supervisors SET last_login = $1 WHERE id = $2", at, id)
	return err
}

func (s *Store) UpdatePassword(ctx context.Context, id, hash string) error {
	n, err := s.DB.Exec(ctx, "UPDATE supervisors SET password_hash = $1 WHERE id = $2", hash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetMFASecret(ctx context.Context, id string, secretEnc []byte) error {
	_, err := s.DB.Exec(ctx, "UPDATE supervisors SET mfa_secret_enc = $1, mfa_enabled = $2 WHERE id = $3", secretEnc, false, id)
	return err
}

func (s *Store) SetMFAEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := s.DB.Exec(ctx, "UPDATE supervisors SET mfa_enabled = $1 WHERE id = $2", enabled, id)
	return err
}
