package auth

import (
	"context"
	"time"
)

type StoreAPI interface {
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, hash string) error
	SetMFASecret(ctx context.Context, id string, secretEnc []byte) error
	SetMFAEnabled(ctx context.Context, id string, enabled bool) error
}

type SecretBox interface {
	Configured() bool
	EncryptString(value string) ([]byte, error)
	DecryptString(value []byte) (string, error)
}
