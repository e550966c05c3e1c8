package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"evalhub/internal/domain/validation"
)

const (
	minPasswordLength = 6
	mfaIssuer         = "evalhub"
)

type Service struct {
	store         StoreAPI
	secrets       SecretBox
	jwtSecret     string
	tokenTTL      time.Duration
	allowedDomain string
}

type Options struct {
	JWTSecret     string
	TokenTTL      time.Duration
	AllowedDomain string
}

func NewService(store StoreAPI, secrets SecretBox, opts Options) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 8 * time.Hour
	}
	return &Service{
		store:         store,
		secrets:       secrets,
		jwtSecret:     opts.JWTSecret,
		tokenTTL:      opts.TokenTTL,
		allowedDomain: strings.ToLower(strings.TrimPrefix(opts.AllowedDomain, "@")),
	}
}

type Session struct {
	Token string      `json:"token"`
	User  UserSummary `json:"user"`
}

type UserSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	MFAEnabled bool   `json:"mfaEnabled"`
}

func summarize(u User) UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, MFAEnabled: u.MFAEnabled}
}

// Login checks credentials, and the TOTP code when MFA is on, and issues a token.
func (s *Service) Login(ctx context.Context, email, password, mfaCode string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if s.allowedDomain != "" && !strings.HasSuffix(email, "@"+s.allowedDomain) {
		return Session{}, ErrInvalidCredentials
	}

	user, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if user.Archived {
		return Session{}, ErrInvalidCredentials
	}
	if err := CheckPassword(user.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	if user.MFAEnabled {
		if strings.TrimSpace(mfaCode) == "" {
			return Session{}, ErrMFARequired
		}
		secret, err := s.mfaSecret(user)
		if err != nil {
			return Session{}, ErrMFAInvalid
		}
		if !totp.Validate(mfaCode, secret) {
			return Session{}, ErrMFAInvalid
		}
	}

	token, err := GenerateToken(s.jwtSecret, Claims{UserID: user.ID, Email: user.Email, Role: user.Role}, s.tokenTTL)
	if err != nil {
		return Session{}, err
	}
	if err := s.store.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		slog.Warn("update last_login failed", "userId", user.ID, "err", err)
	}
	return Session{Token: token, User: summarize(user)}, nil
}

func (s *Service) Me(ctx context.Context, userID string) (UserSummary, error) {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return UserSummary{}, err
	}
	return summarize(user), nil
}

func (s *Service) ChangeOwnPassword(ctx context.Context, userID, current, next string) error {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := CheckPassword(user.PasswordHash, current); err != nil {
		return validation.New("currentPassword", "is incorrect")
	}
	if err := ValidatePassword("newPassword", next); err != nil {
		return err
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, userID, hash)
}

func ValidatePassword(field, password string) error {
	if len([]rune(password)) < minPasswordLength {
		return validation.New(field, "must be at least 6 characters")
	}
	return nil
}

type MFASetup struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
}

// SetupMFA stores a fresh secret; MFA stays off until EnableMFA confirms it.
func (s *Service) SetupMFA(ctx context.Context, userID string) (MFASetup, error) {
	if s.secrets == nil || !s.secrets.Configured() {
		return MFASetup{}, ErrMFAUnavailable
	}
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return MFASetup{}, err
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      mfaIssuer,
		AccountName: user.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return MFASetup{}, err
	}
	encrypted, err := s.secrets.EncryptString(key.Secret())
	if err != nil {
		return MFASetup{}, err
	}
	if err := s.store.SetMFASecret(ctx, userID, encrypted); err != nil {
		return MFASetup{}, err
	}
	return MFASetup{Secret: key.Secret(), OTPAuthURL: key.URL()}, nil
}

func (s *Service) EnableMFA(ctx context.Context, userID, code string) error {
	return s.confirmMFA(ctx, userID, code, true)
}

func (s *Service) DisableMFA(ctx context.Context, userID, code string) error {
	return s.confirmMFA(ctx, userID, code, false)
}

func (s *Service) confirmMFA(ctx context.Context, userID, code string, enabled bool) error {
	if s.secrets == nil || !s.secrets.Configured() {
		return ErrMFAUnavailable
	}
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if len(user.MFASecretEnc) == 0 {
		return ErrMFANotSetUp
	}
	secret, err := s.mfaSecret(user)
	if err != nil {
		return ErrMFAInvalid
	}
	if !totp.Validate(code, secret) {
		return ErrMFAInvalid
	}
	return s.store.SetMFAEnabled(ctx, userID, enabled)
}

func (s *Service) mfaSecret(user User) (string, error) {
	if len(user.MFASecretEnc) == 0 {
		return "", ErrMFANotSetUp
	}
	if s.secrets == nil {
		return "", ErrMFAUnavailable
	}
	return s.secrets.DecryptString(user.MFASecretEnc)
}
