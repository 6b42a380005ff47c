package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"uptimewatch/internal/log"
	"uptimewatch/internal/models"
	"uptimewatch/internal/storage"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// minPasswordLength applies to bootstrapped admin passwords.
const minPasswordLength = 8

// dummyHash keeps the cost of a lookup miss close to a wrong password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("uptimewatch-dummy-password"), bcrypt.MinCost)

// NormalizeUsername lowercases and trims a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Authenticator verifies credentials against stored admins.
type Authenticator struct {
	admins   storage.AdminStore
	sessions *Sessions
}

func NewAuthenticator(admins storage.AdminStore, sessions *Sessions) *Authenticator {
	return &Authenticator{admins: admins, sessions: sessions}
}

// Sessions returns the token issuer.
func (a *Authenticator) Sessions() *Sessions { return a.sessions }

// Login checks credentials and returns a signed session token.
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	username = NormalizeUsername(username)
	if username == "" || password == "" {
		return "", time.Time{}, ErrInvalidCredentials
	}

	admin, err := a.admins.GetAdminByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("load admin: %w", err)
	}
	if !CheckPassword(admin.PasswordHash, password) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return a.sessions.Issue(admin.Username)
}

// EnsureAdmin creates the admin account if it does not exist yet.
// Existing accounts are left untouched.
func (a *Authenticator) EnsureAdmin(ctx context.Context, username, password string) error {
	username = NormalizeUsername(username)
	if username == "" || password == "" {
		return nil
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("admin password must be at least %d characters", minPasswordLength)
	}

	_, err := a.admins.GetAdminByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load admin: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	admin := &models.AdminUser{Username: username, PasswordHash: hash, CreatedAt: time.Now().UTC()}
	if err := a.admins.CreateAdmin(ctx, admin); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil
		}
		return fmt.Errorf("create admin: %w", err)
	}
	log.Info().Str("username", username).Msg("Created admin account")
	return nil
}
