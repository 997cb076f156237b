// Package session holds the operator's saved credential.
//
// Flows never read the credential from ambient state. They receive a Provider
// and ask it for the password at submission time.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/pnmtrack/internal/gateway"
)

// PasswordKey is the storage slot holding the saved password.
const PasswordKey = "password"

// ErrInvalidPassword is returned by Login when the remote store rejects the password.
var ErrInvalidPassword = errors.New("invalid password")

// Provider supplies the session credential. ok is false when no credential is
// available and the operator must log in.
type Provider interface {
	Password(ctx context.Context) (password string, ok bool)
}

// Storage is the persistent namespace the session is saved in.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Session is a Provider backed by persistent storage.
type Session struct {
	storage Storage
	logger  *slog.Logger
}

// New creates a Session over storage.
func New(storage Storage, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{storage: storage, logger: logger}
}

// Password returns the saved password. Storage failures read as logged out.
func (s *Session) Password(ctx context.Context) (string, bool) {
	if s == nil || s.storage == nil {
		return "", false
	}
	pw, ok, err := s.storage.Get(ctx, PasswordKey)
	if err != nil {
		s.logger.Warn("session unreadable", "error", err)
		return "", false
	}
	if !ok || pw == "" {
		return "", false
	}
	return pw, true
}

// Save stores password as the session credential.
func (s *Session) Save(ctx context.Context, password string) error {
	if err := s.storage.Set(ctx, PasswordKey, password); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear removes the saved credential.
func (s *Session) Clear(ctx context.Context) error {
	if err := s.storage.Delete(ctx, PasswordKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.logger.Info("session cleared")
	return nil
}

// Login verifies password with the remote store and saves it on success.
// A rejected password returns an error wrapping ErrInvalidPassword with the
// remote message.
func (s *Session) Login(ctx context.Context, gw gateway.Submitter, password string) error {
	res, err := gw.Submit(ctx, gateway.ActionCheckPassword, map[string]any{"password": password})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if !res.OK {
		return fmt.Errorf("login: %s: %w", res.Message("Invalid password"), ErrInvalidPassword)
	}
	if err := s.Save(ctx, password); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	s.logger.Info("session saved")
	return nil
}

// Static is a Provider with a fixed password. An empty Static is logged out.
type Static string

// Password returns the fixed password.
func (p Static) Password(context.Context) (string, bool) {
	return string(p), p != ""
}
