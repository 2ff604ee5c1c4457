// Package creds persists the session of the signed-in account.
package creds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/TheMichaelB/streamfs/internal/events"
)

// ErrNoSession is returned when no usable session is stored.
var ErrNoSession = errors.New("no session")

// Session is a login plus the bearer token issued for it.
type Session struct {
	Login     string    `json:"login"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// IsExpired reports whether the token has expired. A zero expiry never
// expires.
func (s *Session) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// Validate checks the required fields.
func (s *Session) Validate() error {
	if strings.TrimSpace(s.Login) == "" {
		return errors.New("session login is required")
	}
	if strings.Contains(s.Login, "/") {
		return fmt.Errorf("invalid login %q", s.Login)
	}
	return nil
}

// ParseSession parses a JSON session.
func ParseSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Store keeps the session in a JSON file readable only by the owner.
type Store struct {
	path   string
	logger *events.Logger
}

// NewStore creates a store at path. A leading ~/ is expanded.
func NewStore(path string, logger *events.Logger) *Store {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return &Store{
		path:   path,
		logger: logger.WithField("component", "session_store"),
	}
}

// Path returns the session file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored session, or ErrNoSession when there is none or it
// has expired.
func (s *Store) Load() (*Session, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	session, err := ParseSession(data)
	if err != nil {
		return nil, err
	}
	if session.IsExpired() {
		s.logger.WithField("login", session.Login).Debug("Stored session expired")
		return nil, ErrNoSession
	}
	return session, nil
}

// Save writes session with restricted permissions.
func (s *Store) Save(session *Session) error {
	if err := session.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace session file: %w", err)
	}

	s.logger.WithField("login", session.Login).Debug("Saved session")
	return nil
}

// Clear removes the stored session. A missing file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// LoadFromFile reads a session from an arbitrary JSON file.
func LoadFromFile(path string) (*Session, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSession(b)
}

// LoadFromSecret loads a session from Secrets Manager by name or ARN.
func LoadFromSecret(ctx context.Context, secretID string) (*Session, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	return loadFromSecret(ctx, secretsmanager.NewFromConfig(cfg), secretID)
}

// SecretGetter is the part of the Secrets Manager client used here.
type SecretGetter interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

func loadFromSecret(ctx context.Context, sm SecretGetter, secretID string) (*Session, error) {
	out, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &secretID})
	if err != nil {
		return nil, fmt.Errorf("get secret value: %w", err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret has no string payload")
	}
	return ParseSession([]byte(*out.SecretString))
}
