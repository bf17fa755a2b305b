package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"pharmapos/backend/internal/xid"
)

const (
	DefaultTTL = 5 * time.Minute
	codeDigits = 6
)

var (
	ErrSessionNotFound = errors.New("otp session not found or expired")
	ErrInvalidCode     = errors.New("invalid otp code")
)

// Session is a pending one-time-password challenge for an email address.
type Session struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store keeps sessions until they expire. Load must treat an expired
// session as missing.
type Store interface {
	Save(ctx context.Context, session Session) error
	Load(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
}

type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	code  func() (string, error)
}

func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		code:  randomCode,
	}
}

// Start opens a new challenge for email. The caller delivers the code.
func (m *Manager) Start(ctx context.Context, email string) (Session, error) {
	code, err := m.code()
	if err != nil {
		return Session{}, fmt.Errorf("generate otp: %w", err)
	}
	session := Session{
		ID:        xid.New("otp"),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Code:      code,
		ExpiresAt: m.now().UTC().Add(m.ttl),
	}
	if err := m.store.Save(ctx, session); err != nil {
		return Session{}, fmt.Errorf("save otp session: %w", err)
	}
	return session, nil
}

// Email returns the address a live session was opened for.
func (m *Manager) Email(ctx context.Context, id string) (string, error) {
	session, err := m.store.Load(ctx, strings.TrimSpace(id))
	if err != nil {
		return "", err
	}
	if !m.now().Before(session.ExpiresAt) {
		return "", ErrSessionNotFound
	}
	return session.Email, nil
}

// Verify checks code against the session and consumes it on success. A
// wrong code leaves the session in place until it expires.
func (m *Manager) Verify(ctx context.Context, id string, code string) (string, error) {
	session, err := m.store.Load(ctx, strings.TrimSpace(id))
	if err != nil {
		return "", err
	}
	if !m.now().Before(session.ExpiresAt) {
		_ = m.store.Delete(ctx, session.ID)
		return "", ErrSessionNotFound
	}
	if subtle.ConstantTimeCompare([]byte(session.Code), []byte(strings.TrimSpace(code))) != 1 {
		return "", ErrInvalidCode
	}
	if err := m.store.Delete(ctx, session.ID); err != nil {
		return "", fmt.Errorf("consume otp session: %w", err)
	}
	return session.Email, nil
}

func randomCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
