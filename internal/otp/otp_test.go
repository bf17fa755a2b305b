package otp

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestManager(c *clock) *Manager {
	store := NewMemoryStore()
	store.now = c.now
	m := NewManager(store, time.Minute)
	m.now = c.now
	m.code = func() (string, error) { return "123456", nil }
	return m
}

func TestVerifyConsumesSession(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
	m := newTestManager(c)
	ctx := context.Background()

	session, err := m.Start(ctx, " Owner@Pharmacy.Local ")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !session.ExpiresAt.Equal(c.t.Add(time.Minute)) {
		t.Fatalf("unexpected expiry %v", session.ExpiresAt)
	}

	if email, err := m.Email(ctx, session.ID); err != nil || email != "owner@pharmacy.local" {
		t.Fatalf("expected live session email, got %q err=%v", email, err)
	}
	if _, err := m.Verify(ctx, session.ID, "000000"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected invalid code, got %v", err)
	}
	email, err := m.Verify(ctx, session.ID, "123456")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if email != "owner@pharmacy.local" {
		t.Fatalf("expected normalized email, got %s", email)
	}
	if _, err := m.Verify(ctx, session.ID, "123456"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session to be consumed, got %v", err)
	}
}

func TestVerifyRejectsExpiredSession(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
	m := newTestManager(c)
	ctx := context.Background()

	session, err := m.Start(ctx, "a@b.test")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	c.t = c.t.Add(time.Minute)
	if _, err := m.Email(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session to be absent, got %v", err)
	}
	if _, err := m.Verify(ctx, session.ID, "123456"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}

func TestRandomCodeShape(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := randomCode()
		if err != nil {
			t.Fatalf("random code: %v", err)
		}
		if len(code) != codeDigits {
			t.Fatalf("expected %d digits, got %q", codeDigits, code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("expected digits only, got %q", code)
			}
		}
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("PHARMAPOS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set PHARMAPOS_TEST_REDIS_ADDR to run redis integration tests")
	}
	store := NewRedisStore(addr, "", 0)
	defer store.Close()
	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping redis: %v", err)
	}

	m := NewManager(store, time.Minute)
	session, err := m.Start(ctx, "redis@pharmacy.local")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	email, err := m.Verify(ctx, session.ID, session.Code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if email != "redis@pharmacy.local" {
		t.Fatalf("unexpected email %s", email)
	}
	if _, err := store.Load(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected consumed session, got %v", err)
	}
}
