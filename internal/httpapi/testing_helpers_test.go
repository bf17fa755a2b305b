package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"pharmapos/backend/internal/billing"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/notify"
	"pharmapos/backend/internal/otp"
	"pharmapos/backend/internal/service"
	"pharmapos/backend/internal/store/memory"
)

const (
	testOwnerEmail    = "owner@pharmacy.local"
	testEmployeeEmail = "clerk@pharmacy.local"
	testPassword      = "secret-pass"
)

type capturingMailer struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (m *capturingMailer) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *capturingMailer) last() notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return notify.Message{}
	}
	return m.sent[len(m.sent)-1]
}

type testEnv struct {
	api    *API
	repo   *memory.Store
	mailer *capturingMailer
	codes  *otp.Manager
}

// newTestAPI builds a full API with an in-memory store, a real AuthManager
// and a real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()

	for _, account := range []domain.UserAccount{
		{Email: testOwnerEmail, Name: "Owner", PasswordHash: mustHashPassword(t, testPassword), Role: domain.RoleOwner, Active: true},
		{Email: testEmployeeEmail, Name: "Clerk", PasswordHash: mustHashPassword(t, testPassword), Role: domain.RoleEmployee, Active: true},
		{Email: "gone@pharmacy.local", Name: "Gone", PasswordHash: mustHashPassword(t, testPassword), Role: domain.RoleEmployee, Active: false},
	} {
		if err := repo.CreateUser(ctx, account); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	for _, m := range []domain.Medicine{
		{ID: "med-a", Name: "Paracetamol", Category: "analgesic", Price: decimal.RequireFromString("2.50"), StockQuantity: 10, MinStockLevel: 3, Active: true},
		{ID: "med-b", Name: "ORS Sachet", Category: "rehydration", Price: decimal.RequireFromString("1.00"), StockQuantity: 2, MinStockLevel: 5, Active: true},
	} {
		if err := repo.SaveMedicine(ctx, m); err != nil {
			t.Fatalf("save medicine: %v", err)
		}
	}

	mailer := &capturingMailer{}
	codes := otp.NewManager(otp.NewMemoryStore(), time.Minute)
	svc := service.New(repo, service.Options{
		Bills:    billing.NewAllocator(billing.Config{Digits: 4}, nil),
		Receipts: notify.NewReceiptNotifier(mailer, time.UTC),
		Location: time.UTC,
	})
	auth := NewAuthManager("test-secret-key-with-enough-length!!", time.Hour, repo, codes, mailer)

	return &testEnv{
		api:    New(svc, auth, "*"),
		repo:   repo,
		mailer: mailer,
		codes:  codes,
	}
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func (e *testEnv) token(t *testing.T, email string, role string) string {
	t.Helper()
	token, err := e.api.auth.sign(email, role, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "127.0.0.1:5000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	e.api.Handler().ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(res.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (body: %s)", err, res.Body.String())
	}
}
