package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/notify"
	"pharmapos/backend/internal/otp"
	"pharmapos/backend/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    store.Users
	otp      *otp.Manager
	mailer   notify.Mailer
	now      func() time.Time
}

type pharmacyClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users store.Users, codes *otp.Manager, mailer notify.Mailer) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	if mailer == nil {
		mailer = notify.LogMailer{}
	}

	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		otp:      codes,
		mailer:   mailer,
		now:      time.Now,
	}
}

// Login checks the password and mails a one-time code. The token is only
// issued by VerifyOTP.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	email := normalizeEmail(req.Email)
	account, err := a.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
		return domain.LoginResponse{}, err
	}
	if !verifyPassword(account.PasswordHash, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !account.Active {
		return domain.LoginResponse{}, ErrAccountInactive
	}

	session, err := a.otp.Start(ctx, account.Email)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	msg := notify.Message{
		To:      account.Email,
		Subject: "Your Pharmacy POS login code",
		Body:    fmt.Sprintf("Your one-time login code is %s.\nIt expires at %s.\n", session.Code, session.ExpiresAt.Format(time.RFC3339)),
	}
	if err := a.mailer.Send(ctx, msg); err != nil {
		log.Printf("[auth] WARN: otp delivery to %s failed: %v", account.Email, err)
		return domain.LoginResponse{}, fmt.Errorf("deliver login code: %w", err)
	}

	return domain.LoginResponse{
		OTPSessionID: session.ID,
		ExpiresAt:    session.ExpiresAt.Format(time.RFC3339),
		Message:      "a login code was sent to your email",
	}, nil
}

func (a *AuthManager) VerifyOTP(ctx context.Context, req domain.VerifyOTPRequest) (domain.TokenResponse, error) {
	email, err := a.otp.Verify(ctx, req.OTPSessionID, req.OTP)
	if err != nil {
		return domain.TokenResponse{}, err
	}
	account, err := a.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenResponse{}, ErrInvalidCredentials
		}
		return domain.TokenResponse{}, err
	}
	if !account.Active {
		return domain.TokenResponse{}, ErrAccountInactive
	}

	expiresAt := a.now().UTC().Add(a.tokenTTL)
	token, err := a.sign(account.Email, account.Role, expiresAt)
	if err != nil {
		return domain.TokenResponse{}, err
	}

	return domain.TokenResponse{
		AccessToken: token,
		Role:        account.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
		User:        account.Public(),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &pharmacyClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return domain.Actor{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Email: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(email, role string, expiresAt time.Time) (string, error) {
	claims := pharmacyClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwtlib.NewNumericDate(a.now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "pharmapos",
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Register creates an account. Callers must already be authorized as owner.
func (a *AuthManager) Register(ctx context.Context, req domain.RegisterRequest) (domain.User, error) {
	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, fmt.Errorf("%w: a valid email is required", store.ErrInvalidRequest)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.User{}, fmt.Errorf("%w: name is required", store.ErrInvalidRequest)
	}
	if len(req.Password) < 8 {
		return domain.User{}, fmt.Errorf("%w: password must be at least 8 characters", store.ErrInvalidRequest)
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" {
		role = domain.RoleEmployee
	}
	if role != domain.RoleEmployee && role != domain.RoleOwner {
		return domain.User{}, fmt.Errorf("%w: role must be owner or employee", store.ErrInvalidRequest)
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to hash password")
	}
	account := domain.UserAccount{
		Email:        email,
		Name:         name,
		Phone:        strings.TrimSpace(req.Phone),
		Address:      strings.TrimSpace(req.Address),
		PasswordHash: passwordHash,
		Role:         role,
		Active:       true,
		CreatedAt:    a.now().UTC(),
	}
	if err := a.users.CreateUser(ctx, account); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.User{}, fmt.Errorf("%w: email already registered", store.ErrConflict)
		}
		return domain.User{}, err
	}
	return account.Public(), nil
}

func (a *AuthManager) ListUsers(ctx context.Context) ([]domain.User, error) {
	accounts, err := a.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]domain.User, 0, len(accounts))
	for _, account := range accounts {
		result = append(result, account.Public())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Email < result[j].Email
	})
	return result, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
