// Package auth provides email/password accounts and session tokens.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/cyberlover-ai/cyberlover/internal/domain"
	"github.com/cyberlover-ai/cyberlover/internal/ledger"
	"github.com/cyberlover-ai/cyberlover/internal/store"
)

// Auth error taxonomy. Each maps to a readable, retryable message for the
// sign-in/sign-up forms.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailInUse         = errors.New("an account with this email already exists")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrInvalidEmail       = errors.New("invalid email address")
)

const minPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Service implements account creation and sign-in against the document store.
type Service struct {
	store     store.DocumentStore
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewService creates an auth service.
func NewService(st store.DocumentStore, jwtSecret string, tokenTTL time.Duration) *Service {
	return &Service{
		store:     st,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}
}

// SignUp creates a new account with the starter credit balance and returns
// the user record plus a session token.
func (s *Service) SignUp(ctx context.Context, email, password string) (*domain.UserRecord, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return nil, "", ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, "", ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	userID, err := generateUserID()
	if err != nil {
		return nil, "", err
	}

	rec := &domain.UserRecord{
		UserID:       userID,
		Email:        email,
		PasswordHash: string(hash),
		Credits:      ledger.StarterCredits,
	}
	if err := s.store.CreateUser(ctx, rec); err != nil {
		if errors.Is(err, store.ErrEmailInUse) {
			return nil, "", ErrEmailInUse
		}
		return nil, "", fmt.Errorf("create account: %w", err)
	}

	token, err := s.issueToken(userID)
	if err != nil {
		return nil, "", err
	}
	return rec, token, nil
}

// SignIn verifies credentials and returns the user record plus a session
// token. Unknown emails and wrong passwords are indistinguishable.
func (s *Service) SignIn(ctx context.Context, email, password string) (*domain.UserRecord, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	rec, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("look up account: %w", err)
	}
	if rec == nil {
		return nil, "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.issueToken(rec.UserID)
	if err != nil {
		return nil, "", err
	}
	return rec, token, nil
}

func (s *Service) issueToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a session token and returns the user ID it names.
func (s *Service) ParseToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse session token: %w", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("session token has no subject")
	}
	return claims.Subject, nil
}

// TokenTTL returns the configured session lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}

func generateUserID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate user id: %w", err)
	}
	return "u_" + hex.EncodeToString(buf), nil
}
