package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/roby-guard/internal/domain"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// User — оператор API из конфигурации.
type User struct {
	PasswordHash string
	Scopes       []string
}

// Issuer выдает RS256 токены операторам read API.
type Issuer struct {
	privateKey *rsa.PrivateKey
	issuer     string
	ttl        time.Duration
	users      map[string]User
	now        func() time.Time
}

func NewIssuer(privateKey *rsa.PrivateKey, issuer string, ttl time.Duration, users map[string]User) *Issuer {
	return &Issuer{privateKey: privateKey, issuer: issuer, ttl: ttl, users: users, now: time.Now}
}

// Login проверяет пароль оператора (bcrypt) и выдает токен с его scopes.
func (s *Issuer) Login(username, password string) (*domain.TokenResponse, error) {
	user, ok := s.users[username]
	if !ok {
		// сравнение все равно выполняем, чтобы время ответа не выдавало имя
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z8W1TSE6V8F9qoHQpM3Cq2vu"), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.Issue(username, user.Scopes)
}

// Issue подписывает токен ЗАКРЫТЫМ КЛЮЧОМ (RS256) без проверки пароля.
func (s *Issuer) Issue(subject string, scopes []string) (*domain.TokenResponse, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	set := make(map[string]bool, len(scopes))
	for _, sc := range scopes {
		set[sc] = true
	}
	claims := &domain.CustomClaims{
		UserID: subject,
		Scopes: set,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.ttl.Seconds()),
	}, nil
}

// HashPassword: bcrypt хэш для секции auth.users конфигурации.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
