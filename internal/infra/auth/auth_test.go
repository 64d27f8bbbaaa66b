package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/roby-guard/internal/domain"
)

func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	// ключи проходят через PEM, как в проде
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	parsedPriv, err := ParseRSAPrivateKey(privPEM)
	require.NoError(t, err)
	parsedPub, err := ParseRSAPublicKey(pubPEM)
	require.NoError(t, err)
	return parsedPriv, parsedPub
}

func TestIssuer_LoginAndVerify(t *testing.T) {
	priv, pub := testKeys(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	iss := NewIssuer(priv, "robyd", time.Hour, map[string]User{
		"ops": {PasswordHash: string(hash), Scopes: []string{domain.ScopeRead}},
	})

	_, err = iss.Login("ops", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = iss.Login("nobody", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	tok, err := iss.Login("ops", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, int64(3600), tok.ExpiresIn)

	claims, err := NewBaseValidator(pub, "robyd").VerifyToken("Bearer " + tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.UserID)
	assert.True(t, claims.HasScope(domain.ScopeRead))
	assert.False(t, claims.HasScope(domain.ScopeAllocate))

	_, err = NewBaseValidator(pub, "someone-else").VerifyToken(tok.AccessToken)
	assert.Error(t, err)
}

func TestValidator_RejectsExpiredAndForeignKeys(t *testing.T) {
	priv, pub := testKeys(t)
	iss := NewIssuer(priv, "robyd", time.Minute, nil)
	iss.now = func() time.Time { return time.Now().Add(-time.Hour) }

	tok, err := iss.Issue("ops", nil)
	require.NoError(t, err)
	_, err = NewBaseValidator(pub, "").VerifyToken(tok.AccessToken)
	assert.Error(t, err)

	other, _ := testKeys(t)
	fresh, err := NewIssuer(other, "robyd", time.Minute, nil).Issue("ops", nil)
	require.NoError(t, err)
	_, err = NewBaseValidator(pub, "").VerifyToken(fresh.AccessToken)
	assert.Error(t, err)
}

func TestMiddleware_Scopes(t *testing.T) {
	priv, pub := testKeys(t)
	iss := NewIssuer(priv, "robyd", time.Hour, nil)
	reader, _ := iss.Issue("reader", []string{domain.ScopeRead})

	h := NewMiddleware(NewBaseValidator(pub, "robyd"), zap.NewNop())(
		RequireScope(domain.ScopeAllocate)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})),
	)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"missing scope", "Bearer " + reader.AccessToken, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}

	admin, _ := iss.Issue("admin", []string{domain.ScopeAllocate})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+admin.AccessToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("pw")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("pw")))
}
