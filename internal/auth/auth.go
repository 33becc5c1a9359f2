// Package auth protects the HTTP API with HS256 bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const SubjectContextKey ContextKey = "subject"

const cookieName = "auth_token"

type Claims struct {
	jwt.RegisteredClaims
}

type Config struct {
	Enabled   bool
	JwtSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// Authenticator mints and checks API tokens. A nil or disabled
// Authenticator lets every request through.
type Authenticator struct {
	enabled bool
	secret  []byte
	issuer  string
	ttl     time.Duration
	now     func() time.Time
}

func New(cfg Config) (*Authenticator, error) {
	if cfg.Enabled && cfg.JwtSecret == "" {
		return nil, errors.New("auth enabled but no jwt secret configured")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{
		enabled: cfg.Enabled,
		secret:  []byte(cfg.JwtSecret),
		issuer:  cfg.Issuer,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// Enabled reports whether requests need a token.
func (a *Authenticator) Enabled() bool {
	return a != nil && a.enabled
}

// GenerateToken creates a signed token for subject
func (a *Authenticator) GenerateToken(subject string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("no jwt secret configured")
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token subject is required")
	}
	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken validates a token and returns its subject
func (a *Authenticator) ValidateToken(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.Subject != "" {
		return claims.Subject, nil
	}
	return "", fmt.Errorf("invalid token")
}

// Middleware rejects requests without a valid token when auth is enabled
// and passes everything through otherwise.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		var tokenString string
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			tokenString = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		} else if cookie, err := r.Cookie(cookieName); err == nil {
			tokenString = cookie.Value
		}

		if tokenString == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="docsearch"`)
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		subject, err := a.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), SubjectContextKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SubjectFromContext returns the token subject of an authenticated request.
func SubjectFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(SubjectContextKey).(string); ok {
		return s
	}
	return ""
}
