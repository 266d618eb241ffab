package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/electcore/electcore/internal/identity"
	"github.com/electcore/electcore/internal/platform/httpx"
	"github.com/electcore/electcore/internal/shared"
)

// Claims represents the bearer token claims. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// PrincipalLoader resolves a user id to an active principal.
type PrincipalLoader interface {
	Principal(ctx context.Context, id int64) (identity.Principal, error)
}

// Authenticator validates bearer tokens and loads the principal for each request.
type Authenticator struct {
	secret    []byte
	issuer    string
	directory PrincipalLoader
	logger    *slog.Logger
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(secret, issuer string, directory PrincipalLoader, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, directory: directory, logger: logger}
}

// IssueToken signs a token for userID valid for ttl.
func (a *Authenticator) IssueToken(userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Middleware rejects requests without a valid bearer token and stores the principal in context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.authenticate(r)
		if err != nil {
			if errors.Is(err, shared.ErrStoreFailure) {
				a.logger.Error("load principal", slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.ContextWithPrincipal(r.Context(), principal)))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (identity.Principal, error) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(raw, "Bearer ") {
		return identity.Principal{}, httpx.ErrUnauthorized
	}
	tokenStr := strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))

	var claims Claims
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return identity.Principal{}, httpx.ErrUnauthorized
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return identity.Principal{}, httpx.ErrUnauthorized
	}
	principal, err := a.directory.Principal(r.Context(), userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return identity.Principal{}, httpx.ErrUnauthorized
		}
		return identity.Principal{}, err
	}
	return principal, nil
}
