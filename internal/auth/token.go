// Package auth issues and verifies the signed bearer tokens that carry a
// caller's identity and role claims, and hashes user passwords.
package auth

import (
	"fmt"
	"strings"
	"time"

	"marketplace-backoffice/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are embedded in every access token. Roles is the list of role ids
// held by the user when the token was issued.
type Claims struct {
	UserID int64   `json:"user_id"`
	Roles  []int64 `json:"roles"`
	jwt.RegisteredClaims
}

// Caller is the identity extracted from a verified token
type Caller struct {
	ID      int64
	RoleIDs []int64
}

// TokenService signs and verifies HS256 tokens with a shared secret
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the user and its role ids
func (s *TokenService) Issue(userID int64, roleIDs []int64) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.ttl)

	claims := Claims{
		UserID: userID,
		Roles:  roleIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and expiry of a raw token and returns the
// caller it identifies. Every failure is Unauthenticated.
func (s *TokenService) Verify(raw string) (*Caller, error) {
	if raw == "" {
		return nil, apperr.Unauthenticated("missing token")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, &apperr.Error{Kind: apperr.KindUnauthenticated, Message: "invalid token", Err: err}
	}
	if claims.UserID <= 0 {
		return nil, apperr.Unauthenticated("token has no user")
	}

	roles := claims.Roles
	if roles == nil {
		roles = []int64{}
	}
	return &Caller{ID: claims.UserID, RoleIDs: roles}, nil
}

// Authenticate extracts the token from an Authorization header value. Both
// "Bearer <token>" and a bare token are accepted.
func (s *TokenService) Authenticate(header string) (*Caller, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, apperr.Unauthenticated("missing authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 {
		if !strings.EqualFold(parts[0], "bearer") {
			return nil, apperr.Unauthenticated("invalid authorization header")
		}
		return s.Verify(strings.TrimSpace(parts[1]))
	}
	return s.Verify(header)
}
