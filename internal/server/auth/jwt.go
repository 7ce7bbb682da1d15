package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/domainx/internal/common"
	"github.com/dmitrijs2005/domainx/internal/timex"
)

// Claims carries the registered claims plus the account id and kind.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"userId"`
	UserType string `json:"userType"`
}

// Identity is what a verified token asserts.
type Identity struct {
	Subject   string
	Kind      string
	ExpiresAt time.Time
}

// TokenIssuer signs and verifies HS256 session tokens. Tokens are stateless
// and cannot be revoked before they expire.
type TokenIssuer struct {
	secret []byte
	now    timex.Clock
}

func NewTokenIssuer(secret []byte, now timex.Clock) *TokenIssuer {
	if now == nil {
		now = timex.UTCNow
	}
	return &TokenIssuer{secret: secret, now: now}
}

func (i *TokenIssuer) Issue(subject, kind string, ttl time.Duration) (string, error) {
	if len(i.secret) == 0 {
		return "", errors.New("signing secret is not configured")
	}

	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   subject,
		UserType: kind,
	})

	return token.SignedString(i.secret)
}

// Verify checks signature, algorithm and expiry. Every failure is reported
// as common.ErrInvalidToken.
func (i *TokenIssuer) Verify(tokenString string) (Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return Identity{}, common.ErrInvalidToken
	}

	if claims.UserID == "" || claims.UserType == "" {
		return Identity{}, common.ErrInvalidToken
	}

	return Identity{
		Subject:   claims.UserID,
		Kind:      claims.UserType,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
