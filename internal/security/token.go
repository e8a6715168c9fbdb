package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"

	"chatspace/internal/domain"
)

// CredentialTTL is the fixed lifetime of an issued credential. There is no
// revocation list; expiry is the only way a credential stops being valid.
const CredentialTTL = 24 * time.Hour

// ErrCredentialExpired is returned by Parse for a well-formed but expired token.
var ErrCredentialExpired = errors.New("credential expired")

// Claims are the identity facts carried inside a credential.
type Claims struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	Color    string `json:"color"`
	jwt.RegisteredClaims
}

// IsAdmin applies the admin policy to the claimed username.
func (c *Claims) IsAdmin() bool {
	return domain.IsAdmin(c.Username)
}

// TokenService wraps JWT creation and validation.
type TokenService struct {
	secret    []byte
	expiresIn time.Duration
	clock     clock.Clock
}

func NewTokenService(secret string, expiresIn time.Duration) *TokenService {
	return &TokenService{
		secret:    []byte(secret),
		expiresIn: expiresIn,
		clock:     clock.New(),
	}
}

// WithClock replaces the time source, for tests.
func (t *TokenService) WithClock(c clock.Clock) *TokenService {
	t.clock = c
	return t
}

// CreateForUser signs a credential for u using the default TTL.
func (t *TokenService) CreateForUser(u *domain.User) (string, error) {
	now := t.clock.Now()
	claims := Claims{
		UserID:   u.ID,
		Username: u.Username,
		Color:    u.Color,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiresIn)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse validates a token and returns its claims. Every failure wraps
// domain.ErrUnauthorized; expiry additionally wraps ErrCredentialExpired.
func (t *TokenService) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", domain.ErrUnauthorized, ErrCredentialExpired)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	if !token.Valid || claims.UserID == 0 || claims.Username == "" {
		return nil, fmt.Errorf("%w: malformed claims", domain.ErrUnauthorized)
	}
	return claims, nil
}
