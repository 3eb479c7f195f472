// Package auth issues and verifies the JWT access/refresh tokens of hosts
// and clients and hashes their passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind scopes a token to one principal collection.
type Kind string

const (
	KindHost   Kind = "host"
	KindClient Kind = "client"
)

// Use separates short-lived access tokens from refresh tokens.
type Use string

const (
	Access  Use = "access"
	Refresh Use = "refresh"
)

const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	ErrInvalidToken     = errors.New("auth: invalid token")
	ErrMalformedToken   = errors.New("auth: token has no expiry")
	ErrTokenExpired     = errors.New("auth: token expired")
	ErrUnknownPrincipal = errors.New("auth: unknown principal")
	ErrRevoked          = errors.New("auth: token revoked")
)

// Claims is the signed claim set. Subject carries the principal email,
// Audience the principal kind.
type Claims struct {
	Type Use `json:"typ"`
	jwt.RegisteredClaims
}

// Pair is an access token with its matching refresh token.
type Pair struct {
	Access  string
	Refresh string
}

// TokenCodec signs and decodes tokens for a single principal kind.
type TokenCodec struct {
	secret     []byte
	kind       Kind
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type Option func(*TokenCodec)

func WithTTL(access, refresh time.Duration) Option {
	return func(c *TokenCodec) {
		if access > 0 {
			c.accessTTL = access
		}
		if refresh > 0 {
			c.refreshTTL = refresh
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *TokenCodec) { c.now = now }
}

func NewTokenCodec(secret string, kind Kind, opts ...Option) *TokenCodec {
	c := &TokenCodec{
		secret:     []byte(secret),
		kind:       kind,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *TokenCodec) Kind() Kind { return c.kind }

// TTL is the lifetime of tokens issued for use.
func (c *TokenCodec) TTL(use Use) time.Duration {
	if use == Refresh {
		return c.refreshTTL
	}
	return c.accessTTL
}

// Issue signs a new token of the given use for email.
func (c *TokenCodec) Issue(email string, use Use) (string, error) {
	now := c.now()
	claims := Claims{
		Type: use,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Audience:  jwt.ClaimStrings{string(c.kind)},
			ExpiresAt: jwt.NewNumericDate(now.Add(c.TTL(use))),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", use, err)
	}
	return s, nil
}

// IssuePair signs a fresh access and refresh token for email.
func (c *TokenCodec) IssuePair(email string) (Pair, error) {
	a, err := c.Issue(email, Access)
	if err != nil {
		return Pair{}, err
	}
	r, err := c.Issue(email, Refresh)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: a, Refresh: r}, nil
}

// Decode verifies the signature of token and checks that it was issued by
// this codec's kind for use. A token without an expiry yields
// ErrMalformedToken, one past its expiry ErrTokenExpired, and every other
// failure ErrInvalidToken.
func (c *TokenCodec) Decode(token string, use Use) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Type != use || !c.audience(claims) {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil {
		return nil, ErrMalformedToken
	}
	if c.now().After(claims.ExpiresAt.Time) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}

func (c *TokenCodec) audience(claims *Claims) bool {
	for _, a := range claims.Audience {
		if a == string(c.kind) {
			return true
		}
	}
	return false
}
