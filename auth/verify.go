package auth

import (
	"context"
	"errors"
	"fmt"

	"jimgabang/store"
)

// Finder looks a principal up by a field value; store.Store satisfies it.
type Finder[P any] interface {
	FindOne(ctx context.Context, field string, value any) (*P, error)
}

// Verifier decodes tokens of one kind and resolves their principal.
type Verifier[P any] struct {
	Codec   *TokenCodec
	Revoker Revoker
	Users   Finder[P]
}

func NewVerifier[P any](codec *TokenCodec, revoker Revoker, users Finder[P]) *Verifier[P] {
	return &Verifier[P]{Codec: codec, Revoker: revoker, Users: users}
}

// Verify decodes token, rejects revoked refresh tokens and loads the
// principal named by its subject.
func (v *Verifier[P]) Verify(ctx context.Context, token string, use Use) (*Claims, *P, error) {
	claims, err := v.Codec.Decode(token, use)
	if err != nil {
		return claims, nil, err
	}
	if use == Refresh && v.Revoker != nil {
		revoked, err := v.Revoker.Revoked(ctx, claims.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("revocation lookup: %w", err)
		}
		if revoked {
			return nil, nil, ErrRevoked
		}
	}
	p, err := v.Users.FindOne(ctx, "email", claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrUnknownPrincipal
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", v.Codec.Kind(), err)
	}
	return claims, p, nil
}

// Revoke invalidates a refresh token until its expiry.
func (v *Verifier[P]) Revoke(ctx context.Context, claims *Claims) error {
	if v.Revoker == nil || claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	return v.Revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// IsCredentialError reports whether err is a token or principal failure
// rather than a backend error.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrUnknownPrincipal) ||
		errors.Is(err, ErrRevoked)
}
