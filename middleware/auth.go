package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"jimgabang/apperr"
	"jimgabang/auth"
)

const (
	// RefreshHeader carries a refresh token used when the access token
	// has expired.
	RefreshHeader = "X-Refresh-Token"
	// AccessHeader returns the access token issued from RefreshHeader.
	AccessHeader = "X-Access-Token"
	// AdminHeader carries the operator token.
	AdminHeader = "X-Admin-Token"
)

type principalKey[P any] struct{}

// WithPrincipal stores the authenticated principal in ctx.
func WithPrincipal[P any](ctx context.Context, p *P) context.Context {
	return context.WithValue(ctx, principalKey[P]{}, p)
}

// Principal returns the principal stored by an Authenticator of the same type.
func Principal[P any](r *http.Request) (*P, bool) {
	p, ok := r.Context().Value(principalKey[P]{}).(*P)
	return p, ok && p != nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 8 || !strings.EqualFold(h[:7], "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	return tok, tok != ""
}

// Authenticator guards routes for one principal kind.
type Authenticator[P any] struct {
	verifier *auth.Verifier[P]
	log      *zap.Logger
}

func NewAuthenticator[P any](v *auth.Verifier[P], log *zap.Logger) *Authenticator[P] {
	return &Authenticator[P]{verifier: v, log: log}
}

// Require rejects requests without a valid access token for this kind and
// passes the resolved principal to next through the request context.
func (a *Authenticator[P]) Require(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		p, err := a.Authenticate(w, r)
		if err != nil {
			apperr.Respond(a.log, w, r, err)
			return
		}
		next(w, r.WithContext(WithPrincipal(r.Context(), p)), ps)
	}
}

// Authenticate resolves the request's principal. An expired access token is
// accepted together with a valid refresh token for the same subject; the
// replacement access token is returned in AccessHeader.
func (a *Authenticator[P]) Authenticate(w http.ResponseWriter, r *http.Request) (*P, error) {
	token, ok := BearerToken(r)
	if !ok {
		return nil, apperr.NewUnauthenticated("missing bearer token")
	}

	ctx := r.Context()
	claims, p, err := a.verifier.Verify(ctx, token, auth.Access)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, auth.ErrTokenExpired) {
		return nil, credentialError(err)
	}

	refresh := r.Header.Get(RefreshHeader)
	if refresh == "" {
		return nil, apperr.Wrap(apperr.Unauthenticated, "access token expired", err)
	}
	rc, p, err := a.verifier.Verify(ctx, refresh, auth.Refresh)
	if err != nil {
		return nil, credentialError(err)
	}
	if rc.Subject != claims.Subject {
		return nil, apperr.NewUnauthenticated("refresh token does not match access token")
	}

	fresh, err := a.verifier.Codec.Issue(rc.Subject, auth.Access)
	if err != nil {
		return nil, err
	}
	w.Header().Set(AccessHeader, fresh)
	a.log.Debug("access token reissued",
		zap.String("kind", string(a.verifier.Codec.Kind())),
		zap.String("subject", rc.Subject),
	)
	return p, nil
}

func credentialError(err error) error {
	if auth.IsCredentialError(err) {
		return apperr.Wrap(apperr.Unauthenticated, "could not validate credentials", err)
	}
	return err
}

// AdminOnly admits requests whose AdminHeader equals token.
func AdminOnly(token string, log *zap.Logger, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		got := r.Header.Get(AdminHeader)
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			apperr.Respond(log, w, r, apperr.NewUnauthenticated("operator token required"))
			return
		}
		next(w, r, ps)
	}
}
