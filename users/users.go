// Package users serves the account routes shared by hosts and clients:
// signup, signin, token refresh, signout and self-service profile access.
package users

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"jimgabang/apperr"
	"jimgabang/auth"
	"jimgabang/middleware"
	"jimgabang/models"
	"jimgabang/store"
	"jimgabang/utils"
	"jimgabang/validate"
)

const tokenType = "Bearer "

type account[P any] interface {
	*P
	models.Account
}

// Handler serves the account routes of one principal kind. P is the stored
// document, U its update payload.
type Handler[P any, U models.AccountUpdate, PP account[P]] struct {
	kind     auth.Kind
	store    store.Store[P]
	verifier *auth.Verifier[P]
	log      *zap.Logger
	now      func() time.Time
}

func New[P any, U models.AccountUpdate, PP account[P]](s store.Store[P], v *auth.Verifier[P], log *zap.Logger) *Handler[P, U, PP] {
	return &Handler[P, U, PP]{
		kind:     v.Codec.Kind(),
		store:    s,
		verifier: v,
		log:      log.With(zap.String("kind", string(v.Codec.Kind()))),
		now:      time.Now,
	}
}

func (h *Handler[P, U, PP]) fail(w http.ResponseWriter, r *http.Request, err error) {
	apperr.Respond(h.log, w, r, err)
}

// Signup registers a new account. The email must not be taken.
func (h *Handler[P, U, PP]) Signup(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var p P
	if err := validate.Decode(r, &p); err != nil {
		h.fail(w, r, err)
		return
	}
	acct := PP(&p)
	email := models.NormalizeEmail(acct.PrincipalEmail())

	_, err := h.store.FindOne(r.Context(), "email", email)
	switch {
	case err == nil:
		h.fail(w, r, apperr.NewConflict("email already exists"))
		return
	case !errors.Is(err, store.ErrNotFound):
		h.fail(w, r, err)
		return
	}

	digest, err := auth.HashPassword(acct.PasswordDigest())
	if err != nil {
		h.fail(w, r, fmt.Errorf("hash password: %w", err))
		return
	}
	acct.Register(digest, h.now())

	if err := h.store.Save(r.Context(), &p); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			err = apperr.NewConflict("email already exists")
		}
		h.fail(w, r, err)
		return
	}

	h.log.Info("account created", zap.String("email", email))
	acct.Redact()
	utils.SendMessage(w, http.StatusOK, fmt.Sprintf("%s created successfully", h.kind), utils.M{string(h.kind): &p})
}

// Signin exchanges form credentials (username, password) for a token pair.
func (h *Handler[P, U, PP]) Signin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	username, password, err := credentials(r, "password")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.store.FindOne(r.Context(), "email", username)
	if errors.Is(err, store.ErrNotFound) {
		h.fail(w, r, apperr.NewNotFound("email not found"))
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !auth.CheckPassword(password, PP(p).PasswordDigest()) {
		h.fail(w, r, apperr.NewUnauthenticated("incorrect password"))
		return
	}

	h.respondTokens(w, r, username)
}

// RefreshToken exchanges a refresh token, posted as the password form
// field, for a new pair. The presented token is revoked.
func (h *Handler[P, U, PP]) RefreshToken(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	username, refresh, err := credentials(r, "password")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	claims, _, err := h.verifier.Verify(r.Context(), refresh, auth.Refresh)
	if err != nil {
		h.fail(w, r, credentialError(err))
		return
	}
	if claims.Subject != username {
		h.fail(w, r, apperr.NewUnauthenticated("refresh token does not belong to user"))
		return
	}
	if err := h.verifier.Revoke(r.Context(), claims); err != nil {
		h.fail(w, r, revokeError(err))
		return
	}

	h.respondTokens(w, r, claims.Subject)
}

// Signout revokes the refresh_token form field of the signed-in account.
func (h *Handler[P, U, PP]) Signout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	me, ok := middleware.Principal[P](r)
	if !ok {
		h.fail(w, r, apperr.NewUnauthenticated("not signed in"))
		return
	}
	refresh := r.PostFormValue("refresh_token")
	if refresh == "" {
		h.fail(w, r, apperr.NewValidation("refresh_token is required", map[string]string{"refresh_token": "is required"}))
		return
	}

	claims, _, err := h.verifier.Verify(r.Context(), refresh, auth.Refresh)
	if err != nil {
		h.fail(w, r, credentialError(err))
		return
	}
	if claims.Subject != PP(me).PrincipalEmail() {
		h.fail(w, r, apperr.NewUnauthenticated("refresh token does not belong to user"))
		return
	}
	if err := h.verifier.Revoke(r.Context(), claims); err != nil {
		h.fail(w, r, revokeError(err))
		return
	}
	utils.SendMessage(w, http.StatusOK, "signed out", nil)
}

// Me returns the signed-in account.
func (h *Handler[P, U, PP]) Me(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	me, ok := middleware.Principal[P](r)
	if !ok {
		h.fail(w, r, apperr.NewUnauthenticated("not signed in"))
		return
	}
	acct := PP(me)
	acct.Redact()
	utils.RespondWithJSON(w, http.StatusOK, me)
}

// Update changes the password and/or display name of the signed-in account.
func (h *Handler[P, U, PP]) Update(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	me, ok := middleware.Principal[P](r)
	if !ok {
		h.fail(w, r, apperr.NewUnauthenticated("not signed in"))
		return
	}
	var u U
	if err := validate.Decode(r, &u); err != nil {
		h.fail(w, r, err)
		return
	}

	password, nameField, name := u.Changes()
	nulls := map[string]string{}
	if password.Cleared() {
		nulls["password"] = "cannot be null"
	}
	if name.Cleared() {
		nulls[nameField] = "cannot be null"
	}
	if len(nulls) > 0 {
		h.fail(w, r, apperr.NewValidation("request body failed validation", nulls))
		return
	}

	patch := store.NewPatch()
	if password.IsSet() {
		digest, err := auth.HashPassword(password.Value)
		if err != nil {
			h.fail(w, r, fmt.Errorf("hash password: %w", err))
			return
		}
		patch.Set("password", digest)
	}
	if name.IsSet() {
		patch.Set(nameField, name.Value)
	}

	updated := me
	if !patch.Empty() {
		var err error
		updated, err = h.store.Update(r.Context(), PP(me).AccountID(), patch)
		if errors.Is(err, store.ErrNotFound) {
			h.fail(w, r, apperr.NewNotFound(fmt.Sprintf("%s not found", h.kind)))
			return
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}
	}
	PP(updated).Redact()
	utils.RespondWithJSON(w, http.StatusOK, updated)
}

// Delete removes the signed-in account.
func (h *Handler[P, U, PP]) Delete(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	me, ok := middleware.Principal[P](r)
	if !ok {
		h.fail(w, r, apperr.NewUnauthenticated("not signed in"))
		return
	}
	deleted, err := h.store.Delete(r.Context(), PP(me).AccountID())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !deleted {
		h.fail(w, r, apperr.NewNotFound(fmt.Sprintf("%s not found", h.kind)))
		return
	}
	h.log.Info("account deleted", zap.String("email", PP(me).PrincipalEmail()))
	utils.SendMessage(w, http.StatusOK, fmt.Sprintf("%s deleted successfully", h.kind), nil)
}

// GetAll lists every account. Operator only.
func (h *Handler[P, U, PP]) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	all, err := h.store.GetAll(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for i := range all {
		PP(&all[i]).Redact()
	}
	utils.RespondWithJSON(w, http.StatusOK, all)
}

// DeleteAll removes every account. Operator only.
func (h *Handler[P, U, PP]) DeleteAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	n, err := h.store.DeleteAll(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Warn("all accounts deleted", zap.Int64("count", n))
	utils.SendMessage(w, http.StatusOK, fmt.Sprintf("all %ss deleted", h.kind), utils.M{"deleted": n})
}

func (h *Handler[P, U, PP]) respondTokens(w http.ResponseWriter, r *http.Request, email string) {
	pair, err := h.verifier.Codec.IssuePair(email)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, models.TokenResponse{
		AccessToken:  pair.Access,
		RefreshToken: pair.Refresh,
		TokenType:    tokenType,
	})
}

// credentials reads the username and secret form fields.
func credentials(r *http.Request, secretField string) (string, string, error) {
	username := models.NormalizeEmail(r.PostFormValue("username"))
	secret := r.PostFormValue(secretField)

	missing := map[string]string{}
	if username == "" {
		missing["username"] = "is required"
	}
	if secret == "" {
		missing[secretField] = "is required"
	}
	if len(missing) > 0 {
		return "", "", apperr.NewValidation("username and password form fields are required", missing)
	}
	return username, secret, nil
}

// revokeError reports a token spent by a concurrent request as a
// credential failure.
func revokeError(err error) error {
	if errors.Is(err, auth.ErrRevoked) {
		return credentialError(err)
	}
	return fmt.Errorf("revoke refresh token: %w", err)
}

func credentialError(err error) error {
	if auth.IsCredentialError(err) {
		return apperr.Wrap(apperr.Unauthenticated, "could not validate credentials", err)
	}
	return err
}
