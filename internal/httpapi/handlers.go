package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/logger"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/MrEthical07/authcore/session"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

/*
====================================
WIRE TYPES
====================================
*/

type userView struct {
	ID        string                  `json:"id"`
	Email     string                  `json:"email"`
	Verified  bool                    `json:"verified"`
	Providers []authcore.ProviderLink `json:"providers,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

func viewUser(u *authcore.User) userView {
	return userView{
		ID:        u.ID,
		Email:     u.Email,
		Verified:  u.Verified,
		Providers: u.Providers,
		CreatedAt: u.CreatedAt,
	}
}

type signResponse struct {
	User       userView `json:"user"`
	NewAccount bool     `json:"new_account"`
	NewSession bool     `json:"new_session"`
	CSRFToken  string   `json:"csrf_token,omitempty"`
}

type sessionView struct {
	session.Session
	Current bool `json:"current"`
}

type refreshResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
	CSRFToken string    `json:"csrf_token,omitempty"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type codeRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

type ssoRequest struct {
	IDToken string `json:"id_token"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

/*
====================================
HELPERS
====================================
*/

var errBadBody = errors.New("malformed request body")

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(v); err != nil {
		return errBadBody
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, middleware.ErrorBody{Error: "BadRequest"})
}

// fail renders err and logs non-domain failures with the request id.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !authcore.IsDomain(err) {
		logger.From(r.Context(), a.log).Warn("request failed", zap.Error(err))
	}
	middleware.WriteError(w, err)
}

func authContext(r *http.Request) *authcore.AuthContext {
	ac, _ := authcore.AuthContextFrom(r.Context())
	return ac
}

/*
====================================
PUBLIC ROUTES
====================================
*/

func (a *api) certificate(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/x-pem-file")
	_, _ = w.Write([]byte(a.engine.Certificate()))
}

func (a *api) signup(w http.ResponseWriter, r *http.Request) {
	var creds authcore.Credentials
	if err := decode(w, r, &creds); err != nil {
		badRequest(w)
		return
	}
	res, err := authContext(r).Signup(r.Context(), creds)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, signResponse{
		User:       viewUser(res.User),
		NewAccount: true,
		NewSession: res.NewSession,
		CSRFToken:  res.CSRFToken,
	})
}

func (a *api) signin(w http.ResponseWriter, r *http.Request) {
	var creds authcore.Credentials
	if err := decode(w, r, &creds); err != nil {
		badRequest(w)
		return
	}
	res, err := authContext(r).Signin(r.Context(), creds)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signResponse{
		User:       viewUser(res.User),
		NewSession: res.NewSession,
		CSRFToken:  res.CSRFToken,
	})
}

func (a *api) sso(w http.ResponseWriter, r *http.Request) {
	var req ssoRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w)
		return
	}
	res, err := authContext(r).SignWithSSO(r.Context(), chi.URLParam(r, "provider"), req.IDToken)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if res.NewAccount {
		status = http.StatusCreated
	}
	writeJSON(w, status, signResponse{
		User:       viewUser(res.User),
		NewAccount: res.NewAccount,
		NewSession: res.NewSession,
		CSRFToken:  res.CSRFToken,
	})
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	res, err := authContext(r).Refresh(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{ExpiresAt: res.ExpiresAt, CSRFToken: res.CSRFToken})
}

func (a *api) signout(w http.ResponseWriter, r *http.Request) {
	authContext(r).Signout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// requestPasswordReset answers 202 for unknown emails too.
func (a *api) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w)
		return
	}
	issued, err := a.engine.RequestPasswordReset(r.Context(), req.Email)
	switch {
	case errors.Is(err, authcore.ErrUserNotFound):
	case err != nil:
		a.fail(w, r, err)
		return
	default:
		if err := a.deliver(r.Context(), issued); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *api) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w)
		return
	}
	if err := a.engine.ResetPassword(r.Context(), req.Email, req.Code, req.Password); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w)
		return
	}
	res, err := authContext(r).AcceptInvitation(r.Context(), req.Email, req.Code, req.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signResponse{
		User:       viewUser(res.User),
		NewSession: res.NewSession,
		CSRFToken:  res.CSRFToken,
	})
}

func (a *api) invite(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w)
		return
	}
	issued, err := a.engine.Invite(r.Context(), req.Email)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.deliver(r.Context(), issued); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"user_id": issued.UserID})
}

/*
====================================
AUTHENTICATED ROUTES
====================================
*/

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, viewUser(id.User))
}

func (a *api) sessions(w http.ResponseWriter, r *http.Request) {
	list, err := authContext(r).Sessions(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	id, _ := middleware.IdentityFromContext(r.Context())
	out := make([]sessionView, 0, len(list))
	for _, s := range list {
		out = append(out, sessionView{Session: s, Current: s.Hash == id.Session.Hash})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) revokeSession(w http.ResponseWriter, r *http.Request) {
	if err := authContext(r).RevokeSession(r.Context(), chi.URLParam(r, "hash")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) signoutAll(w http.ResponseWriter, r *http.Request) {
	if err := authContext(r).SignoutAll(r.Context()); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w)
		return
	}
	if err := authContext(r).ChangePassword(r.Context(), req.OldPassword, req.NewPassword); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) requestEmailConfirmation(w http.ResponseWriter, r *http.Request) {
	issued, err := authContext(r).RequestEmailConfirmation(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.deliver(r.Context(), issued); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *api) confirmEmail(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w)
		return
	}
	if err := authContext(r).ConfirmEmail(r.Context(), req.Code); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
