package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/aussiebroadwan/craftconnect/internal/gateway/service"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/session"
	"github.com/aussiebroadwan/craftconnect/pkg/cryptox"
	"github.com/aussiebroadwan/craftconnect/pkg/httpx"
	"github.com/aussiebroadwan/craftconnect/pkg/jwtx"
	"github.com/aussiebroadwan/craftconnect/pkg/slogx"
)

// IdentitySignatureHeader carries the hex HMAC-SHA256 of the login body,
// keyed with the secret shared with the identity provider's backend.
const IdentitySignatureHeader = "X-Identity-Signature"

// AuthHandler serves the /auth endpoints.
type AuthHandler struct {
	Service  *service.SessionService
	Sessions *session.Store

	// IdentitySecret authenticates login assertions. Login is disabled
	// when it is empty.
	IdentitySecret string
}

// HandleLogin godoc
//
//	@Summary		Mint a session for a verified identity
//	@Description	Called by the identity provider's backend once it has confirmed a user's credentials.
//	@Description	The raw body must be signed with the shared identity secret in X-Identity-Signature.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			X-Identity-Signature	header		string				true	"hex HMAC-SHA256 of the body"
//	@Param			body					body		LoginRequest		true	"identity"
//	@Success		200						{object}	jwtx.TokenPair
//	@Failure		400						{object}	map[string]string	"error"
//	@Failure		401						{object}	map[string]string	"error"
//	@Router			/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httpx.MaxBodyBytes))
	if err != nil {
		httpx.ErrMalformedBody.WriteError(w)
		return
	}
	if h.IdentitySecret == "" || !cryptox.VerifyHex(h.IdentitySecret, string(raw), r.Header.Get(IdentitySignatureHeader)) {
		errInvalidAssertion.WriteError(w)
		return
	}

	var req LoginRequest
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.ErrMalformedBody.WriteError(w)
		return
	}

	pair, err := h.Service.Login(ctx, jwtx.Identity{UID: req.UID, Email: req.Email, Username: req.Username})
	switch {
	case errors.Is(err, service.ErrInvalidIdentity):
		errMissingIdentity.WriteError(w)
		return
	case err != nil:
		log.Error("login failed", "err", err)
		httpx.ErrSessionCreateFailed.WriteError(w)
		return
	}

	h.Sessions.SetSessionCookies(w, pair.AccessToken, pair.RefreshToken)
	httpx.WriteJSON(w, http.StatusOK, pair)
}

// HandleEstablish godoc
//
//	@Summary		Mirror a token pair into session cookies
//	@Description	Stores an already issued pair as HttpOnly cookies for server-rendered requests.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		EstablishSessionRequest	true	"token pair"
//	@Success		200		{object}	SuccessResponse
//	@Failure		400		{object}	map[string]string	"error"
//	@Router			/auth/session [post].
func (h *AuthHandler) HandleEstablish(w http.ResponseWriter, r *http.Request) {
	var req EstablishSessionRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.ErrMalformedBody.WriteError(w)
		return
	}
	if req.AccessToken == "" || req.RefreshToken == "" {
		httpx.ErrMissingTokens.WriteError(w)
		return
	}

	h.Sessions.SetSessionCookies(w, req.AccessToken, req.RefreshToken)
	httpx.WriteJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// HandleRefresh godoc
//
//	@Summary		Rotate a refresh token
//	@Description	Spends the refresh token (body, or the refresh_token cookie) and returns a new pair
//	@Description	built from the user's current profile. Each refresh token can be used once.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RefreshRequest	false	"refresh token"
//	@Success		200		{object}	jwtx.TokenPair
//	@Failure		400		{object}	map[string]string	"error"
//	@Failure		401		{object}	map[string]string	"error"
//	@Failure		404		{object}	map[string]string	"error"
//	@Router			/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.ErrMalformedBody.WriteError(w)
		return
	}
	rt := req.RefreshToken
	if rt == "" {
		rt = h.Sessions.RefreshTokenFromCookies(r)
	}
	if rt == "" {
		httpx.ErrRefreshRequired.WriteError(w)
		return
	}

	pair, err := h.Service.Refresh(ctx, rt)
	switch {
	case errors.Is(err, service.ErrProfileNotFound):
		httpx.ErrUserNotFound.WriteError(w)
		return
	case errors.Is(err, service.ErrInvalidRefresh), errors.Is(err, service.ErrRefreshReused):
		log.Info("refresh rejected", "err", err)
		httpx.ErrRefreshFailed.WriteError(w)
		return
	case err != nil:
		log.Error("refresh failed", "err", err)
		httpx.ErrInternal.WriteError(w)
		return
	}

	h.Sessions.SetSessionCookies(w, pair.AccessToken, pair.RefreshToken)
	httpx.WriteJSON(w, http.StatusOK, pair)
}

// HandleLogout godoc
//
//	@Summary		End the session
//	@Description	Clears both session cookies and revokes the refresh token when one is presented.
//	@Description	Always succeeds, so logging out twice is not an error.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RefreshRequest	false	"refresh token"
//	@Success		200		{object}	SuccessResponse
//	@Router			/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req RefreshRequest
	_ = httpx.DecodeJSON(w, r, &req)
	rt := req.RefreshToken
	if rt == "" {
		rt = h.Sessions.RefreshTokenFromCookies(r)
	}

	if claims := h.Sessions.SessionFromCookies(r); claims != nil {
		log = log.With("uid", claims.UID)
	}

	if rt != "" {
		if err := h.Service.Revoke(ctx, rt); err != nil {
			log.Debug("logout without revocation", "err", err)
		}
	}

	h.Sessions.ClearSessionCookies(w)
	log.Info("session ended")
	httpx.WriteJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// ProtectedHandler godoc
//
//	@Summary		Authenticated probe
//	@Description	Echoes the identity resolved from the access token.
//	@Tags			Auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	ProtectedResponse
//	@Failure		401	{object}	map[string]string	"error"
//	@Router			/protected [get].
func ProtectedHandler(now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := httpx.IdentityFrom(r.Context())
		if !ok {
			httpx.ErrAuthenticationRequired.WriteError(w)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, ProtectedResponse{
			Message:   "Protected endpoint accessed successfully",
			User:      claims.Identity(),
			Timestamp: now().UTC().Format(time.RFC3339),
		})
	}
}

// HandleMe godoc
//
//	@Summary		Current identity, if any
//	@Description	Works for anonymous callers. Browsers holding only a refresh cookie get a new
//	@Description	pair written back as cookies and returned in the body, since the old refresh
//	@Description	token is spent.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	MeResponse
//	@Router			/auth/me [get].
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if claims, ok := httpx.IdentityFrom(ctx); ok {
		id := claims.Identity()
		httpx.WriteJSON(w, http.StatusOK, MeResponse{Authenticated: true, User: &id})
		return
	}

	if pair := h.Sessions.RefreshAccessToken(ctx, w, r); pair != nil {
		if claims, err := h.Service.Issuer.Codec().VerifyAccess(pair.AccessToken); err == nil {
			id := claims.Identity()
			httpx.WriteJSON(w, http.StatusOK, MeResponse{Authenticated: true, User: &id, Tokens: pair})
			return
		}
	}

	httpx.WriteJSON(w, http.StatusOK, MeResponse{Authenticated: false})
}
