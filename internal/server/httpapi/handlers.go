package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"github.com/multiplycharity/multiply-monorepo/internal/cryptox"
	"github.com/multiplycharity/multiply-monorepo/internal/logging"
	"github.com/multiplycharity/multiply-monorepo/internal/rpc"
	"github.com/multiplycharity/multiply-monorepo/internal/server/auth"
	"github.com/multiplycharity/multiply-monorepo/internal/server/services"
)

type accountService interface {
	KDFParams(ctx context.Context, identity string) (cryptox.KDFParams, error)
	Exists(ctx context.Context, identity string) (bool, error)
	CreateAccount(ctx context.Context, in *services.NewAccount) (*services.Session, error)
	Authenticate(ctx context.Context, identity string, passwordHash []byte, peer string) (*services.Session, *cryptox.Envelope, error)
	Verify(ctx context.Context, token string) (*auth.Claims, error)
	FetchSessionKey(ctx context.Context, claims *auth.Claims) ([]byte, error)
	RotateSessionKey(ctx context.Context, claims *auth.Claims) ([]byte, error)
	UpdateAddress(ctx context.Context, claims *auth.Claims, address string) error
	Logout(ctx context.Context, claims *auth.Claims) error
}

type Handlers struct {
	accounts     accountService
	logger       logging.Logger
	cookieSecure bool
	now          func() time.Time
}

func NewHandlers(as accountService, l logging.Logger, cookieSecure bool) *Handlers {
	return &Handlers{accounts: as, logger: l, cookieSecure: cookieSecure, now: time.Now}
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

func (h *Handlers) Exists(c *gin.Context) {
	ok, err := h.accounts.Exists(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rpc.ExistsResponse{Exists: ok})
}

func (h *Handlers) KDFParams(c *gin.Context) {
	p, err := h.accounts.KDFParams(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rpc.KDFParamsResponse{KDF: p})
}

func (h *Handlers) Register(c *gin.Context) {
	var req rpc.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, common.ErrValidation)
		return
	}

	env := req.Envelope
	sess, err := h.accounts.CreateAccount(c.Request.Context(), &services.NewAccount{
		Identity:     req.ID,
		PasswordHash: req.PasswordHash,
		Address:      req.Address,
		Envelope:     &env,
		KDF:          req.KDF,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.setSessionCookie(c, sess)
	c.JSON(http.StatusCreated, rpc.CreateAccountResponse{AccountID: sess.AccountID, SessionKey: sess.SessionKey})
}

func (h *Handlers) Login(c *gin.Context) {
	var req rpc.AuthenticateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, common.ErrValidation)
		return
	}

	sess, env, err := h.accounts.Authenticate(c.Request.Context(), req.ID, req.PasswordHash, c.ClientIP())
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.setSessionCookie(c, sess)
	c.JSON(http.StatusOK, rpc.AuthenticateResponse{Envelope: *env, SessionKey: sess.SessionKey})
}

func (h *Handlers) FetchSessionKey(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c.Request.Context())
	key, err := h.accounts.FetchSessionKey(c.Request.Context(), claims)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rpc.SessionKeyResponse{SessionKey: key})
}

func (h *Handlers) RotateSessionKey(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c.Request.Context())
	key, err := h.accounts.RotateSessionKey(c.Request.Context(), claims)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rpc.SessionKeyResponse{SessionKey: key})
}

func (h *Handlers) UpdateAddress(c *gin.Context) {
	var req rpc.UpdateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, common.ErrValidation)
		return
	}
	claims, _ := auth.ClaimsFrom(c.Request.Context())
	if err := h.accounts.UpdateAddress(c.Request.Context(), claims, req.Address); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) Logout(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c.Request.Context())
	if err := h.accounts.Logout(c.Request.Context(), claims); err != nil {
		abortWithError(c, err)
		return
	}
	h.clearSessionCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *Handlers) setSessionCookie(c *gin.Context, sess *services.Session) {
	maxAge := 0
	if sess.Claims != nil {
		maxAge = int(sess.Claims.TTL(h.now()).Seconds())
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(common.SessionCookieName, sess.Token, maxAge, "/", "", h.cookieSecure, true)
}

func (h *Handlers) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(common.SessionCookieName, "", -1, "/", "", h.cookieSecure, true)
}
