package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medinotes/internal/identity"
	"github.com/jwalitptl/medinotes/internal/middleware"
	"github.com/jwalitptl/medinotes/internal/model"
	"github.com/jwalitptl/medinotes/internal/repository"
	apperrors "github.com/jwalitptl/medinotes/pkg/errors"
	"github.com/jwalitptl/medinotes/pkg/httputil"
)

// HeaderRequestedWith must accompany cookie-authenticated token requests, so
// a plain cross-site form post cannot mint a token.
const HeaderRequestedWith = "X-Requested-With"

type Handler struct {
	svc  *identity.Service
	auth *middleware.AuthMiddleware
}

func NewHandler(svc *identity.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{svc: svc, auth: auth}
}

// RegisterRoutes mounts the JSON identity API. limit guards the endpoints
// that check passwords or mint tokens.
func (h *Handler) RegisterRoutes(r gin.IRouter, limit gin.HandlerFunc) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", limit, h.Register)
		auth.POST("/token", limit, h.Token)
		auth.POST("/session-token", limit, h.auth.Session(), h.SessionToken)
		auth.POST("/logout", h.auth.Authenticate(), h.Logout)
		auth.GET("/me", h.auth.Authenticate(), h.Me)
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(middleware.ValidationMessage(err), err))
		return
	}

	account, err := h.svc.Register(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, model.ErrEmailTaken) {
			httputil.RespondWithError(c, apperrors.Conflict(err.Error(), err))
			return
		}
		httputil.RespondWithError(c, apperrors.Internal(err))
		return
	}

	httputil.RespondWithStatus(c, http.StatusCreated, account.Profile())
}

// Token signs in with email and password and returns a bearer token.
func (h *Handler) Token(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(middleware.ValidationMessage(err), err))
		return
	}

	tokens, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondLoginError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, tokens)
}

// SessionToken issues a bearer token for the account behind the session
// cookie. The browser calls it when it has no usable cached token.
func (h *Handler) SessionToken(c *gin.Context) {
	if c.GetHeader(HeaderRequestedWith) == "" {
		httputil.RespondWithError(c, apperrors.Forbidden("missing "+HeaderRequestedWith+" header", nil))
		return
	}
	id, ok := middleware.AccountID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("no session")))
		return
	}

	account, err := h.svc.Account(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httputil.RespondWithError(c, apperrors.Unauthorized(err))
			return
		}
		httputil.RespondWithError(c, apperrors.Internal(err))
		return
	}

	tokens, err := h.svc.IssueToken(c.Request.Context(), account)
	if err != nil {
		httputil.RespondWithError(c, apperrors.Internal(err))
		return
	}
	httputil.RespondWithSuccess(c, tokens)
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.svc.Revoke(c.Request.Context(), middleware.Token(c)); err != nil {
		httputil.RespondWithError(c, apperrors.Internal(err))
		return
	}
	httputil.RespondWithSuccess(c, "signed out")
}

func (h *Handler) Me(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("no claims")))
		return
	}
	account, err := h.svc.AccountFromClaims(c.Request.Context(), claims)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httputil.RespondWithError(c, apperrors.NotFound("account", err))
			return
		}
		httputil.RespondWithError(c, apperrors.Internal(err))
		return
	}
	httputil.RespondWithSuccess(c, account.Profile())
}

func respondLoginError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidCredentials):
		httputil.RespondWithError(c, &apperrors.AppError{
			Code: apperrors.ErrUnauthorized, Message: err.Error(), Err: err,
		})
	case errors.Is(err, model.ErrAccountLocked):
		httputil.RespondWithError(c, apperrors.Forbidden(err.Error(), err))
	default:
		httputil.RespondWithError(c, apperrors.Internal(err))
	}
}
