package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/medinotes/internal/model"
	apperrors "github.com/jwalitptl/medinotes/pkg/errors"
	"github.com/jwalitptl/medinotes/pkg/httputil"
)

const (
	ContextClaims    = "claims"
	ContextAccountID = "account_id"
	ContextToken     = "token"
)

var errMissingToken = errors.New("missing bearer token")

// TokenValidator verifies a bearer token.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error)
}

// PlanLookup answers whether an account holds a plan.
type PlanLookup interface {
	HasPlan(ctx context.Context, id uuid.UUID, plan string) (bool, error)
}

type AuthMiddleware struct {
	tokens     TokenValidator
	plans      PlanLookup
	cookieName string
}

func NewAuthMiddleware(tokens TokenValidator, plans PlanLookup, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, plans: plans, cookieName: cookieName}
}

// Authenticate requires a valid bearer token in the Authorization header.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized(errMissingToken))
			return
		}
		if !m.attach(c, token) {
			httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("invalid token")))
			return
		}
		c.Next()
	}
}

// Session attaches the signed-in account from the session cookie when there
// is a valid one. It never rejects the request.
func (m *AuthMiddleware) Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, err := c.Cookie(m.cookieName); err == nil && token != "" {
			m.attach(c, token)
		}
		c.Next()
	}
}

// RequireSession redirects anonymous page requests to the sign-in page.
// Session must run first.
func (m *AuthMiddleware) RequireSession(signInPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := AccountID(c); ok {
			c.Next()
			return
		}
		target := signInPath + "?next=" + url.QueryEscape(c.Request.URL.RequestURI())
		c.Redirect(http.StatusSeeOther, target)
		c.Abort()
	}
}

// RequirePlan rejects accounts without plan. Authenticate must run first.
func (m *AuthMiddleware) RequirePlan(plan string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := AccountID(c)
		if !ok {
			httputil.RespondWithError(c, apperrors.Unauthorized(errMissingToken))
			return
		}
		has, err := m.plans.HasPlan(c.Request.Context(), id, plan)
		if err != nil {
			httputil.RespondWithError(c, apperrors.Unavailable("failed to check plan", err))
			return
		}
		if !has {
			httputil.RespondWithError(c, apperrors.Forbidden("plan "+plan+" required", nil))
			return
		}
		c.Next()
	}
}

func (m *AuthMiddleware) attach(c *gin.Context, token string) bool {
	claims, err := m.tokens.ValidateToken(c.Request.Context(), token)
	if err != nil {
		return false
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return false
	}
	c.Set(ContextClaims, claims)
	c.Set(ContextAccountID, id)
	c.Set(ContextToken, token)
	return true
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func Claims(c *gin.Context) (*model.TokenClaims, bool) {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*model.TokenClaims)
	return claims, ok
}

func AccountID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextAccountID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// Token is the raw token the request authenticated with.
func Token(c *gin.Context) string {
	return c.GetString(ContextToken)
}
