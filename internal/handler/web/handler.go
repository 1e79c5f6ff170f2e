// Package web serves the HTML pages: landing, about, the gated product page,
// sign-in and the pricing action.
package web

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medinotes/internal/consultation"
	"github.com/jwalitptl/medinotes/internal/identity"
	"github.com/jwalitptl/medinotes/internal/middleware"
	"github.com/jwalitptl/medinotes/internal/model"
	"github.com/jwalitptl/medinotes/internal/render"
	"github.com/jwalitptl/medinotes/pkg/logger"
	assets "github.com/jwalitptl/medinotes/web"
)

const (
	SignInPath = "/sign-in"
	// MaxRenderBytes bounds a /render body. Summaries are far smaller.
	MaxRenderBytes = 256 << 10
)

// Page is the data every template receives.
type Page struct {
	Title    string
	SignedIn bool
	Name     string
	Content  template.HTML
	Error    string

	// sign-in
	Next  string
	Email string

	// product
	Consultation    bool
	Plan            string
	PremiumPlan     string
	Today           string
	SubmitLabel     string
	SubmittingLabel string
}

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

type Handler struct {
	svc    *identity.Service
	auth   *middleware.AuthMiddleware
	html   *render.HTML
	cookie CookieConfig
	plan   string
	log    *logger.Logger
	now    func() time.Time

	landing template.HTML
	about   template.HTML
}

// NewHandler renders the static page copy up front; plan is the
// subscription that unlocks the consultation form.
func NewHandler(svc *identity.Service, auth *middleware.AuthMiddleware, cookie CookieConfig, plan string, l *logger.Logger) (*Handler, error) {
	if l == nil {
		l = logger.Nop()
	}
	h := &Handler{
		svc:    svc,
		auth:   auth,
		html:   render.NewHTML(),
		cookie: cookie,
		plan:   plan,
		log:    l.With("web"),
		now:    time.Now,
	}
	var err error
	if h.landing, err = h.copy("landing"); err != nil {
		return nil, err
	}
	if h.about, err = h.copy("about"); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Handler) copy(name string) (template.HTML, error) {
	md, err := assets.Content(name)
	if err != nil {
		return "", err
	}
	out, err := h.html.Template(md)
	if err != nil {
		return "", fmt.Errorf("render %s copy: %w", name, err)
	}
	return out, nil
}

// RegisterRoutes mounts the pages. limit guards the password form.
func (h *Handler) RegisterRoutes(r gin.IRouter, limit gin.HandlerFunc) {
	pages := r.Group("", h.auth.Session(), middleware.NoStore())
	{
		pages.GET("/", h.Landing)
		pages.GET("/about", h.About)
		pages.GET(SignInPath, h.SignInForm)
		pages.POST(SignInPath, limit, h.SignIn)
		pages.POST("/sign-out", h.SignOut)
		pages.POST("/render", h.Render)

		private := pages.Group("", h.auth.RequireSession(SignInPath))
		private.GET("/product", h.Product)
		private.POST("/billing/subscribe", h.Subscribe)
	}
}

func (h *Handler) page(c *gin.Context, title string) Page {
	p := Page{Title: title}
	if claims, ok := middleware.Claims(c); ok {
		p.SignedIn = true
		p.Name = claims.Name
		if p.Name == "" {
			p.Name = claims.Email
		}
	}
	return p
}

func (h *Handler) Landing(c *gin.Context) {
	p := h.page(c, "")
	p.Content = h.landing
	c.HTML(http.StatusOK, "landing.html", p)
}

func (h *Handler) About(c *gin.Context) {
	p := h.page(c, "About")
	p.Content = h.about
	c.HTML(http.StatusOK, "about.html", p)
}

// Product shows the consultation form to subscribers and the pricing table
// to everyone else.
func (h *Handler) Product(c *gin.Context) {
	id, _ := middleware.AccountID(c)
	gate := consultation.NewGate(h.svc.PlanFor(id), h.plan, h.log)

	p := h.page(c, "Consultation Assistant")
	p.Consultation = gate.Select(c.Request.Context()) == consultation.BranchConsultation
	p.PremiumPlan = h.plan
	p.Today = h.now().Format(model.DateLayout)
	p.SubmitLabel = model.SubmitLabel
	p.SubmittingLabel = model.SubmittingLabel
	if account, err := h.svc.Account(c.Request.Context(), id); err == nil {
		p.Plan = account.Plan
	}
	c.HTML(http.StatusOK, "product.html", p)
}

func (h *Handler) SignInForm(c *gin.Context) {
	next := safeNext(c.Query("next"))
	if _, ok := middleware.AccountID(c); ok {
		c.Redirect(http.StatusSeeOther, next)
		return
	}
	p := h.page(c, "Sign In")
	p.Next = next
	c.HTML(http.StatusOK, "signin.html", p)
}

func (h *Handler) SignIn(c *gin.Context) {
	next := safeNext(c.PostForm("next"))
	var req model.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.signInFailed(c, http.StatusBadRequest, req.Email, next, "Enter your email and a password of at least 8 characters.")
		return
	}

	tokens, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, model.ErrInvalidCredentials):
		h.signInFailed(c, http.StatusUnauthorized, req.Email, next, "Incorrect email or password.")
		return
	case errors.Is(err, model.ErrAccountLocked):
		h.signInFailed(c, http.StatusForbidden, req.Email, next, "Too many failed attempts. Try again later.")
		return
	case err != nil:
		h.log.Error(err, "sign-in failed")
		h.signInFailed(c, http.StatusInternalServerError, req.Email, next, "Sign-in is unavailable right now.")
		return
	}

	h.setSession(c, tokens.AccessToken, int(time.Until(tokens.ExpiresAt).Seconds()))
	c.Redirect(http.StatusSeeOther, next)
}

func (h *Handler) signInFailed(c *gin.Context, status int, email, next, msg string) {
	p := h.page(c, "Sign In")
	p.Email = email
	p.Next = next
	p.Error = msg
	c.HTML(status, "signin.html", p)
}

// SignOut revokes the session token and clears the cookie.
func (h *Handler) SignOut(c *gin.Context) {
	if token := middleware.Token(c); token != "" {
		if err := h.svc.Revoke(c.Request.Context(), token); err != nil {
			h.log.Error(err, "failed to revoke session token")
		}
	}
	h.setSession(c, "", -1)
	c.Redirect(http.StatusSeeOther, "/")
}

// Subscribe is the pricing table's action.
func (h *Handler) Subscribe(c *gin.Context) {
	var req model.SubscribeRequest
	if err := c.ShouldBind(&req); err != nil {
		h.errorPage(c, http.StatusBadRequest, "Unknown plan", "Choose one of the listed plans.")
		return
	}
	id, _ := middleware.AccountID(c)
	if _, err := h.svc.Subscribe(c.Request.Context(), id, req.Plan); err != nil {
		h.log.Error(err, "subscribe failed", "plan", req.Plan)
		h.errorPage(c, http.StatusInternalServerError, "Subscription failed", "Please try again.")
		return
	}
	c.Redirect(http.StatusSeeOther, "/product")
}

// Render turns a Markdown body into an HTML fragment with the same renderer
// the pages use. The browser posts the whole summary so far on every
// fragment.
func (h *Handler) Render(c *gin.Context) {
	if _, ok := middleware.AccountID(c); !ok {
		c.String(http.StatusUnauthorized, "sign in required")
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxRenderBytes+1))
	if err != nil {
		c.String(http.StatusBadRequest, "unreadable body")
		return
	}
	if len(body) > MaxRenderBytes {
		c.String(http.StatusRequestEntityTooLarge, "document too large")
		return
	}
	out, err := h.html.Render(string(body))
	if err != nil {
		h.log.Error(err, "render failed")
		c.String(http.StatusInternalServerError, "render failed")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(out))
}

func (h *Handler) errorPage(c *gin.Context, status int, title, msg string) {
	p := h.page(c, title)
	p.Error = msg
	c.HTML(status, "error.html", p)
}

func (h *Handler) setSession(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, token, maxAge, "/", "", h.cookie.Secure, true)
}

// safeNext keeps redirects on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/product"
	}
	return next
}
