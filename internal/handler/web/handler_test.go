package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/medinotes/internal/identity"
	"github.com/jwalitptl/medinotes/internal/middleware"
	"github.com/jwalitptl/medinotes/internal/model"
	"github.com/jwalitptl/medinotes/internal/repository/memory"
	"github.com/jwalitptl/medinotes/pkg/security"
	assets "github.com/jwalitptl/medinotes/web"
)

const (
	cookieName = "medinotes_session"
	password   = "correct-horse"
)

type site struct {
	r   *gin.Engine
	svc *identity.Service
}

func setup(t *testing.T) *site {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := identity.NewService(
		memory.NewAccountRepository(),
		security.NewBcryptHasher(bcrypt.MinCost),
		identity.NewJWTManager("0123456789abcdef0123456789abcdef", "medinotes", time.Hour),
		identity.NewMemoryRevocations(),
	)
	mw := middleware.NewAuthMiddleware(svc, svc, cookieName)
	h, err := NewHandler(svc, mw, CookieConfig{Name: cookieName}, model.PlanPremium, nil)
	require.NoError(t, err)
	h.now = func() time.Time { return time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC) }

	tmpl, err := assets.Templates()
	require.NoError(t, err)
	r := gin.New()
	r.SetHTMLTemplate(tmpl)
	h.RegisterRoutes(r, func(c *gin.Context) { c.Next() })
	return &site{r: r, svc: svc}
}

func (s *site) account(t *testing.T, plan string) *model.Account {
	t.Helper()
	a, err := s.svc.SeedAccount(context.Background(), "Dr Demo", "demo@example.com", password, plan)
	require.NoError(t, err)
	return a
}

func (s *site) session(t *testing.T, a *model.Account) *http.Cookie {
	t.Helper()
	tokens, err := s.svc.IssueToken(context.Background(), a)
	require.NoError(t, err)
	return &http.Cookie{Name: cookieName, Value: tokens.AccessToken}
}

func (s *site) get(path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func (s *site) post(path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func TestLandingPage(t *testing.T) {
	s := setup(t)

	w := s.get("/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "MediNotes Pro")
	assert.Contains(t, body, "Transform Your Consultation Notes")
	assert.Contains(t, body, "Professional Summaries")
	assert.Contains(t, body, "Start Free Trial")
	assert.Contains(t, body, `href="/sign-in"`)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	w = s.get("/", s.session(t, s.account(t, model.PlanFree)))
	body = w.Body.String()
	assert.Contains(t, body, "Go to App")
	assert.Contains(t, body, "Open Consultation Assistant")
	assert.Contains(t, body, "Dr Demo")
	assert.NotContains(t, body, "Start Free Trial")
}

func TestAboutPage(t *testing.T) {
	s := setup(t)

	w := s.get("/about", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "About MediNotes Pro")
	assert.Contains(t, w.Body.String(), "Streamlined for medical workflows")
	assert.Contains(t, w.Body.String(), "Try Consultation Assistant")
}

func TestProductRequiresSession(t *testing.T) {
	s := setup(t)

	w := s.get("/product", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/sign-in?next=%2Fproduct", w.Header().Get("Location"))
}

func TestProductGate(t *testing.T) {
	t.Run("free plan sees pricing", func(t *testing.T) {
		s := setup(t)
		w := s.get("/product", s.session(t, s.account(t, model.PlanFree)))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Healthcare Professional Plan")
		assert.Contains(t, w.Body.String(), `action="/billing/subscribe"`)
		assert.NotContains(t, w.Body.String(), "consultation-form")
	})

	t.Run("premium plan sees the form", func(t *testing.T) {
		s := setup(t)
		w := s.get("/product", s.session(t, s.account(t, model.PlanPremium)))

		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, `id="consultation-form"`)
		assert.Contains(t, body, "Enter patient's full name")
		assert.Contains(t, body, `value="2026-10-18"`)
		assert.Contains(t, body, model.SubmitLabel)
		assert.Contains(t, body, "Summary &amp; Drafted Email")
		assert.NotContains(t, body, "Healthcare Professional Plan")
	})
}

func TestSubscribeUnlocksProduct(t *testing.T) {
	s := setup(t)
	cookie := s.session(t, s.account(t, model.PlanFree))

	w := s.post("/billing/subscribe", url.Values{"plan": {model.PlanPremium}}, cookie)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/product", w.Header().Get("Location"))

	w = s.get("/product", cookie)
	assert.Contains(t, w.Body.String(), `id="consultation-form"`)

	w = s.post("/billing/subscribe", url.Values{"plan": {"platinum"}}, cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignIn(t *testing.T) {
	s := setup(t)
	s.account(t, model.PlanPremium)

	w := s.get("/sign-in?next=/about", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="next" value="/about"`)

	w = s.post("/sign-in", url.Values{"email": {"demo@example.com"}, "password": {"wrong-password"}}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Incorrect email or password.")
	assert.Contains(t, w.Body.String(), `value="demo@example.com"`)

	w = s.post("/sign-in", url.Values{"email": {"demo@example.com"}, "password": {password}, "next": {"/about"}}, nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/about", w.Header().Get("Location"))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.Greater(t, cookies[0].MaxAge, 0)

	w = s.get("/product", &http.Cookie{Name: cookieName, Value: cookies[0].Value})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSignOutRevokesSession(t *testing.T) {
	s := setup(t)
	cookie := s.session(t, s.account(t, model.PlanPremium))

	w := s.post("/sign-out", nil, cookie)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)

	_, err := s.svc.ValidateToken(context.Background(), cookie.Value)
	assert.ErrorIs(t, err, model.ErrTokenRevoked)

	w = s.get("/product", cookie)
	assert.Equal(t, http.StatusSeeOther, w.Code)
}

func TestRender(t *testing.T) {
	s := setup(t)
	cookie := s.session(t, s.account(t, model.PlanPremium))

	renderReq := func(body string, cookie *http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/render", strings.NewReader(body))
		req.Header.Set("Content-Type", "text/markdown")
		if cookie != nil {
			req.AddCookie(cookie)
		}
		w := httptest.NewRecorder()
		s.r.ServeHTTP(w, req)
		return w
	}

	w := renderReq("### Next steps\n- rest\n<script>alert(1)</script>", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "<h3")
	assert.Contains(t, w.Body.String(), "<li>rest</li>")
	assert.NotContains(t, w.Body.String(), "<script>")

	assert.Equal(t, http.StatusUnauthorized, renderReq("# hi", nil).Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge, renderReq(strings.Repeat("a", MaxRenderBytes+1), cookie).Code)
}

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"":                    "/product",
		"/about":              "/about",
		"https://evil.test/":  "/product",
		"//evil.test":         "/product",
		"/\\evil.test":        "/product",
		"/product?tab=record": "/product?tab=record",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeNext(in), in)
	}
}
