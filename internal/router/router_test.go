package router

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/medinotes/internal/consultation"
	"github.com/jwalitptl/medinotes/internal/credential"
	"github.com/jwalitptl/medinotes/internal/handler/auth"
	"github.com/jwalitptl/medinotes/internal/handler/health"
	"github.com/jwalitptl/medinotes/internal/handler/prometheus"
	summaryhandler "github.com/jwalitptl/medinotes/internal/handler/summary"
	"github.com/jwalitptl/medinotes/internal/handler/web"
	"github.com/jwalitptl/medinotes/internal/identity"
	"github.com/jwalitptl/medinotes/internal/middleware"
	"github.com/jwalitptl/medinotes/internal/model"
	"github.com/jwalitptl/medinotes/internal/repository/memory"
	"github.com/jwalitptl/medinotes/internal/stream"
	"github.com/jwalitptl/medinotes/internal/summary"
	"github.com/jwalitptl/medinotes/pkg/metrics"
	"github.com/jwalitptl/medinotes/pkg/security"
)

const (
	cookieName = "medinotes_session"
	password   = "correct-horse"
)

func newServer(t *testing.T, limit rate.Limit, burst int) (*httptest.Server, *identity.Service) {
	t.Helper()
	svc := identity.NewService(
		memory.NewAccountRepository(),
		security.NewBcryptHasher(bcrypt.MinCost),
		identity.NewJWTManager("0123456789abcdef0123456789abcdef", "medinotes", time.Hour),
		identity.NewMemoryRevocations(),
	)
	mw := middleware.NewAuthMiddleware(svc, svc, cookieName)
	webH, err := web.NewHandler(svc, mw, web.CookieConfig{Name: cookieName}, model.PlanPremium, nil)
	require.NoError(t, err)

	metricsH := prometheus.New()
	m := metrics.New("test", metricsH.Registry())
	r := NewRouter(mw, Handlers{
		Web:     webH,
		Auth:    auth.NewHandler(svc, mw),
		Summary: summaryhandler.NewHandler(summary.Echo{}, m, nil),
		Health:  health.NewHandler(map[string]health.Pinger{"accounts": svc}),
		Metrics: metricsH,
	}, m, RouterConfig{
		Mode:         gin.TestMode,
		RateLimit:    limit,
		RateBurst:    burst,
		MaxBodyBytes: 1 << 20,
		Plan:         model.PlanPremium,
	})
	require.NoError(t, r.Setup())

	srv := httptest.NewServer(r.Handler())
	t.Cleanup(srv.Close)
	return srv, svc
}

func seed(t *testing.T, svc *identity.Service, plan string) {
	t.Helper()
	_, err := svc.SeedAccount(context.Background(), "Dr Demo", "demo@example.com", password, plan)
	require.NoError(t, err)
}

func validRequest() model.ConsultationRequest {
	return model.ConsultationRequest{
		PatientName: "Jane Doe",
		DateOfVisit: "2026-10-18",
		Notes:       "Mild cough for three days.\nNo fever.",
	}
}

// The terminal client's whole path: resolve a credential, stream the
// summary, assemble the output.
func TestConsultationFlowEndToEnd(t *testing.T) {
	srv, svc := newServer(t, 0, 0)
	seed(t, svc, model.PlanPremium)

	client := identity.NewClient(srv.URL, "demo@example.com", password)
	store := credential.NewMemoryStore()
	resolver := credential.NewResolver(store, client)
	var states []consultation.State
	form := consultation.NewForm(resolver, consultation.NewStreamer(stream.NewClient(srv.URL)),
		consultation.WithView(consultation.ViewFunc(func(s consultation.State) { states = append(states, s) })))

	req := validRequest()
	require.NoError(t, form.Submit(context.Background(), req))

	state := form.State()
	assert.Equal(t, model.StatusComplete, state.Status)
	assert.Equal(t, summary.Digest(req), state.Output)
	require.NotEmpty(t, states)
	assert.Equal(t, model.StatusSubmitting, states[0].Status)

	cached, ok, err := resolver.Cached(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(credential.DefaultWindow), cached.Expiry, time.Minute)

	// A second submission reuses the cached token.
	require.NoError(t, form.Submit(context.Background(), req))
	again, _, err := resolver.Cached(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cached.Token, again.Token)
}

func TestSummaryRequiresPlan(t *testing.T) {
	srv, svc := newServer(t, 0, 0)
	seed(t, svc, model.PlanFree)

	client := identity.NewClient(srv.URL, "demo@example.com", password)
	token, err := client.Token(context.Background())
	require.NoError(t, err)

	err = consultation.NewStreamer(stream.NewClient(srv.URL)).
		Stream(context.Background(), token, validRequest(), func(string) {})
	var statusErr *stream.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.Code)

	err = consultation.NewStreamer(stream.NewClient(srv.URL)).
		Stream(context.Background(), "", validRequest(), func(string) {})
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
}

func TestSummaryStreamHeaders(t *testing.T) {
	srv, svc := newServer(t, 0, 0)
	seed(t, svc, model.PlanPremium)
	token, err := identity.NewClient(srv.URL, "demo@example.com", password).Token(context.Background())
	require.NoError(t, err)

	body := `{"patient_name":"Jane Doe","date_of_visit":"2026-10-18","notes":"ok"}`
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.NotEmpty(t, resp.Header.Get(middleware.HeaderXRequestID))
}

func TestOpsAndStaticRoutes(t *testing.T) {
	srv, _ := newServer(t, 0, 0)

	resp, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/static/consultation.js")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, max-age=3600", resp.Header.Get("Cache-Control"))

	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "default-src 'self'")

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(buf.String(), "test_http_requests_total"))
}

func TestTokenEndpointIsRateLimited(t *testing.T) {
	srv, svc := newServer(t, rate.Every(time.Hour), 2)
	seed(t, svc, model.PlanPremium)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		body := `{"email":"demo@example.com","password":"wrong-password"}`
		resp, err := http.Post(srv.URL+"/auth/token", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}
