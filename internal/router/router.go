package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/medinotes/internal/handler/auth"
	"github.com/jwalitptl/medinotes/internal/handler/health"
	"github.com/jwalitptl/medinotes/internal/handler/prometheus"
	"github.com/jwalitptl/medinotes/internal/handler/summary"
	"github.com/jwalitptl/medinotes/internal/handler/web"
	"github.com/jwalitptl/medinotes/internal/middleware"
	"github.com/jwalitptl/medinotes/pkg/metrics"
	assets "github.com/jwalitptl/medinotes/web"
)

const staticMaxAge = 3600

type Handlers struct {
	Web     *web.Handler
	Auth    *auth.Handler
	Summary *summary.Handler
	Health  *health.Handler
	Metrics *prometheus.Handler
}

type RouterConfig struct {
	Mode string
	// RateLimit applies per client IP to the password, token and summary
	// endpoints. Zero disables limiting.
	RateLimit    rate.Limit
	RateBurst    int
	MaxBodyBytes int64
	TLS          bool
	// Plan is the subscription POST /api requires.
	Plan string
}

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	h       Handlers
	limiter *middleware.RateLimiter
	config  RouterConfig
}

func NewRouter(auth *middleware.AuthMiddleware, h Handlers, m *metrics.Metrics, config RouterConfig) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	middleware.UseJSONFieldNames()

	engine := gin.New()
	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.ErrorHandler(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig(config.TLS)),
	)
	if m != nil {
		engine.Use(middleware.Metrics(m))
	}
	if config.MaxBodyBytes > 0 {
		engine.Use(middleware.SizeLimit(config.MaxBodyBytes))
	}

	r := &Router{engine: engine, auth: auth, h: h, config: config}
	if config.RateLimit > 0 {
		r.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
	}
	return r
}

// Setup parses the templates and mounts every route.
func (r *Router) Setup() error {
	tmpl, err := assets.Templates()
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	r.engine.SetHTMLTemplate(tmpl)

	static := r.engine.Group("/static",
		middleware.StaticCache(staticMaxAge),
		middleware.Compress(middleware.DefaultCompressConfig()))
	static.StaticFS("/", http.FS(assets.Static()))

	r.h.Health.RegisterRoutes(r.engine)
	if r.h.Metrics != nil {
		r.h.Metrics.RegisterRoutes(r.engine)
	}

	r.h.Web.RegisterRoutes(r.engine, r.limit())
	r.h.Auth.RegisterRoutes(r.engine, r.limit())

	api := r.engine.Group("",
		middleware.NoStore(),
		r.limit(),
		r.auth.Authenticate(),
		r.auth.RequirePlan(r.config.Plan),
	)
	r.h.Summary.RegisterRoutes(api)
	return nil
}

func (r *Router) limit() gin.HandlerFunc {
	if r.limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return r.limiter.RateLimit()
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) Handler() http.Handler {
	return r.engine
}
