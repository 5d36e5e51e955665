package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-queue/internal/middleware"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// JoinHandler owns the public queue routes, including join.
type JoinHandler interface {
	Handler
	UseOnJoin(...gin.HandlerFunc)
}

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	queueH  JoinHandler
	staffH  Handler
	adminH  Handler
	healthH Handler
	config  RouterConfig
}

type RouterConfig struct {
	// JoinRate throttles POST /queue/join per client IP.
	JoinRate    rate.Limit
	JoinBurst   int
	MaxBodySize int64
	Metrics     *metrics.Metrics
	// Gatherer backs /metrics. Nil means the default registry.
	Gatherer prometheus.Gatherer
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	queueH JoinHandler,
	staffH Handler,
	adminH Handler,
	healthH Handler,
	config RouterConfig,
) *Router {
	engine := gin.New()

	r := &Router{
		engine:  engine,
		auth:    auth,
		queueH:  queueH,
		staffH:  staffH,
		adminH:  adminH,
		healthH: healthH,
		config:  config,
	}

	// Add core middlewares
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.SizeLimit(config.MaxBodySize),
	)
	if config.Metrics != nil {
		engine.Use(middleware.Metrics(config.Metrics))
	}

	return r
}

func (r *Router) Setup() {
	r.healthH.RegisterRoutes(r.engine.Group(""))

	gatherer := r.config.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.engine.Group("/api/v1")

	// Public routes
	joinLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  r.config.JoinRate,
		Burst: r.config.JoinBurst,
	})
	r.queueH.UseOnJoin(joinLimiter.RateLimit())
	r.queueH.RegisterRoutes(api)

	// Staff routes
	staff := api.Group("", r.auth.Authenticate(), r.auth.RequireRole(middleware.RoleStaff))
	r.staffH.RegisterRoutes(staff)

	// Admin routes
	admin := api.Group("", r.auth.Authenticate(), r.auth.RequireRole(middleware.RoleAdmin))
	r.adminH.RegisterRoutes(admin)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
