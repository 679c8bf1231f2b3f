package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"voiceattend/internal/auth"
	"voiceattend/internal/httpmiddleware"
)

// RouterOptions configure the middleware chain.
type RouterOptions struct {
	RateLimitPerMin int
	Metrics         http.Handler // nil disables /metrics
}

// NewRouter builds the gin engine with the console routes.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())

	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	r.GET("/healthz", h.Healthz)
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Voice attendance console API"})
	})

	var byIP, byOperator gin.HandlerFunc = noLimit, noLimit
	if opts.RateLimitPerMin > 0 {
		limiter := httpmiddleware.NewTokenBucket(opts.RateLimitPerMin, opts.RateLimitPerMin)
		byIP = limiter.GinMiddleware(httpmiddleware.ClientIP)
		byOperator = limiter.GinMiddleware(operatorKey)
	}

	public := r.Group("/v1/operators", byIP)
	public.POST("/token", h.IssueToken)
	public.POST("/refresh", h.RefreshToken)

	v1 := r.Group("/v1", auth.OperatorAuth(h.issuer), byOperator)
	v1.GET("/dashboard", h.Snapshot)
	v1.GET("/classes", h.ListClasses)
	v1.POST("/classes", h.AddClass)
	v1.GET("/classes/:id/roster", h.Roster)
	v1.POST("/classes/:id/expand", h.Expand)
	v1.POST("/classes/:id/toggle", h.Toggle)
	v1.POST("/classes/:id/abort", h.Abort)
	v1.POST("/commit", h.Commit)
	v1.POST("/feedback", h.Feedback)
	v1.GET("/profiles", h.ListProfiles)
	v1.POST("/profiles", h.Enroll)
	v1.GET("/events", h.Events)

	return r
}

func noLimit(c *gin.Context) { c.Next() }

// operatorKey charges authenticated requests to the operator.
func operatorKey(c *gin.Context) string {
	if claims, ok := auth.ClaimsFrom(c); ok && claims.Subject != "" {
		return "op:" + claims.Subject
	}
	return httpmiddleware.ClientIP(c)
}
