// Package httpapi wires the HTTP transport (Gin) to the progression engine,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, request logging, panic recovery, metrics,
// CORS, security headers, idempotency, rate limiting and admin auth.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic router setup; long-lived services are built by the caller
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-progression-engine/internal/config"
	"github.com/tbourn/go-progression-engine/internal/eventbus"
	"github.com/tbourn/go-progression-engine/internal/http/handlers"
	"github.com/tbourn/go-progression-engine/internal/http/middleware"
	"github.com/tbourn/go-progression-engine/internal/presence"
	"github.com/tbourn/go-progression-engine/internal/services"
)

// Services are the long-lived collaborators behind the routes. The caller
// owns their lifecycle (starting and draining the voice tracker).
type Services struct {
	Engine      *services.Engine
	Tracker     *services.VoiceTracker
	Presence    *presence.Registry
	Idempotency *services.IdempotencyStore
	Hub         *eventbus.Hub
}

// NewServices builds the engine, the presence registry and the voice tracker
// over db. The tracker is not started.
func NewServices(db *gorm.DB, cfg config.Config, clock services.Clock) Services {
	hub := eventbus.NewHub()
	eng := services.NewEngine(db, cfg.Engine, clock, hub)
	reg := presence.NewRegistry()
	return Services{
		Engine:      eng,
		Tracker:     services.NewVoiceTracker(eng, reg, hub, cfg.Engine.Voice),
		Presence:    reg,
		Idempotency: &services.IdempotencyStore{DB: db, TTL: cfg.IdempotencyTTL},
		Hub:         hub,
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: one structured line per request
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per subject user, caller or IP; bypass on replay)
//  9. CORS and Security headers
//
// Admin routes additionally require an admin bearer token and are only
// mounted when cfg.Security.AdminJWTSecret is set.
func RegisterRoutes(r *gin.Engine, svc Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured request logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	var lookup middleware.IdempotencyLookup
	if svc.Idempotency != nil {
		lookup = svc.Idempotency.Lookup
	}
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, lookup))

	// 8) Token-bucket rate limiter per subject/caller/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyBySubject())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed", "Retry-After"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS).
	// Progress changes with every award, so responses are never cached.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(depsFrom(svc))

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Progress
		api.GET("/users/:id/progress", h.GetProgress)
		api.GET("/users/:id/activity", gzip.Gzip(gzip.DefaultCompression), h.ListActivity)
		api.GET("/leaderboard", h.Leaderboard)

		// Awards
		api.POST("/users/:id/awards", h.PostAward)
		api.POST("/users/:id/daily", h.ClaimDaily)

		// Voice
		api.POST("/voice/state", h.VoiceState)
		api.GET("/voice/sessions", h.VoiceSessions)

		// Boosts
		api.GET("/boosts/active", h.ActiveBoosts)
		api.GET("/boosts/:id/standings", h.BoostStandings)

		// Live events
		api.GET("/stream/levelups", h.LevelUpStream)
	}

	// Admin corrections
	if cfg.Security.AdminJWTSecret != "" {
		admin := api.Group("/admin", middleware.AdminAuth([]byte(cfg.Security.AdminJWTSecret)))
		{
			admin.POST("/users/:id/xp", h.AdminAwardXP)
			admin.POST("/users/:id/xp/remove", h.AdminRemoveXP)
			admin.POST("/users/:id/penalty/clear", h.ClearPenalty)
			admin.POST("/boosts", h.CreateBoost)
		}
	}
}

// depsFrom adapts Services to the handler contracts. Nil members stay nil
// interfaces so the handlers can detect them.
func depsFrom(svc Services) handlers.Deps {
	d := handlers.Deps{Hub: svc.Hub}
	if svc.Engine != nil {
		d.Progress = svc.Engine
		d.Admin = svc.Engine
		d.Boosts = svc.Engine.Boosts
	}
	if svc.Tracker != nil {
		d.Voice = svc.Tracker
	}
	if svc.Presence != nil {
		d.Presence = svc.Presence
	}
	if svc.Idempotency != nil {
		d.Idempotency = svc.Idempotency
	}
	return d
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
