// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging with secret scrubbing, panic recovery,
// metrics, CORS, security headers, compression, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/limva/limva-backend/internal/ai"
	"github.com/limva/limva-backend/internal/config"
	"github.com/limva/limva-backend/internal/http/handlers"
	"github.com/limva/limva-backend/internal/http/middleware"
	"github.com/limva/limva-backend/internal/imghost"
	"github.com/limva/limva-backend/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting,
// CORS and security headers, health and metrics endpoints, and then mounts
// the public API under the configured base path.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured logs with secret scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (sized for base64 image payloads)
//  6. Metrics
//  7. Rate limiter (per client IP)
//  8. CORS, gzip, and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging (query strings pass through RedactSecrets)
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit. Homework and upload payloads carry base64
	// images; database imports are capped separately in the handler.
	limit := cfg.BodyMaxBytes
	if cfg.ImportMaxBytes > limit {
		limit = cfg.ImportMaxBytes
	}
	r.Use(limitBody(limit))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per client IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
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
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Compress responses; SQL exports shrink dramatically.
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
		NoStore:    true,
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

	// Dependency injection: services ← db, adapters ← config
	aiClient := &ai.Client{
		BaseURL: cfg.Upstream.OpenRouterBaseURL,
		Referer: cfg.Upstream.OpenRouterReferer,
		Title:   cfg.Upstream.OpenRouterTitle,
	}
	uploader := &imghost.Client{Endpoint: cfg.Upstream.ImgBBEndpoint}

	settingsSvc := &services.SettingsService{
		DB:                    db,
		FallbackOpenRouterKey: cfg.Upstream.OpenRouterAPIKey,
		FallbackImgBBKey:      cfg.Upstream.ImgBBAPIKey,
	}
	homeworkSvc := &services.HomeworkService{DB: db, AI: aiClient, Settings: settingsSvc}
	testSvc := &services.TestService{DB: db, AI: aiClient, Settings: settingsSvc}
	chatSvc := &services.ChatService{DB: db, AI: aiClient, Settings: settingsSvc}

	h := handlers.New(settingsSvc, homeworkSvc, testSvc, chatSvc, uploader, db, cfg.Admin, cfg.ImportMaxBytes)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Admin
		api.POST("/admin/login", h.Login)
		admin := api.Group("/admin", h.RequireAdmin)
		{
			admin.GET("/settings", h.GetSettings)
			admin.POST("/settings", h.UpdateSettings)
			admin.GET("/export-database", h.ExportDatabase)
			admin.POST("/import-database", h.ImportDatabase)
		}

		// Homework
		api.POST("/homework/submit", h.SubmitHomework)
		api.GET("/homework", h.ListHomework)
		api.GET("/homework/:id", h.GetHomework)
		api.POST("/homework/:id/followup", h.Followup)

		// Test generation
		api.POST("/test/generate", h.GenerateTest)
		api.POST("/test/generate-from-matrix", h.GenerateTestFromMatrix)
		api.GET("/test", h.ListTests)
		api.GET("/test/:id", h.GetTest)

		// Tutor chat
		api.POST("/chat", h.Chat)
		api.POST("/conversations", h.CreateConversation)
		api.GET("/conversations", h.ListConversations)
		api.PUT("/conversations/:id", h.SaveConversation)
		api.GET("/conversations/:id", h.GetConversation)

		// Image upload proxy
		api.POST("/upload/image", h.UploadImage)
	}
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
