package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yukbelajar/tryout-backend/internal/config"
	"github.com/yukbelajar/tryout-backend/internal/handler"
	"github.com/yukbelajar/tryout-backend/internal/middleware"
	"github.com/yukbelajar/tryout-backend/internal/response"
	"github.com/yukbelajar/tryout-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Portal  *handler.PortalHandler
	Attempt *handler.AttemptHandler
	Tryout  *handler.TryoutHandler
	Monitor *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	userService *service.UserService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for the operator login route (30 requests per minute per IP).
	loginLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Operator) ──────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/operator/login", loginLimiter.Middleware(), handlers.Auth.Login)
		auth.GET("/operator/me", middleware.RequireOperatorJWT(authService), handlers.Auth.Me)
	}

	// ─── 2. Participant Group (Identity JWT) ───────────────────────────
	participantAPI := router.Group("/api/v1")
	participantAPI.Use(
		middleware.RequireParticipantJWT(authService),
		middleware.AttachUser(userService),
	)
	{
		participantAPI.GET("/tryouts", handlers.Portal.GetLobby)
		participantAPI.POST("/tryouts/:tryout_id/join", handlers.Portal.Join)
		participantAPI.GET("/tryouts/:tryout_id/paper", handlers.Portal.GetPaper)
		participantAPI.GET("/tryouts/:tryout_id/attempt", handlers.Portal.GetMyAttempt)

		participantAPI.GET("/attempts/:attempt_id/state", handlers.Attempt.GetState)
		participantAPI.POST("/attempts/:attempt_id/events", handlers.Attempt.PushEvents)
		participantAPI.POST("/attempts/:attempt_id/advance", handlers.Attempt.Advance)
		participantAPI.POST("/attempts/:attempt_id/submit", handlers.Attempt.Submit)
	}

	// ─── 3. WebSocket Group (Operator WS Auth) ─────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireOperatorWSAuth(authService))
	{
		ws.GET("/operator/tryouts/:tryout_id/monitor", handlers.Monitor.MonitorStream)
	}

	// ─── 4. Operator Group (Operator JWT) ──────────────────────────────
	operatorAPI := router.Group("/api/v1/operator")
	operatorAPI.Use(middleware.RequireOperatorJWT(authService))
	{
		operatorAPI.GET("/tryouts", handlers.Tryout.List)
		operatorAPI.POST("/tryouts", handlers.Tryout.Create)
		operatorAPI.GET("/tryouts/:tryout_id", handlers.Tryout.Get)
		operatorAPI.PUT("/tryouts/:tryout_id", handlers.Tryout.Update)
		operatorAPI.DELETE("/tryouts/:tryout_id", handlers.Tryout.Delete)

		operatorAPI.POST("/tryouts/:tryout_id/subtests", handlers.Tryout.AddSubtest)
		operatorAPI.POST("/subtests/:subtest_id/questions", handlers.Tryout.AddQuestion)

		operatorAPI.POST("/tryouts/:tryout_id/publish", handlers.Tryout.Publish)
		operatorAPI.POST("/tryouts/:tryout_id/refresh-cache", handlers.Tryout.RefreshCache)
		operatorAPI.GET("/tryouts/:tryout_id/results", handlers.Tryout.Results)
	}

	return router
}
