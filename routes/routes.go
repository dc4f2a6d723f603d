package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/podcast-studio/controllers"
	"github.com/vnkhanh/podcast-studio/metrics"
	"github.com/vnkhanh/podcast-studio/middleware"
	"github.com/vnkhanh/podcast-studio/ws"
)

// Handlers gom các controller đã khởi tạo trong main
type Handlers struct {
	Users     middleware.UserChecker
	Hub       *ws.Hub
	Access    ws.AccessFunc
	Health    *controllers.HealthController
	Auth      *controllers.AuthController
	Podcasts  *controllers.PodcastController
	Workspace *controllers.WorkspaceController
	TTS       *controllers.TTSController
	Stats     *controllers.StatsController
}

func SetupRouter(r *gin.Engine, h Handlers) *gin.Engine {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	r.GET("/health", h.Health.HealthCheck)
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/logingoogle", h.Auth.GoogleLogin)
	}

	user := api.Group("/user")
	{
		user.Use(middleware.AuthMiddleware(h.Users))
		user.PUT("/password", h.Auth.ChangePassword)
	}

	podcasts := api.Group("/podcasts")
	{
		podcasts.Use(middleware.AuthMiddleware(h.Users))

		podcasts.GET("", h.Podcasts.List)
		podcasts.POST("", h.Podcasts.Create)
		podcasts.POST("/import", h.Podcasts.Import)
		podcasts.GET("/:id", h.Podcasts.Get)
		podcasts.PATCH("/:id", h.Podcasts.Update)
		podcasts.DELETE("/:id", h.Podcasts.Delete)

		// Canvas
		podcasts.GET("/:id/layout", h.Workspace.Layout)
		podcasts.POST("/:id/nodes/:nodeId/expand", h.Workspace.Expand)
		podcasts.POST("/:id/nodes/:nodeId/more", h.Workspace.LoadMore)
		podcasts.POST("/:id/nodes/:nodeId/content", h.Workspace.Content)
		podcasts.POST("/:id/nodes/:nodeId/ending", h.Workspace.Ending)
		podcasts.POST("/:id/nodes/:nodeId/commit", h.Workspace.Commit)
		podcasts.PATCH("/:id/nodes/:nodeId", h.Workspace.UpdateNode)
		podcasts.DELETE("/:id/nodes/:nodeId", h.Workspace.DeleteNode)

		podcasts.POST("/:id/autosave", h.Workspace.Autosave)
		podcasts.POST("/:id/export", h.Workspace.Export)
		podcasts.POST("/:id/narrate", h.Workspace.Narrate)
	}

	api.POST("/tts/preview", middleware.AuthMiddleware(h.Users), h.TTS.Preview)

	admin := api.Group("/admin")
	{
		admin.Use(middleware.AuthMiddleware(h.Users), middleware.RequireRoles("admin"))
		admin.GET("/stats/overview", h.Stats.Overview)
		admin.GET("/stats/generations", h.Stats.Generations)
	}

	// WebSocket: token đi qua query
	r.GET("/ws/podcast/:id", h.Hub.HandlePodcastWebSocket(h.Access))

	return r
}
