package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/podcast-studio/ws"
)

// Pinger kiểm tra kết nối DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthController struct {
	db       Pinger
	hub      *ws.Hub
	sessions func() int
}

func NewHealthController(db Pinger, hub *ws.Hub, sessions func() int) *HealthController {
	return &HealthController{db: db, hub: hub, sessions: sessions}
}

func (h *HealthController) HealthCheck(c *gin.Context) {
	// Mặc định trạng thái OK
	response := gin.H{
		"status":    "ok",
		"message":   "Service is healthy",
		"timestamp": time.Now().Unix(),
		"db":        "ok",
		"sessions":  h.sessions(),
		"websocket": gin.H{
			"enabled": true,
			"stats":   h.hub.GetStats(),
		},
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		response["db"] = "error: cannot connect to DB"
		response["status"] = "degraded"
		c.JSON(http.StatusInternalServerError, response)
		return
	}

	c.JSON(http.StatusOK, response)
}
