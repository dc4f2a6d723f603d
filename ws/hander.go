package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vnkhanh/podcast-studio/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // chỉ để phát triển, nên giới hạn ở production
	},
}

// AccessFunc kiểm tra user có quyền mở podcast hay không
type AccessFunc func(ctx context.Context, podcastID, userID uuid.UUID) error

// gửi message dạng JSON qua WebSocket
func sendJSON(conn *websocket.Conn, data interface{}) {
	msg, err := json.Marshal(data)
	if err != nil {
		log.Println("Lỗi JSON marshal:", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		log.Println("Lỗi gửi message:", err)
	}
}

// HandlePodcastWebSocket đẩy sự kiện canvas của một podcast; token truyền qua query vì trình duyệt không gửi header được
func (h *Hub) HandlePodcastWebSocket(access AccessFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		podcastID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ID podcast không hợp lệ"})
			return
		}
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Thiếu token"})
			return
		}
		claims, err := utils.VerifyToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token không hợp lệ hoặc hết hạn"})
			return
		}
		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token không hợp lệ hoặc hết hạn"})
			return
		}
		if err := access(c.Request.Context(), podcastID, userID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Không tìm thấy podcast"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Println("WebSocket upgrade thất bại:", err)
			return
		}
		log.Printf("Podcast WS connected: podcastID=%s, userID=%s\n", podcastID, userID)

		sendJSON(conn, gin.H{"type": "connected", "message": "Connected to podcast " + podcastID.String()})

		key := podcastID.String()
		client := h.Register(key, conn)
		go h.writePump(client)
		h.readPump(key, conn)

		log.Printf("Podcast WS disconnected: podcastID=%s, userID=%s\n", podcastID, userID)
	}
}
