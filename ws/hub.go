package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vnkhanh/podcast-studio/workspace"
)

type Client struct {
	Conn *websocket.Conn
	Send chan []byte
}

type Hub struct {
	Clients map[string]map[*websocket.Conn]*Client // Theo từng podcastID
	Mutex   sync.RWMutex
}

// Stats số kết nối đang mở, dùng cho health check
type Stats struct {
	Podcasts    int `json:"podcasts"`
	Connections int `json:"connections"`
}

func NewHub() *Hub {
	return &Hub{Clients: make(map[string]map[*websocket.Conn]*Client)}
}

var H = NewHub()

// Register theo podcastID riêng, trả về client để chạy writePump
func (h *Hub) Register(podcastID string, conn *websocket.Conn) *Client {
	h.Mutex.Lock()
	defer h.Mutex.Unlock()

	if _, ok := h.Clients[podcastID]; !ok {
		h.Clients[podcastID] = make(map[*websocket.Conn]*Client)
	}

	client := &Client{
		Conn: conn,
		Send: make(chan []byte, 256),
	}
	h.Clients[podcastID][conn] = client
	return client
}

// Broadcast theo podcastID, bỏ qua client bị đầy buffer
func (h *Hub) Broadcast(podcastID string, data []byte) {
	h.Mutex.RLock()
	defer h.Mutex.RUnlock()

	if clients, ok := h.Clients[podcastID]; ok {
		for _, client := range clients {
			select {
			case client.Send <- data:
			default:
			}
		}
	}
}

// Publish gửi sự kiện canvas tới mọi tab đang mở podcast
func (h *Hub) Publish(podcastID uuid.UUID, evt workspace.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Println("JSON marshal error:", err)
		return
	}
	h.Broadcast(podcastID.String(), data)
}

// Unregister client theo podcastID
func (h *Hub) Unregister(podcastID string, conn *websocket.Conn) {
	h.Mutex.Lock()
	defer h.Mutex.Unlock()

	if clients, ok := h.Clients[podcastID]; ok {
		if client, ok := clients[conn]; ok {
			close(client.Send)
			delete(clients, conn)
		}
		if len(clients) == 0 {
			delete(h.Clients, podcastID)
		}
	}
}

func (h *Hub) GetStats() Stats {
	h.Mutex.RLock()
	defer h.Mutex.RUnlock()

	stats := Stats{Podcasts: len(h.Clients)}
	for _, clients := range h.Clients {
		stats.Connections += len(clients)
	}
	return stats
}

// Read pump chỉ để phát hiện client ngắt kết nối
func (h *Hub) readPump(podcastID string, conn *websocket.Conn) {
	defer h.Unregister(podcastID, conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *Hub) writePump(client *Client) {
	defer func() {
		client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
		client.Conn.Close()
	}()
	for msg := range client.Send {
		if err := client.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
}
