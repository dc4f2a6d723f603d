package workspace

import (
	"github.com/google/uuid"
)

// Các loại sự kiện đẩy xuống canvas qua WebSocket
const (
	EventNodesAdded      = "nodes_added"
	EventNodesRemoved    = "nodes_removed"
	EventNodeUpdated     = "node_updated"
	EventPodcastUpdated  = "podcast_updated"
	EventStreamState     = "stream_state"
	EventStreamFragment  = "stream_fragment"
	EventGenerationError = "generation_error"
	EventSaveStatus      = "save_status"
)

type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Publisher đẩy sự kiện tới mọi client đang mở podcast
type Publisher interface {
	Publish(podcastID uuid.UUID, evt Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(uuid.UUID, Event) {}

type streamStatePayload struct {
	NodeID uuid.UUID `json:"node_id"`
	State  string    `json:"state"`
	Error  string    `json:"error,omitempty"`
}

type fragmentPayload struct {
	NodeID uuid.UUID `json:"node_id"`
	Text   string    `json:"text"`
}

type generationErrorPayload struct {
	NodeID uuid.UUID `json:"node_id"`
	Kind   string    `json:"kind"`
	Error  string    `json:"error"`
}
