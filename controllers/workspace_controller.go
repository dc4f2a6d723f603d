package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/vnkhanh/podcast-studio/models"
	"github.com/vnkhanh/podcast-studio/services"
	"github.com/vnkhanh/podcast-studio/stream"
	"github.com/vnkhanh/podcast-studio/tree"
	"github.com/vnkhanh/podcast-studio/workspace"
)

// WorkspaceController điều khiển canvas của một podcast đang mở
type WorkspaceController struct {
	sessions *workspace.Manager
}

func NewWorkspaceController(sessions *workspace.Manager) *WorkspaceController {
	return &WorkspaceController{sessions: sessions}
}

type CountInput struct {
	Count int `json:"count"`
}

type UpdateNodeInput struct {
	Title    *string           `json:"title"`
	Content  *string           `json:"content"`
	Metadata datatypes.JSONMap `json:"metadata"`
}

type NarrateInput struct {
	Voice        string  `json:"voice"`
	SpeakingRate float64 `json:"speaking_rate"`
}

// Frame gửi xuống trình duyệt trong luồng SSE
type Frame struct {
	Type   string       `json:"type"` // state | fragment | done | error
	NodeID uuid.UUID    `json:"node_id,omitempty"`
	State  stream.State `json:"state,omitempty"`
	Text   string       `json:"text,omitempty"`
	Node   *models.Node `json:"node,omitempty"`
	Error  string       `json:"error,omitempty"`
}

func (w *WorkspaceController) Layout(c *gin.Context) {
	s, ok := openSession(c, w.sessions)
	if !ok {
		return
	}
	positions, bounds := s.Layout()
	c.JSON(http.StatusOK, gin.H{"positions": positions, "bounds": bounds})
}

func (w *WorkspaceController) Expand(c *gin.Context) {
	w.topics(c, services.DefaultTopicCount, (*workspace.Session).ExpandTopics)
}

func (w *WorkspaceController) LoadMore(c *gin.Context) {
	w.topics(c, services.DefaultMoreCount, (*workspace.Session).LoadMore)
}

type topicsFunc func(*workspace.Session, context.Context, uuid.UUID, int) ([]models.Node, error)

func (w *WorkspaceController) topics(c *gin.Context, defaultCount int, run topicsFunc) {
	s, nodeID, ok := w.sessionNode(c)
	if !ok {
		return
	}
	var input CountInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	count := input.Count
	if count <= 0 || count > 20 {
		count = defaultCount
	}

	nodes, err := run(s, c.Request.Context(), nodeID, count)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes, "path_node_ids": s.Store().PathIDs()})
}

// Content stream đoạn kịch bản của một chủ đề về trình duyệt dưới dạng SSE
func (w *WorkspaceController) Content(c *gin.Context) {
	w.relay(c, (*workspace.Session).GenerateContent)
}

// Ending stream lời kết vào node ending
func (w *WorkspaceController) Ending(c *gin.Context) {
	w.relay(c, (*workspace.Session).GenerateEnding)
}

type streamFunc func(*workspace.Session, context.Context, uuid.UUID, func(stream.Event)) (models.Node, error)

// relay chỉ mở SSE khi có sự kiện đầu tiên; lỗi trước đó trả về JSON như các route khác
func (w *WorkspaceController) relay(c *gin.Context, run streamFunc) {
	s, nodeID, ok := w.sessionNode(c)
	if !ok {
		return
	}

	started := false
	send := func(f Frame) {
		if !started {
			started = true
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.Header("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
		}
		writeFrame(c, f)
	}

	node, err := run(s, c.Request.Context(), nodeID, func(e stream.Event) {
		switch e.Kind {
		case stream.EventFragment:
			send(Frame{Type: "fragment", NodeID: e.TargetID, Text: e.Text})
		case stream.EventState:
			f := Frame{Type: "state", NodeID: e.TargetID, State: e.State}
			if e.Err != nil {
				f.Error = e.Err.Error()
			}
			send(f)
		}
	})
	if err != nil && !started {
		respondError(c, err)
		return
	}
	final := Frame{Type: "done", NodeID: node.ID}
	if node.ID != uuid.Nil {
		final.Node = &node
	}
	if err != nil {
		_, msg := statusOf(err)
		final.Type, final.Error = "error", msg+": "+err.Error()
	}
	send(final)
}

func writeFrame(c *gin.Context, f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}

func (w *WorkspaceController) Commit(c *gin.Context) {
	s, nodeID, ok := w.sessionNode(c)
	if !ok {
		return
	}
	removed, err := s.Commit(nodeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed, "path_node_ids": s.Store().PathIDs()})
}

func (w *WorkspaceController) UpdateNode(c *gin.Context) {
	s, nodeID, ok := w.sessionNode(c)
	if !ok {
		return
	}
	var input UpdateNodeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	node, err := s.UpdateNode(nodeID, tree.NodePatch{
		Title:    input.Title,
		Content:  input.Content,
		Metadata: input.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}

func (w *WorkspaceController) DeleteNode(c *gin.Context) {
	s, nodeID, ok := w.sessionNode(c)
	if !ok {
		return
	}
	removed, err := s.DeleteNode(nodeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// Autosave lưu ngay; đang stream thì hoãn và trả về trạng thái hiện tại
func (w *WorkspaceController) Autosave(c *gin.Context) {
	s, ok := openSession(c, w.sessions)
	if !ok {
		return
	}
	if err := s.SaveNow(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"save_status": s.SaveStatus()})
}

func (w *WorkspaceController) Export(c *gin.Context) {
	s, ok := openSession(c, w.sessions)
	if !ok {
		return
	}
	saved, err := s.Export(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (w *WorkspaceController) Narrate(c *gin.Context) {
	s, ok := openSession(c, w.sessions)
	if !ok {
		return
	}
	var input NarrateInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	saved, err := s.Narrate(c.Request.Context(), workspace.NarrateOptions{Voice: input.Voice, Rate: input.SpeakingRate})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (w *WorkspaceController) sessionNode(c *gin.Context) (*workspace.Session, uuid.UUID, bool) {
	s, ok := openSession(c, w.sessions)
	if !ok {
		return nil, uuid.Nil, false
	}
	nodeID, err := uuid.Parse(c.Param("nodeId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID node không hợp lệ"})
		return nil, uuid.Nil, false
	}
	return s, nodeID, true
}
