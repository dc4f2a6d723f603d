package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type NodeType string

const (
	NodeRoot    NodeType = "root"    // Chủ đề gốc, duy nhất mỗi podcast
	NodeTopic   NodeType = "topic"   // Chủ đề con do AI gợi ý
	NodeContent NodeType = "content" // Đoạn kịch bản sinh theo luồng
	NodeEnding  NodeType = "ending"  // Lời kết
	NodeMore    NodeType = "more"    // Nút "tải thêm" trên canvas
)

// Node là một nút trong cây dàn ý của podcast
type Node struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	PodcastID  uuid.UUID         `gorm:"type:uuid;not null;index" json:"podcast_id"`
	ParentID   *uuid.UUID        `gorm:"type:uuid;index" json:"parent_id"`
	NodeType   NodeType          `gorm:"type:varchar(20);not null" json:"node_type"`
	Title      string            `gorm:"size:255;not null" json:"title"`
	Content    string            `gorm:"type:text" json:"content"`
	PositionX  float64           `json:"position_x"`
	PositionY  float64           `json:"position_y"`
	IsExpanded bool              `gorm:"default:false" json:"is_expanded"`
	OrderIndex int               `gorm:"not null;default:0" json:"order_index"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt  time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

func (Node) TableName() string { return "studio_nodes" }

func (n Node) IsRoot() bool {
	return n.NodeType == NodeRoot && n.ParentID == nil
}

// HasParent so sánh parent_id với id cho trước (nil-safe)
func (n Node) HasParent(id uuid.UUID) bool {
	return n.ParentID != nil && *n.ParentID == id
}

// Clone trả về bản sao, metadata được copy riêng để tránh chia sẻ map
func (n Node) Clone() Node {
	out := n
	if n.ParentID != nil {
		p := *n.ParentID
		out.ParentID = &p
	}
	if n.Metadata != nil {
		out.Metadata = make(datatypes.JSONMap, len(n.Metadata))
		for k, v := range n.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
