package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ScriptStyle string

const (
	StyleMonologue ScriptStyle = "monologue" // Một người dẫn
	StyleDialogue  ScriptStyle = "dialogue"  // Hai người dẫn đối thoại
)

type PodcastStatus string

const (
	StatusDraft     PodcastStatus = "draft"
	StatusCompleted PodcastStatus = "completed"
)

// Podcast là một phiên soạn kịch bản: chủ đề gốc + cây dàn ý trên canvas
type Podcast struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Title          string         `gorm:"size:255;not null" json:"title"`
	RootTopic      string         `gorm:"type:text;not null" json:"root_topic"`
	ScriptStyle    ScriptStyle    `gorm:"type:varchar(20);default:'monologue'" json:"script_style"`
	HostName       string         `gorm:"size:100" json:"host_name"`
	CoHostName     string         `gorm:"size:100" json:"co_host_name"`
	Status         PodcastStatus  `gorm:"type:varchar(20);default:'draft'" json:"status"` // draft | completed
	CanvasState    datatypes.JSON `gorm:"type:jsonb" json:"canvas_state"`
	LastAutosaveAt *time.Time     `json:"last_autosave_at"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Podcast) TableName() string { return "studio_podcasts" }

// Valid kiểm tra style có nằm trong tập cho phép không
func (s ScriptStyle) Valid() bool {
	return s == StyleMonologue || s == StyleDialogue
}
