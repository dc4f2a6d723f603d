package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// GenerationHistory lưu lại mỗi lần gọi dịch vụ sinh nội dung
type GenerationHistory struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PodcastID        uuid.UUID `gorm:"type:uuid;not null;index" json:"podcast_id"`
	NodeID           uuid.UUID `gorm:"type:uuid;not null;index" json:"node_id"`
	Kind             string    `gorm:"size:20" json:"kind"` // topics | content | ending
	Prompt           string    `gorm:"type:text" json:"prompt"`
	Response         string    `gorm:"type:text" json:"response"`
	Model            string    `gorm:"size:100" json:"model"`
	TokensUsed       *int      `json:"tokens_used"`
	GenerationTimeMs int64     `json:"generation_time_ms"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (GenerationHistory) TableName() string { return "studio_generation_history" }

// SavedPodcast là bản xuất kịch bản theo nhánh đã chọn
type SavedPodcast struct {
	ID                       uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PodcastID                uuid.UUID      `gorm:"type:uuid;not null;index" json:"podcast_id"`
	UserID                   uuid.UUID      `gorm:"type:uuid;not null" json:"user_id"`
	MarkdownContent          string         `gorm:"type:text;not null" json:"markdown_content"`
	PathNodeIDs              datatypes.JSON `gorm:"type:jsonb" json:"path_node_ids"`
	CharCount                int            `json:"char_count"`
	EstimatedDurationMinutes int            `json:"estimated_duration_minutes"`
	FileURL                  string         `gorm:"type:text" json:"file_url"`
	AudioURL                 string         `gorm:"type:text" json:"audio_url"`
	AudioDurationSec         int            `json:"audio_duration_sec"`
	CreatedAt                time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (SavedPodcast) TableName() string { return "studio_saved_podcasts" }
