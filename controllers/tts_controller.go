package controllers

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/podcast-studio/workspace"
)

// Giới hạn văn bản nghe thử, kịch bản đầy đủ đi qua /narrate
const maxPreviewRunes = 2000

type TTSRequest struct {
	Text         string  `json:"text" binding:"required"`
	Voice        string  `json:"voice"`
	SpeakingRate float64 `json:"speaking_rate"`
}

type TTSController struct {
	narrator workspace.Narrator
}

func NewTTSController(narrator workspace.Narrator) *TTSController {
	return &TTSController{narrator: narrator}
}

// Preview đọc thử một đoạn ngắn để người dùng chọn giọng
func (t *TTSController) Preview(c *gin.Context) {
	if t.narrator == nil {
		respondError(c, workspace.ErrNarrationDisabled)
		return
	}
	var req TTSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	text := []rune(req.Text)
	if len(text) > maxPreviewRunes {
		text = text[:maxPreviewRunes]
	}

	audioContent, err := t.narrator.Synthesize(c.Request.Context(), string(text), req.Voice, req.SpeakingRate)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"voice_used":    req.Voice,
		"audio_content": base64.StdEncoding.EncodeToString(audioContent),
		"message":       "Text converted to speech successfully",
	})
}
