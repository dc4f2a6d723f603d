package controllers

import (
	"context"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vnkhanh/podcast-studio/middleware"
	"github.com/vnkhanh/podcast-studio/models"
	"github.com/vnkhanh/podcast-studio/services"
	"github.com/vnkhanh/podcast-studio/tree"
	"github.com/vnkhanh/podcast-studio/workspace"
)

const (
	maxTitleRunes     = 255
	maxRootTopicRunes = 2000
)

// PodcastStore là phần của repository mà CRUD podcast cần
type PodcastStore interface {
	CreatePodcast(ctx context.Context, p *models.Podcast) (models.Node, error)
	GetPodcast(ctx context.Context, id, userID uuid.UUID) (models.Podcast, error)
	ListPodcasts(ctx context.Context, userID uuid.UUID) ([]models.Podcast, error)
	DeletePodcast(ctx context.Context, id, userID uuid.UUID) error
	UpdatePodcastMeta(ctx context.Context, p models.Podcast) error
	ListExports(ctx context.Context, podcastID uuid.UUID) ([]models.SavedPodcast, error)
}

// FileRemover xoá file export/audio trên storage theo URL công khai
type FileRemover interface {
	Delete(ctx context.Context, publicURL string) error
}

type PodcastController struct {
	store    PodcastStore
	sessions *workspace.Manager
	files    FileRemover
	summary  services.TextGenerator
}

// NewPodcastController: files và summary có thể nil
func NewPodcastController(store PodcastStore, sessions *workspace.Manager, files FileRemover, summary services.TextGenerator) *PodcastController {
	return &PodcastController{store: store, sessions: sessions, files: files, summary: summary}
}

type CreatePodcastInput struct {
	Title       string             `json:"title"`
	RootTopic   string             `json:"root_topic" binding:"required"`
	ScriptStyle models.ScriptStyle `json:"script_style"`
	HostName    string             `json:"host_name"`
	CoHostName  string             `json:"co_host_name"`
}

type UpdatePodcastInput struct {
	Title       *string             `json:"title"`
	ScriptStyle *models.ScriptStyle `json:"script_style"`
	HostName    *string             `json:"host_name"`
	CoHostName  *string             `json:"co_host_name"`
}

func (p *PodcastController) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	podcasts, err := p.store.ListPodcasts(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": podcasts, "total": len(podcasts)})
}

func (p *PodcastController) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var input CreatePodcastInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p.create(c, userID, input)
}

// Import đọc file (pdf, docx, txt) hoặc đoạn text, nhờ AI rút ra chủ đề rồi tạo podcast
func (p *PodcastController) Import(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var text, fallbackTitle string
	if file, err := c.FormFile("file"); err == nil {
		text, err = services.ExtractFile(file)
		if err != nil {
			respondError(c, err)
			return
		}
		fallbackTitle = strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
	} else {
		text = c.PostForm("text")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cần file hoặc nội dung text"})
		return
	}

	input := CreatePodcastInput{
		Title:       c.PostForm("title"),
		ScriptStyle: models.ScriptStyle(c.PostForm("script_style")),
		HostName:    c.PostForm("host_name"),
		CoHostName:  c.PostForm("co_host_name"),
	}
	topic, err := p.importedTopic(c.Request.Context(), text)
	if err != nil {
		respondError(c, err)
		return
	}
	input.RootTopic = topic.RootTopic
	if input.Title == "" {
		input.Title = topic.Title
	}
	if input.Title == "" {
		input.Title = fallbackTitle
	}
	p.create(c, userID, input)
}

// importedTopic: chưa cấu hình AI thì lấy đoạn đầu của văn bản đã làm sạch
func (p *PodcastController) importedTopic(ctx context.Context, text string) (services.ImportedTopic, error) {
	if p.summary != nil {
		return services.SummarizeTopic(ctx, p.summary, text)
	}
	cleaned := services.PreCleanText(text)
	if cleaned == "" {
		cleaned = text
	}
	return services.ImportedTopic{RootTopic: clipRunes(cleaned, maxRootTopicRunes)}, nil
}

func (p *PodcastController) create(c *gin.Context, userID uuid.UUID, input CreatePodcastInput) {
	input.RootTopic = strings.TrimSpace(input.RootTopic)
	if input.RootTopic == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Chủ đề gốc không được để trống"})
		return
	}
	if input.ScriptStyle == "" {
		input.ScriptStyle = models.StyleMonologue
	}
	if !input.ScriptStyle.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "script_style phải là monologue hoặc dialogue"})
		return
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = input.RootTopic
	}

	podcast := models.Podcast{
		UserID:      userID,
		Title:       clipRunes(title, maxTitleRunes),
		RootTopic:   input.RootTopic,
		ScriptStyle: input.ScriptStyle,
		HostName:    input.HostName,
		CoHostName:  input.CoHostName,
		Status:      models.StatusDraft,
	}
	root, err := p.store.CreatePodcast(c.Request.Context(), &podcast)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Tạo podcast thành công",
		"podcast": podcast,
		"root":    root,
	})
}

// Get mở phiên làm việc (nếu chưa mở) và trả về toàn bộ canvas
func (p *PodcastController) Get(c *gin.Context) {
	s, ok := openSession(c, p.sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.View())
}

func (p *PodcastController) Update(c *gin.Context) {
	s, ok := openSession(c, p.sessions)
	if !ok {
		return
	}
	var input UpdatePodcastInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.ScriptStyle != nil && !input.ScriptStyle.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "script_style phải là monologue hoặc dialogue"})
		return
	}
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Tiêu đề không được để trống"})
		return
	}

	updated, err := s.UpdatePodcast(tree.PodcastPatch{
		Title:       input.Title,
		ScriptStyle: input.ScriptStyle,
		HostName:    input.HostName,
		CoHostName:  input.CoHostName,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	// metadata ghi ngay, cây vẫn đi qua autosave
	if err := p.store.UpdatePodcastMeta(c.Request.Context(), updated); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cập nhật podcast thành công", "podcast": updated})
}

// Delete xoá podcast, bỏ phiên đang mở và dọn file export/audio trên storage
func (p *PodcastController) Delete(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID podcast không hợp lệ"})
		return
	}
	ctx := c.Request.Context()
	if _, err := p.store.GetPodcast(ctx, id, userID); err != nil {
		respondError(c, err)
		return
	}
	exports, err := p.store.ListExports(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	// bỏ phiên trước để autosave không ghi lại node sau khi xoá
	p.sessions.Evict(id)
	if err := p.store.DeletePodcast(ctx, id, userID); err != nil {
		respondError(c, err)
		return
	}

	if p.files != nil {
		for _, e := range exports {
			for _, url := range []string{e.FileURL, e.AudioURL} {
				if err := p.files.Delete(ctx, url); err != nil {
					log.Printf("Xóa file %s thất bại: %v", url, err)
				}
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Xóa podcast thành công"})
}

// ===== helpers =====

func requireUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user_id không hợp lệ"})
	}
	return userID, ok
}

func openSession(c *gin.Context, sessions *workspace.Manager) (*workspace.Session, bool) {
	userID, ok := requireUser(c)
	if !ok {
		return nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID podcast không hợp lệ"})
		return nil, false
	}
	s, err := sessions.Open(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return s, true
}

func clipRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
