// Package repository là tầng lưu trữ (gorm/postgres) cho podcast, node, lịch sử
// sinh nội dung, bản export và người dùng.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vnkhanh/podcast-studio/models"
)

const upsertBatchSize = 200

var ErrNotFound = errors.New("không tìm thấy bản ghi")

type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *gorm.DB { return r.db }

// ===== Podcast =====

// CreatePodcast tạo podcast cùng node gốc trong một transaction
func (r *Repository) CreatePodcast(ctx context.Context, p *models.Podcast) (models.Node, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.ScriptStyle == "" {
		p.ScriptStyle = models.StyleMonologue
	}
	if p.Status == "" {
		p.Status = models.StatusDraft
	}
	root := models.Node{
		ID:         uuid.New(),
		PodcastID:  p.ID,
		NodeType:   models.NodeRoot,
		Title:      p.RootTopic,
		IsExpanded: true,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("tạo podcast: %w", err)
		}
		if err := tx.Create(&root).Error; err != nil {
			return fmt.Errorf("tạo node gốc: %w", err)
		}
		return nil
	})
	return root, err
}

func (r *Repository) GetPodcast(ctx context.Context, id, userID uuid.UUID) (models.Podcast, error) {
	var p models.Podcast
	err := ownedPodcast(r.db.WithContext(ctx), id, userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p, ErrNotFound
	}
	return p, err
}

func (r *Repository) ListPodcasts(ctx context.Context, userID uuid.UUID) ([]models.Podcast, error) {
	var out []models.Podcast
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&out).Error
	return out, err
}

// DeletePodcast xoá podcast và toàn bộ dữ liệu phụ thuộc
func (r *Repository) DeletePodcast(ctx context.Context, id, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := ownedPodcast(tx, id, userID).Delete(&models.Podcast{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		for _, m := range []interface{}{&models.Node{}, &models.GenerationHistory{}, &models.SavedPodcast{}} {
			if err := tx.Where("podcast_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdatePodcastMeta ghi các trường người dùng sửa được (tiêu đề, phong cách, tên người dẫn, trạng thái)
func (r *Repository) UpdatePodcastMeta(ctx context.Context, p models.Podcast) error {
	return r.db.WithContext(ctx).Model(&models.Podcast{}).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{
			"title":        p.Title,
			"script_style": p.ScriptStyle,
			"host_name":    p.HostName,
			"co_host_name": p.CoHostName,
			"status":       p.Status,
		}).Error
}

// SaveAutosave cập nhật metadata podcast (trạng thái, canvas, thời điểm lưu) và upsert toàn bộ node
func (r *Repository) SaveAutosave(ctx context.Context, p models.Podcast, nodes []models.Node, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Podcast{}).
			Where("id = ?", p.ID).
			Updates(map[string]interface{}{
				"title":            p.Title,
				"script_style":     p.ScriptStyle,
				"host_name":        p.HostName,
				"co_host_name":     p.CoHostName,
				"status":           p.Status,
				"canvas_state":     p.CanvasState,
				"last_autosave_at": at,
			}).Error
		if err != nil {
			return fmt.Errorf("cập nhật podcast: %w", err)
		}
		return upsertNodes(tx, nodes)
	})
}

// ===== Node =====

// ListNodes trả về toàn bộ node của podcast theo thứ tự tạo
func (r *Repository) ListNodes(ctx context.Context, podcastID uuid.UUID) ([]models.Node, error) {
	var out []models.Node
	err := nodesByPodcast(r.db.WithContext(ctx), podcastID).Find(&out).Error
	return out, err
}

func (r *Repository) UpsertNodes(ctx context.Context, nodes []models.Node) error {
	return upsertNodes(r.db.WithContext(ctx), nodes)
}

// DeleteNodes xoá các node theo id, chỉ trong phạm vi một podcast
func (r *Repository) DeleteNodes(ctx context.Context, podcastID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return deleteNodes(r.db.WithContext(ctx), podcastID, ids).Error
}

// ===== Lịch sử & export =====

func (r *Repository) RecordGeneration(ctx context.Context, h *models.GenerationHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(h).Error
}

func (r *Repository) SaveExport(ctx context.Context, s *models.SavedPodcast) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repository) UpdateExportAudio(ctx context.Context, id uuid.UUID, audioURL string, durationSec int) error {
	return r.db.WithContext(ctx).Model(&models.SavedPodcast{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"audio_url": audioURL, "audio_duration_sec": durationSec}).Error
}

// LatestExport trả về bản export mới nhất của podcast
func (r *Repository) LatestExport(ctx context.Context, podcastID uuid.UUID) (models.SavedPodcast, error) {
	var s models.SavedPodcast
	err := r.db.WithContext(ctx).
		Where("podcast_id = ?", podcastID).
		Order("created_at DESC").
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s, ErrNotFound
	}
	return s, err
}

// ListExports trả về mọi bản export của podcast, dùng để dọn file khi xoá podcast
func (r *Repository) ListExports(ctx context.Context, podcastID uuid.UUID) ([]models.SavedPodcast, error) {
	var out []models.SavedPodcast
	err := exportsByPodcast(r.db.WithContext(ctx), podcastID).Find(&out).Error
	return out, err
}

// ===== Thống kê =====

type Overview struct {
	TotalUsers       int64   `json:"total_users"`
	TotalPodcasts    int64   `json:"total_podcasts"`
	CompletedCount   int64   `json:"completed_podcasts"`
	TotalNodes       int64   `json:"total_nodes"`
	TotalGenerations int64   `json:"total_generations"`
	AvgGenerationMs  float64 `json:"avg_generation_ms"`
	TotalExports     int64   `json:"total_exports"`
}

type KindStat struct {
	Kind  string  `json:"kind"`
	Count int64   `json:"count"`
	AvgMs float64 `json:"avg_ms"`
}

// Overview đếm nhanh số liệu toàn hệ thống cho trang quản trị
func (r *Repository) Overview(ctx context.Context) (Overview, error) {
	var o Overview
	db := r.db.WithContext(ctx)
	counts := []struct {
		model interface{}
		where string
		dst   *int64
	}{
		{&models.User{}, "", &o.TotalUsers},
		{&models.Podcast{}, "", &o.TotalPodcasts},
		{&models.Podcast{}, "status = 'completed'", &o.CompletedCount},
		{&models.Node{}, "", &o.TotalNodes},
		{&models.GenerationHistory{}, "", &o.TotalGenerations},
		{&models.SavedPodcast{}, "", &o.TotalExports},
	}
	for _, c := range counts {
		q := db.Model(c.model)
		if c.where != "" {
			q = q.Where(c.where)
		}
		if err := q.Count(c.dst).Error; err != nil {
			return o, err
		}
	}
	err := db.Model(&models.GenerationHistory{}).
		Select("COALESCE(AVG(generation_time_ms), 0)").
		Scan(&o.AvgGenerationMs).Error
	return o, err
}

// GenerationStats gom lịch sử sinh nội dung theo loại trong khoảng [from, to)
func (r *Repository) GenerationStats(ctx context.Context, from, to time.Time) ([]KindStat, error) {
	var out []KindStat
	err := generationStats(r.db.WithContext(ctx), from, to).Scan(&out).Error
	return out, err
}

// ===== User =====

func (r *Repository) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *Repository) FindUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return u, ErrNotFound
	}
	return u, err
}

func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, hashed string) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("password", hashed).Error
}

func (r *Repository) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return u, ErrNotFound
	}
	return u, err
}

// UserActive kiểm tra tài khoản còn hoạt động (status nil coi như đang hoạt động)
func (r *Repository) UserActive(ctx context.Context, id string) (bool, error) {
	var u models.User
	err := r.db.WithContext(ctx).Select("status").First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return u.Status == nil || *u.Status, nil
}

// ===== query builders =====

func ownedPodcast(tx *gorm.DB, id, userID uuid.UUID) *gorm.DB {
	return tx.Where("id = ? AND user_id = ?", id, userID)
}

func nodesByPodcast(tx *gorm.DB, podcastID uuid.UUID) *gorm.DB {
	return tx.Where("podcast_id = ?", podcastID).Order("created_at ASC").Order("id ASC")
}

func exportsByPodcast(tx *gorm.DB, podcastID uuid.UUID) *gorm.DB {
	return tx.Where("podcast_id = ?", podcastID).Order("created_at DESC")
}

func generationStats(tx *gorm.DB, from, to time.Time) *gorm.DB {
	return tx.Model(&models.GenerationHistory{}).
		Select("kind, COUNT(*) AS count, COALESCE(AVG(generation_time_ms), 0) AS avg_ms").
		Where("created_at >= ? AND created_at < ?", from, to).
		Group("kind").
		Order("kind")
}

func deleteNodes(tx *gorm.DB, podcastID uuid.UUID, ids []uuid.UUID) *gorm.DB {
	return tx.Where("podcast_id = ? AND id IN ?", podcastID, ids).Delete(&models.Node{})
}

func upsertNodes(tx *gorm.DB, nodes []models.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	return tx.Clauses(onConflictUpdateAll()).CreateInBatches(&nodes, upsertBatchSize).Error
}

// upsert theo id: node đã có thì ghi đè mọi cột
func onConflictUpdateAll() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}
}
