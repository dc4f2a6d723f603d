package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/podcast-studio/repository"
)

type StatsStore interface {
	Overview(ctx context.Context) (repository.Overview, error)
	GenerationStats(ctx context.Context, from, to time.Time) ([]repository.KindStat, error)
}

type StatsController struct {
	store StatsStore
	now   func() time.Time
}

func NewStatsController(store StatsStore) *StatsController {
	return &StatsController{store: store, now: time.Now}
}

func (s *StatsController) Overview(c *gin.Context) {
	o, err := s.store.Overview(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// Generations thống kê số lần sinh nội dung theo loại, mặc định 7 ngày gần nhất (?from=&to= dạng YYYY-MM-DD)
func (s *StatsController) Generations(c *gin.Context) {
	to := s.now()
	from := to.AddDate(0, 0, -7)

	if fromStr := c.Query("from"); fromStr != "" {
		if t, err := time.Parse("2006-01-02", fromStr); err == nil {
			from = t
		}
	}
	if toStr := c.Query("to"); toStr != "" {
		if t, err := time.Parse("2006-01-02", toStr); err == nil {
			to = t.AddDate(0, 0, 1)
		}
	}
	if !from.Before(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Khoảng thời gian không hợp lệ"})
		return
	}

	res, err := s.store.GenerationStats(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "kinds": res})
}
