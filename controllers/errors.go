package controllers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/podcast-studio/repository"
	"github.com/vnkhanh/podcast-studio/services"
	"github.com/vnkhanh/podcast-studio/stream"
	"github.com/vnkhanh/podcast-studio/workspace"
)

// respondError ánh xạ lỗi tầng dưới sang HTTP status
func respondError(c *gin.Context, err error) {
	status, msg := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	body := gin.H{"error": msg, "details": err.Error()}
	if ge, ok := services.IsGenerationError(err); ok {
		body["kind"] = ge.Kind
	}
	c.JSON(status, body)
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, workspace.ErrNotOwner):
		return http.StatusNotFound, "Không tìm thấy podcast"
	case errors.Is(err, workspace.ErrNodeNotFound), errors.Is(err, stream.ErrTargetMissing):
		return http.StatusNotFound, "Không tìm thấy node"
	case errors.Is(err, workspace.ErrInvalidNode), errors.Is(err, workspace.ErrRootImmutable):
		return http.StatusBadRequest, "Thao tác không hợp lệ với node này"
	case errors.Is(err, workspace.ErrEmptyScript):
		return http.StatusUnprocessableEntity, "Nhánh đang kể chưa có nội dung"
	case errors.Is(err, stream.ErrBusy):
		return http.StatusConflict, "Đang có một luồng sinh nội dung khác"
	case errors.Is(err, workspace.ErrNarrationDisabled):
		return http.StatusServiceUnavailable, "Chưa cấu hình đọc audio"
	case errors.Is(err, services.ErrUnsupportedInput):
		return http.StatusBadRequest, "Loại file không được hỗ trợ"
	}
	var fe *stream.FrameError
	if _, ok := services.IsGenerationError(err); ok || errors.As(err, &fe) {
		return http.StatusBadGateway, "Dịch vụ sinh nội dung gặp lỗi"
	}
	return http.StatusInternalServerError, "Lỗi máy chủ"
}
