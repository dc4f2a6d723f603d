// Package export dựng bản kịch bản markdown từ nhánh đang kể.
package export

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gosimple/slug"

	"github.com/vnkhanh/podcast-studio/models"
)

// CharsPerMinute là tốc độ đọc dùng để ước lượng thời lượng
const CharsPerMinute = 250

type Document struct {
	Markdown         string `json:"markdown"`
	CharCount        int    `json:"char_count"`
	EstimatedMinutes int    `json:"estimated_minutes"`
}

// Markdown dựng tài liệu theo đúng thứ tự nodes (thường là path đang kể)
func Markdown(title string, nodes []models.Node, now time.Time) Document {
	var lines []string
	lines = append(lines, "# "+title, "")

	chars := 0
	for _, n := range nodes {
		chars += utf8.RuneCountInString(n.Content)
		body := strings.TrimSpace(n.Content)
		switch n.NodeType {
		case models.NodeRoot:
			lines = append(lines, "> Chủ đề: "+n.Title, "")
		case models.NodeEnding:
			lines = append(lines, "## Lời kết", "")
			if body != "" {
				lines = append(lines, n.Content, "")
			}
		case models.NodeTopic, models.NodeContent:
			if body != "" {
				lines = append(lines, "## "+n.Title, "", n.Content, "")
			}
		}
	}

	minutes := EstimateMinutes(chars)
	lines = append(lines, "---", "",
		fmt.Sprintf("*Tạo ngày %s | Tổng %d ký tự | Thời lượng dự kiến %d phút*", now.Format("02/01/2006"), chars, minutes))

	return Document{
		Markdown:         strings.Join(lines, "\n"),
		CharCount:        chars,
		EstimatedMinutes: minutes,
	}
}

// EstimateMinutes làm tròn số phút đọc, tối thiểu 1
func EstimateMinutes(chars int) int {
	m := int(math.Round(float64(chars) / CharsPerMinute))
	if m < 1 {
		return 1
	}
	return m
}

// Script nối phần nội dung thành văn bản thuần để đọc thành audio
func Script(nodes []models.Node) string {
	var parts []string
	for _, n := range nodes {
		if body := strings.TrimSpace(n.Content); body != "" {
			parts = append(parts, body)
		}
	}
	return strings.Join(parts, "\n\n")
}

// FileName tạo tên file an toàn cho storage, ví dụ "bi-an-kim-tu-thap-1700000000.md"
func FileName(title, ext string, now time.Time) string {
	base := slug.Make(title)
	if base == "" {
		base = "podcast"
	}
	return fmt.Sprintf("%s-%d.%s", base, now.Unix(), ext)
}
