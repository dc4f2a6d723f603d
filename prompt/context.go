// Package prompt rút gọn nhánh đang kể thành ngữ cảnh cho AI và dựng các prompt.
package prompt

import (
	"fmt"
	"strings"

	"github.com/vnkhanh/podcast-studio/models"
)

const (
	DefaultRecentWindow = 3
	SummaryPrefixRunes  = 100
	TruncationMarker    = "..."
)

type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Compress giữ nguyên recent node cuối; các node cũ hơn chỉ giữ tiêu đề và
// SummaryPrefixRunes ký tự đầu của nội dung. Không sửa slice đầu vào.
func Compress(path []models.Node, recent int) []models.Node {
	if recent < 0 {
		recent = 0
	}
	out := make([]models.Node, len(path))
	copy(out, path)
	if len(path) <= recent {
		return out
	}
	cut := len(path) - recent
	for i := 0; i < cut; i++ {
		out[i].Content = truncate(out[i].Content)
	}
	return out
}

func truncate(body string) string {
	runes := []rune(body)
	if len(runes) <= SummaryPrefixRunes {
		return body
	}
	return string(runes[:SummaryPrefixRunes]) + TruncationMarker
}

// BuildContextMessages dựng ngữ cảnh: chủ đề podcast, sau đó là tóm tắt các
// phần đã kể (bỏ qua node gốc vì chủ đề đã có ở message đầu)
func BuildContextMessages(rootTopic string, path []models.Node) []Message {
	msgs := []Message{{Role: RoleUser, Content: "## Chủ đề podcast\n" + rootTopic}}

	var parts []string
	for _, n := range path {
		if n.NodeType == models.NodeRoot {
			continue
		}
		section := fmt.Sprintf("### %d. %s", len(parts)+1, n.Title)
		if n.Content != "" {
			section += "\n" + n.Content
		}
		parts = append(parts, section)
	}
	if len(parts) > 0 {
		msgs = append(msgs, Message{Role: RoleUser, Content: "## Nội dung đã kể\n" + strings.Join(parts, "\n\n")})
	}
	return msgs
}

// Render nối các message thành một prompt văn bản cho model chỉ nhận text
func Render(msgs []Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}
