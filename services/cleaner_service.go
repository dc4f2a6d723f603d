package services

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Giới hạn văn bản gửi cho AI khi tóm tắt tài liệu import
const maxImportRunes = 30000

var (
	reTOC          = regexp.MustCompile(`(?im)^(.*mục lục.*|.*table of contents.*)$`)
	rePageNumber   = regexp.MustCompile(`(?im)^.*(trang|page)[^\d\n]*\d+.*$`)
	reSpecialLines = regexp.MustCompile(`(?m)^[ \t\pP\pS\d]*$`)
	reCode         = regexp.MustCompile(`(?im)^.*(const |function |class |<[^>]+>).*?$`)
	reMultiNewLine = regexp.MustCompile(`\n{2,}`)
)

// PreCleanText xử lý thô: loại mục lục, số trang, code, dòng trống thừa
func PreCleanText(text string) string {
	cleaned := reTOC.ReplaceAllString(text, "")
	cleaned = rePageNumber.ReplaceAllString(cleaned, "")
	cleaned = reSpecialLines.ReplaceAllString(cleaned, "")
	cleaned = reCode.ReplaceAllString(cleaned, "")
	cleaned = reMultiNewLine.ReplaceAllString(cleaned, "\n")
	return strings.TrimSpace(cleaned)
}

// ImportedTopic là chủ đề podcast rút ra từ tài liệu
type ImportedTopic struct {
	Title     string `json:"title"`
	RootTopic string `json:"root_topic"`
}

var reJSONObject = regexp.MustCompile(`\{[\s\S]*\}`)

// SummarizeTopic nhờ AI đọc tài liệu và đề xuất tiêu đề + chủ đề gốc cho podcast
func SummarizeTopic(ctx context.Context, gen TextGenerator, text string) (ImportedTopic, error) {
	text = PreCleanText(text)
	if utf8.RuneCountInString(text) > maxImportRunes {
		text = string([]rune(text)[:maxImportRunes])
	}

	prompt := `Bạn là biên tập viên podcast. Hãy đọc tài liệu dưới đây và đề xuất chủ đề cho một tập podcast.
	Yêu cầu:
	1. "title": tiêu đề ngắn gọn, hấp dẫn, tối đa 12 từ
	2. "root_topic": một đoạn 2-3 câu mô tả chủ đề chính của tài liệu, không thêm thông tin không có trong tài liệu
	3. Chỉ trả về một đối tượng JSON {"title": "...", "root_topic": "..."}, không markdown, không giải thích
	Tài liệu:`

	raw, err := gen.GenerateText(ctx, prompt+"\n\n"+text)
	if err != nil {
		return ImportedTopic{}, err
	}
	return parseImportedTopic(raw)
}

func parseImportedTopic(raw string) (ImportedTopic, error) {
	match := reJSONObject.FindString(raw)
	if match == "" {
		return ImportedTopic{}, &GenerationError{Kind: ErrMalformed, Message: "không tìm thấy JSON chủ đề"}
	}
	var out ImportedTopic
	if err := json.Unmarshal([]byte(match), &out); err != nil {
		return ImportedTopic{}, &GenerationError{Kind: ErrMalformed, Message: "JSON chủ đề không hợp lệ", Err: err}
	}
	out.Title = strings.TrimSpace(out.Title)
	out.RootTopic = strings.TrimSpace(out.RootTopic)
	if out.RootTopic == "" {
		return ImportedTopic{}, &GenerationError{Kind: ErrMalformed, Message: "chủ đề rỗng"}
	}
	if out.Title == "" {
		out.Title = out.RootTopic
	}
	return out, nil
}
