package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/vnkhanh/podcast-studio/models"
)

const (
	DefaultTopicCount = 7
	DefaultMoreCount  = 5
)

type GenerationKind string

const (
	KindTopics  GenerationKind = "topics"
	KindContent GenerationKind = "content"
	KindEnding  GenerationKind = "ending"
)

type TopicSuggestion struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

type TopicRequest struct {
	RootTopic      string        `json:"rootTopic"`
	PathNodes      []models.Node `json:"pathNodes"`
	CurrentTopic   string        `json:"currentTopic"`
	ExistingTitles []string      `json:"existingTitles,omitempty"`
	Count          int           `json:"count"`
}

type ContentRequest struct {
	Kind         GenerationKind     `json:"kind"`
	RootTopic    string             `json:"rootTopic"`
	PathNodes    []models.Node      `json:"pathNodes"`
	CurrentTopic string             `json:"currentTopic"`
	ScriptStyle  models.ScriptStyle `json:"scriptStyle"`
	HostName     string             `json:"hostName"`
	CoHostName   string             `json:"coHostName"`
}

// TopicResult kèm phần thô để ghi lịch sử sinh nội dung
type TopicResult struct {
	Topics []TopicSuggestion
	Prompt string
	Raw    string
	Tokens *int
}

// Generator là dịch vụ sinh nội dung: gợi ý chủ đề một lần, nội dung theo luồng SSE
type Generator interface {
	Model() string
	GenerateTopics(ctx context.Context, req TopicRequest) (TopicResult, error)
	StreamContent(ctx context.Context, req ContentRequest) (io.ReadCloser, error)
}

// TextGenerator sinh văn bản một lần, dùng cho tóm tắt tài liệu khi import
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type ErrorKind string

const (
	ErrTransport ErrorKind = "transport" // lỗi mạng
	ErrStatus    ErrorKind = "status"    // HTTP status không thành công
	ErrMalformed ErrorKind = "malformed" // kết quả không parse được
	ErrService   ErrorKind = "service"   // dịch vụ tự báo lỗi
)

// GenerationError là lỗi có phân loại trả về từ dịch vụ sinh nội dung
type GenerationError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("generation %s", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (%d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsGenerationError trả về lỗi đã phân loại nếu có trong chuỗi wrap
func IsGenerationError(err error) (*GenerationError, bool) {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

var topicArray = regexp.MustCompile(`\[[\s\S]*\]`)

// ParseTopics tìm mảng JSON đầu tiên trong phản hồi của AI và bỏ các mục không có tiêu đề
func ParseTopics(raw string) ([]TopicSuggestion, error) {
	match := topicArray.FindString(raw)
	if match == "" {
		return nil, &GenerationError{Kind: ErrMalformed, Message: "không tìm thấy mảng chủ đề trong phản hồi"}
	}
	var items []TopicSuggestion
	if err := json.Unmarshal([]byte(match), &items); err != nil {
		return nil, &GenerationError{Kind: ErrMalformed, Message: "JSON chủ đề không hợp lệ", Err: err}
	}
	out := make([]TopicSuggestion, 0, len(items))
	for _, it := range items {
		it.Title = strings.TrimSpace(it.Title)
		it.Summary = strings.TrimSpace(it.Summary)
		if it.Title == "" {
			continue
		}
		out = append(out, it)
	}
	if len(out) == 0 {
		return nil, &GenerationError{Kind: ErrMalformed, Message: "danh sách chủ đề rỗng"}
	}
	return out, nil
}
