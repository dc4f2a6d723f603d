package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/vnkhanh/podcast-studio/models"
	"github.com/vnkhanh/podcast-studio/prompt"
	"github.com/vnkhanh/podcast-studio/stream"
)

const DefaultGeminiModel = "gemini-2.0-flash"

// Gemini sinh nội dung bằng Google Gemini
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("thiếu GEMINI_API_KEY")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("không thể tạo Gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) Model() string { return g.model }

// GenerateText gửi prompt và trả kết quả dạng văn bản
func (g *Gemini) GenerateText(ctx context.Context, text string) (string, error) {
	resp, err := g.client.GenerativeModel(g.model).GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return "", &GenerationError{Kind: ErrTransport, Message: "lỗi Gemini xử lý", Err: err}
	}
	out := responseText(resp)
	if out == "" {
		return "", &GenerationError{Kind: ErrMalformed, Message: "gemini không trả kết quả hợp lệ"}
	}
	return out, nil
}

func (g *Gemini) GenerateTopics(ctx context.Context, req TopicRequest) (TopicResult, error) {
	if req.Count <= 0 {
		req.Count = DefaultTopicCount
	}
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = genai.NewUserContent(genai.Text(prompt.SystemTopics))
	model.SetTemperature(0.9)
	model.ResponseMIMEType = "application/json"

	current := req.CurrentTopic
	if current == "" {
		current = req.RootTopic
	}
	userPrompt := prompt.TopicPrompt(current, req.Count, req.ExistingTitles)
	parts := contextParts(req.RootTopic, req.PathNodes, userPrompt)

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return TopicResult{}, &GenerationError{Kind: ErrTransport, Message: "lỗi Gemini gợi ý chủ đề", Err: err}
	}
	raw := responseText(resp)
	topics, err := ParseTopics(raw)
	if err != nil {
		return TopicResult{Prompt: userPrompt, Raw: raw}, err
	}
	res := TopicResult{Topics: topics, Prompt: userPrompt, Raw: raw}
	if resp.UsageMetadata != nil {
		n := int(resp.UsageMetadata.TotalTokenCount)
		res.Tokens = &n
	}
	return res, nil
}

// StreamContent trả về luồng frame SSE; goroutine đọc Gemini sẽ dừng khi ctx
// bị huỷ hoặc khi phía đọc đóng luồng
func (g *Gemini) StreamContent(ctx context.Context, req ContentRequest) (io.ReadCloser, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0.7)

	var userPrompt string
	if req.Kind == KindEnding {
		model.SystemInstruction = genai.NewUserContent(genai.Text(prompt.SystemEnding))
		userPrompt = prompt.EndingPrompt()
	} else {
		model.SystemInstruction = genai.NewUserContent(genai.Text(prompt.SystemContent(req.ScriptStyle, req.HostName, req.CoHostName)))
		userPrompt = prompt.ContentPrompt(req.CurrentTopic)
	}
	iter := model.GenerateContentStream(ctx, contextParts(req.RootTopic, req.PathNodes, userPrompt)...)

	pr, pw := io.Pipe()
	go func() {
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				stream.WriteFrame(pw, stream.Frame{Done: true})
				pw.Close()
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					pw.CloseWithError(ctx.Err())
					return
				}
				log.Printf("gemini stream: %v", err)
				stream.WriteFrame(pw, stream.Frame{Error: err.Error()})
				pw.Close()
				return
			}
			if text := responseText(resp); text != "" {
				if err := stream.WriteFrame(pw, stream.Frame{Text: text}); err != nil {
					// phía đọc đã đóng
					return
				}
			}
		}
	}()
	return pr, nil
}

func contextParts(rootTopic string, path []models.Node, userPrompt string) []genai.Part {
	msgs := prompt.BuildContextMessages(rootTopic, path)
	parts := make([]genai.Part, 0, len(msgs)+1)
	for _, m := range msgs {
		parts = append(parts, genai.Text(m.Content))
	}
	return append(parts, genai.Text(userPrompt))
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
