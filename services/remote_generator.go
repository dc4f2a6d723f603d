package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteGenerator gọi một dịch vụ sinh nội dung qua HTTP:
// POST {base}/api/generate/topics trả JSON, POST {base}/api/generate/content trả SSE
type RemoteGenerator struct {
	baseURL string
	token   string
	model   string
	client  *http.Client
}

func NewRemoteGenerator(baseURL, token string) *RemoteGenerator {
	return &RemoteGenerator{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		model:   "remote",
		// không đặt Timeout: luồng SSE có thể kéo dài, thời hạn do ctx quyết định
		client: &http.Client{},
	}
}

func (r *RemoteGenerator) Model() string { return r.model }

type remoteTopicsResponse struct {
	Topics []TopicSuggestion `json:"topics"`
	Model  string            `json:"model,omitempty"`
	Tokens *int              `json:"tokens_used,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func (r *RemoteGenerator) GenerateTopics(ctx context.Context, req TopicRequest) (TopicResult, error) {
	if req.Count <= 0 {
		req.Count = DefaultTopicCount
	}
	ctx, cancel := context.WithTimeout(ctx, 90*time.Second)
	defer cancel()

	resp, err := r.post(ctx, "/api/generate/topics", req)
	if err != nil {
		return TopicResult{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return TopicResult{}, &GenerationError{Kind: ErrTransport, Message: "không đọc được phản hồi", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return TopicResult{}, statusError(resp.StatusCode, data)
	}

	var body remoteTopicsResponse
	if err := json.Unmarshal(data, &body); err != nil {
		// một số dịch vụ trả thẳng văn bản của model
		topics, perr := ParseTopics(string(data))
		if perr != nil {
			return TopicResult{Raw: string(data)}, perr
		}
		return TopicResult{Topics: topics, Raw: string(data)}, nil
	}
	if body.Error != "" {
		return TopicResult{Raw: string(data)}, &GenerationError{Kind: ErrService, Message: body.Error}
	}
	if len(body.Topics) == 0 {
		return TopicResult{Raw: string(data)}, &GenerationError{Kind: ErrMalformed, Message: "danh sách chủ đề rỗng"}
	}
	return TopicResult{Topics: body.Topics, Raw: string(data), Tokens: body.Tokens}, nil
}

// StreamContent trả thẳng body SSE của dịch vụ; caller phải Close
func (r *RemoteGenerator) StreamContent(ctx context.Context, req ContentRequest) (io.ReadCloser, error) {
	resp, err := r.post(ctx, "/api/generate/content", req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, statusError(resp.StatusCode, data)
	}
	return resp.Body, nil
}

func (r *RemoteGenerator) post(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &GenerationError{Kind: ErrTransport, Message: "không gọi được dịch vụ sinh nội dung", Err: err}
	}
	return resp, nil
}

func statusError(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var parsed struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		msg = parsed.Error
	}
	return &GenerationError{Kind: ErrStatus, StatusCode: code, Message: msg}
}
