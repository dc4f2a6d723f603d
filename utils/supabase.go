package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	storage "github.com/supabase-community/storage-go"
)

// SupabaseStorage upload bản export và audio lên một bucket public
type SupabaseStorage struct {
	client  *storage.Client
	baseURL string
	key     string
	bucket  string
	http    *http.Client
}

func NewSupabaseStorage(supabaseURL, key, bucket string) (*SupabaseStorage, error) {
	if supabaseURL == "" || key == "" {
		return nil, fmt.Errorf("SUPABASE_URL hoặc SUPABASE_KEY chưa cấu hình")
	}
	if bucket == "" {
		bucket = "uploads"
	}
	base := strings.TrimRight(supabaseURL, "/")
	return &SupabaseStorage{
		client:  storage.NewClient(base+"/storage/v1", key, nil),
		baseURL: base,
		key:     key,
		bucket:  bucket,
		http:    &http.Client{},
	}, nil
}

// Upload ghi đè object tại objectPath (ví dụ exports/<slug>.md) và trả về URL public
func (s *SupabaseStorage) Upload(_ context.Context, objectPath string, data []byte, contentType string) (string, error) {
	upsert := true
	options := storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}
	if _, err := s.client.UploadFile(s.bucket, objectPath, bytes.NewReader(data), options); err != nil {
		return "", fmt.Errorf("upload %s: %w", objectPath, err)
	}
	return s.PublicURL(objectPath), nil
}

func (s *SupabaseStorage) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, objectPath)
}

// Delete nhận public URL (chứa "/storage/v1/object/") và xoá object tương ứng
func (s *SupabaseStorage) Delete(ctx context.Context, publicURL string) error {
	if publicURL == "" {
		return nil
	}
	bucket, object, err := parseObjectURL(publicURL)
	if err != nil {
		return err
	}

	deleteURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, bucket, object)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, deleteURL, nil)
	if err != nil {
		return err
	}
	// Supabase cần cả Authorization lẫn apikey
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("xóa file Supabase thất bại: status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}

// parseObjectURL tách "<bucket>/<object>" từ URL storage, bỏ prefix public/ và query
func parseObjectURL(publicURL string) (string, string, error) {
	const marker = "/storage/v1/object/"
	idx := strings.Index(publicURL, marker)
	if idx == -1 {
		return "", "", fmt.Errorf("không xác định được đường dẫn object trong URL: %s", publicURL)
	}
	rest := strings.TrimPrefix(publicURL[idx+len(marker):], "public/")

	parts := strings.SplitN(rest, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("không parse được bucket/object từ URL: %s", publicURL)
	}
	object := parts[1]
	if q := strings.Index(object, "?"); q != -1 {
		object = object[:q]
	}
	if u, err := url.PathUnescape(object); err == nil {
		object = u
	}
	return parts[0], object, nil
}
