package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/TIANLI0/DieCutKit/config"
	"github.com/TIANLI0/DieCutKit/pipeline"
	"github.com/h2non/filetype"
)

const maxRemoverResponse = 64 << 20

// HTTPRemover 调用外部抠图服务：以 multipart 上传原图，响应体为带透明通道的图片
type HTTPRemover struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPRemover(cfg *config.BgRemovalConfig) *HTTPRemover {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRemover{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRemover) Remove(ctx context.Context, ref pipeline.ImageRef) (image.Image, error) {
	body, contentType, err := multipartImage(ref)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if r.apiKey != "" {
		req.Header.Set("X-Api-Key", r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("background removal request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoverResponse))
	if err != nil {
		return nil, fmt.Errorf("failed to read background removal response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("background removal service returned %d: %s", resp.StatusCode, truncate(data, 200))
	}
	if !filetype.IsImage(data) {
		return nil, fmt.Errorf("background removal service returned non-image content")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode background removal result: %w", err)
	}
	return img, nil
}

func multipartImage(ref pipeline.ImageRef) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := ref.Name
	if name == "" {
		name = "image"
	}
	part, err := w.CreateFormFile("image", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(ref.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
