package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/TIANLI0/DieCutKit/config"
	"github.com/TIANLI0/DieCutKit/contour"
	"github.com/TIANLI0/DieCutKit/model"
	"github.com/TIANLI0/DieCutKit/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu      sync.Mutex
	items   map[string]*model.ContourResult
	gets    int
	sets    int
	failGet bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string]*model.ContourResult{}}
}

func (m *memoryCache) GetContourResult(_ context.Context, key string) (*model.ContourResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.failGet {
		return nil, errors.New("connection refused")
	}
	return m.items[key], nil
}

func (m *memoryCache) SetContourResult(_ context.Context, key string, result *model.ContourResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.items[key] = result
	return nil
}

func setupRouter(cfg *config.Config, cache ResultCache) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewContourHandler(cfg, cache, pipeline.NewProcessor(nil, nil, nil))

	r := gin.New()
	api := r.Group("/api/v1")
	api.POST("/contour", h.Generate)
	api.POST("/contour/bleed", h.Bleed)
	api.POST("/contour/confirm", h.Confirm)
	api.GET("/contour/:key", h.Get)
	return r
}

func stickerPNG(t *testing.T, w, h, margin int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := margin; y < h-margin; y++ {
		for x := margin; x < w-margin; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 30, G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "sticker.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/contour", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestGenerateContour(t *testing.T) {
	cache := newMemoryCache()
	r := setupRouter(config.Default(), cache)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, stickerPNG(t, 128, 96, 16), map[string]string{
		"bleed_mm": "2",
		"dpi":      "150",
		"preview":  "true",
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[model.ContourResponse](t, w)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Data)

	data := resp.Data
	assert.Equal(t, 128, data.Width)
	assert.Equal(t, 96, data.Height)
	assert.Equal(t, 2.0, data.BleedMm)
	assert.Equal(t, 150.0, data.DPI)
	assert.NotEmpty(t, data.Key)
	assert.Contains(t, data.Key, data.MD5)
	assert.NotEmpty(t, data.CutPath)
	assert.NotEmpty(t, data.BleedPath)
	assert.Contains(t, data.ProofSVG, "<svg")
	assert.NotEmpty(t, data.Preview)
	assert.False(t, data.BgRemoved)

	lo, hi := contour.Polygon(data.CutPoints).Bounds()
	assert.InDelta(t, 16, lo.X, 1.5)
	assert.InDelta(t, 112, hi.X, 1.5)

	assert.Equal(t, 1, cache.sets)
}

func TestGenerateContourCacheHit(t *testing.T) {
	cache := newMemoryCache()
	r := setupRouter(config.Default(), cache)
	data := stickerPNG(t, 64, 64, 8)

	first := httptest.NewRecorder()
	r.ServeHTTP(first, uploadRequest(t, data, nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, uploadRequest(t, data, nil))
	require.Equal(t, http.StatusOK, second.Code)

	resp := decode[model.ContourResponse](t, second)
	assert.Equal(t, "处理成功（来自缓存）", resp.Message)
	assert.Equal(t, 1, cache.sets)

	// 参数不同不命中缓存
	third := httptest.NewRecorder()
	r.ServeHTTP(third, uploadRequest(t, data, map[string]string{"bleed_mm": "5"}))
	require.Equal(t, http.StatusOK, third.Code)
	assert.Equal(t, 2, cache.sets)
}

func TestGenerateContourCacheFailureIsNotFatal(t *testing.T) {
	cache := newMemoryCache()
	cache.failGet = true
	r := setupRouter(config.Default(), cache)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, stickerPNG(t, 32, 32, 4), nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGenerateContourRejects(t *testing.T) {
	small := config.Default()
	small.Upload.MaxSize = 16

	tests := []struct {
		name   string
		cfg    *config.Config
		data   []byte
		fields map[string]string
		status int
	}{
		{"not an image", config.Default(), []byte("hello, this is plain text"), nil, http.StatusBadRequest},
		{"too large", small, stickerPNG(t, 64, 64, 8), nil, http.StatusBadRequest},
		{"bad bleed", config.Default(), stickerPNG(t, 32, 32, 4), map[string]string{"bleed_mm": "abc"}, http.StatusBadRequest},
		{"negative bleed", config.Default(), stickerPNG(t, 32, 32, 4), map[string]string{"bleed_mm": "-1"}, http.StatusBadRequest},
		{"threshold out of range", config.Default(), stickerPNG(t, 32, 32, 4), map[string]string{"alpha_threshold": "300"}, http.StatusBadRequest},
		{"too many smoothing passes", config.Default(), stickerPNG(t, 32, 32, 4), map[string]string{"smooth_iterations": "20"}, http.StatusBadRequest},
		{"fully transparent", config.Default(), stickerPNG(t, 32, 32, 16), nil, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(tt.cfg, newMemoryCache())
			w := httptest.NewRecorder()
			r.ServeHTTP(w, uploadRequest(t, tt.data, tt.fields))

			assert.Equal(t, tt.status, w.Code, w.Body.String())
			resp := decode[model.ErrorResponse](t, w)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestGenerateContourMissingFile(t *testing.T) {
	r := setupRouter(config.Default(), newMemoryCache())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/contour", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func jsonRequest(t *testing.T, path string, v any) *http.Request {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestBleed(t *testing.T) {
	r := setupRouter(config.Default(), nil)
	cut := []contour.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(t, "/api/v1/contour/bleed", model.BleedRequest{
		CutPoints: cut,
		BleedMm:   25.4,
		DPI:       10,
		Width:     100,
		Height:    100,
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[model.BleedResponse](t, w)
	require.NotNil(t, resp.Data)
	require.Len(t, resp.Data.BleedPoints, 4)

	lo, hi := contour.Polygon(resp.Data.BleedPoints).Bounds()
	assert.InDelta(t, -10, lo.X, 1e-6)
	assert.InDelta(t, 110, hi.Y, 1e-6)
	assert.NotEmpty(t, resp.Data.BleedPath)
	assert.Contains(t, resp.Data.ProofSVG, `viewBox="0 0 100 100"`)
}

func TestBleedValidation(t *testing.T) {
	square := []contour.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}

	tests := []struct {
		name string
		body map[string]any
	}{
		{"too few points", map[string]any{"cut_points": square[:2], "bleed_mm": 3}},
		{"negative bleed", map[string]any{"cut_points": square, "bleed_mm": -2}},
		{"huge bleed", map[string]any{"cut_points": square, "bleed_mm": 1e308, "dpi": 300}},
		{"bleed above limit", map[string]any{"cut_points": square, "bleed_mm": 51}},
		{"huge dpi", map[string]any{"cut_points": square, "bleed_mm": 3, "dpi": 1e308}},
		{"negative dpi", map[string]any{"cut_points": square, "bleed_mm": 3, "dpi": -300}},
		{"negative width", map[string]any{"cut_points": square, "bleed_mm": 3, "width": -1, "height": 10}},
	}

	r := setupRouter(config.Default(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, jsonRequest(t, "/api/v1/contour/bleed", tt.body))

			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			resp := decode[model.ErrorResponse](t, w)
			assert.False(t, resp.Success)
		})
	}
}

func TestBleedAtLimits(t *testing.T) {
	r := setupRouter(config.Default(), nil)
	square := []contour.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(t, "/api/v1/contour/bleed", map[string]any{
		"cut_points": square,
		"bleed_mm":   maxBleedMm,
		"dpi":        maxDPI,
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[model.BleedResponse](t, w)
	require.NotNil(t, resp.Data)
	assert.NotEmpty(t, resp.Data.BleedPath)
}

func TestBleedStraightLines(t *testing.T) {
	r := setupRouter(config.Default(), nil)
	square := []contour.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(t, "/api/v1/contour/bleed", model.BleedRequest{
		CutPoints:     square,
		BleedMm:       3,
		Width:         100,
		Height:        100,
		StraightLines: true,
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[model.BleedResponse](t, w)
	require.NotNil(t, resp.Data)
	assert.NotContains(t, resp.Data.BleedPath, "C")
	assert.Contains(t, resp.Data.ProofSVG, `d="M0 0 L100 0 L100 100 L0 100 Z"`)
}

func TestGet(t *testing.T) {
	cache := newMemoryCache()
	cache.items["abc:123"] = &model.ContourResult{Key: "abc:123", CutPath: "M0 0 Z"}
	r := setupRouter(config.Default(), cache)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/contour/abc:123", nil))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[model.ContourResponse](t, w)
	assert.Equal(t, "M0 0 Z", resp.Data.CutPath)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/contour/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfirm(t *testing.T) {
	r := setupRouter(config.Default(), nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(t, "/api/v1/contour/confirm", model.ConfirmRequest{
		CutPath:        "M0 0 L10 0 L10 10 Z",
		BleedMm:        3,
		ProcessedImage: "/processed/bg_1.png",
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[model.ConfirmResponse](t, w)
	require.NotNil(t, resp.Data)
	assert.Equal(t, map[string]string{
		pipeline.MetaCutPath:        "M0 0 L10 0 L10 10 Z",
		pipeline.MetaBleedMm:        "3",
		pipeline.MetaProcessedImage: "/processed/bg_1.png",
	}, resp.Data.Metadata)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(t, "/api/v1/contour/confirm", map[string]any{"bleed_mm": 3}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOptionSignature(t *testing.T) {
	a := pipeline.DefaultOptions()
	b := pipeline.DefaultOptions()
	assert.Equal(t, optionSignature(a), optionSignature(b))

	b.BleedMm = 4
	assert.NotEqual(t, optionSignature(a), optionSignature(b))

	// 进度回调不影响结果
	b = pipeline.DefaultOptions()
	b.OnProgress = func(pipeline.Stage) {}
	assert.Equal(t, optionSignature(a), optionSignature(b))
}
