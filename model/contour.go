package model

import "github.com/TIANLI0/DieCutKit/contour"

// ContourResult 轮廓生成结果
type ContourResult struct {
	Key            string          `json:"key"`
	MD5            string          `json:"md5"`
	Width          int             `json:"width"`
	Height         int             `json:"height"`
	BleedMm        float64         `json:"bleed_mm"`
	DPI            float64         `json:"dpi"`
	CutPath        string          `json:"cut_path"`
	BleedPath      string          `json:"bleed_path"`
	ProofSVG       string          `json:"proof_svg"`
	CutPoints      []contour.Point `json:"cut_points"`
	BleedPoints    []contour.Point `json:"bleed_points"`
	BgRemoved      bool            `json:"bg_removed"`
	ProcessedImage string          `json:"processed_image,omitempty"`
	Preview        string          `json:"preview,omitempty"` // base64编码的PNG打样图
	Timestamp      int64           `json:"timestamp"`
}

// BleedRequest 调整出血距离，复用已有的切割轮廓。
// 取值范围与上传接口的表单参数一致，dpi 为 0 时使用配置默认值。
type BleedRequest struct {
	CutPoints     []contour.Point `json:"cut_points" binding:"required,min=3,max=20000"`
	BleedMm       float64         `json:"bleed_mm" binding:"gte=0,lte=50"`
	DPI           float64         `json:"dpi" binding:"omitempty,gte=1,lte=2400"`
	Width         int             `json:"width" binding:"gte=0,lte=65535"`
	Height        int             `json:"height" binding:"gte=0,lte=65535"`
	StraightLines bool            `json:"straight_lines"`
}

// BleedResult 出血线重新生成结果
type BleedResult struct {
	BleedPath   string          `json:"bleed_path"`
	BleedPoints []contour.Point `json:"bleed_points"`
	ProofSVG    string          `json:"proof_svg,omitempty"`
}

// ConfirmRequest 客户确认打样
type ConfirmRequest struct {
	CutPath        string  `json:"cut_path" binding:"required"`
	BleedMm        float64 `json:"bleed_mm" binding:"gte=0"`
	ProcessedImage string  `json:"processed_image"`
}

// ConfirmResult 写入订单行的元数据
type ConfirmResult struct {
	Metadata map[string]string `json:"metadata"`
}

// ContourResponse 轮廓接口响应
type ContourResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    *ContourResult `json:"data,omitempty"`
}

// BleedResponse 出血调整响应
type BleedResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    *BleedResult `json:"data,omitempty"`
}

// ConfirmResponse 打样确认响应
type ConfirmResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    *ConfirmResult `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
