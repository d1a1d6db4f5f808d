package pipeline

import (
	"github.com/TIANLI0/DieCutKit/contour"
	"github.com/TIANLI0/DieCutKit/vector"
)

// Stage 处理进度阶段
type Stage string

const (
	StageLoading    Stage = "loading"
	StageRemovingBg Stage = "removing-bg"
	StageTracing    Stage = "tracing"
	StageDone       Stage = "done"
)

// Options 轮廓生成参数
type Options struct {
	BleedMm          float64
	SmoothIterations int
	SimplifyEpsilon  float64
	AlphaThreshold   uint8
	MaxProcessingDim int
	DPI              float64
	MiterLimit       float64
	Tension          float64

	// StraightLines 为 true 时输出折线路径而非平滑曲线
	StraightLines bool
	// Preview 为 true 时额外渲染 PNG 打样图
	Preview bool

	OnProgress func(Stage)
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		BleedMm:          3,
		SmoothIterations: 2,
		SimplifyEpsilon:  1.5,
		AlphaThreshold:   128,
		MaxProcessingDim: 512,
		DPI:              300,
		MiterLimit:       contour.DefaultMiterLimit,
		Tension:          vector.DefaultTension,
	}
}

// withDefaults 只补齐零值无意义的字段，出血、平滑、简化为 0 均是合法取值
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxProcessingDim <= 0 {
		o.MaxProcessingDim = d.MaxProcessingDim
	}
	if o.DPI <= 0 {
		o.DPI = d.DPI
	}
	if o.MiterLimit <= 0 {
		o.MiterLimit = d.MiterLimit
	}
	if o.Tension < 0 {
		o.Tension = d.Tension
	}
	if o.SmoothIterations < 0 {
		o.SmoothIterations = 0
	}
	return o
}

func (o Options) progress(s Stage) {
	if o.OnProgress != nil {
		o.OnProgress(s)
	}
}

// PathData 按 StraightLines 选择折线或平滑曲线路径
func (o Options) PathData(pts []contour.Point) string {
	if o.StraightLines {
		return vector.LinePath(pts)
	}
	return vector.CurvePath(pts, o.Tension)
}
