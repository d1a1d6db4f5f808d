// Package pipeline 串联刀模轮廓生成的各个阶段：
// 解码 → 缩小 → 透明度判定 →（抠图）→ 追踪 → 取最大轮廓 → 简化 → 平滑 →
// 还原原图尺寸 → 出血外扩 → 路径生成 → 打样文档。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TIANLI0/DieCutKit/contour"
	"github.com/TIANLI0/DieCutKit/utils"
	"github.com/TIANLI0/DieCutKit/vector"
	"go.uber.org/zap"
)

var (
	// ErrDecode 图片无法解码
	ErrDecode = errors.New("failed to load image")
	// ErrNoContour 阈值化后找不到可用边界（图片全透明或没有足够大的形状）
	ErrNoContour = errors.New("no contour found in image")
)

// Result 轮廓生成结果，点坐标均为原图尺度
type Result struct {
	CutPath           string
	BleedPath         string
	ProofSVG          string
	CutPoints         []contour.Point
	BleedPoints       []contour.Point
	Width             int
	Height            int
	BgRemoved         bool
	ProcessedImageRef string
	PreviewPNG        []byte
}

// BleedResult 出血线重新生成结果
type BleedResult struct {
	Path   string
	Points []contour.Point
}

// Processor 轮廓生成流水线。各次调用互不共享可变状态，可以并发执行；
// 不支持取消进行中的调用，调用方需自行丢弃过期结果。
type Processor struct {
	Source  RasterSource
	Remover BackgroundRemover
	Store   ImageStore
}

// NewProcessor 创建流水线，source 为 nil 时使用 DecodeSource
func NewProcessor(source RasterSource, remover BackgroundRemover, store ImageStore) *Processor {
	if source == nil {
		source = DecodeSource{}
	}
	return &Processor{
		Source:  source,
		Remover: remover,
		Store:   store,
	}
}

// Generate 由图片生成切割线与出血线
func (p *Processor) Generate(ctx context.Context, ref ImageRef, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	startTime := time.Now()

	opts.progress(StageLoading)
	source := p.Source
	if source == nil {
		source = DecodeSource{}
	}
	original, err := source.Load(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if original.Width == 0 || original.Height == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}

	working, _ := Downsample(original, opts.MaxProcessingDim)
	// 宽高各自取整，两个方向的缩放比例可能略有不同，还原时分别处理
	sx := float64(original.Width) / float64(working.Width)
	sy := float64(original.Height) / float64(working.Height)

	utils.Logger.Debug("raster loaded",
		zap.String("image", ref.Name),
		zap.Int("width", original.Width),
		zap.Int("height", original.Height),
		zap.Int("working_width", working.Width),
		zap.Int("working_height", working.Height))

	var bgRemoved bool
	var processedRef string
	if !HasTransparency(working) {
		opts.progress(StageRemovingBg)
		working, bgRemoved, processedRef = p.removeBackground(ctx, ref, working)
	}

	opts.progress(StageTracing)
	alpha := ExtractAlpha(working)
	polys := contour.Trace(alpha.Pix, alpha.Width, alpha.Height, opts.AlphaThreshold)
	if len(polys) == 0 {
		return nil, ErrNoContour
	}
	if len(polys) > 1 {
		utils.Logger.Debug("discarding smaller contours",
			zap.String("image", ref.Name),
			zap.Int("discarded", len(polys)-1))
	}

	simplified := contour.Simplify(polys[0], opts.SimplifyEpsilon)
	smoothed := contour.Smooth(simplified, opts.SmoothIterations)
	if len(smoothed) < 3 {
		return nil, ErrNoContour
	}

	cut := contour.EnsureClockwise(contour.Polygon(smoothed).ScaleXY(sx, sy))
	bleed := RegenerateBleedWith(cut, opts)
	cutPath := opts.PathData(cut)

	result := &Result{
		CutPath:           cutPath,
		BleedPath:         bleed.Path,
		ProofSVG:          vector.ProofDocument(original.Width, original.Height, cutPath, bleed.Path),
		CutPoints:         cut,
		BleedPoints:       bleed.Points,
		Width:             original.Width,
		Height:            original.Height,
		BgRemoved:         bgRemoved,
		ProcessedImageRef: processedRef,
	}

	if opts.Preview {
		preview, err := vector.RenderPreview(working.Image(),
			contour.Polygon(cut).ScaleXY(1/sx, 1/sy),
			contour.Polygon(bleed.Points).ScaleXY(1/sx, 1/sy),
			opts.Tension,
			opts.StraightLines)
		if err != nil {
			utils.Logger.Warn("failed to render preview", zap.String("image", ref.Name), zap.Error(err))
		} else {
			result.PreviewPNG = preview
		}
	}

	opts.progress(StageDone)

	utils.Logger.Info("contour generated",
		zap.String("image", ref.Name),
		zap.Int("traced_points", len(polys[0])),
		zap.Int("cut_points", len(cut)),
		zap.Bool("bg_removed", bgRemoved),
		zap.Float64("bleed_mm", opts.BleedMm),
		zap.Duration("duration", time.Since(startTime)))

	return result, nil
}

// RegenerateBleed 出血距离变化时的快速路径：跳过解码与追踪，
// 仅对已有切割轮廓重新外扩并生成路径。相同输入总是得到相同输出。
func RegenerateBleed(cut []contour.Point, bleedMm, dpi float64) BleedResult {
	opts := DefaultOptions()
	opts.BleedMm = bleedMm
	opts.DPI = dpi
	return RegenerateBleedWith(cut, opts)
}

// RegenerateBleedWith 同 RegenerateBleed，使用 opts 中的斜接上限、张力与路径样式
func RegenerateBleedWith(cut []contour.Point, opts Options) BleedResult {
	opts = opts.withDefaults()
	ring := contour.EnsureClockwise(cut)
	distance := contour.MillimetersToPixels(opts.BleedMm, opts.DPI)
	pts := contour.Offset(ring, distance, opts.MiterLimit)
	return BleedResult{
		Path:   opts.PathData(pts),
		Points: pts,
	}
}
