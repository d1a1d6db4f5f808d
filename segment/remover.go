// Package segment 基于 OpenCV GrabCut 的本地抠图，
// 用于没有透明通道的图片在追踪轮廓前先分离主体。
package segment

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/TIANLI0/DieCutKit/config"
	"github.com/TIANLI0/DieCutKit/pipeline"
	"github.com/TIANLI0/DieCutKit/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const workingSize = 1200

// ErrQueueFull 等待处理槽位超时
var ErrQueueFull = errors.New("background removal queue is full")

// GrabCutRemover 实现 pipeline.BackgroundRemover
type GrabCutRemover struct {
	iterations   int
	borderSize   int
	semaphore    chan struct{}
	queueTimeout time.Duration
}

func NewGrabCutRemover(cfg *config.BgRemovalConfig) *GrabCutRemover {
	return &GrabCutRemover{
		iterations:   max(1, cfg.Iterations),
		borderSize:   cfg.BorderSize,
		semaphore:    make(chan struct{}, max(1, cfg.MaxConcurrent)),
		queueTimeout: cfg.QueueTimeout,
	}
}

// Remove 返回原图像素加前景掩码作为 alpha 的图片
func (r *GrabCutRemover) Remove(ctx context.Context, ref pipeline.ImageRef) (image.Image, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.release()

	startTime := time.Now()

	img, err := gocv.IMDecode(ref.Data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", ref.Name, err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("decode %q: empty image", ref.Name)
	}

	width, height := img.Cols(), img.Rows()

	working, scale := shrink(&img, workingSize)
	defer working.Close()

	scene := analyzeScene(&working)
	utils.Logger.Debug("scene analyzed",
		zap.String("image", ref.Name),
		zap.String("level", string(scene.Level)),
		zap.Float64("edge_density", scene.EdgeDensity),
		zap.Float64("color_variance", scene.ColorVariance))

	mask := r.grabCut(&working, scene)
	if scale != 1.0 {
		full := upscale(&mask, width, height)
		mask.Close()
		mask = full
	}
	largest := largestRegion(&mask)
	mask.Close()
	defer largest.Close()

	if gocv.CountNonZero(largest) == 0 {
		return nil, errors.New("no foreground detected")
	}

	rgba := gocv.NewMat()
	defer rgba.Close()
	gocv.CvtColor(img, &rgba, gocv.ColorBGRToRGBA)

	out := composite(rgba.ToBytes(), largest.ToBytes(), width, height)

	utils.Logger.Info("background removed",
		zap.String("image", ref.Name),
		zap.String("level", string(scene.Level)),
		zap.Duration("duration", time.Since(startTime)))

	return out, nil
}

func (r *GrabCutRemover) acquire(ctx context.Context) error {
	if r.queueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.queueTimeout)
		defer cancel()
	}

	select {
	case r.semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ErrQueueFull
	}
}

func (r *GrabCutRemover) release() {
	<-r.semaphore
}

// grabCut 在工作尺寸上分割，返回 0/255 前景掩码
func (r *GrabCutRemover) grabCut(img *gocv.Mat, scene sceneInfo) gocv.Mat {
	width, height := img.Cols(), img.Rows()

	bgdModel := gocv.NewMat()
	defer bgdModel.Close()
	fgdModel := gocv.NewMat()
	defer fgdModel.Close()

	iterations := scene.iterations(r.iterations)

	var gc gocv.Mat
	if scene.Level == levelSimple {
		gc = gocv.NewMat()
		gocv.GrabCut(*img, &gc, borderRect(width, height, r.borderSize), &bgdModel, &fgdModel, iterations, gocv.GCInitWithRect)
	} else {
		saliency := saliencyMap(img)
		gc = seedMask(&saliency, width, height)
		saliency.Close()
		gocv.GrabCut(*img, &gc, image.Rectangle{}, &bgdModel, &fgdModel, iterations, gocv.GCInitWithMask)
		gocv.GrabCut(*img, &gc, image.Rectangle{}, &bgdModel, &fgdModel, 2, gocv.GCInitWithMask)
	}
	defer gc.Close()

	mask := foregroundMask(&gc)
	if scene.portrait() {
		enhanced := withSkin(&mask, img)
		mask.Close()
		mask = enhanced
	}

	optimized := openClose(&mask, scene.kernelSize())
	mask.Close()
	mask = optimized

	if scene.Level != levelSimple {
		smoothed := smoothEdges(&mask)
		mask.Close()
		mask = smoothed
	}
	return mask
}

// shrink 等比缩小到最长边不超过 maxSize
func shrink(img *gocv.Mat, maxSize int) (gocv.Mat, float64) {
	width, height := img.Cols(), img.Rows()
	longest := max(width, height)
	if longest <= maxSize {
		return img.Clone(), 1.0
	}

	scale := float64(maxSize) / float64(longest)
	resized := gocv.NewMat()
	gocv.Resize(*img, &resized, image.Point{X: int(float64(width) * scale), Y: int(float64(height) * scale)}, 0, 0, gocv.InterpolationArea)
	return resized, scale
}
