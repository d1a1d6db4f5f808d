package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/TIANLI0/DieCutKit/utils"
	"go.uber.org/zap"
)

// BackgroundRemover 外部抠图能力：输入原图，返回带 alpha 通道的图片
type BackgroundRemover interface {
	Remove(ctx context.Context, ref ImageRef) (image.Image, error)
}

// ImageStore 保存抠图结果并返回可访问的引用
type ImageStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// removeBackground 调用抠图服务并将结果重绘为工作分辨率。
// 任何失败都只记录日志，继续使用原始不透明位图。
func (p *Processor) removeBackground(ctx context.Context, ref ImageRef, working *Raster) (*Raster, bool, string) {
	if p.Remover == nil {
		utils.Logger.Debug("no background remover configured, tracing opaque raster",
			zap.String("image", ref.Name))
		return working, false, ""
	}

	img, err := callRemover(ctx, p.Remover, ref)
	if err != nil {
		utils.Logger.Warn("background removal failed, continuing with original image",
			zap.String("image", ref.Name),
			zap.Error(err))
		return working, false, ""
	}

	replaced := Resize(RasterFromImage(img), working.Width, working.Height)
	return replaced, true, p.storeProcessed(ctx, ref, img)
}

func callRemover(ctx context.Context, remover BackgroundRemover, ref ImageRef) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("background remover panic: %v", r)
		}
	}()

	img, err = remover.Remove(ctx, ref)
	if err == nil && (img == nil || img.Bounds().Empty()) {
		err = fmt.Errorf("background remover returned an empty image")
	}
	return img, err
}

// storeProcessed 保存抠图结果，失败时返回空引用
func (p *Processor) storeProcessed(ctx context.Context, ref ImageRef, img image.Image) string {
	if p.Store == nil {
		return ""
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		utils.Logger.Warn("failed to encode processed image", zap.Error(err))
		return ""
	}

	location, err := p.Store.Put(ctx, utils.GenerateID("bg_")+".png", buf.Bytes(), "image/png")
	if err != nil {
		utils.Logger.Warn("failed to store processed image",
			zap.String("image", ref.Name),
			zap.Error(err))
		return ""
	}
	return location
}
