package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/anthonynsimon/bild/transform"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageRef 一张待处理的已编码图片
type ImageRef struct {
	Name string
	Data []byte
}

// Raster 解码后的位图，非预乘 RGBA，每像素 4 字节，按行存储
type Raster struct {
	Width  int
	Height int
	Pix    []byte
}

// RasterSource 将图片引用解码为位图，与具体的画布/窗口环境无关
type RasterSource interface {
	Load(ctx context.Context, ref ImageRef) (*Raster, error)
}

// Transcoder 把标准库无法识别的格式转为 PNG
type Transcoder interface {
	Transcode(ctx context.Context, data []byte) ([]byte, error)
}

// DefaultMaxPixels 解码前允许的最大像素数（宽×高）
const DefaultMaxPixels = 40_000_000

// ErrImageTooLarge 图片声明的尺寸超过像素上限
var ErrImageTooLarge = errors.New("image dimensions exceed pixel limit")

// DecodeSource 使用已注册的解码器（png/jpeg/gif/webp/bmp/tiff）解码，
// 格式无法识别且配置了 Transcoder 时先转码再解码。
// 解码前先读取图片头，宽×高超过 MaxPixels（0 表示 DefaultMaxPixels）时直接拒绝。
type DecodeSource struct {
	Transcoder Transcoder
	MaxPixels  int
}

func (s DecodeSource) Load(ctx context.Context, ref ImageRef) (*Raster, error) {
	data := ref.Data
	err := s.checkSize(data)
	if errors.Is(err, image.ErrFormat) && s.Transcoder != nil {
		png, terr := s.Transcoder.Transcode(ctx, data)
		if terr != nil {
			return nil, fmt.Errorf("transcode %q: %w", ref.Name, terr)
		}
		data = png
		err = s.checkSize(data)
	}
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return RasterFromImage(img), nil
}

func (s DecodeSource) checkSize(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return err
	}
	limit := s.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("invalid image dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(limit) {
		return fmt.Errorf("%w: %dx%d > %d", ErrImageTooLarge, cfg.Width, cfg.Height, limit)
	}
	return nil
}

// RasterFromImage 将任意 image.Image 转为 Raster
func RasterFromImage(img image.Image) *Raster {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &Raster{Width: b.Dx(), Height: b.Dy(), Pix: dst.Pix}
}

// Image 以 *image.NRGBA 视图共享像素数据
func (r *Raster) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    r.Pix,
		Stride: r.Width * 4,
		Rect:   image.Rect(0, 0, r.Width, r.Height),
	}
}

// Resize 缩放到指定尺寸，尺寸相同时直接返回
func Resize(r *Raster, width, height int) *Raster {
	if r.Width == width && r.Height == height {
		return r
	}
	return RasterFromImage(transform.Resize(r.Image(), width, height, transform.Linear))
}

// Downsample 等比缩小使最长边不超过 maxDim，返回工作位图和缩放比例（工作/原始）。
// 追踪与外扩的开销由此限定在固定像素预算内。
func Downsample(r *Raster, maxDim int) (*Raster, float64) {
	longest := max(r.Width, r.Height)
	if maxDim <= 0 || longest <= maxDim {
		return r, 1.0
	}

	scale := float64(maxDim) / float64(longest)
	w := max(1, int(math.Round(float64(r.Width)*scale)))
	h := max(1, int(math.Round(float64(r.Height)*scale)))
	return Resize(r, w, h), scale
}
