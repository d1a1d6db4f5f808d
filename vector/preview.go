package vector

import (
	"bytes"
	"fmt"
	"image"

	"github.com/TIANLI0/DieCutKit/contour"
	"github.com/gogpu/gg"
)

// RenderPreview 在原图上叠加出血线与切割线，输出 PNG 打样图。
// 点坐标需与 img 的像素坐标一致；straight 为 true 时按折线绘制，与 LinePath 对应。
func RenderPreview(img image.Image, cut, bleed []contour.Point, tension float64, straight bool) ([]byte, error) {
	dc := gg.NewContextForImage(img)
	defer func() { _ = dc.Close() }()

	b := img.Bounds()
	lw := strokeWidth(b.Dx(), b.Dy())
	dc.SetLineWidth(lw)

	if len(bleed) > 0 {
		dc.SetRGBA(1, 0, 0, 0.45)
		dc.SetDash(lw*4, lw*2)
		appendOutline(dc, bleed, tension, straight)
		if err := dc.Stroke(); err != nil {
			return nil, fmt.Errorf("stroke bleed outline: %w", err)
		}
		dc.SetDash()
	}

	if len(cut) > 0 {
		dc.SetRGBA(1, 0, 0, 1)
		appendOutline(dc, cut, tension, straight)
		if err := dc.Stroke(); err != nil {
			return nil, fmt.Errorf("stroke cut outline: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

func appendOutline(dc *gg.Context, pts []contour.Point, tension float64, straight bool) {
	dc.MoveTo(pts[0].X, pts[0].Y)
	var segs []Segment
	if !straight {
		segs = CurveSegments(pts, tension)
	}
	if segs == nil {
		for _, p := range pts[1:] {
			dc.LineTo(p.X, p.Y)
		}
	}
	for _, s := range segs {
		dc.CubicTo(s.C1.X, s.C1.Y, s.C2.X, s.C2.Y, s.To.X, s.To.Y)
	}
	dc.ClosePath()
}
