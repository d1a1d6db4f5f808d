package vector

import (
	"bytes"
	"fmt"

	svg "github.com/ajstarks/svgo"
)

const (
	cutStyle   = "fill:none;stroke:#ff0000;stroke-width:%s"
	bleedStyle = "fill:none;stroke:#ff0000;stroke-opacity:0.45;stroke-width:%s;stroke-dasharray:%s,%s"
)

// ProofDocument 组装打样 SVG：半透明虚线为出血线，实线为切割线，
// 画布与原图尺寸一致。仅用于确认展示，不是刀模机的控制格式。
func ProofDocument(width, height int, cutPath, bleedPath string) string {
	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Start(width, height, fmt.Sprintf(`viewBox="0 0 %d %d"`, width, height))

	lw := strokeWidth(width, height)
	w := formatNumber(lw)
	if bleedPath != "" {
		canvas.Path(bleedPath, fmt.Sprintf(bleedStyle, w, formatNumber(lw*4), formatNumber(lw*2)))
	}
	if cutPath != "" {
		canvas.Path(cutPath, fmt.Sprintf(cutStyle, w))
	}
	canvas.End()
	return buf.String()
}

// strokeWidth 随图像尺寸缩放线宽，保证大图上仍然可见
func strokeWidth(width, height int) float64 {
	lw := float64(max(width, height)) / 300
	if lw < 1 {
		return 1
	}
	return lw
}
