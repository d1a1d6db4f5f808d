// Package vector 将点序列转换为 SVG 路径数据，并组装打样文档。
package vector

import (
	"strconv"
	"strings"

	"github.com/TIANLI0/DieCutKit/contour"
)

// DefaultTension Catmull–Rom 转贝塞尔时的张力系数
const DefaultTension = 0.3

// Segment 一段三次贝塞尔曲线，起点为上一段的终点
type Segment struct {
	C1 contour.Point
	C2 contour.Point
	To contour.Point
}

// CurveSegments 将闭合点环按 Catmull–Rom 样条转换为三次贝塞尔段，
// 第 i 段从 pts[i] 到 pts[i+1]，下标按 n 取模。
func CurveSegments(pts []contour.Point, tension float64) []Segment {
	n := len(pts)
	if n < 3 {
		return nil
	}
	segs := make([]Segment, n)
	for i := 0; i < n; i++ {
		p0 := pts[(i-1+n)%n]
		p1 := pts[i]
		p2 := pts[(i+1)%n]
		p3 := pts[(i+2)%n]
		segs[i] = Segment{
			C1: p1.Add(p2.Sub(p0).Mul(tension)),
			C2: p2.Sub(p3.Sub(p1).Mul(tension)),
			To: p2,
		}
	}
	return segs
}

// LinePath 依次连接各点并闭合的折线路径
func LinePath(pts []contour.Point) string {
	if len(pts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("M")
	writePoint(&b, pts[0])
	for _, p := range pts[1:] {
		b.WriteString(" L")
		writePoint(&b, p)
	}
	b.WriteString(" Z")
	return b.String()
}

// CurvePath 平滑的闭合曲线路径，少于 3 个点时退化为折线
func CurvePath(pts []contour.Point, tension float64) string {
	segs := CurveSegments(pts, tension)
	if segs == nil {
		return LinePath(pts)
	}
	var b strings.Builder
	b.WriteString("M")
	writePoint(&b, pts[0])
	for _, s := range segs {
		b.WriteString(" C")
		writePoint(&b, s.C1)
		b.WriteString(" ")
		writePoint(&b, s.C2)
		b.WriteString(" ")
		writePoint(&b, s.To)
	}
	b.WriteString(" Z")
	return b.String()
}

func writePoint(b *strings.Builder, p contour.Point) {
	b.WriteString(formatNumber(p.X))
	b.WriteString(" ")
	b.WriteString(formatNumber(p.Y))
}

// formatNumber 保留两位小数并去掉多余的零
func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}
