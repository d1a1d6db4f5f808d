// Package contour 实现刀模轮廓的几何核心：边界追踪、简化、平滑与外扩。
//
// 坐标系为屏幕坐标（y 轴向下），像素 (x, y) 的中心位于 (x+0.5, y+0.5)。
package contour

import "math"

// Point 二维点或向量
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt 创建一个点
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

func (p Point) Mul(s float64) Point {
	return Point{X: p.X * s, Y: p.Y * s}
}

func (p Point) Dot(q Point) float64 {
	return p.X*q.X + p.Y*q.Y
}

// Len 向量长度
func (p Point) Len() float64 {
	return math.Hypot(p.X, p.Y)
}

// Normalize 返回单位向量；零向量原样返回
func (p Point) Normalize() Point {
	l := p.Len()
	if l == 0 {
		return p
	}
	return Point{X: p.X / l, Y: p.Y / l}
}

// Lerp 在 p 与 q 之间线性插值
func (p Point) Lerp(q Point, t float64) Point {
	return Point{X: p.X + (q.X-p.X)*t, Y: p.Y + (q.Y-p.Y)*t}
}

// Polygon 闭合多边形，末点不重复首点
type Polygon []Point

// SignedArea 鞋带公式求有向面积，y 轴向下时顺时针为正
func (pg Polygon) SignedArea() float64 {
	n := len(pg)
	if n < 3 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		a := pg[i]
		b := pg[(i+1)%n]
		sum += a.X*b.Y - b.X*a.Y
	}
	return sum / 2
}

// Area 多边形面积的绝对值
func (pg Polygon) Area() float64 {
	return math.Abs(pg.SignedArea())
}

// Bounds 返回包围盒的最小点与最大点
func (pg Polygon) Bounds() (Point, Point) {
	if len(pg) == 0 {
		return Point{}, Point{}
	}
	lo, hi := pg[0], pg[0]
	for _, p := range pg[1:] {
		lo.X = math.Min(lo.X, p.X)
		lo.Y = math.Min(lo.Y, p.Y)
		hi.X = math.Max(hi.X, p.X)
		hi.Y = math.Max(hi.Y, p.Y)
	}
	return lo, hi
}

// Scale 返回所有坐标乘以 s 后的新多边形
func (pg Polygon) Scale(s float64) Polygon {
	return pg.ScaleXY(s, s)
}

// ScaleXY 分别按 sx、sy 缩放横纵坐标
func (pg Polygon) ScaleXY(sx, sy float64) Polygon {
	out := make(Polygon, len(pg))
	for i, p := range pg {
		out[i] = Point{X: p.X * sx, Y: p.Y * sy}
	}
	return out
}
