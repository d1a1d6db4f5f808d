package contour

import "math"

const (
	// DefaultMiterLimit 斜接长度上限，相对外扩距离的倍数
	DefaultMiterLimit = 3.0

	degenerateEps = 1e-9
	mmPerInch     = 25.4
)

// MillimetersToPixels 按 dpi 将毫米换算为像素
func MillimetersToPixels(mm, dpi float64) float64 {
	return mm / mmPerInch * dpi
}

// Offset 将顺时针闭合环沿外法线外扩 distance 像素。
// 每个顶点取入边与出边外法线的平均方向，移动 distance/cos(半角)，
// 并限制在 distance*miterLimit 以内，超限处相当于斜切。
func Offset(pts []Point, distance, miterLimit float64) []Point {
	n := len(pts)
	out := make([]Point, n)
	copy(out, pts)
	if n < 3 || distance == 0 {
		return out
	}
	if miterLimit <= 0 {
		miterLimit = DefaultMiterLimit
	}
	limit := math.Abs(distance) * miterLimit

	for i := 0; i < n; i++ {
		prev := pts[(i-1+n)%n]
		cur := pts[i]
		next := pts[(i+1)%n]
		out[i] = cur.Add(miter(edgeNormal(prev, cur), edgeNormal(cur, next), distance, limit))
	}
	return out
}

// edgeNormal 顺时针环上边 a→b 的外法线，零长度边返回零向量
func edgeNormal(a, b Point) Point {
	d := b.Sub(a)
	l := d.Len()
	if l < degenerateEps {
		return Point{}
	}
	return Point{X: d.Y / l, Y: -d.X / l}
}

// miter 计算顶点位移向量
func miter(n1, n2 Point, distance, limit float64) Point {
	zero := Point{}
	switch {
	case n1 == zero && n2 == zero:
		return zero
	case n1 == zero:
		return n2.Mul(distance)
	case n2 == zero:
		return n1.Mul(distance)
	}

	avg := n1.Add(n2)
	if avg.Len() < degenerateEps {
		// 180° 折返，平均法线无意义
		return n1.Mul(distance)
	}
	avg = avg.Normalize()

	length := distance
	if cos := n1.Dot(avg); cos > degenerateEps {
		length = distance / cos
	}
	if math.Abs(length) > limit {
		length = math.Copysign(limit, distance)
	}
	return avg.Mul(length)
}
