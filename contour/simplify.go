package contour

import "math"

// Simplify 使用 Ramer–Douglas–Peucker 算法精简点序列。
// 闭合环按以首点为锚的开放序列处理；epsilon <= 0 时返回原序列副本。
func Simplify(pts []Point, epsilon float64) []Point {
	if epsilon <= 0 || len(pts) < 3 {
		return append([]Point(nil), pts...)
	}

	keep := make([]bool, len(pts))
	keep[0] = true
	keep[len(pts)-1] = true
	rdp(pts, 0, len(pts)-1, epsilon, keep)

	out := make([]Point, 0, len(pts))
	for i, k := range keep {
		if k {
			out = append(out, pts[i])
		}
	}
	return out
}

func rdp(pts []Point, first, last int, epsilon float64, keep []bool) {
	if last-first < 2 {
		return
	}

	index := -1
	maxDist := 0.0
	for i := first + 1; i < last; i++ {
		d := perpendicularDistance(pts[i], pts[first], pts[last])
		if d > maxDist {
			maxDist = d
			index = i
		}
	}

	if maxDist > epsilon {
		keep[index] = true
		rdp(pts, first, index, epsilon, keep)
		rdp(pts, index, last, epsilon, keep)
	}
}

// perpendicularDistance 点 p 到直线 ab 的垂直距离；a、b 重合时退化为点距
func perpendicularDistance(p, a, b Point) float64 {
	ab := b.Sub(a)
	l := ab.Len()
	if l == 0 {
		return p.Sub(a).Len()
	}
	ap := p.Sub(a)
	return math.Abs(ab.X*ap.Y-ab.Y*ap.X) / l
}
