package contour

import "sort"

// direction 追踪时从一个单元格走向相邻单元格的方向
type direction uint8

const (
	dirNone direction = iota
	dirUp
	dirDown
	dirLeft
	dirRight
)

// cellCase 单元格四个角的内外组合
type cellCase uint8

const (
	cornerTL cellCase = 1 << iota
	cornerTR
	cornerBL
	cornerBR
)

const (
	caseEmpty cellCase = 0
	caseFull           = cornerTL | cornerTR | cornerBL | cornerBR
)

// nextDirection 按 (case, 上一步方向) 决定出口边。
// 行走时内部始终在行进方向右侧，因此闭合环在屏幕坐标下为顺时针。
// 鞍点 6、9 只依据上一步方向取舍，不采样单元中心。
func nextDirection(c cellCase, prev direction) direction {
	switch c {
	case cornerTL, cornerTL | cornerTR, cornerTL | cornerTR | cornerBR:
		return dirLeft
	case cornerTR, cornerTR | cornerBR, cornerTR | cornerBL | cornerBR:
		return dirUp
	case cornerBL, cornerTL | cornerBL, cornerTL | cornerTR | cornerBL:
		return dirDown
	case cornerBR, cornerBL | cornerBR, cornerTL | cornerBL | cornerBR:
		return dirRight
	case cornerTR | cornerBL:
		if prev == dirLeft {
			return dirUp
		}
		return dirDown
	case cornerTL | cornerBR:
		if prev == dirUp {
			return dirRight
		}
		return dirLeft
	default:
		return dirNone
	}
}

// grid 二值角点网格。单元格 (cx, cy) 的四个角对应像素
// (cx-1, cy-1)、(cx, cy-1)、(cx-1, cy)、(cx, cy)，越界像素一律视为外部。
type grid struct {
	alpha     []byte
	w, h      int
	cols      int
	rows      int
	threshold float64
	inside    []bool
}

func newGrid(alpha []byte, w, h int, threshold uint8) *grid {
	g := &grid{
		alpha:     alpha,
		w:         w,
		h:         h,
		cols:      w + 1,
		rows:      h + 1,
		threshold: float64(threshold),
		inside:    make([]bool, w*h),
	}
	for i := 0; i < w*h; i++ {
		g.inside[i] = alpha[i] >= threshold
	}
	return g
}

func (g *grid) value(x, y int) byte {
	if x < 0 || y < 0 || x >= g.w || y >= g.h {
		return 0
	}
	return g.alpha[y*g.w+x]
}

func (g *grid) isInside(x, y int) bool {
	if x < 0 || y < 0 || x >= g.w || y >= g.h {
		return false
	}
	return g.inside[y*g.w+x]
}

func (g *grid) caseAt(cx, cy int) cellCase {
	var c cellCase
	if g.isInside(cx-1, cy-1) {
		c |= cornerTL
	}
	if g.isInside(cx, cy-1) {
		c |= cornerTR
	}
	if g.isInside(cx-1, cy) {
		c |= cornerBL
	}
	if g.isInside(cx, cy) {
		c |= cornerBR
	}
	return c
}

// interp 在两个角点的不透明度之间按阈值线性插值，返回像素中心坐标
func (g *grid) interp(a, b int, va, vb byte) float64 {
	t := 0.5
	if va != vb {
		t = (g.threshold - float64(va)) / (float64(vb) - float64(va))
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}
	return float64(a) + t*float64(b-a) + 0.5
}

// crossing 计算出口边上的亚像素边界点
func (g *grid) crossing(cx, cy int, d direction) Point {
	left, right := cx-1, cx
	top, bottom := cy-1, cy
	switch d {
	case dirUp:
		return Pt(g.interp(left, right, g.value(left, top), g.value(right, top)), float64(top)+0.5)
	case dirDown:
		return Pt(g.interp(left, right, g.value(left, bottom), g.value(right, bottom)), float64(bottom)+0.5)
	case dirLeft:
		return Pt(float64(left)+0.5, g.interp(top, bottom, g.value(left, top), g.value(left, bottom)))
	default:
		return Pt(float64(right)+0.5, g.interp(top, bottom, g.value(right, top), g.value(right, bottom)))
	}
}

func step(cx, cy int, d direction) (int, int) {
	switch d {
	case dirUp:
		return cx, cy - 1
	case dirDown:
		return cx, cy + 1
	case dirLeft:
		return cx - 1, cy
	default:
		return cx + 1, cy
	}
}

// walk 从起始单元格沿边界行走，回到起点或步数耗尽时结束。
// 步数耗尽时返回未闭合的部分轮廓。
func (g *grid) walk(sx, sy int, visited []bool, budget int) Polygon {
	pts := make(Polygon, 0, 64)
	cx, cy := sx, sy
	prev := dirNone
	for n := 0; n < budget; n++ {
		visited[cy*g.cols+cx] = true
		d := nextDirection(g.caseAt(cx, cy), prev)
		if d == dirNone {
			break
		}
		pts = append(pts, g.crossing(cx, cy, d))
		cx, cy = step(cx, cy, d)
		prev = d
		if cx == sx && cy == sy {
			break
		}
	}
	return pts
}

// Trace 使用 marching squares 从不透明度缓冲中提取所有闭合边界，
// 按面积从大到小排序返回。alpha 为 w*h 的逐像素不透明度。
func Trace(alpha []byte, w, h int, threshold uint8) []Polygon {
	if w <= 0 || h <= 0 || len(alpha) < w*h {
		return nil
	}

	g := newGrid(alpha, w, h, threshold)
	visited := make([]bool, g.cols*g.rows)
	budget := 2 * g.cols * g.rows

	type traced struct {
		poly Polygon
		area float64
	}
	var found []traced

	for cy := 0; cy < g.rows; cy++ {
		for cx := 0; cx < g.cols; cx++ {
			idx := cy*g.cols + cx
			if visited[idx] {
				continue
			}
			c := g.caseAt(cx, cy)
			if c == caseEmpty || c == caseFull {
				visited[idx] = true
				continue
			}
			poly := g.walk(cx, cy, visited, budget)
			if len(poly) < 3 {
				continue
			}
			found = append(found, traced{poly: poly, area: poly.Area()})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].area > found[j].area
	})

	polys := make([]Polygon, len(found))
	for i, t := range found {
		polys[i] = t.poly
	}
	return polys
}
