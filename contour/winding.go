package contour

// EnsureClockwise 保证环为顺时针（屏幕坐标），有向面积为负时反转点序。
// 外扩法线的方向依赖该朝向，Offset 之前必须调用。
func EnsureClockwise(pts []Point) []Point {
	out := append([]Point(nil), pts...)
	if Polygon(out).SignedArea() < 0 {
		Reverse(out)
	}
	return out
}

// Reverse 原地反转点序
func Reverse(pts []Point) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}
