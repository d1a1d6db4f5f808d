package contour

// Smooth 对闭合环执行 Chaikin 切角，每次迭代点数翻倍。
// 少于 3 个点时原样返回。
func Smooth(pts []Point, iterations int) []Point {
	if len(pts) < 3 || iterations <= 0 {
		return append([]Point(nil), pts...)
	}

	cur := pts
	for it := 0; it < iterations; it++ {
		n := len(cur)
		next := make([]Point, 0, n*2)
		for i := 0; i < n; i++ {
			p0 := cur[i]
			p1 := cur[(i+1)%n]
			next = append(next, p0.Lerp(p1, 0.25), p0.Lerp(p1, 0.75))
		}
		cur = next
	}
	return cur
}
