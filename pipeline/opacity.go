package pipeline

const (
	classifierSamples = 5000
	opaqueAlpha       = 250
	transparentRatio  = 0.01
)

// AlphaBuffer 不透明度缓冲，尺寸与工作位图一致
type AlphaBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// ExtractAlpha 提取 alpha 通道
func ExtractAlpha(r *Raster) AlphaBuffer {
	n := r.Width * r.Height
	buf := AlphaBuffer{Width: r.Width, Height: r.Height, Pix: make([]byte, n)}
	for i := 0; i < n; i++ {
		buf.Pix[i] = r.Pix[i*4+3]
	}
	return buf
}

// HasTransparency 以均匀步长抽样至多约 5000 个像素，
// 非不透明像素（alpha < 250）占比超过 1% 即认为已有可用透明度。
func HasTransparency(r *Raster) bool {
	total := r.Width * r.Height
	if total == 0 {
		return false
	}

	stride := max(1, total/classifierSamples)
	sampled, translucent := 0, 0
	for i := 0; i < total; i += stride {
		sampled++
		if r.Pix[i*4+3] < opaqueAlpha {
			translucent++
		}
	}
	return float64(translucent)/float64(sampled) > transparentRatio
}
