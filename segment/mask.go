package segment

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// foregroundMask 取出确定前景与可能前景，输出 0/255 掩码
func foregroundMask(gc *gocv.Mat) gocv.Mat {
	fg := gocv.NewMat()
	defer fg.Close()
	one := gocv.NewMatFromScalar(gocv.Scalar{Val1: gcForeground}, gocv.MatTypeCV8U)
	defer one.Close()
	gocv.Compare(*gc, one, &fg, gocv.CompareEQ)

	probable := gocv.NewMat()
	defer probable.Close()
	three := gocv.NewMatFromScalar(gocv.Scalar{Val1: gcProbForegrnd}, gocv.MatTypeCV8U)
	defer three.Close()
	gocv.Compare(*gc, three, &probable, gocv.CompareEQ)

	combined := gocv.NewMat()
	gocv.BitwiseOr(fg, probable, &combined)
	return combined
}

// withSkin 人像场景下把膨胀后的肤色区域并入前景，避免手指、发梢被切掉
func withSkin(mask, img *gocv.Mat) gocv.Mat {
	skin := skinMask(img)
	defer skin.Close()

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 15, Y: 15})
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(skin, &dilated, kernel)

	out := gocv.NewMat()
	gocv.BitwiseOr(*mask, dilated, &out)
	return out
}

// openClose 开运算去噪点，闭运算补小孔
func openClose(mask *gocv.Mat, size int) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: size, Y: size})
	defer kernel.Close()

	opened := gocv.NewMat()
	defer opened.Close()
	gocv.MorphologyEx(*mask, &opened, gocv.MorphOpen, kernel)

	closed := gocv.NewMat()
	gocv.MorphologyEx(opened, &closed, gocv.MorphClose, kernel)
	return closed
}

// smoothEdges 轻微膨胀后模糊再二值化，去掉锯齿
func smoothEdges(mask *gocv.Mat) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 2, Y: 2})
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(*mask, &dilated, kernel)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(dilated, &blurred, image.Point{X: 3, Y: 3}, 0, 0, gocv.BorderDefault)

	out := gocv.NewMat()
	gocv.Threshold(blurred, &out, 127, 255, gocv.ThresholdBinary)
	return out
}

// upscale 将工作尺寸掩码还原到原图尺寸并重新二值化
func upscale(mask *gocv.Mat, width, height int) gocv.Mat {
	out := gocv.NewMat()
	gocv.Resize(*mask, &out, image.Point{X: width, Y: height}, 0, 0, gocv.InterpolationLinear)
	gocv.Threshold(out, &out, 127, 255, gocv.ThresholdBinary)
	return out
}

// largestRegion 只保留面积最大的外轮廓并填充，切割线只需要一个主体
func largestRegion(mask *gocv.Mat) gocv.Mat {
	contours := gocv.FindContours(*mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	if contours.Size() == 0 {
		return mask.Clone()
	}

	best, bestArea := 0, 0.0
	for i := 0; i < contours.Size(); i++ {
		if area := gocv.ContourArea(contours.At(i)); area > bestArea {
			best, bestArea = i, area
		}
	}

	out := gocv.NewMatWithSize(mask.Rows(), mask.Cols(), gocv.MatTypeCV8U)
	gocv.DrawContours(&out, contours, best, color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)
	return out
}

// composite 以 RGBA 像素和单通道掩码合成带透明度的图片
func composite(rgba, alpha []byte, width, height int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	n := width * height
	for i := 0; i < n; i++ {
		a := alpha[i]
		if a == 0 {
			continue
		}
		copy(dst.Pix[i*4:i*4+3], rgba[i*4:i*4+3])
		dst.Pix[i*4+3] = a
	}
	return dst
}
