package segment

import (
	"image"

	"gocv.io/x/gocv"
)

// GrabCut 掩码取值
const (
	gcBackground   = 0
	gcForeground   = 1
	gcProbBackgnd  = 2
	gcProbForegrnd = 3
)

// borderRect 简单场景直接用内缩矩形初始化
func borderRect(width, height, border int) image.Rectangle {
	if border < 10 {
		border = int(float64(width) * 0.05)
	}
	return image.Rect(border, border, width-border, height-border)
}

// saliencyMap 梯度幅值经大核模糊后 Otsu 二值化，得到大致的主体区域
func saliencyMap(img *gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(*img, &gray, gocv.ColorBGRToGray)

	gradX := gocv.NewMat()
	defer gradX.Close()
	gradY := gocv.NewMat()
	defer gradY.Close()
	gocv.Sobel(gray, &gradX, gocv.MatTypeCV16S, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.Sobel(gray, &gradY, gocv.MatTypeCV16S, 0, 1, 3, 1, 0, gocv.BorderDefault)

	absX := gocv.NewMat()
	defer absX.Close()
	absY := gocv.NewMat()
	defer absY.Close()
	gocv.ConvertScaleAbs(gradX, &absX, 1, 0)
	gocv.ConvertScaleAbs(gradY, &absY, 1, 0)

	gradient := gocv.NewMat()
	defer gradient.Close()
	gocv.AddWeighted(absX, 0.5, absY, 0.5, 0, &gradient)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gradient, &blurred, image.Point{X: 21, Y: 21}, 0, 0, gocv.BorderDefault)

	saliency := gocv.NewMat()
	gocv.Threshold(blurred, &saliency, 0, 255, gocv.ThresholdOtsu)
	return saliency
}

// seedMask 根据显著性图构造 GrabCut 初始掩码：
// 图像边框为确定背景，显著区域为可能前景，其余为可能背景。
func seedMask(saliency *gocv.Mat, width, height int) gocv.Mat {
	mask := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8U)
	mask.SetTo(gocv.NewScalar(gcProbBackgnd, 0, 0, 0))

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 11, Y: 11})
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(*saliency, &dilated, kernel)

	border := int(float64(width) * 0.03)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			switch {
			case x < border || x >= width-border || y < border || y >= height-border:
				mask.SetUCharAt(y, x, gcBackground)
			case dilated.GetUCharAt(y, x) > 128:
				mask.SetUCharAt(y, x, gcProbForegrnd)
			}
		}
	}
	return mask
}
