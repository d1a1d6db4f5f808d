package segment

import (
	"image"

	"gocv.io/x/gocv"
)

// sceneLevel 场景复杂度，决定 GrabCut 的初始化方式与迭代次数
type sceneLevel string

const (
	levelSimple   sceneLevel = "simple"
	levelMedium   sceneLevel = "medium"
	levelComplex  sceneLevel = "complex"
	levelPortrait sceneLevel = "portrait"
)

const (
	simpleEdgeDensity  = 0.05
	complexEdgeDensity = 0.15
	simpleVariance     = 30
	complexVariance    = 60
	portraitSkinRatio  = 0.15
)

type sceneInfo struct {
	Level         sceneLevel
	EdgeDensity   float64
	ColorVariance float64
	SkinRatio     float64
}

// portrait 皮肤占比超过阈值视为人像（贴纸常见的头像、自拍）
func (s sceneInfo) portrait() bool {
	return s.Level == levelPortrait
}

// iterations 根据复杂度调整 GrabCut 迭代次数
func (s sceneInfo) iterations(base int) int {
	switch s.Level {
	case levelSimple:
		return max(3, base-2)
	case levelPortrait:
		return base + 1
	case levelComplex:
		return base + 2
	}
	return base
}

// kernelSize 形态学优化所用核大小
func (s sceneInfo) kernelSize() int {
	if s.Level == levelComplex || s.Level == levelPortrait {
		return 5
	}
	return 3
}

func classify(edgeDensity, colorVariance, skinRatio float64) sceneLevel {
	switch {
	case skinRatio > portraitSkinRatio:
		return levelPortrait
	case edgeDensity < simpleEdgeDensity && colorVariance < simpleVariance:
		return levelSimple
	case edgeDensity > complexEdgeDensity || colorVariance > complexVariance:
		return levelComplex
	}
	return levelMedium
}

// analyzeScene 计算边缘密度、Lab 颜色标准差和皮肤占比
func analyzeScene(img *gocv.Mat) sceneInfo {
	total := float64(img.Rows() * img.Cols())

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(*img, &gray, gocv.ColorBGRToGray)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, 50, 150)
	edgeDensity := float64(gocv.CountNonZero(edges)) / total

	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(*img, &lab, gocv.ColorBGRToLab)

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(lab, &mean, &stddev)

	variance := 0.0
	for i := 0; i < stddev.Rows(); i++ {
		variance += stddev.GetDoubleAt(i, 0)
	}
	if stddev.Rows() > 0 {
		variance /= float64(stddev.Rows())
	}

	skin := skinMask(img)
	defer skin.Close()
	skinRatio := float64(gocv.CountNonZero(skin)) / total

	return sceneInfo{
		Level:         classify(edgeDensity, variance, skinRatio),
		EdgeDensity:   edgeDensity,
		ColorVariance: variance,
		SkinRatio:     skinRatio,
	}
}

// skinMask YCrCb 空间的肤色区域
func skinMask(img *gocv.Mat) gocv.Mat {
	ycrcb := gocv.NewMat()
	defer ycrcb.Close()
	gocv.CvtColor(*img, &ycrcb, gocv.ColorBGRToYCrCb)

	lower := gocv.Scalar{Val1: 0, Val2: 133, Val3: 77, Val4: 0}
	upper := gocv.Scalar{Val1: 255, Val2: 173, Val3: 127, Val4: 255}

	mask := gocv.NewMat()
	gocv.InRangeWithScalar(ycrcb, lower, upper, &mask)

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 5, Y: 5})
	defer kernel.Close()
	gocv.MorphologyEx(mask, &mask, gocv.MorphClose, kernel)
	gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, kernel)

	return mask
}
