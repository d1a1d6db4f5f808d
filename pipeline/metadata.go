package pipeline

import "strconv"

// 订单行元数据键
const (
	MetaCutPath        = "contour_cut_path"
	MetaBleedMm        = "contour_bleed_mm"
	MetaProcessedImage = "contour_processed_image"
)

// OrderLineMetadata 客户确认打样后写入订单行的数据，
// 这是轮廓子系统交给订单流程的全部内容。
func OrderLineMetadata(cutPath string, bleedMm float64, processedRef string) map[string]string {
	meta := map[string]string{
		MetaCutPath: cutPath,
		MetaBleedMm: strconv.FormatFloat(bleedMm, 'f', -1, 64),
	}
	if processedRef != "" {
		meta[MetaProcessedImage] = processedRef
	}
	return meta
}
