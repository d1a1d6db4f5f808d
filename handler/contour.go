package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/TIANLI0/DieCutKit/config"
	"github.com/TIANLI0/DieCutKit/contour"
	"github.com/TIANLI0/DieCutKit/model"
	"github.com/TIANLI0/DieCutKit/pipeline"
	"github.com/TIANLI0/DieCutKit/utils"
	"github.com/TIANLI0/DieCutKit/vector"
	"github.com/gin-gonic/gin"
	"github.com/h2non/filetype"
	"go.uber.org/zap"
)

// 请求参数范围，上传表单与出血调整接口共用（与 model.BleedRequest 的 binding 一致）
const (
	maxBleedMm          = 50
	minDPI              = 1
	maxDPI              = 2400
	maxSimplifyEpsilon  = 100
	maxSmoothIterations = 6
	minProcessingDim    = 16
	maxProcessingDim    = 4096
)

// ResultCache 轮廓结果缓存，未命中时返回 nil, nil
type ResultCache interface {
	GetContourResult(ctx context.Context, key string) (*model.ContourResult, error)
	SetContourResult(ctx context.Context, key string, result *model.ContourResult) error
}

type ContourHandler struct {
	cfg       *config.Config
	cache     ResultCache
	processor *pipeline.Processor
}

func NewContourHandler(cfg *config.Config, cache ResultCache, processor *pipeline.Processor) *ContourHandler {
	return &ContourHandler{
		cfg:       cfg,
		cache:     cache,
		processor: processor,
	}
}

// Generate 上传图片并生成切割线与出血线
func (h *ContourHandler) Generate(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		utils.Logger.Error("failed to get uploaded file", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "请上传图片文件",
			Error:   err.Error(),
		})
		return
	}

	// 验证文件大小
	if file.Size > h.cfg.Upload.MaxSize {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("文件大小超过限制 (%d MB)", h.cfg.Upload.MaxSize/(1024*1024)),
		})
		return
	}

	data, err := readUpload(file)
	if err != nil {
		utils.Logger.Error("failed to read uploaded file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "读取文件失败",
			Error:   err.Error(),
		})
		return
	}

	// 按文件内容判断类型，不信任客户端声明的 Content-Type
	kind, _ := filetype.Match(data)
	if !h.isAllowedType(kind.MIME.Value) && !(h.cfg.FFmpeg.Enabled && filetype.IsImage(data)) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "不支持的文件类型",
			Error:   kind.MIME.Value,
		})
		return
	}

	opts, err := h.parseOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "参数格式错误",
			Error:   err.Error(),
		})
		return
	}

	md5 := utils.BytesMD5(data)
	cacheKey := utils.CacheKey(md5, optionSignature(opts))

	utils.Logger.Info("file uploaded",
		zap.String("filename", file.Filename),
		zap.String("md5", md5),
		zap.String("type", kind.MIME.Value),
		zap.Int64("size", file.Size),
		zap.Float64("bleed_mm", opts.BleedMm))

	ctx := c.Request.Context()
	if cached := h.lookup(ctx, cacheKey); cached != nil {
		utils.Logger.Info("cache hit", zap.String("cache_key", cacheKey))
		c.JSON(http.StatusOK, model.ContourResponse{
			Success: true,
			Message: "处理成功（来自缓存）",
			Data:    cached,
		})
		return
	}

	res, err := h.processor.Generate(ctx, pipeline.ImageRef{Name: file.Filename, Data: data}, opts)
	if err != nil {
		status, message := generateError(err)
		utils.Logger.Error("failed to generate contour",
			zap.String("md5", md5),
			zap.Error(err))
		c.JSON(status, model.ErrorResponse{
			Success: false,
			Message: message,
			Error:   err.Error(),
		})
		return
	}

	result := &model.ContourResult{
		Key:            cacheKey,
		MD5:            md5,
		Width:          res.Width,
		Height:         res.Height,
		BleedMm:        opts.BleedMm,
		DPI:            opts.DPI,
		CutPath:        res.CutPath,
		BleedPath:      res.BleedPath,
		ProofSVG:       res.ProofSVG,
		CutPoints:      res.CutPoints,
		BleedPoints:    res.BleedPoints,
		BgRemoved:      res.BgRemoved,
		ProcessedImage: res.ProcessedImageRef,
		Timestamp:      time.Now().Unix(),
	}
	if len(res.PreviewPNG) > 0 {
		result.Preview = base64.StdEncoding.EncodeToString(res.PreviewPNG)
	}

	if h.cache != nil {
		if err := h.cache.SetContourResult(ctx, cacheKey, result); err != nil {
			utils.Logger.Warn("failed to set cache", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, model.ContourResponse{
		Success: true,
		Message: "处理成功",
		Data:    result,
	})
}

// Bleed 调整出血距离，只重新外扩已有切割线
func (h *ContourHandler) Bleed(c *gin.Context) {
	var req model.BleedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "请求参数错误",
			Error:   err.Error(),
		})
		return
	}

	opts := h.defaultOptions()
	opts.BleedMm = req.BleedMm
	if req.DPI > 0 {
		opts.DPI = req.DPI
	}
	opts.StraightLines = req.StraightLines

	if err := checkBleed(opts); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "请求参数错误",
			Error:   err.Error(),
		})
		return
	}

	bleed := pipeline.RegenerateBleedWith(req.CutPoints, opts)
	result := &model.BleedResult{
		BleedPath:   bleed.Path,
		BleedPoints: bleed.Points,
	}
	if req.Width > 0 && req.Height > 0 {
		cutPath := opts.PathData(contour.EnsureClockwise(req.CutPoints))
		result.ProofSVG = vector.ProofDocument(req.Width, req.Height, cutPath, bleed.Path)
	}

	c.JSON(http.StatusOK, model.BleedResponse{
		Success: true,
		Message: "出血线已更新",
		Data:    result,
	})
}

// Get 根据缓存键获取轮廓结果
func (h *ContourHandler) Get(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "缓存键参数缺失",
		})
		return
	}

	if h.cache == nil {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Success: false,
			Message: "未找到该图片的轮廓信息",
		})
		return
	}

	result, err := h.cache.GetContourResult(c.Request.Context(), key)
	if err != nil {
		utils.Logger.Error("failed to get contour result", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "查询失败",
			Error:   err.Error(),
		})
		return
	}

	if result == nil {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Success: false,
			Message: "未找到该图片的轮廓信息",
		})
		return
	}

	c.JSON(http.StatusOK, model.ContourResponse{
		Success: true,
		Message: "查询成功",
		Data:    result,
	})
}

// Confirm 客户确认打样，返回写入订单行的元数据
func (h *ContourHandler) Confirm(c *gin.Context) {
	var req model.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "请求参数错误",
			Error:   err.Error(),
		})
		return
	}

	metadata := pipeline.OrderLineMetadata(req.CutPath, req.BleedMm, req.ProcessedImage)

	utils.Logger.Info("proof confirmed",
		zap.Float64("bleed_mm", req.BleedMm),
		zap.Bool("has_processed_image", req.ProcessedImage != ""))

	c.JSON(http.StatusOK, model.ConfirmResponse{
		Success: true,
		Message: "打样已确认",
		Data:    &model.ConfirmResult{Metadata: metadata},
	})
}

func (h *ContourHandler) lookup(ctx context.Context, key string) *model.ContourResult {
	if h.cache == nil {
		return nil
	}
	cached, err := h.cache.GetContourResult(ctx, key)
	if err != nil {
		utils.Logger.Warn("failed to get cache", zap.Error(err))
		return nil
	}
	return cached
}

func (h *ContourHandler) defaultOptions() pipeline.Options {
	cc := h.cfg.Contour
	opts := pipeline.DefaultOptions()
	opts.BleedMm = cc.BleedMm
	opts.SmoothIterations = cc.SmoothIterations
	opts.SimplifyEpsilon = cc.SimplifyEpsilon
	if cc.AlphaThreshold >= 0 && cc.AlphaThreshold <= 255 {
		opts.AlphaThreshold = uint8(cc.AlphaThreshold)
	}
	opts.MaxProcessingDim = cc.MaxProcessingDim
	opts.DPI = cc.DPI
	opts.MiterLimit = cc.MiterLimit
	opts.Tension = cc.Tension
	return opts
}

// parseOptions 读取表单中的可选参数，未提供的使用配置默认值
func (h *ContourHandler) parseOptions(c *gin.Context) (pipeline.Options, error) {
	opts := h.defaultOptions()

	if v, ok := c.GetPostForm("bleed_mm"); ok {
		f, err := parseFloat("bleed_mm", v, 0, maxBleedMm)
		if err != nil {
			return opts, err
		}
		opts.BleedMm = f
	}
	if v, ok := c.GetPostForm("dpi"); ok {
		f, err := parseFloat("dpi", v, minDPI, maxDPI)
		if err != nil {
			return opts, err
		}
		opts.DPI = f
	}
	if v, ok := c.GetPostForm("simplify_epsilon"); ok {
		f, err := parseFloat("simplify_epsilon", v, 0, maxSimplifyEpsilon)
		if err != nil {
			return opts, err
		}
		opts.SimplifyEpsilon = f
	}
	if v, ok := c.GetPostForm("smooth_iterations"); ok {
		n, err := parseInt("smooth_iterations", v, 0, maxSmoothIterations)
		if err != nil {
			return opts, err
		}
		opts.SmoothIterations = n
	}
	if v, ok := c.GetPostForm("alpha_threshold"); ok {
		n, err := parseInt("alpha_threshold", v, 0, 255)
		if err != nil {
			return opts, err
		}
		opts.AlphaThreshold = uint8(n)
	}
	if v, ok := c.GetPostForm("max_dim"); ok {
		n, err := parseInt("max_dim", v, minProcessingDim, maxProcessingDim)
		if err != nil {
			return opts, err
		}
		opts.MaxProcessingDim = n
	}
	opts.Preview = c.DefaultPostForm("preview", "false") == "true"
	opts.StraightLines = c.DefaultPostForm("straight_lines", "false") == "true"

	return opts, nil
}

func (h *ContourHandler) isAllowedType(contentType string) bool {
	for _, allowed := range h.cfg.Upload.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func generateError(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrNoContour):
		return http.StatusUnprocessableEntity, "未能识别出图片主体轮廓，请上传带透明背景或主体清晰的图片"
	case errors.Is(err, pipeline.ErrDecode):
		return http.StatusBadRequest, "图片解码失败"
	}
	return http.StatusInternalServerError, "图片处理失败"
}

// optionSignature 影响输出的参数，参与缓存键
func optionSignature(o pipeline.Options) string {
	return strings.Join([]string{
		strconv.FormatFloat(o.BleedMm, 'g', -1, 64),
		strconv.FormatFloat(o.DPI, 'g', -1, 64),
		strconv.FormatFloat(o.SimplifyEpsilon, 'g', -1, 64),
		strconv.Itoa(o.SmoothIterations),
		strconv.Itoa(int(o.AlphaThreshold)),
		strconv.Itoa(o.MaxProcessingDim),
		strconv.FormatBool(o.Preview),
		strconv.FormatBool(o.StraightLines),
	}, "|")
}

// checkBleed 出血距离与 dpi 必须落在上传接口允许的范围内，
// 否则毫米到像素的换算可能溢出为 Inf，结果无法编码为 JSON
func checkBleed(o pipeline.Options) error {
	if math.IsNaN(o.BleedMm) || o.BleedMm < 0 || o.BleedMm > maxBleedMm {
		return fmt.Errorf("bleed_mm must be between 0 and %d", maxBleedMm)
	}
	if math.IsNaN(o.DPI) || o.DPI < minDPI || o.DPI > maxDPI {
		return fmt.Errorf("dpi must be between %d and %d", minDPI, maxDPI)
	}
	return nil
}

func parseFloat(name, v string, lo, hi float64) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if math.IsNaN(f) || f < lo || f > hi {
		return 0, fmt.Errorf("%s must be between %g and %g", name, lo, hi)
	}
	return f, nil
}

func parseInt(name, v string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%s must be between %d and %d", name, lo, hi)
	}
	return n, nil
}
