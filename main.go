package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/TIANLI0/DieCutKit/config"
	"github.com/TIANLI0/DieCutKit/handler"
	"github.com/TIANLI0/DieCutKit/middleware"
	"github.com/TIANLI0/DieCutKit/pipeline"
	"github.com/TIANLI0/DieCutKit/segment"
	"github.com/TIANLI0/DieCutKit/service"
	"github.com/TIANLI0/DieCutKit/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	BuildID   = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

func main() {
	// 加载配置
	cfg := config.New()

	// 初始化日志
	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting DieCutKit server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("git_branch", GitBranch))

	// 初始化Redis
	redisService := service.NewRedisService(&cfg.Redis)
	if err := redisService.Ping(context.Background()); err != nil {
		utils.Logger.Warn("redis connection failed, cache disabled", zap.Error(err))
	} else {
		utils.Logger.Info("redis connected successfully")
	}
	defer redisService.Close()

	// 抠图结果存储
	store, err := service.NewImageStore(&cfg.Storage)
	if err != nil {
		utils.Logger.Fatal("failed to initialize image store", zap.Error(err))
	}

	source := pipeline.DecodeSource{MaxPixels: cfg.Contour.MaxPixels}
	if cfg.FFmpeg.Enabled {
		source.Transcoder = service.NewFFmpegTranscoder(cfg.FFmpeg.Binary)
	}

	processor := pipeline.NewProcessor(source, newRemover(&cfg.BgRemoval), store)
	contourHandler := handler.NewContourHandler(cfg, redisService, processor)

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())
	r.MaxMultipartMemory = cfg.Upload.MaxSize

	if local, ok := store.(*service.LocalStore); ok {
		r.Static(cfg.Storage.PublicPrefix, local.Dir())
	}

	// 健康检查和版本信息
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": Version,
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"build_id":   BuildID,
			"git_commit": GitCommit,
			"git_branch": GitBranch,
		})
	})

	// API路由
	api := r.Group("/api/v1")
	{
		api.POST("/contour", contourHandler.Generate)
		api.POST("/contour/bleed", contourHandler.Bleed)
		api.POST("/contour/confirm", contourHandler.Confirm)
		api.GET("/contour/:key", contourHandler.Get)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		utils.Logger.Fatal("failed to start server", zap.Error(err))
	}
}

// newRemover 根据配置选择抠图实现，none 表示不抠图
func newRemover(cfg *config.BgRemovalConfig) pipeline.BackgroundRemover {
	switch cfg.Provider {
	case "grabcut":
		return segment.NewGrabCutRemover(cfg)
	case "http":
		if cfg.Endpoint == "" {
			utils.Logger.Warn("bgremoval.endpoint is empty, background removal disabled")
			return nil
		}
		return service.NewHTTPRemover(cfg)
	case "", "none":
		return nil
	}
	utils.Logger.Warn("unknown background removal provider, disabled", zap.String("provider", cfg.Provider))
	return nil
}
