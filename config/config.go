package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Contour   ContourConfig   `mapstructure:"contour"`
	BgRemoval BgRemovalConfig `mapstructure:"bgremoval"`
	Storage   StorageConfig   `mapstructure:"storage"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

// ContourConfig 轮廓生成的默认参数，请求中未指定的字段使用这里的值
type ContourConfig struct {
	BleedMm          float64 `mapstructure:"bleed_mm"`
	DPI              float64 `mapstructure:"dpi"`
	SmoothIterations int     `mapstructure:"smooth_iterations"`
	SimplifyEpsilon  float64 `mapstructure:"simplify_epsilon"`
	AlphaThreshold   int     `mapstructure:"alpha_threshold"`
	MaxProcessingDim int     `mapstructure:"max_processing_dim"`
	MaxPixels        int     `mapstructure:"max_pixels"`
	MiterLimit       float64 `mapstructure:"miter_limit"`
	Tension          float64 `mapstructure:"tension"`
}

// BgRemovalConfig 抠图服务配置，provider 可选 grabcut、http、none
type BgRemovalConfig struct {
	Provider      string        `mapstructure:"provider"`
	Iterations    int           `mapstructure:"iterations"`
	BorderSize    int           `mapstructure:"border_size"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	QueueTimeout  time.Duration `mapstructure:"queue_timeout"`
	Endpoint      string        `mapstructure:"endpoint"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// StorageConfig 抠图结果的存储，driver 可选 local、s3、none
type StorageConfig struct {
	Driver       string `mapstructure:"driver"`
	Dir          string `mapstructure:"dir"`
	PublicPrefix string `mapstructure:"public_prefix"`
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	KeyPrefix    string `mapstructure:"key_prefix"`
}

type FFmpegConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Binary  string `mapstructure:"binary"`
}

// Load 从 YAML 文件加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	// DIECUT_SERVER_PORT 覆盖 server.port
	v.SetEnvPrefix("diecut")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// New 使用默认配置路径加载配置
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		// 如果加载失败，返回默认配置
		return Default()
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttl", d.Redis.TTL)

	v.SetDefault("upload.max_size", d.Upload.MaxSize)
	v.SetDefault("upload.allowed_types", d.Upload.AllowedTypes)

	v.SetDefault("contour.bleed_mm", d.Contour.BleedMm)
	v.SetDefault("contour.dpi", d.Contour.DPI)
	v.SetDefault("contour.smooth_iterations", d.Contour.SmoothIterations)
	v.SetDefault("contour.simplify_epsilon", d.Contour.SimplifyEpsilon)
	v.SetDefault("contour.alpha_threshold", d.Contour.AlphaThreshold)
	v.SetDefault("contour.max_processing_dim", d.Contour.MaxProcessingDim)
	v.SetDefault("contour.max_pixels", d.Contour.MaxPixels)
	v.SetDefault("contour.miter_limit", d.Contour.MiterLimit)
	v.SetDefault("contour.tension", d.Contour.Tension)

	v.SetDefault("bgremoval.provider", d.BgRemoval.Provider)
	v.SetDefault("bgremoval.iterations", d.BgRemoval.Iterations)
	v.SetDefault("bgremoval.border_size", d.BgRemoval.BorderSize)
	v.SetDefault("bgremoval.max_concurrent", d.BgRemoval.MaxConcurrent)
	v.SetDefault("bgremoval.queue_timeout", d.BgRemoval.QueueTimeout)
	v.SetDefault("bgremoval.timeout", d.BgRemoval.Timeout)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.dir", d.Storage.Dir)
	v.SetDefault("storage.public_prefix", d.Storage.PublicPrefix)
	v.SetDefault("storage.key_prefix", d.Storage.KeyPrefix)

	v.SetDefault("ffmpeg.enabled", d.FFmpeg.Enabled)
	v.SetDefault("ffmpeg.binary", d.FFmpeg.Binary)
}

// Default 内置默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8080",
			Mode:         "debug",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  24 * time.Hour,
		},
		Upload: UploadConfig{
			MaxSize:      20 * 1024 * 1024,
			AllowedTypes: []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/bmp", "image/tiff"},
		},
		Contour: ContourConfig{
			BleedMm:          3,
			DPI:              300,
			SmoothIterations: 2,
			SimplifyEpsilon:  1.5,
			AlphaThreshold:   128,
			MaxProcessingDim: 512,
			MaxPixels:        40_000_000,
			MiterLimit:       3,
			Tension:          0.3,
		},
		BgRemoval: BgRemovalConfig{
			Provider:      "grabcut",
			Iterations:    5,
			BorderSize:    10,
			MaxConcurrent: 3,
			QueueTimeout:  30 * time.Second,
			Timeout:       30 * time.Second,
		},
		Storage: StorageConfig{
			Driver:       "local",
			Dir:          "./processed",
			PublicPrefix: "/processed",
			KeyPrefix:    "processed/",
		},
		FFmpeg: FFmpegConfig{
			Enabled: false,
			Binary:  "ffmpeg",
		},
	}
}
