package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/TIANLI0/DieCutKit/config"
	"github.com/TIANLI0/DieCutKit/model"
	"github.com/TIANLI0/DieCutKit/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const contourKeyPrefix = "contour:"

// RedisService 轮廓结果缓存，键为图片 md5 加参数摘要
type RedisService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisService(cfg *config.RedisConfig) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisService{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetContourResult 从缓存获取轮廓结果，未命中时返回 nil, nil
func (s *RedisService) GetContourResult(ctx context.Context, key string) (*model.ContourResult, error) {
	data, err := s.client.Get(ctx, contourKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var result model.ContourResult
	if err := json.Unmarshal(data, &result); err != nil {
		utils.Logger.Error("failed to unmarshal contour result",
			zap.String("key", key), zap.Error(err))
		return nil, err
	}

	return &result, nil
}

// SetContourResult 写入轮廓结果
func (s *RedisService) SetContourResult(ctx context.Context, key string, result *model.ContourResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, contourKeyPrefix+key, data, s.ttl).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}
