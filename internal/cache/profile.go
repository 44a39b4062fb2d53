package cache

import (
	"context"
	"time"

	"fitcoach/config"
	"fitcoach/internal/model/dto"
)

const profilePrefix = "profile"

// ProfileCache 已完成引导的用户资料缓存，worker 在收到完成事件后预热
type ProfileCache struct {
	pc *ProtectedCache
}

func NewProfileCache(ttl time.Duration) *ProfileCache {
	return &ProfileCache{pc: NewProtectedCache(profilePrefix, ttl)}
}

// Profiles 默认实例，TTL 取自配置
var Profiles = NewProfileCache(time.Duration(config.Cfg.ProfileCacheTTLMinute) * time.Minute)

// Get 命中空值时返回 (nil, true, nil)
func (c *ProfileCache) Get(ctx context.Context, userID string) (*dto.ProfileData, bool, error) {
	var data dto.ProfileData
	hit, empty, err := c.pc.Get(ctx, userID, &data)
	if err != nil || !hit {
		return nil, false, err
	}
	if empty {
		return nil, true, nil
	}
	return &data, true, nil
}

// Set data 为 nil 时记录"资料不存在"
func (c *ProfileCache) Set(ctx context.Context, userID string, data *dto.ProfileData) error {
	if data == nil {
		return c.pc.Set(ctx, userID, nil)
	}
	return c.pc.Set(ctx, userID, data)
}

func (c *ProfileCache) Delete(ctx context.Context, userID string) error {
	return c.pc.Delete(ctx, userID)
}
