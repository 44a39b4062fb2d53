package service

import (
	"context"
	stderrors "errors"
	"sync"

	"go.uber.org/zap"

	"fitcoach/internal/cache"
	"fitcoach/internal/model"
	"fitcoach/internal/model/dto"
	"fitcoach/internal/repository"
	"fitcoach/pkg/errors"
	"fitcoach/pkg/logger"
	"fitcoach/storage/database"
)

// ProfileReader 读取已保存的资料
type ProfileReader interface {
	GetByUserID(ctx context.Context, userID string) (*model.UserProfile, error)
}

var (
	profileService *ProfileService
	profileOnce    sync.Once
)

func Profile() *ProfileService {
	profileOnce.Do(func() {
		profileService = NewProfileService(repository.NewProfileRepository(database.DB()), cache.Profiles)
	})
	return profileService
}

type ProfileService struct {
	repo  ProfileReader
	cache ProfileCacheStore
	log   *zap.Logger
}

func NewProfileService(repo ProfileReader, c ProfileCacheStore) *ProfileService {
	return &ProfileService{repo: repo, cache: c, log: logger.Component("profile_service")}
}

// GetProfile 先查缓存，未命中时读库并回填；资料不存在也会缓存一段较短时间
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*dto.ProfileData, error) {
	data, hit, err := s.cache.Get(ctx, userID)
	switch {
	case err != nil:
		s.log.Warn("Failed to read profile cache, falling back to database",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	case hit && data == nil:
		return nil, errors.ProfileNotFound
	case hit:
		return data, nil
	}

	profile, err := s.repo.GetByUserID(ctx, userID)
	if stderrors.Is(err, errors.ProfileNotFound) {
		s.fill(ctx, userID, nil)
		return nil, errors.ProfileNotFound
	}
	if err != nil {
		return nil, err
	}

	data = dto.ToProfileData(profile)
	s.fill(ctx, userID, data)
	return data, nil
}

func (s *ProfileService) fill(ctx context.Context, userID string, data *dto.ProfileData) {
	if err := s.cache.Set(ctx, userID, data); err != nil {
		s.log.Warn("Failed to fill profile cache", zap.String("user_id", userID), zap.Error(err))
	}
}
