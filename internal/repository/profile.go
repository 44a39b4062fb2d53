package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"fitcoach/internal/model"
	"fitcoach/pkg/errors"
)

// ProfileRepository user_profiles 表的读写。
// 读操作默认走 dbresolver 注册的只读副本，FromPrimary 强制读主库。
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FromPrimary 返回读主库的副本，用于写后立即读
func (r *ProfileRepository) FromPrimary() *ProfileRepository {
	return &ProfileRepository{db: r.db.Clauses(dbresolver.Write).Session(&gorm.Session{})}
}

// upsertColumns 冲突时覆盖的列，created_at 保持首次写入的值
var upsertColumns = []string{
	"language", "gender", "age", "weight", "height", "country", "address",
	"fitness_goals", "workout_types", "content_preferences", "allergies",
	"onboarding_completed", "onboarding_step", "updated_at", "deleted_at",
}

// Upsert 按 user_id 插入或覆盖资料，重复提交同一用户的引导不会产生多行
func (r *ProfileRepository) Upsert(ctx context.Context, p *model.UserProfile) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).
		Create(p).Error
	if err != nil {
		return fmt.Errorf("upsert user profile %s: %w", p.UserID, err)
	}
	return nil
}

// GetByUserID 查询用户资料，不存在时返回 errors.ProfileNotFound
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*model.UserProfile, error) {
	var p model.UserProfile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&p).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user profile %s: %w", userID, err)
	}
	return &p, nil
}
