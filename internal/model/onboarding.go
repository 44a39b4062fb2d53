package model

import (
	"time"

	"fitcoach/internal/onboarding"
)

// OnboardingDraft 未完成的引导会话草稿，保存在 Redis 中用于断点续填
type OnboardingDraft struct {
	SessionID string              `json:"session_id"`
	UserID    string              `json:"user_id"`
	Snapshot  onboarding.Snapshot `json:"snapshot"`
	UpdatedAt time.Time           `json:"updated_at"`
}
