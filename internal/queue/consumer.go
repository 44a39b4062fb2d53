package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fitcoach/internal/model"
	"fitcoach/internal/model/dto"
	"fitcoach/pkg/errors"
	"fitcoach/pkg/logger"
	"fitcoach/storage/mq"
)

const (
	processingTTL = 24 * time.Hour
	processedTTL  = 48 * time.Hour
)

// ProfileLoader 按用户读取已保存的资料
type ProfileLoader interface {
	GetByUserID(ctx context.Context, userID string) (*model.UserProfile, error)
}

// ProfileWarmer 写入资料缓存
type ProfileWarmer interface {
	Set(ctx context.Context, userID string, data *dto.ProfileData) error
}

// Deduper 消息幂等标记
type Deduper interface {
	TryMark(ctx context.Context, messageID string, ttl time.Duration) (bool, error)
	Unmark(ctx context.Context, messageID string) error
	MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) error
}

// OnboardingCompletedHandler 处理引导完成事件：读主库中的资料并预热缓存
type OnboardingCompletedHandler struct {
	Profiles ProfileLoader
	Cache    ProfileWarmer
	Dedup    Deduper
	log      *zap.Logger
}

func NewOnboardingCompletedHandler(profiles ProfileLoader, c ProfileWarmer, dedup Deduper) *OnboardingCompletedHandler {
	return &OnboardingCompletedHandler{
		Profiles: profiles,
		Cache:    c,
		Dedup:    dedup,
		log:      logger.Component("onboarding_consumer"),
	}
}

// Handle 满足 mq.MessageHandler
func (h *OnboardingCompletedHandler) Handle(ctx context.Context, body []byte) error {
	var msg model.OnboardingCompletedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		// 格式错误的消息重试也不会成功
		h.log.Error("Malformed onboarding completed message", zap.Error(err))
		return &errors.SkipMessageError{Reason: "malformed payload"}
	}
	if msg.MessageID == "" || msg.UserID == "" {
		return &errors.SkipMessageError{Reason: "missing message_id or user_id"}
	}

	first, err := h.Dedup.TryMark(ctx, msg.MessageID, processingTTL)
	if err != nil {
		// 检查失败时继续处理，预热缓存是幂等的
		h.log.Warn("Failed to check message processed status",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	} else if !first {
		h.log.Info("Message already processed or being processed, skipping",
			zap.String("message_id", msg.MessageID),
		)
		return &errors.SkipMessageError{Reason: fmt.Sprintf("message %s already processed", msg.MessageID)}
	}

	profile, err := h.Profiles.GetByUserID(ctx, msg.UserID)
	if err != nil {
		if unmarkErr := h.Dedup.Unmark(ctx, msg.MessageID); unmarkErr != nil {
			h.log.Warn("Failed to unmark message", zap.String("message_id", msg.MessageID), zap.Error(unmarkErr))
		}
		return fmt.Errorf("load profile for %s: %w", msg.UserID, err)
	}

	if err := h.Cache.Set(ctx, msg.UserID, dto.ToProfileData(profile)); err != nil {
		if unmarkErr := h.Dedup.Unmark(ctx, msg.MessageID); unmarkErr != nil {
			h.log.Warn("Failed to unmark message", zap.String("message_id", msg.MessageID), zap.Error(unmarkErr))
		}
		return fmt.Errorf("warm profile cache for %s: %w", msg.UserID, err)
	}

	if err := h.Dedup.MarkProcessed(ctx, msg.MessageID, processedTTL); err != nil {
		h.log.Warn("Failed to mark message as processed",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	}

	h.log.Info("Profile cache warmed",
		zap.String("message_id", msg.MessageID),
		zap.String("user_id", msg.UserID),
		zap.String("session_id", msg.SessionID),
	)
	return nil
}

// StartOnboardingCompletedConsumer 阻塞消费 onboarding.completed，直到 ctx 取消。
// index 区分同一进程内的多个消费者。
func StartOnboardingCompletedConsumer(ctx context.Context, h *OnboardingCompletedHandler, index int) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.OnboardingCompletedQueue,
		ConsumerTag:   fmt.Sprintf("onboarding_completed_consumer_%d", index),
		PrefetchCount: 10,
		Handler:       h.Handle,
	})
}
