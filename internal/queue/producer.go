package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fitcoach/internal/model"
	"fitcoach/pkg/logger"
	"fitcoach/pkg/snowflake"
	"fitcoach/storage/mq"
)

// Publisher 把领域事件写入 RabbitMQ
type Publisher struct{}

func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishOnboardingCompleted 发布引导完成事件，MessageID 为空时用 snowflake 生成
func (p *Publisher) PublishOnboardingCompleted(ctx context.Context, msg model.OnboardingCompletedMessage) error {
	if msg.MessageID == "" {
		id, err := snowflake.NextIDString()
		if err != nil {
			return fmt.Errorf("generate message id: %w", err)
		}
		msg.MessageID = id
	}
	if msg.CompletedAt == "" {
		msg.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	}

	if err := mq.PublishMessage(ctx, mq.EventsExchange, mq.OnboardingCompletedKey, msg.MessageID, msg); err != nil {
		return fmt.Errorf("publish onboarding completed: %w", err)
	}

	logger.Logger.Info("Onboarding completed event published",
		zap.String("message_id", msg.MessageID),
		zap.String("session_id", msg.SessionID),
		zap.String("user_id", msg.UserID),
	)
	return nil
}
