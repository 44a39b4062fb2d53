package model

// OnboardingCompletedMessage 引导完成事件，worker 据此预热资料缓存
type OnboardingCompletedMessage struct {
	MessageID   string `json:"message_id"` // 消息唯一ID，用于幂等性检查
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	ProfileID   int64  `json:"profile_id"`
	Language    string `json:"language"`
	CompletedAt string `json:"completed_at"`
}
