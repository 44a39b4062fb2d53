package middleware

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"

	"fitcoach/pkg/errors"
	"fitcoach/pkg/response"
)

const (
	// IdentityKey 用户 ID 在请求上下文中的键
	IdentityKey = "user_id"
	// UserIDHeader 网关鉴权后写入的用户 ID
	UserIDHeader = "X-User-ID"

	maxUserIDLen = 64
)

// IdentityMiddleware 从网关注入的请求头读取用户 ID，缺失时返回 401
func IdentityMiddleware() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		userID := strings.TrimSpace(string(c.GetHeader(UserIDHeader)))
		if userID == "" || len(userID) > maxUserIDLen {
			response.Error(ctx, c, errors.MissingUserID)
			c.Abort()
			return
		}

		c.Set(IdentityKey, userID)
		c.Next(ctx)
	}
}

// GetUserID 从请求上下文中获取用户ID
func GetUserID(ctx context.Context, c *app.RequestContext) (string, bool) {
	userID, exists := c.Get(IdentityKey)
	if !exists {
		return "", false
	}

	id, ok := userID.(string)
	return id, ok && id != ""
}
