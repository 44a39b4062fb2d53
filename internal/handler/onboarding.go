package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"fitcoach/internal/middleware"
	"fitcoach/internal/model/dto"
	"fitcoach/internal/service"
	"fitcoach/pkg/errors"
	"fitcoach/pkg/response"
)

// OnboardingHandler 引导流程接口
type OnboardingHandler struct {
	svc *service.OnboardingService
}

func NewOnboardingHandler(svc *service.OnboardingService) *OnboardingHandler {
	return &OnboardingHandler{svc: svc}
}

// identity 取出用户 ID 与路径中的会话 ID
func identity(ctx context.Context, c *app.RequestContext) (userID, sessionID string, ok bool) {
	userID, ok = middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.MissingUserID)
		return "", "", false
	}
	sessionID = c.Param("session_id")
	if sessionID == "" {
		response.Error(ctx, c, errors.OnboardingNotFound)
		return "", "", false
	}
	return userID, sessionID, true
}

// Start 创建引导会话
// POST /v1/onboarding
func (h *OnboardingHandler) Start(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.MissingUserID)
		return
	}

	state, err := h.svc.Start(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Created(ctx, c, state)
}

// Get 查询会话状态
// GET /v1/onboarding/:session_id
func (h *OnboardingHandler) Get(ctx context.Context, c *app.RequestContext) {
	userID, sessionID, ok := identity(ctx, c)
	if !ok {
		return
	}

	state, err := h.svc.Get(ctx, userID, sessionID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, state)
}

// UpdateField 修改单个字段
// PATCH /v1/onboarding/:session_id/fields
func (h *OnboardingHandler) UpdateField(ctx context.Context, c *app.RequestContext) {
	userID, sessionID, ok := identity(ctx, c)
	if !ok {
		return
	}

	var req dto.UpdateFieldRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	if len(req.Value) == 0 {
		response.Error(ctx, c, errors.OnboardingFieldInvalid.WithMessage("value is required"))
		return
	}

	update, err := dto.ParseFieldUpdate(req.Field, req.Value)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	state, err := h.svc.UpdateField(ctx, userID, sessionID, update)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, state)
}

// Toggle 切换多选字段
// POST /v1/onboarding/:session_id/toggle
func (h *OnboardingHandler) Toggle(ctx context.Context, c *app.RequestContext) {
	userID, sessionID, ok := identity(ctx, c)
	if !ok {
		return
	}

	var req dto.ToggleRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	toggle, err := dto.ParseToggle(req.Field, req.Value)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	state, err := h.svc.Toggle(ctx, userID, sessionID, toggle)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, state)
}

// Next 前进一步
// POST /v1/onboarding/:session_id/next
func (h *OnboardingHandler) Next(ctx context.Context, c *app.RequestContext) {
	userID, sessionID, ok := identity(ctx, c)
	if !ok {
		return
	}

	state, err := h.svc.Next(ctx, userID, sessionID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, state)
}

// Previous 后退一步
// POST /v1/onboarding/:session_id/previous
func (h *OnboardingHandler) Previous(ctx context.Context, c *app.RequestContext) {
	userID, sessionID, ok := identity(ctx, c)
	if !ok {
		return
	}

	state, err := h.svc.Previous(ctx, userID, sessionID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, state)
}

// Complete 提交引导
// POST /v1/onboarding/:session_id/complete
func (h *OnboardingHandler) Complete(ctx context.Context, c *app.RequestContext) {
	userID, sessionID, ok := identity(ctx, c)
	if !ok {
		return
	}

	data, err := h.svc.Complete(ctx, userID, sessionID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, data)
}

// Abandon 放弃会话
// DELETE /v1/onboarding/:session_id
func (h *OnboardingHandler) Abandon(ctx context.Context, c *app.RequestContext) {
	userID, sessionID, ok := identity(ctx, c)
	if !ok {
		return
	}

	if err := h.svc.Abandon(ctx, userID, sessionID); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.NoContent(ctx, c)
}

// Options 步骤目录，不需要会话
// GET /v1/onboarding/options
func (h *OnboardingHandler) Options(ctx context.Context, c *app.RequestContext) {
	response.Success(ctx, c, h.svc.Options())
}
