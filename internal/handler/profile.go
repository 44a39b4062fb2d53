package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"fitcoach/internal/middleware"
	"fitcoach/internal/service"
	"fitcoach/pkg/errors"
	"fitcoach/pkg/response"
)

type ProfileHandler struct {
	svc *service.ProfileService
}

func NewProfileHandler(svc *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{svc: svc}
}

// GetMyProfile 获取已完成引导的用户资料
// GET /v1/profiles/me
func (h *ProfileHandler) GetMyProfile(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.MissingUserID)
		return
	}

	data, err := h.svc.GetProfile(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, data)
}
