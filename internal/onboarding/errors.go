package onboarding

import "errors"

var (
	// ErrStepIncomplete 当前步骤（或提交时任一步骤）的必填字段未填写
	ErrStepIncomplete = errors.New("onboarding: step is not complete")
	// ErrNotFinalStep 只有最后一步才能提交
	ErrNotFinalStep = errors.New("onboarding: complete is only allowed on the final step")
	// ErrSubmitting 已有一次提交在进行中
	ErrSubmitting = errors.New("onboarding: submission already in flight")
	// ErrAlreadyCompleted 提交成功后向导不再接受提交
	ErrAlreadyCompleted = errors.New("onboarding: already completed")
	// ErrClosed 向导已关闭，包括保存途中被 Close 取消的情况
	ErrClosed = errors.New("onboarding: wizard closed")
	// ErrNoSaver 构造向导时没有传入 ProfileSaver
	ErrNoSaver = errors.New("onboarding: no profile saver configured")
)
