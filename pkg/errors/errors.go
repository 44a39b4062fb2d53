package errors

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// WithMessage 返回同错误码、不同提示信息的副本。
func (d Definition) WithMessage(message string) Definition {
	return Definition{Code: d.Code, Message: message}
}

// Is 让 errors.Is 按错误码比较，忽略提示信息差异。
func (d Definition) Is(target error) bool {
	t, ok := target.(Definition)
	return ok && t.Code == d.Code
}

// 通用错误。
var (
	InvalidRequest  = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	MissingUserID   = Definition{Code: "MISSING_USER_ID", Message: "Missing X-User-ID header"}
	TooManyRequests = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests"}
	InternalError   = Definition{Code: "INTERNAL_ERROR", Message: "Internal error"}
)

// 引导流程错误。
var (
	OnboardingNotFound         = Definition{Code: "ONBOARDING_NOT_FOUND", Message: "Onboarding session not found"}
	OnboardingStepInvalid      = Definition{Code: "ONBOARDING_STEP_INVALID", Message: "Onboarding step invalid"}
	OnboardingStepIncomplete   = Definition{Code: "ONBOARDING_STEP_INCOMPLETE", Message: "Current step is not complete"}
	OnboardingSubmitting       = Definition{Code: "ONBOARDING_SUBMITTING", Message: "Onboarding is being submitted"}
	OnboardingAlreadyCompleted = Definition{Code: "ONBOARDING_ALREADY_COMPLETED", Message: "Onboarding already completed"}
	OnboardingFieldInvalid     = Definition{Code: "ONBOARDING_FIELD_INVALID", Message: "Onboarding field invalid"}
)

// 用户资料错误。
var (
	ProfileNotFound   = Definition{Code: "PROFILE_NOT_FOUND", Message: "Profile not found"}
	ProfileSaveFailed = Definition{Code: "PROFILE_SAVE_FAILED", Message: "Profile could not be saved, please retry"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	InvalidRequest.Code:             InvalidRequest,
	MissingUserID.Code:              MissingUserID,
	TooManyRequests.Code:            TooManyRequests,
	InternalError.Code:              InternalError,
	OnboardingNotFound.Code:         OnboardingNotFound,
	OnboardingStepInvalid.Code:      OnboardingStepInvalid,
	OnboardingStepIncomplete.Code:   OnboardingStepIncomplete,
	OnboardingSubmitting.Code:       OnboardingSubmitting,
	OnboardingAlreadyCompleted.Code: OnboardingAlreadyCompleted,
	OnboardingFieldInvalid.Code:     OnboardingFieldInvalid,
	ProfileNotFound.Code:            ProfileNotFound,
	ProfileSaveFailed.Code:          ProfileSaveFailed,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// SkipMessageError 表示消息无需处理（重复投递等），消费者应直接 ack 而不是重新入队。
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return "skip message: " + e.Reason
}
