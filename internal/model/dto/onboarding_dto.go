package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"fitcoach/internal/model"
	"fitcoach/internal/onboarding"
	"fitcoach/pkg/errors"
)

// ========== Onboarding 相关 DTO ==========

// UpdateFieldRequest 单字段更新请求，value 为字符串，数值字段也接受 JSON 数字
type UpdateFieldRequest struct {
	Field string          `json:"field" vd:"len($)>0"`
	Value json.RawMessage `json:"value"`
}

// ToggleRequest 多选字段切换请求
type ToggleRequest struct {
	Field string `json:"field" vd:"len($)>0"`
	Value string `json:"value" vd:"len($)>0"`
}

// WizardStateData 引导会话状态
type WizardStateData struct {
	SessionID string `json:"session_id"`
	Gating    string `json:"gating"`
	onboarding.State
}

// CompleteData 提交成功的响应
type CompleteData struct {
	RedirectTo string       `json:"redirect_to"`
	Profile    *ProfileData `json:"profile"`
}

// OptionsData 步骤目录
type OptionsData struct {
	TotalSteps int                   `json:"total_steps"`
	Steps      []onboarding.StepInfo `json:"steps"`
}

// ProfileData 对外暴露的用户资料
type ProfileData struct {
	UserID              string   `json:"user_id"`
	Language            string   `json:"language"`
	Gender              string   `json:"gender"`
	Country             string   `json:"country"`
	Address             string   `json:"address"`
	Allergies           string   `json:"allergies"`
	FitnessGoals        []string `json:"fitness_goals"`
	WorkoutTypes        []string `json:"workout_types"`
	ContentPreferences  []string `json:"content_preferences"`
	Weight              float64  `json:"weight"`
	Height              float64  `json:"height"`
	Age                 int      `json:"age"`
	OnboardingStep      int      `json:"onboarding_step"`
	OnboardingCompleted bool     `json:"onboarding_completed"`
}

// ToProfileData 将数据库模型转换为响应结构
func ToProfileData(p *model.UserProfile) *ProfileData {
	if p == nil {
		return nil
	}
	return &ProfileData{
		UserID:              p.UserID,
		Language:            p.Language,
		Gender:              p.Gender,
		Age:                 p.Age,
		Weight:              p.Weight,
		Height:              p.Height,
		Country:             p.Country,
		Address:             p.Address,
		Allergies:           p.Allergies,
		FitnessGoals:        nonNil(p.FitnessGoals),
		WorkoutTypes:        nonNil(p.WorkoutTypes),
		ContentPreferences:  nonNil(p.ContentPreferences),
		OnboardingStep:      p.OnboardingStep,
		OnboardingCompleted: p.OnboardingCompleted,
	}
}

func nonNil(l model.StringList) []string {
	if l == nil {
		return []string{}
	}
	return []string(l)
}

// 文本字段的长度上限
const (
	maxCountryLen   = 64
	maxAddressLen   = 255
	maxAllergiesLen = 1000
)

func fieldInvalid(format string, args ...interface{}) error {
	return errors.OnboardingFieldInvalid.WithMessage(fmt.Sprintf(format, args...))
}

// ParseFieldUpdate 把 {field, value} 解析为强类型的单字段更新。
// 未知字段、非法枚举值、非数字都会返回 ONBOARDING_FIELD_INVALID。
// 越界的数值照常保存，由 State.Issues 提示。
func ParseFieldUpdate(field string, raw json.RawMessage) (onboarding.Update, error) {
	switch field {
	case "age", "weight", "height":
		v, err := numericString(field, raw)
		if err != nil {
			return nil, err
		}
		return parseNumeric(field, v)
	}

	v, err := stringValue(field, raw)
	if err != nil {
		return nil, err
	}

	switch field {
	case "language":
		if !slices.Contains(onboarding.Languages, onboarding.Language(v)) {
			return nil, fieldInvalid("unsupported language %q", v)
		}
		return onboarding.SetLanguage{Value: onboarding.Language(v)}, nil
	case "gender":
		if v != "" && !slices.Contains(onboarding.Genders, onboarding.Gender(v)) {
			return nil, fieldInvalid("unsupported gender %q", v)
		}
		return onboarding.SetGender{Value: onboarding.Gender(v)}, nil
	case "preferences":
		if v != "" && !slices.Contains(onboarding.Preferences, onboarding.Preference(v)) {
			return nil, fieldInvalid("unsupported preference %q", v)
		}
		return onboarding.SetPreference{Value: onboarding.Preference(v)}, nil
	case "country":
		if err := checkLen(field, v, maxCountryLen); err != nil {
			return nil, err
		}
		return onboarding.SetCountry{Value: v}, nil
	case "address":
		if err := checkLen(field, v, maxAddressLen); err != nil {
			return nil, err
		}
		return onboarding.SetAddress{Value: v}, nil
	case "allergies":
		if err := checkLen(field, v, maxAllergiesLen); err != nil {
			return nil, err
		}
		return onboarding.SetAllergies{Value: v}, nil
	case "goals", "workout_types":
		return nil, fieldInvalid("%s is a multi-select field, use toggle", field)
	default:
		return nil, fieldInvalid("unknown field %q", field)
	}
}

// ParseToggle 解析多选字段的切换请求
func ParseToggle(field, value string) (onboarding.Toggle, error) {
	switch field {
	case "goals":
		if !slices.Contains(onboarding.Goals, onboarding.Goal(value)) {
			return nil, fieldInvalid("unsupported goal %q", value)
		}
		return onboarding.ToggleGoal{Value: onboarding.Goal(value)}, nil
	case "workout_types":
		if !slices.Contains(onboarding.WorkoutTypes, onboarding.WorkoutType(value)) {
			return nil, fieldInvalid("unsupported workout type %q", value)
		}
		return onboarding.ToggleWorkoutType{Value: onboarding.WorkoutType(value)}, nil
	default:
		return nil, fieldInvalid("%q is not a multi-select field", field)
	}
}

func stringValue(field string, raw json.RawMessage) (string, error) {
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fieldInvalid("%s must be a string", field)
	}
	return v, nil
}

// numericString 数值字段既接受 "30" 也接受 30
func numericString(field string, raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] != '"' {
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return "", fieldInvalid("%s must be a number", field)
		}
		return n.String(), nil
	}
	v, err := stringValue(field, raw)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

func parseNumeric(field, v string) (onboarding.Update, error) {
	if v == "" {
		return emptyNumeric(field), nil
	}

	switch field {
	case "age":
		if _, err := strconv.Atoi(v); err != nil {
			return nil, fieldInvalid("age must be a whole number")
		}
		return onboarding.SetAge{Value: v}, nil
	case "weight":
		if err := checkNumber(field, v); err != nil {
			return nil, err
		}
		return onboarding.SetWeight{Value: v}, nil
	default:
		if err := checkNumber(field, v); err != nil {
			return nil, err
		}
		return onboarding.SetHeight{Value: v}, nil
	}
}

func emptyNumeric(field string) onboarding.Update {
	switch field {
	case "age":
		return onboarding.SetAge{}
	case "weight":
		return onboarding.SetWeight{}
	default:
		return onboarding.SetHeight{}
	}
}

func checkNumber(field, v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fieldInvalid("%s must be a number", field)
	}
	return nil
}

func checkLen(field, v string, limit int) error {
	if utf8.RuneCountInString(v) > limit {
		return fieldInvalid("%s must be at most %d characters", field, limit)
	}
	return nil
}
