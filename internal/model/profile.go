package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"fitcoach/internal/onboarding"
)

// UserProfile 引导完成后落库的用户资料
type UserProfile struct {
	BaseModel
	UserID             string     `gorm:"uniqueIndex;type:varchar(64);not null" json:"user_id"`
	Language           string     `gorm:"type:varchar(8);not null;default:'sv'" json:"language"`
	Gender             string     `gorm:"type:varchar(16);not null" json:"gender"`
	Age                int        `gorm:"not null" json:"age"`
	Weight             float64    `gorm:"not null" json:"weight"` // kg
	Height             float64    `gorm:"not null" json:"height"` // cm
	Country            string     `gorm:"type:varchar(64);not null" json:"country"`
	Address            string     `gorm:"type:varchar(255);not null;default:''" json:"address"`
	FitnessGoals       StringList `gorm:"type:jsonb;default:'[]'" json:"fitness_goals"`
	WorkoutTypes       StringList `gorm:"type:jsonb;default:'[]'" json:"workout_types"`
	ContentPreferences StringList `gorm:"type:jsonb;default:'[]'" json:"content_preferences"`
	Allergies          string     `gorm:"type:text;not null;default:''" json:"allergies"`

	OnboardingCompleted bool `gorm:"not null;default:false" json:"onboarding_completed"`
	OnboardingStep      int  `gorm:"not null;default:1" json:"onboarding_step"`
}

// TableName 指定表名
func (UserProfile) TableName() string {
	return "user_profiles"
}

// StringList 以 JSONB 数组存储的字符串列表
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*l = StringList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("failed to unmarshal StringList value")
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

// ProfileFromAnswers 把引导答案转换为资料记录，数值字段在这里解析
func ProfileFromAnswers(userID string, a onboarding.Answers) (*UserProfile, error) {
	age, err := strconv.Atoi(strings.TrimSpace(a.Age))
	if err != nil {
		return nil, fmt.Errorf("parse age %q: %w", a.Age, err)
	}
	weight, err := strconv.ParseFloat(strings.TrimSpace(a.Weight), 64)
	if err != nil {
		return nil, fmt.Errorf("parse weight %q: %w", a.Weight, err)
	}
	height, err := strconv.ParseFloat(strings.TrimSpace(a.Height), 64)
	if err != nil {
		return nil, fmt.Errorf("parse height %q: %w", a.Height, err)
	}

	goals := make(StringList, 0, len(a.Goals))
	for _, g := range a.Goals {
		goals = append(goals, string(g))
	}
	workouts := make(StringList, 0, len(a.WorkoutTypes))
	for _, w := range a.WorkoutTypes {
		workouts = append(workouts, string(w))
	}

	return &UserProfile{
		UserID:              userID,
		Language:            string(a.Language),
		Gender:              string(a.Gender),
		Age:                 age,
		Weight:              weight,
		Height:              height,
		Country:             strings.TrimSpace(a.Country),
		Address:             strings.TrimSpace(a.Address),
		FitnessGoals:        goals,
		WorkoutTypes:        workouts,
		ContentPreferences:  contentPreferences(a.Preferences),
		Allergies:           strings.TrimSpace(a.Allergies),
		OnboardingCompleted: true,
		OnboardingStep:      onboarding.TotalSteps,
	}, nil
}

// both 展开为两种计划
func contentPreferences(p onboarding.Preference) StringList {
	switch p {
	case onboarding.PreferenceBoth:
		return StringList{string(onboarding.PreferenceWorkoutPlan), string(onboarding.PreferenceMealPlan)}
	case "":
		return StringList{}
	default:
		return StringList{string(p)}
	}
}
