package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitcoach/internal/onboarding"
)

func completeAnswers() onboarding.Answers {
	a := onboarding.DefaultAnswers("Sverige")
	a.Language = onboarding.LanguageEnglish
	a.Gender = onboarding.GenderFemale
	a.Age = "30"
	a.Weight = "62.5"
	a.Height = " 170 "
	a.Address = "Storgatan 1"
	a.Goals = []onboarding.Goal{onboarding.GoalLoseWeight, onboarding.GoalStayHealthy}
	a.WorkoutTypes = []onboarding.WorkoutType{onboarding.WorkoutGym}
	a.Preferences = onboarding.PreferenceBoth
	return a
}

func TestProfileFromAnswers(t *testing.T) {
	p, err := ProfileFromAnswers("user-1", completeAnswers())
	require.NoError(t, err)

	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, "en", p.Language)
	assert.Equal(t, 30, p.Age)
	assert.InDelta(t, 62.5, p.Weight, 0.001)
	assert.InDelta(t, 170, p.Height, 0.001)
	assert.Equal(t, StringList{"lose_weight", "stay_healthy"}, p.FitnessGoals)
	assert.Equal(t, StringList{"gym"}, p.WorkoutTypes)
	assert.Equal(t, StringList{"workout_plan", "meal_plan"}, p.ContentPreferences)
	assert.True(t, p.OnboardingCompleted)
	assert.Equal(t, onboarding.TotalSteps, p.OnboardingStep)
}

func TestProfileFromAnswersRejectsNonNumeric(t *testing.T) {
	a := completeAnswers()
	a.Age = "thirty"

	_, err := ProfileFromAnswers("user-1", a)
	assert.ErrorContains(t, err, "parse age")
}

func TestSinglePreferenceNotExpanded(t *testing.T) {
	a := completeAnswers()
	a.Preferences = onboarding.PreferenceMealPlan

	p, err := ProfileFromAnswers("user-1", a)
	require.NoError(t, err)
	assert.Equal(t, StringList{"meal_plan"}, p.ContentPreferences)
}

func TestStringListScanValue(t *testing.T) {
	v, err := StringList{"a", "b"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, v)

	var l StringList
	require.NoError(t, l.Scan([]byte(`["x"]`)))
	assert.Equal(t, StringList{"x"}, l)

	require.NoError(t, l.Scan(nil))
	assert.Empty(t, l)

	assert.Error(t, l.Scan(42))
}
