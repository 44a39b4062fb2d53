package onboarding

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TotalSteps 引导步骤总数，固定为 7
const TotalSteps = 7

const (
	StepLanguage = iota + 1
	StepAbout
	StepBody
	StepLocation
	StepGoals
	StepWorkoutTypes
	StepPreferences
)

// StepComplete 判断某一步需要的字段是否已填写，纯函数。
// 越界的步骤一律返回 false。
func StepComplete(step int, a Answers) bool {
	switch step {
	case StepLanguage:
		return a.Language != ""
	case StepAbout:
		return a.Gender != "" && a.Age != ""
	case StepBody:
		return a.Weight != "" && a.Height != ""
	case StepLocation:
		return a.Country != "" && a.Address != ""
	case StepGoals:
		return len(a.Goals) > 0
	case StepWorkoutTypes:
		return len(a.WorkoutTypes) > 0
	case StepPreferences:
		return a.Preferences != ""
	default:
		return false
	}
}

// AllStepsComplete 提交前要求 1..7 每一步都满足
func AllStepsComplete(a Answers) bool {
	for s := 1; s <= TotalSteps; s++ {
		if !StepComplete(s, a) {
			return false
		}
	}
	return true
}

// 数值字段的建议范围，只用于提示，不阻止保存和前进
const (
	MinAge    = 16
	MaxAge    = 100
	MinWeight = 30
	MaxWeight = 300
	MinHeight = 140
	MaxHeight = 220
)

// Issues 列出超出建议范围的数值字段，key 为字段名。
// 空值和无法解析的值不在此报告。
func Issues(a Answers) map[string]string {
	issues := make(map[string]string)
	check := func(field, v string, lo, hi float64) {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) {
			return
		}
		if f < lo || f > hi {
			issues[field] = fmt.Sprintf("%s should be between %g and %g", field, lo, hi)
		}
	}
	check("age", a.Age, MinAge, MaxAge)
	check("weight", a.Weight, MinWeight, MaxWeight)
	check("height", a.Height, MinHeight, MaxHeight)
	if len(issues) == 0 {
		return nil
	}
	return issues
}

// Choice 单个可选项，Label 按语言区分
type Choice struct {
	Value string              `json:"value"`
	Label map[Language]string `json:"label"`
}

// StepInfo 步骤元信息，供前端渲染
type StepInfo struct {
	Number  int                 `json:"number"`
	Key     string              `json:"key"`
	Title   map[Language]string `json:"title"`
	Fields  []string            `json:"fields"`
	Options map[string][]Choice `json:"options,omitempty"`
	// Multi 列出需要通过 toggle 修改的字段
	Multi []string `json:"multi,omitempty"`
}

func opt(value, sv, en string) Choice {
	return Choice{Value: value, Label: map[Language]string{LanguageSwedish: sv, LanguageEnglish: en}}
}

func title(sv, en string) map[Language]string {
	return map[Language]string{LanguageSwedish: sv, LanguageEnglish: en}
}

// Catalogue 七个步骤的定义，顺序即步骤号
var Catalogue = []StepInfo{
	{
		Number: StepLanguage,
		Key:    "language",
		Title:  title("Välj språk", "Choose language"),
		Fields: []string{"language"},
		Options: map[string][]Choice{
			"language": {
				opt(string(LanguageSwedish), "Svenska", "Swedish"),
				opt(string(LanguageEnglish), "English", "English"),
			},
		},
	},
	{
		Number: StepAbout,
		Key:    "about",
		Title:  title("Om dig", "About you"),
		Fields: []string{"gender", "age"},
		Options: map[string][]Choice{
			"gender": {
				opt(string(GenderFemale), "Kvinna", "Female"),
				opt(string(GenderMale), "Man", "Male"),
				opt(string(GenderOther), "Annat", "Other"),
			},
		},
	},
	{
		Number: StepBody,
		Key:    "body",
		Title:  title("Kroppsmått", "Body measurements"),
		Fields: []string{"weight", "height"},
	},
	{
		Number: StepLocation,
		Key:    "location",
		Title:  title("Var bor du?", "Where do you live?"),
		Fields: []string{"country", "address"},
	},
	{
		Number: StepGoals,
		Key:    "goals",
		Title:  title("Dina mål", "Your goals"),
		Fields: []string{"goals"},
		Multi:  []string{"goals"},
		Options: map[string][]Choice{
			"goals": {
				opt(string(GoalLoseWeight), "Gå ner i vikt", "Lose weight"),
				opt(string(GoalBuildMuscle), "Bygga muskler", "Build muscle"),
				opt(string(GoalStayHealthy), "Bli hälsosam", "Stay healthy"),
				opt(string(GoalIncreaseEnergy), "Öka energi", "Increase energy"),
			},
		},
	},
	{
		Number: StepWorkoutTypes,
		Key:    "workout_types",
		Title:  title("Träningsform", "Workout types"),
		Fields: []string{"workout_types"},
		Multi:  []string{"workout_types"},
		Options: map[string][]Choice{
			"workout_types": {
				opt(string(WorkoutHome), "Hemmaträning", "Home workout"),
				opt(string(WorkoutGym), "Gym", "Gym"),
				opt(string(WorkoutOutdoor), "Utomhus", "Outdoor"),
				opt(string(WorkoutSwimming), "Simning", "Swimming"),
				opt(string(WorkoutGroup), "Gruppträning", "Group classes"),
			},
		},
	},
	{
		Number: StepPreferences,
		Key:    "preferences",
		Title:  title("Vad vill du ha?", "What do you want?"),
		Fields: []string{"preferences", "allergies"},
		Options: map[string][]Choice{
			"preferences": {
				opt(string(PreferenceMealPlan), "Endast kostschema", "Meal plan only"),
				opt(string(PreferenceWorkoutPlan), "Endast träningsschema", "Workout plan only"),
				opt(string(PreferenceBoth), "Båda delarna", "Both"),
			},
		},
	},
}
