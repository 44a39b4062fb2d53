package onboarding

import "slices"

// Language 界面语言
type Language string

const (
	LanguageSwedish Language = "sv"
	LanguageEnglish Language = "en"
)

// Gender 为空表示尚未选择
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Goal 训练目标（多选）
type Goal string

const (
	GoalLoseWeight     Goal = "lose_weight"
	GoalBuildMuscle    Goal = "build_muscle"
	GoalStayHealthy    Goal = "stay_healthy"
	GoalIncreaseEnergy Goal = "increase_energy"
)

// WorkoutType 训练方式（多选）
type WorkoutType string

const (
	WorkoutHome     WorkoutType = "home_workout"
	WorkoutGym      WorkoutType = "gym"
	WorkoutOutdoor  WorkoutType = "outdoor"
	WorkoutSwimming WorkoutType = "swimming"
	WorkoutGroup    WorkoutType = "group_classes"
)

// Preference 希望获得的计划类型，为空表示尚未选择
type Preference string

const (
	PreferenceMealPlan    Preference = "meal_plan"
	PreferenceWorkoutPlan Preference = "workout_plan"
	PreferenceBoth        Preference = "both"
)

var (
	Languages    = []Language{LanguageSwedish, LanguageEnglish}
	Genders      = []Gender{GenderFemale, GenderMale, GenderOther}
	Goals        = []Goal{GoalLoseWeight, GoalBuildMuscle, GoalStayHealthy, GoalIncreaseEnergy}
	WorkoutTypes = []WorkoutType{WorkoutHome, WorkoutGym, WorkoutOutdoor, WorkoutSwimming, WorkoutGroup}
	Preferences  = []Preference{PreferenceMealPlan, PreferenceWorkoutPlan, PreferenceBoth}
)

// Answers 引导过程中逐步累积的答案。
// age / weight / height 保留用户输入的字符串，提交时才转换为数值。
type Answers struct {
	Language     Language      `json:"language"`
	Gender       Gender        `json:"gender"`
	Age          string        `json:"age"`
	Weight       string        `json:"weight"`
	Height       string        `json:"height"`
	Country      string        `json:"country"`
	Address      string        `json:"address"`
	Goals        []Goal        `json:"goals"`
	WorkoutTypes []WorkoutType `json:"workout_types"`
	Preferences  Preference    `json:"preferences"`
	Allergies    string        `json:"allergies"`
}

// DefaultAnswers 新会话的初始值
func DefaultAnswers(country string) Answers {
	return Answers{
		Language:     LanguageSwedish,
		Country:      country,
		Goals:        []Goal{},
		WorkoutTypes: []WorkoutType{},
	}
}

// Clone 深拷贝，两个多选切片不与原值共享底层数组
func (a Answers) Clone() Answers {
	out := a
	out.Goals = slices.Clone(a.Goals)
	out.WorkoutTypes = slices.Clone(a.WorkoutTypes)
	if out.Goals == nil {
		out.Goals = []Goal{}
	}
	if out.WorkoutTypes == nil {
		out.WorkoutTypes = []WorkoutType{}
	}
	return out
}

// Update 单字段覆盖写。每个变体携带对应字段的类型，不做校验。
type Update interface {
	Field() string
	apply(a *Answers)
	isUpdate()
}

type (
	SetLanguage   struct{ Value Language }
	SetGender     struct{ Value Gender }
	SetAge        struct{ Value string }
	SetWeight     struct{ Value string }
	SetHeight     struct{ Value string }
	SetCountry    struct{ Value string }
	SetAddress    struct{ Value string }
	SetPreference struct{ Value Preference }
	SetAllergies  struct{ Value string }
)

func (u SetLanguage) Field() string   { return "language" }
func (u SetGender) Field() string     { return "gender" }
func (u SetAge) Field() string        { return "age" }
func (u SetWeight) Field() string     { return "weight" }
func (u SetHeight) Field() string     { return "height" }
func (u SetCountry) Field() string    { return "country" }
func (u SetAddress) Field() string    { return "address" }
func (u SetPreference) Field() string { return "preferences" }
func (u SetAllergies) Field() string  { return "allergies" }

func (u SetLanguage) apply(a *Answers)   { a.Language = u.Value }
func (u SetGender) apply(a *Answers)     { a.Gender = u.Value }
func (u SetAge) apply(a *Answers)        { a.Age = u.Value }
func (u SetWeight) apply(a *Answers)     { a.Weight = u.Value }
func (u SetHeight) apply(a *Answers)     { a.Height = u.Value }
func (u SetCountry) apply(a *Answers)    { a.Country = u.Value }
func (u SetAddress) apply(a *Answers)    { a.Address = u.Value }
func (u SetPreference) apply(a *Answers) { a.Preferences = u.Value }
func (u SetAllergies) apply(a *Answers)  { a.Allergies = u.Value }

func (SetLanguage) isUpdate()   {}
func (SetGender) isUpdate()     {}
func (SetAge) isUpdate()        {}
func (SetWeight) isUpdate()     {}
func (SetHeight) isUpdate()     {}
func (SetCountry) isUpdate()    {}
func (SetAddress) isUpdate()    {}
func (SetPreference) isUpdate() {}
func (SetAllergies) isUpdate()  {}

// Toggle 多选字段的切换：存在则移除，不存在则追加到末尾
type Toggle interface {
	Field() string
	apply(a *Answers)
	isToggle()
}

type (
	ToggleGoal        struct{ Value Goal }
	ToggleWorkoutType struct{ Value WorkoutType }
)

func (t ToggleGoal) Field() string        { return "goals" }
func (t ToggleWorkoutType) Field() string { return "workout_types" }

func (t ToggleGoal) apply(a *Answers)        { a.Goals = toggle(a.Goals, t.Value) }
func (t ToggleWorkoutType) apply(a *Answers) { a.WorkoutTypes = toggle(a.WorkoutTypes, t.Value) }

func (ToggleGoal) isToggle()        {}
func (ToggleWorkoutType) isToggle() {}

func toggle[T comparable](set []T, v T) []T {
	if i := slices.Index(set, v); i >= 0 {
		return slices.Delete(slices.Clone(set), i, i+1)
	}
	return append(slices.Clone(set), v)
}
