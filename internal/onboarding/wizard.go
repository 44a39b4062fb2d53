package onboarding

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"fitcoach/pkg/logger"
)

const (
	DefaultCountry     = "Sverige"
	DefaultDestination = "/dashboard"
)

// ProfileSaver 提交时调用的资料保存方
type ProfileSaver interface {
	Save(ctx context.Context, answers Answers) error
}

// SaverFunc 让普通函数满足 ProfileSaver
type SaverFunc func(ctx context.Context, answers Answers) error

func (f SaverFunc) Save(ctx context.Context, answers Answers) error {
	return f(ctx, answers)
}

// Gating 决定 GoNext 是否校验当前步骤
type Gating int

const (
	// GatingEnforced 当前步骤未完成时 GoNext 返回 ErrStepIncomplete
	GatingEnforced Gating = iota
	// GatingAdvisory 只由前端禁用按钮，GoNext 不做校验
	GatingAdvisory
)

func (g Gating) String() string {
	if g == GatingAdvisory {
		return "advisory"
	}
	return "enforced"
}

type WizardOption func(*Wizard)

func WithGating(g Gating) WizardOption {
	return func(w *Wizard) { w.gating = g }
}

// WithDestination 提交成功后返回的跳转目标
func WithDestination(dest string) WizardOption {
	return func(w *Wizard) {
		if dest != "" {
			w.destination = dest
		}
	}
}

// WithDefaultCountry 只影响新建向导的初始答案，Restore 时忽略
func WithDefaultCountry(country string) WizardOption {
	return func(w *Wizard) { w.defaultCountry = country }
}

func WithLogger(l *zap.Logger) WizardOption {
	return func(w *Wizard) {
		if l != nil {
			w.log = l
		}
	}
}

// Wizard 引导向导：步骤游标、累积答案与最终提交。
// 所有方法都可以并发调用，保存调用在锁外执行。
type Wizard struct {
	mu         sync.Mutex
	step       int
	answers    Answers
	submitting bool
	completed  bool
	closed     bool
	cancelSave context.CancelFunc
	// version 每次修改答案或游标时递增，随快照持久化
	version uint64

	saver          ProfileSaver
	gating         Gating
	destination    string
	defaultCountry string
	log            *zap.Logger
}

func newWizard(saver ProfileSaver, opts []WizardOption) *Wizard {
	w := &Wizard{
		step:           StepLanguage,
		saver:          saver,
		gating:         GatingEnforced,
		destination:    DefaultDestination,
		defaultCountry: DefaultCountry,
		log:            logger.Component("onboarding"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// New 创建一个处于第 1 步、带默认答案的向导
func New(saver ProfileSaver, opts ...WizardOption) *Wizard {
	w := newWizard(saver, opts)
	w.answers = DefaultAnswers(w.defaultCountry)
	return w
}

// Snapshot 可序列化的向导进度，用于草稿持久化
type Snapshot struct {
	Version uint64  `json:"version"`
	Step    int     `json:"step"`
	Answers Answers `json:"answers"`
}

// Restore 从快照恢复向导，越界的步骤会被夹到 [1, TotalSteps]
func Restore(snap Snapshot, saver ProfileSaver, opts ...WizardOption) *Wizard {
	w := newWizard(saver, opts)
	w.step = clampStep(snap.Step)
	w.answers = snap.Answers.Clone()
	w.version = snap.Version
	return w
}

func clampStep(step int) int {
	return max(StepLanguage, min(step, TotalSteps))
}

func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{Version: w.version, Step: w.step, Answers: w.answers.Clone()}
}

func (w *Wizard) Step() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Answers 返回答案副本，调用方修改不会影响向导
func (w *Wizard) Answers() Answers {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.answers.Clone()
}

func (w *Wizard) Submitting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submitting
}

func (w *Wizard) Completed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.completed
}

func (w *Wizard) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Wizard) Gating() Gating {
	return w.gating
}

// Apply 覆盖单个字段
func (w *Wizard) Apply(u Update) {
	if u == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	u.apply(&w.answers)
	w.version++
}

// Toggle 切换多选字段中的一个值
func (w *Wizard) Toggle(t Toggle) {
	if t == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	t.apply(&w.answers)
	w.version++
}

// CanAdvance 按当前答案判断 step 是否已完成
func (w *Wizard) CanAdvance(step int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return StepComplete(step, w.answers)
}

// GoNext 前进一步。已在最后一步时不做任何事。
func (w *Wizard) GoNext() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step >= TotalSteps {
		return nil
	}
	if w.gating == GatingEnforced && !StepComplete(w.step, w.answers) {
		return ErrStepIncomplete
	}
	w.step++
	w.version++
	return nil
}

// GoPrevious 后退一步，不做校验，第 1 步时不做任何事
func (w *Wizard) GoPrevious() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step > StepLanguage {
		w.step--
		w.version++
	}
}

// Complete 提交全部答案。
// 保存期间 submitting 为 true，重复提交返回 ErrSubmitting；
// 保存失败时答案保持不变，submitting 复位，可以重试。
// 保存途中被 Close 取消时返回 ErrClosed。成功时返回跳转目标。
func (w *Wizard) Complete(ctx context.Context) (string, error) {
	w.mu.Lock()
	if err := w.checkCompletableLocked(); err != nil {
		w.mu.Unlock()
		return "", err
	}
	w.submitting = true
	answers := w.answers.Clone()
	saveCtx, cancel := context.WithCancel(ctx)
	w.cancelSave = cancel
	saver := w.saver
	w.mu.Unlock()

	err := saver.Save(saveCtx, answers)
	cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false
	w.cancelSave = nil

	if err != nil {
		w.log.Error("Failed to save onboarding profile",
			zap.Error(err),
			zap.Int("step", w.step),
			zap.Bool("closed", w.closed),
		)
		if w.closed {
			return "", fmt.Errorf("save onboarding profile: %w: %w", ErrClosed, err)
		}
		return "", fmt.Errorf("save onboarding profile: %w", err)
	}

	w.completed = true
	return w.destination, nil
}

func (w *Wizard) checkCompletableLocked() error {
	switch {
	case w.closed:
		return ErrClosed
	case w.completed:
		return ErrAlreadyCompleted
	case w.submitting:
		return ErrSubmitting
	case w.saver == nil:
		return ErrNoSaver
	case w.step != TotalSteps:
		return ErrNotFinalStep
	case !AllStepsComplete(w.answers):
		return ErrStepIncomplete
	}
	return nil
}

// Close 结束向导生命周期，取消正在进行的保存。可重复调用。
func (w *Wizard) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	if w.cancelSave != nil {
		w.cancelSave()
		w.cancelSave = nil
	}
}

// CloseIfIdle 没有进行中的提交时关闭向导，返回是否已关闭。
// 检查和关闭在同一把锁内完成，不会取消刚开始的保存。
func (w *Wizard) CloseIfIdle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.submitting {
		return false
	}
	w.closed = true
	return true
}

// Percent 进度百分比，四舍五入
func Percent(step int) int {
	return int(math.Round(float64(clampStep(step)) / TotalSteps * 100))
}

// State 某一时刻的完整视图，各字段在同一把锁内读取
type State struct {
	Step          int     `json:"step"`
	TotalSteps    int     `json:"total_steps"`
	Percent       int     `json:"percent"`
	Answers       Answers `json:"answers"`
	StepsComplete []bool  `json:"steps_complete"`
	CanAdvance    bool    `json:"can_advance"`
	Submitting    bool    `json:"submitting"`
	Completed     bool    `json:"completed"`
	// Issues 超出建议范围的数值字段，不影响前进和提交
	Issues map[string]string `json:"issues,omitempty"`
}

func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	done := make([]bool, TotalSteps)
	for i := range done {
		done[i] = StepComplete(i+1, w.answers)
	}
	return State{
		Step:          w.step,
		TotalSteps:    TotalSteps,
		Percent:       Percent(w.step),
		Answers:       w.answers.Clone(),
		StepsComplete: done,
		CanAdvance:    done[w.step-1],
		Submitting:    w.submitting,
		Completed:     w.completed,
		Issues:        Issues(w.answers),
	}
}
