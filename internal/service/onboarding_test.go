package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"fitcoach/internal/cache"
	"fitcoach/internal/model"
	"fitcoach/internal/model/dto"
	"fitcoach/internal/onboarding"
	"fitcoach/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memDrafts 与 Redis 实现一致：不覆盖版本更高的草稿
type memDrafts struct {
	mu         sync.Mutex
	drafts     map[string]model.OnboardingDraft
	saveErr    error
	beforeSave func(d model.OnboardingDraft)
}

func newMemDrafts() *memDrafts {
	return &memDrafts{drafts: make(map[string]model.OnboardingDraft)}
}

func (m *memDrafts) Save(ctx context.Context, d *model.OnboardingDraft) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.beforeSave != nil {
		m.beforeSave(*d)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.drafts[d.SessionID]; ok && cur.Snapshot.Version > d.Snapshot.Version {
		return nil
	}
	m.drafts[d.SessionID] = *d
	return nil
}

func (m *memDrafts) Load(ctx context.Context, id string) (*model.OnboardingDraft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *memDrafts) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, id)
	return nil
}

func (m *memDrafts) get(id string) (model.OnboardingDraft, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	return d, ok
}

type memProfiles struct {
	mu       sync.Mutex
	rows     map[string]*model.UserProfile
	calls    int
	failNext int
	// block 在写入前调用，返回错误时不写入
	block func(ctx context.Context) error
}

func newMemProfiles() *memProfiles {
	return &memProfiles{rows: make(map[string]*model.UserProfile)}
}

func (m *memProfiles) Upsert(ctx context.Context, p *model.UserProfile) error {
	if m.block != nil {
		if err := m.block(ctx); err != nil {
			m.mu.Lock()
			m.calls++
			m.mu.Unlock()
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failNext > 0 {
		m.failNext--
		return stderrors.New("connection refused")
	}
	p.ID = int64(len(m.rows) + 1)
	m.rows[p.UserID] = p
	return nil
}

func (m *memProfiles) GetByUserID(ctx context.Context, userID string) (*model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[userID]
	if !ok {
		return nil, errors.ProfileNotFound
	}
	return p, nil
}

type memPublisher struct {
	mu   sync.Mutex
	msgs []model.OnboardingCompletedMessage
	err  error
}

func (m *memPublisher) PublishOnboardingCompleted(ctx context.Context, msg model.OnboardingCompletedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return m.err
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]*dto.ProfileData
	deleted []string
	getErr  error
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*dto.ProfileData)}
}

func (m *memCache) Get(ctx context.Context, userID string) (*dto.ProfileData, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.entries[userID]
	return d, ok, nil
}

func (m *memCache) Set(ctx context.Context, userID string, data *dto.ProfileData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[userID] = data
	return nil
}

func (m *memCache) Delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	m.deleted = append(m.deleted, userID)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc       *OnboardingService
	drafts    *memDrafts
	profiles  *memProfiles
	publisher *memPublisher
	cache     *memCache
	clock     *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		drafts:    newMemDrafts(),
		profiles:  newMemProfiles(),
		publisher: &memPublisher{},
		cache:     newMemCache(),
		clock:     &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.svc = f.build()
	t.Cleanup(func() { f.svc.Shutdown(context.Background()) })
	return f
}

func (f *fixture) build() *OnboardingService {
	var seq int
	var mu sync.Mutex
	return NewOnboardingService(f.drafts, f.profiles, f.publisher, f.cache, nil, OnboardingConfig{
		Gating:         onboarding.GatingEnforced,
		Destination:    "/dashboard",
		DefaultCountry: "Sverige",
		IdleTTL:        time.Hour,
		SweepInterval:  time.Minute,
		Now:            f.clock.Now,
		NewID: func() (string, error) {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return "sess-" + strconv.Itoa(seq), nil
		},
	})
}

// fillAll 填写全部字段并走到最后一步
func fillAll(t *testing.T, svc *OnboardingService, userID, sessionID string) {
	t.Helper()
	ctx := context.Background()
	updates := []onboarding.Update{
		onboarding.SetLanguage{Value: onboarding.LanguageEnglish},
		onboarding.SetGender{Value: onboarding.GenderFemale},
		onboarding.SetAge{Value: "30"},
		onboarding.SetWeight{Value: "70"},
		onboarding.SetHeight{Value: "175"},
		onboarding.SetCountry{Value: "Sverige"},
		onboarding.SetAddress{Value: "Storgatan 1"},
		onboarding.SetPreference{Value: onboarding.PreferenceBoth},
	}
	for _, u := range updates {
		_, err := svc.UpdateField(ctx, userID, sessionID, u)
		require.NoError(t, err)
	}
	_, err := svc.Toggle(ctx, userID, sessionID, onboarding.ToggleGoal{Value: onboarding.GoalBuildMuscle})
	require.NoError(t, err)
	_, err = svc.Toggle(ctx, userID, sessionID, onboarding.ToggleWorkoutType{Value: onboarding.WorkoutGym})
	require.NoError(t, err)

	for i := 1; i < onboarding.TotalSteps; i++ {
		_, err := svc.Next(ctx, userID, sessionID)
		require.NoError(t, err)
	}
}

func TestStartCreatesSessionAndDraft(t *testing.T) {
	f := newFixture(t)

	state, err := f.svc.Start(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "sess-1", state.SessionID)
	assert.Equal(t, "enforced", state.Gating)
	assert.Equal(t, 1, state.Step)
	assert.Equal(t, 14, state.Percent)
	assert.Equal(t, "Sverige", state.Answers.Country)

	draft, ok := f.drafts.get("sess-1")
	require.True(t, ok)
	assert.Equal(t, "u1", draft.UserID)
	assert.Equal(t, 1, draft.Snapshot.Step)
	assert.Equal(t, 1, f.svc.Active())
}

func TestCompleteFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.Start(ctx, "u1")
	require.NoError(t, err)
	fillAll(t, f.svc, "u1", state.SessionID)

	got, err := f.svc.Get(ctx, "u1", state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, onboarding.TotalSteps, got.Step)
	assert.Equal(t, 100, got.Percent)

	done, err := f.svc.Complete(ctx, "u1", state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", done.RedirectTo)
	require.NotNil(t, done.Profile)
	assert.Equal(t, 30, done.Profile.Age)
	assert.True(t, done.Profile.OnboardingCompleted)
	assert.Equal(t, []string{"workout_plan", "meal_plan"}, done.Profile.ContentPreferences)

	assert.Equal(t, 1, f.profiles.calls)
	_, ok := f.drafts.get(state.SessionID)
	assert.False(t, ok, "draft must be removed after completion")
	assert.Equal(t, []string{"u1"}, f.cache.deleted)

	require.Len(t, f.publisher.msgs, 1)
	assert.Equal(t, "u1", f.publisher.msgs[0].UserID)
	assert.Equal(t, int64(1), f.publisher.msgs[0].ProfileID)
	assert.Equal(t, "en", f.publisher.msgs[0].Language)

	_, err = f.svc.Complete(ctx, "u1", state.SessionID)
	assert.ErrorIs(t, err, errors.OnboardingAlreadyCompleted)
	_, err = f.svc.UpdateField(ctx, "u1", state.SessionID, onboarding.SetAge{Value: "31"})
	assert.ErrorIs(t, err, errors.OnboardingAlreadyCompleted)
}

func TestNavigationAfterCompleteRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.Start(ctx, "u1")
	require.NoError(t, err)
	fillAll(t, f.svc, "u1", state.SessionID)
	_, err = f.svc.Complete(ctx, "u1", state.SessionID)
	require.NoError(t, err)

	_, err = f.svc.Previous(ctx, "u1", state.SessionID)
	assert.ErrorIs(t, err, errors.OnboardingAlreadyCompleted)
	_, err = f.svc.Next(ctx, "u1", state.SessionID)
	assert.ErrorIs(t, err, errors.OnboardingAlreadyCompleted)
	_, err = f.svc.Toggle(ctx, "u1", state.SessionID, onboarding.ToggleGoal{Value: onboarding.GoalLoseWeight})
	assert.ErrorIs(t, err, errors.OnboardingAlreadyCompleted)

	_, ok := f.drafts.get(state.SessionID)
	assert.False(t, ok, "completed session must not write a draft")

	// 其他实例无法恢复已完成的会话
	other := f.build()
	defer other.Shutdown(ctx)
	_, err = other.Get(ctx, "u1", state.SessionID)
	assert.ErrorIs(t, err, errors.OnboardingNotFound)

	assert.Equal(t, 1, f.profiles.calls)
	assert.Len(t, f.publisher.msgs, 1)
}

func TestNextBlockedOnIncompleteStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.Start(ctx, "u1")
	require.NoError(t, err)

	_, err = f.svc.Next(ctx, "u1", state.SessionID)
	require.NoError(t, err)

	_, err = f.svc.Next(ctx, "u1", state.SessionID)
	assert.ErrorIs(t, err, errors.OnboardingStepIncomplete)

	got, err := f.svc.Get(ctx, "u1", state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Step)

	back, err := f.svc.Previous(ctx, "u1", state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, back.Step)
}

func TestCompleteBeforeFinalStep(t *testing.T) {
	f := newFixture(t)

	state, err := f.svc.Start(context.Background(), "u1")
	require.NoError(t, err)

	_, err = f.svc.Complete(context.Background(), "u1", state.SessionID)
	assert.ErrorIs(t, err, errors.OnboardingStepInvalid)
	assert.Zero(t, f.profiles.calls)
}

func TestSessionIsScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.Start(ctx, "u1")
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, "u2", state.SessionID)
	assert.ErrorIs(t, err, errors.OnboardingNotFound)

	_, err = f.svc.Get(ctx, "u1", "missing")
	assert.ErrorIs(t, err, errors.OnboardingNotFound)
}

func TestRestoreFromDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.Start(ctx, "u1")
	require.NoError(t, err)
	_, err = f.svc.UpdateField(ctx, "u1", state.SessionID, onboarding.SetLanguage{Value: onboarding.LanguageEnglish})
	require.NoError(t, err)
	_, err = f.svc.Next(ctx, "u1", state.SessionID)
	require.NoError(t, err)

	// 另一个实例共享同一草稿存储
	other := f.build()
	defer other.Shutdown(ctx)

	_, err = other.Get(ctx, "u2", state.SessionID)
	assert.ErrorIs(t, err, errors.OnboardingNotFound)

	got, err := other.Get(ctx, "u1", state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Step)
	assert.Equal(t, onboarding.LanguageEnglish, got.Answers.Language)
	assert.Equal(t, 1, other.Active())
}

func TestSaveFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.profiles.failNext = 1

	state, err := f.svc.Start(ctx, "u1")
	require.NoError(t, err)
	fillAll(t, f.svc, "u1", state.SessionID)
	before, err := f.svc.Get(ctx, "u1", state.SessionID)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, "u1", state.SessionID)
	assert.ErrorIs(t, err, errors.ProfileSaveFailed)

	after, err := f.svc.Get(ctx, "u1", state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, before.Answers, after.Answers)
	assert.False(t, after.Submitting)
	assert.False(t, after.Completed)
	assert.Empty(t, f.publisher.msgs)

	draft, ok := f.drafts.get(state.SessionID)
	require.True(t, ok)
	assert.Equal(t, onboarding.TotalSteps, draft.Snapshot.Step)

	done, err := f.svc.Complete(ctx, "u1", state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", done.RedirectTo)
	assert.Equal(t, 2, f.profiles.calls)
}

func TestCompleteWithOpenBreaker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	breaker := cache.NewCircuitBreaker("test", 1, time.Hour)
	svc := NewOnboardingService(f.drafts, f.profiles, f.publisher, f.cache, breaker, OnboardingConfig{
		NewID: func() (string, error) { return "b-1", nil },
	})
	defer svc.Shutdown(ctx)
	f.profiles.failNext = 1

	state, err := svc.Start(ctx, "u1")
	require.NoError(t, err)
	fillAll(t, svc, "u1", state.SessionID)

	_, err = svc.Complete(ctx, "u1", state.SessionID)
	assert.ErrorIs(t, err, errors.ProfileSaveFailed)

	// 熔断打开后不再调用仓库
	_, err = svc.Complete(ctx, "u1", state.SessionID)
	assert.ErrorIs(t, err, errors.ProfileSaveFailed)
	assert.Equal(t, 1, f.profiles.calls)
}

func TestPublishFailureIsNotSurfaced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publisher.err = stderrors.New("broker down")

	state, err := f.svc.Start(ctx, "u1")
	require.NoError(t, err)
	fillAll(t, f.svc, "u1", state.SessionID)

	_, err = f.svc.Complete(ctx, "u1", state.SessionID)
	assert.NoError(t, err)
}

func TestDraftFailureDoesNotBlockEditing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.drafts.saveErr = stderrors.New("redis down")

	state, err := f.svc.Start(ctx, "u1")
	require.NoError(t, err)

	got, err := f.svc.UpdateField(ctx, "u1", state.SessionID, onboarding.SetAge{Value: "40"})
	require.NoError(t, err)
	assert.Equal(t, "40", got.Answers.Age)
}

func TestAbandon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.Start(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Abandon(ctx, "u1", state.SessionID))
	assert.Zero(t, f.svc.Active())

	_, ok := f.drafts.get(state.SessionID)
	assert.False(t, ok)

	_, err = f.svc.Get(ctx, "u1", state.SessionID)
	assert.ErrorIs(t, err, errors.OnboardingNotFound)
	assert.ErrorIs(t, f.svc.Abandon(ctx, "u1", state.SessionID), errors.OnboardingNotFound)
}

func TestAbandonDuringSaveDiscardsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	started := make(chan struct{})
	f.profiles.block = func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}

	state, err := f.svc.Start(ctx, "u1")
	require.NoError(t, err)
	fillAll(t, f.svc, "u1", state.SessionID)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Complete(ctx, "u1", state.SessionID)
		done <- err
	}()

	<-started
	require.NoError(t, f.svc.Abandon(ctx, "u1", state.SessionID))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errors.OnboardingNotFound)
	case <-time.After(2 * time.Second):
		t.Fatal("save was not cancelled by Abandon")
	}

	_, ok := f.drafts.get(state.SessionID)
	assert.False(t, ok, "abandoned session must not be written back")
	assert.Empty(t, f.publisher.msgs)

	other := f.build()
	defer other.Shutdown(ctx)
	_, err = other.Get(ctx, "u1", state.SessionID)
	assert.ErrorIs(t, err, errors.OnboardingNotFound)
}

func TestDraftWritesFollowMutationOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.Start(ctx, "u1")
	require.NoError(t, err)

	blocked := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.drafts.beforeSave = func(d model.OnboardingDraft) {
		if d.Snapshot.Answers.Age == "30" {
			once.Do(func() {
				close(blocked)
				<-release
			})
		}
	}

	first := make(chan error, 1)
	go func() {
		_, err := f.svc.UpdateField(ctx, "u1", state.SessionID, onboarding.SetAge{Value: "30"})
		first <- err
	}()
	<-blocked

	second := make(chan error, 1)
	go func() {
		_, err := f.svc.UpdateField(ctx, "u1", state.SessionID, onboarding.SetWeight{Value: "70"})
		second <- err
	}()
	require.Eventually(t, func() bool {
		got, err := f.svc.Get(ctx, "u1", state.SessionID)
		return err == nil && got.Answers.Weight == "70"
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	draft, ok := f.drafts.get(state.SessionID)
	require.True(t, ok)
	assert.Equal(t, "30", draft.Snapshot.Answers.Age)
	assert.Equal(t, "70", draft.Snapshot.Answers.Weight)
	assert.Equal(t, uint64(2), draft.Snapshot.Version)
}

func TestSweepSkipsSessionWhileSubmitting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	f.profiles.block = func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}

	state, err := f.svc.Start(ctx, "u1")
	require.NoError(t, err)
	fillAll(t, f.svc, "u1", state.SessionID)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Complete(ctx, "u1", state.SessionID)
		done <- err
	}()

	<-started
	f.clock.Advance(2 * time.Hour)
	assert.Zero(t, f.svc.Sweep(ctx))
	assert.Equal(t, 1, f.svc.Active())

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, f.publisher.msgs, 1)

	f.clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, f.svc.Sweep(ctx))
	assert.Zero(t, f.svc.Active())
}

func TestSweepKeepsTouchedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.Start(ctx, "u1")
	require.NoError(t, err)

	f.clock.Advance(59 * time.Minute)
	_, err = f.svc.Get(ctx, "u1", state.SessionID)
	require.NoError(t, err)
	f.clock.Advance(2 * time.Minute)

	assert.Zero(t, f.svc.Sweep(ctx))
	assert.Equal(t, 1, f.svc.Active())
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	idle, err := f.svc.Start(ctx, "u1")
	require.NoError(t, err)
	f.clock.Advance(40 * time.Minute)

	fresh, err := f.svc.Start(ctx, "u2")
	require.NoError(t, err)
	f.clock.Advance(30 * time.Minute)

	assert.Equal(t, 1, f.svc.Sweep(ctx))
	assert.Equal(t, 1, f.svc.Active())

	// 草稿仍在，可以从草稿恢复
	got, err := f.svc.Get(ctx, "u1", idle.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Step)

	_, err = f.svc.Get(ctx, "u2", fresh.SessionID)
	assert.NoError(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Start(context.Background(), "u1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Zero(t, f.svc.Active())
}

func TestOptions(t *testing.T) {
	f := newFixture(t)

	opts := f.svc.Options()
	assert.Equal(t, onboarding.TotalSteps, opts.TotalSteps)
	assert.Len(t, opts.Steps, onboarding.TotalSteps)
}

func TestMapWizardError(t *testing.T) {
	cases := map[error]error{
		onboarding.ErrStepIncomplete:   errors.OnboardingStepIncomplete,
		onboarding.ErrNotFinalStep:     errors.OnboardingStepInvalid,
		onboarding.ErrSubmitting:       errors.OnboardingSubmitting,
		onboarding.ErrAlreadyCompleted: errors.OnboardingAlreadyCompleted,
		onboarding.ErrClosed:           errors.OnboardingNotFound,
		fmt.Errorf("save onboarding profile: %w: %w", onboarding.ErrClosed, context.Canceled): errors.OnboardingNotFound,
		stderrors.New("save failed"): errors.ProfileSaveFailed,
	}
	for in, want := range cases {
		assert.ErrorIs(t, mapWizardError(in), want, in.Error())
	}
}
