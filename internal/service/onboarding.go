package service

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fitcoach/config"
	"fitcoach/internal/cache"
	"fitcoach/internal/model"
	"fitcoach/internal/model/dto"
	"fitcoach/internal/onboarding"
	"fitcoach/internal/queue"
	"fitcoach/internal/repository"
	"fitcoach/pkg/errors"
	"fitcoach/pkg/logger"
	"fitcoach/pkg/metrics"
	"fitcoach/pkg/snowflake"
	"fitcoach/storage/database"
)

// DraftStore 会话草稿的持久化
type DraftStore interface {
	Save(ctx context.Context, draft *model.OnboardingDraft) error
	Load(ctx context.Context, sessionID string) (*model.OnboardingDraft, error)
	Delete(ctx context.Context, sessionID string) error
}

// ProfileWriter 提交时写入用户资料
type ProfileWriter interface {
	Upsert(ctx context.Context, p *model.UserProfile) error
}

// EventPublisher 发布引导完成事件
type EventPublisher interface {
	PublishOnboardingCompleted(ctx context.Context, msg model.OnboardingCompletedMessage) error
}

// ProfileCacheStore 用户资料缓存
type ProfileCacheStore interface {
	Get(ctx context.Context, userID string) (*dto.ProfileData, bool, error)
	Set(ctx context.Context, userID string, data *dto.ProfileData) error
	Delete(ctx context.Context, userID string) error
}

// Breaker 包裹资料保存调用
type Breaker interface {
	Call(ctx context.Context, operation func(ctx context.Context) error) error
}

// OnboardingConfig 服务行为配置
type OnboardingConfig struct {
	Gating         onboarding.Gating
	Destination    string
	DefaultCountry string
	// IdleTTL 会话闲置超过该时长后被回收，与草稿 TTL 保持一致
	IdleTTL       time.Duration
	SweepInterval time.Duration
	NewID         func() (string, error)
	Now           func() time.Time
}

// OnboardingConfigFromEnv 从全局配置构造
func OnboardingConfigFromEnv() OnboardingConfig {
	gating := onboarding.GatingEnforced
	if !config.Cfg.OnboardingEnforceGating {
		gating = onboarding.GatingAdvisory
	}
	return OnboardingConfig{
		Gating:         gating,
		Destination:    config.Cfg.OnboardingRedirect,
		DefaultCountry: config.Cfg.OnboardingDefaultCountry,
		IdleTTL:        time.Duration(config.Cfg.OnboardingDraftTTLMinute) * time.Minute,
		SweepInterval:  time.Duration(config.Cfg.OnboardingSweepSeconds) * time.Second,
		NewID:          snowflake.NextIDString,
		Now:            time.Now,
	}
}

// session 一个进行中的引导会话
type session struct {
	id      string
	userID  string
	wizard  *onboarding.Wizard
	touched atomic.Int64
	saved   atomic.Pointer[model.UserProfile]

	// draftMu 串行化同一会话的草稿写入和删除
	draftMu sync.Mutex
}

func (s *session) touch(now time.Time) {
	s.touched.Store(now.UnixNano())
}

func (s *session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.touched.Load()))
}

var (
	onboardingService *OnboardingService
	onboardingOnce    sync.Once
)

// Onboarding 返回绑定到全局存储的单例，需在 storage.Init 之后调用
func Onboarding() *OnboardingService {
	onboardingOnce.Do(func() {
		cfg := OnboardingConfigFromEnv()
		onboardingService = NewOnboardingService(
			cache.NewDraftStore(cfg.IdleTTL),
			repository.NewProfileRepository(database.DB()),
			queue.NewPublisher(),
			cache.Profiles,
			cache.ProfileSaveBreaker,
			cfg,
		)
	})
	return onboardingService
}

// OnboardingService 管理进程内的向导会话，并把每次修改同步到草稿存储，
// 重启或切换实例后可以从草稿恢复。
type OnboardingService struct {
	mu       sync.RWMutex
	sessions map[string]*session

	drafts    DraftStore
	profiles  ProfileWriter
	publisher EventPublisher
	cache     ProfileCacheStore
	breaker   Breaker
	cfg       OnboardingConfig
	log       *zap.Logger
}

func NewOnboardingService(
	drafts DraftStore,
	profiles ProfileWriter,
	publisher EventPublisher,
	profileCache ProfileCacheStore,
	breaker Breaker,
	cfg OnboardingConfig,
) *OnboardingService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = snowflake.NextIDString
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &OnboardingService{
		sessions:  make(map[string]*session),
		drafts:    drafts,
		profiles:  profiles,
		publisher: publisher,
		cache:     profileCache,
		breaker:   breaker,
		cfg:       cfg,
		log:       logger.Component("onboarding_service"),
	}
}

func (s *OnboardingService) wizardOptions() []onboarding.WizardOption {
	return []onboarding.WizardOption{
		onboarding.WithGating(s.cfg.Gating),
		onboarding.WithDestination(s.cfg.Destination),
		onboarding.WithDefaultCountry(s.cfg.DefaultCountry),
		onboarding.WithLogger(s.log),
	}
}

// saverFor 把会话的提交绑定到资料仓库
func (s *OnboardingService) saverFor(sess *session) onboarding.ProfileSaver {
	return onboarding.SaverFunc(func(ctx context.Context, answers onboarding.Answers) error {
		profile, err := model.ProfileFromAnswers(sess.userID, answers)
		if err != nil {
			return err
		}
		save := func(ctx context.Context) error { return s.profiles.Upsert(ctx, profile) }
		if s.breaker != nil {
			err = s.breaker.Call(ctx, save)
		} else {
			err = save(ctx)
		}
		if err != nil {
			return err
		}
		sess.saved.Store(profile)
		return nil
	})
}

// Start 为用户创建新会话
func (s *OnboardingService) Start(ctx context.Context, userID string) (*dto.WizardStateData, error) {
	id, err := s.cfg.NewID()
	if err != nil {
		return nil, errors.InternalError
	}

	sess := &session{id: id, userID: userID}
	sess.wizard = onboarding.New(s.saverFor(sess), s.wizardOptions()...)
	sess.touch(s.cfg.Now())

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	metrics.GetMetrics().RecordSessionStarted(ctx, false)
	s.persist(ctx, sess)

	s.log.Info("Onboarding session started",
		zap.String("session_id", id),
		zap.String("user_id", userID),
	)
	return s.stateOf(sess), nil
}

// lookup 先查内存，未命中时从草稿恢复。会话不属于该用户时按不存在处理。
func (s *OnboardingService) lookup(ctx context.Context, userID, sessionID string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	if ok && sess.userID == userID {
		// 持有读锁时刷新，Sweep 在写锁内判断闲置
		sess.touch(s.cfg.Now())
	}
	s.mu.RUnlock()
	if ok {
		if sess.userID != userID {
			return nil, errors.OnboardingNotFound
		}
		return sess, nil
	}

	draft, err := s.drafts.Load(ctx, sessionID)
	if err != nil {
		metrics.GetMetrics().RecordDraftFailure(ctx, "load")
		s.log.Warn("Failed to load onboarding draft",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return nil, errors.OnboardingNotFound
	}
	if draft == nil || draft.UserID != userID {
		return nil, errors.OnboardingNotFound
	}

	restored := &session{id: sessionID, userID: userID}
	restored.wizard = onboarding.Restore(draft.Snapshot, s.saverFor(restored), s.wizardOptions()...)
	restored.touch(s.cfg.Now())

	s.mu.Lock()
	if existing, ok := s.sessions[sessionID]; ok {
		// 并发恢复时保留先注册的那一个
		s.mu.Unlock()
		restored.wizard.Close()
		return existing, nil
	}
	s.sessions[sessionID] = restored
	s.mu.Unlock()

	metrics.GetMetrics().RecordSessionStarted(ctx, true)
	s.log.Info("Onboarding session restored from draft",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.Int("step", restored.wizard.Step()),
	)
	return restored, nil
}

// persist 把快照写入草稿存储。失败只记录日志，内存中的会话仍然有效。
// 已关闭或已完成的会话不再写草稿；快照在 draftMu 内获取，后写入的总是较新的版本。
func (s *OnboardingService) persist(ctx context.Context, sess *session) {
	sess.draftMu.Lock()
	defer sess.draftMu.Unlock()

	if sess.wizard.Closed() || sess.wizard.Completed() {
		return
	}
	draft := &model.OnboardingDraft{
		SessionID: sess.id,
		UserID:    sess.userID,
		Snapshot:  sess.wizard.Snapshot(),
		UpdatedAt: s.cfg.Now().UTC(),
	}
	if err := s.drafts.Save(ctx, draft); err != nil {
		metrics.GetMetrics().RecordDraftFailure(ctx, "save")
		s.log.Warn("Failed to persist onboarding draft",
			zap.String("session_id", sess.id),
			zap.Error(err),
		)
	}
}

func (s *OnboardingService) stateOf(sess *session) *dto.WizardStateData {
	return &dto.WizardStateData{
		SessionID: sess.id,
		Gating:    sess.wizard.Gating().String(),
		State:     sess.wizard.State(),
	}
}

// Get 返回会话当前状态
func (s *OnboardingService) Get(ctx context.Context, userID, sessionID string) (*dto.WizardStateData, error) {
	sess, err := s.lookup(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.stateOf(sess), nil
}

// UpdateField 覆盖单个字段
func (s *OnboardingService) UpdateField(ctx context.Context, userID, sessionID string, u onboarding.Update) (*dto.WizardStateData, error) {
	sess, err := s.lookup(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkEditable(sess); err != nil {
		return nil, err
	}
	sess.wizard.Apply(u)
	s.persist(ctx, sess)
	return s.stateOf(sess), nil
}

// Toggle 切换多选字段中的一个值
func (s *OnboardingService) Toggle(ctx context.Context, userID, sessionID string, t onboarding.Toggle) (*dto.WizardStateData, error) {
	sess, err := s.lookup(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkEditable(sess); err != nil {
		return nil, err
	}
	sess.wizard.Toggle(t)
	s.persist(ctx, sess)
	return s.stateOf(sess), nil
}

// dropDraft 删除草稿，与 persist 互斥
func (s *OnboardingService) dropDraft(ctx context.Context, sess *session) {
	sess.draftMu.Lock()
	defer sess.draftMu.Unlock()

	if err := s.drafts.Delete(ctx, sess.id); err != nil {
		s.log.Warn("Failed to delete onboarding draft", zap.String("session_id", sess.id), zap.Error(err))
	}
}

// checkEditable 已完成的会话不再接受修改
func (s *OnboardingService) checkEditable(sess *session) error {
	if sess.wizard.Completed() {
		return errors.OnboardingAlreadyCompleted
	}
	return nil
}

// Next 前进一步
func (s *OnboardingService) Next(ctx context.Context, userID, sessionID string) (*dto.WizardStateData, error) {
	sess, err := s.lookup(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkEditable(sess); err != nil {
		return nil, err
	}

	from := sess.wizard.Step()
	if err := sess.wizard.GoNext(); err != nil {
		metrics.GetMetrics().RecordStep(ctx, "next", from, "blocked")
		return nil, mapWizardError(err)
	}
	metrics.GetMetrics().RecordStep(ctx, "next", from, "ok")

	s.persist(ctx, sess)
	return s.stateOf(sess), nil
}

// Previous 后退一步，不做校验
func (s *OnboardingService) Previous(ctx context.Context, userID, sessionID string) (*dto.WizardStateData, error) {
	sess, err := s.lookup(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkEditable(sess); err != nil {
		return nil, err
	}

	from := sess.wizard.Step()
	sess.wizard.GoPrevious()
	metrics.GetMetrics().RecordStep(ctx, "previous", from, "ok")

	s.persist(ctx, sess)
	return s.stateOf(sess), nil
}

// Complete 提交资料。成功后删除草稿、清除资料缓存并发布完成事件，
// 事件发布失败只记录日志。保存失败时会话保留，可以重试；
// 保存途中会话被放弃或回收时返回 ONBOARDING_NOT_FOUND，不写回草稿。
func (s *OnboardingService) Complete(ctx context.Context, userID, sessionID string) (*dto.CompleteData, error) {
	sess, err := s.lookup(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	start := s.cfg.Now()
	dest, err := sess.wizard.Complete(ctx)
	elapsed := s.cfg.Now().Sub(start)
	if err != nil {
		mapped := mapWizardError(err)
		switch {
		case errors.ProfileSaveFailed.Is(mapped):
			metrics.GetMetrics().RecordCompletion(ctx, "failed", elapsed)
			s.log.Error("Onboarding completion failed",
				zap.String("session_id", sessionID),
				zap.String("user_id", userID),
				zap.Error(err),
			)
			s.persist(ctx, sess)
		case stderrors.Is(err, onboarding.ErrClosed):
			metrics.GetMetrics().RecordCompletion(ctx, "cancelled", elapsed)
			s.log.Info("Onboarding completion cancelled",
				zap.String("session_id", sessionID),
				zap.String("user_id", userID),
			)
		}
		return nil, mapped
	}
	metrics.GetMetrics().RecordCompletion(ctx, "success", elapsed)

	profile := sess.saved.Load()

	s.dropDraft(ctx, sess)
	if s.cache != nil {
		if err := s.cache.Delete(ctx, userID); err != nil {
			s.log.Warn("Failed to invalidate profile cache", zap.String("user_id", userID), zap.Error(err))
		}
	}
	s.publishCompleted(ctx, sess, profile)

	s.log.Info("Onboarding completed",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.Duration("save_duration", elapsed),
	)
	return &dto.CompleteData{RedirectTo: dest, Profile: dto.ToProfileData(profile)}, nil
}

func (s *OnboardingService) publishCompleted(ctx context.Context, sess *session, profile *model.UserProfile) {
	if s.publisher == nil {
		return
	}
	msg := model.OnboardingCompletedMessage{
		SessionID:   sess.id,
		UserID:      sess.userID,
		CompletedAt: s.cfg.Now().UTC().Format(time.RFC3339),
	}
	if profile != nil {
		msg.ProfileID = profile.ID
		msg.Language = profile.Language
	}
	if err := s.publisher.PublishOnboardingCompleted(ctx, msg); err != nil {
		s.log.Error("Failed to publish onboarding completed event",
			zap.String("session_id", sess.id),
			zap.Error(err),
		)
	}
}

// Abandon 放弃会话：取消进行中的保存并删除草稿
func (s *OnboardingService) Abandon(ctx context.Context, userID, sessionID string) error {
	sess, err := s.lookup(ctx, userID, sessionID)
	if err != nil {
		return err
	}

	s.remove(ctx, sess)
	s.dropDraft(ctx, sess)

	s.log.Info("Onboarding session abandoned",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
	)
	return nil
}

func (s *OnboardingService) remove(ctx context.Context, sess *session) {
	s.mu.Lock()
	current, ok := s.sessions[sess.id]
	if ok && current == sess {
		delete(s.sessions, sess.id)
	}
	s.mu.Unlock()

	sess.wizard.Close()
	if ok && current == sess {
		metrics.GetMetrics().RecordSessionEnded(ctx)
	}
}

// Options 返回步骤目录
func (s *OnboardingService) Options() *dto.OptionsData {
	return &dto.OptionsData{TotalSteps: onboarding.TotalSteps, Steps: onboarding.Catalogue}
}

// Active 当前内存中的会话数
func (s *OnboardingService) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep 回收闲置超时的会话，正在提交的会话跳过。草稿由 Redis TTL 自行过期。
// 闲置判断、关闭和移除都在写锁内完成，lookup 刷新过的会话不会被回收。
func (s *OnboardingService) Sweep(ctx context.Context) int {
	now := s.cfg.Now()

	s.mu.Lock()
	swept := 0
	for id, sess := range s.sessions {
		if sess.idleSince(now) < s.cfg.IdleTTL {
			continue
		}
		if !sess.wizard.CloseIfIdle() {
			continue
		}
		delete(s.sessions, id)
		swept++
	}
	s.mu.Unlock()

	for range swept {
		metrics.GetMetrics().RecordSessionEnded(ctx)
	}
	if swept > 0 {
		s.log.Info("Swept idle onboarding sessions", zap.Int("count", swept))
	}
	return swept
}

// Run 定期回收闲置会话，ctx 取消时关闭所有会话后返回
func (s *OnboardingService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Shutdown(context.WithoutCancel(ctx))
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Shutdown 关闭所有会话，取消进行中的保存
func (s *OnboardingService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	all := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.Unlock()

	for _, sess := range all {
		s.remove(ctx, sess)
	}
}

// mapWizardError 把向导错误转换为业务错误码
func mapWizardError(err error) error {
	switch {
	case stderrors.Is(err, onboarding.ErrStepIncomplete):
		return errors.OnboardingStepIncomplete
	case stderrors.Is(err, onboarding.ErrNotFinalStep):
		return errors.OnboardingStepInvalid.WithMessage("Onboarding can only be completed on the final step")
	case stderrors.Is(err, onboarding.ErrSubmitting):
		return errors.OnboardingSubmitting
	case stderrors.Is(err, onboarding.ErrAlreadyCompleted):
		return errors.OnboardingAlreadyCompleted
	case stderrors.Is(err, onboarding.ErrClosed):
		return errors.OnboardingNotFound
	case stderrors.Is(err, onboarding.ErrNoSaver):
		return errors.InternalError
	default:
		return errors.ProfileSaveFailed
	}
}
