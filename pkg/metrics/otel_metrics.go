package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OnboardingMetrics 引导流程的业务指标
type OnboardingMetrics struct {
	SessionsStarted  metric.Int64Counter
	SessionsActive   metric.Int64UpDownCounter
	StepTransitions  metric.Int64Counter
	CompletionsTotal metric.Int64Counter
	SaveDuration     metric.Float64Histogram
	DraftFailures    metric.Int64Counter
}

var (
	metrics *OnboardingMetrics
	once    sync.Once
)

// NewOnboardingMetrics 使用给定 meter 创建指标
func NewOnboardingMetrics(meter metric.Meter) (*OnboardingMetrics, error) {
	var (
		m   OnboardingMetrics
		err error
	)

	if m.SessionsStarted, err = meter.Int64Counter(
		"onboarding_sessions_started_total",
		metric.WithDescription("Total number of onboarding sessions started"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, err
	}

	if m.SessionsActive, err = meter.Int64UpDownCounter(
		"onboarding_sessions_active",
		metric.WithDescription("Number of onboarding sessions held in memory"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, err
	}

	if m.StepTransitions, err = meter.Int64Counter(
		"onboarding_step_transitions_total",
		metric.WithDescription("Step navigation attempts by direction and result"),
		metric.WithUnit("{transition}"),
	); err != nil {
		return nil, err
	}

	if m.CompletionsTotal, err = meter.Int64Counter(
		"onboarding_completions_total",
		metric.WithDescription("Onboarding submissions by status"),
		metric.WithUnit("{submission}"),
	); err != nil {
		return nil, err
	}

	if m.SaveDuration, err = meter.Float64Histogram(
		"onboarding_profile_save_duration_seconds",
		metric.WithDescription("Time spent persisting the onboarding profile"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	); err != nil {
		return nil, err
	}

	if m.DraftFailures, err = meter.Int64Counter(
		"onboarding_draft_failures_total",
		metric.WithDescription("Failed draft save/load operations"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}

	return &m, nil
}

// InitMetrics 用全局 MeterProvider 初始化指标，需在 otel 初始化之后调用
func InitMetrics() error {
	var err error
	once.Do(func() {
		metrics, err = NewOnboardingMetrics(otel.Meter("fitcoach.onboarding"))
	})
	return err
}

// GetMetrics 获取全局指标实例，未初始化时返回 nil，所有记录方法对 nil 安全
func GetMetrics() *OnboardingMetrics {
	return metrics
}

func (m *OnboardingMetrics) RecordSessionStarted(ctx context.Context, resumed bool) {
	if m == nil {
		return
	}
	m.SessionsStarted.Add(ctx, 1, metric.WithAttributes(attribute.Bool("resumed", resumed)))
	m.SessionsActive.Add(ctx, 1)
}

func (m *OnboardingMetrics) RecordSessionEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.SessionsActive.Add(ctx, -1)
}

// RecordStep direction 为 next/previous，result 为 ok/blocked
func (m *OnboardingMetrics) RecordStep(ctx context.Context, direction string, from int, result string) {
	if m == nil {
		return
	}
	m.StepTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.Int("from_step", from),
		attribute.String("result", result),
	))
}

// RecordCompletion 记录一次提交及保存耗时
func (m *OnboardingMetrics) RecordCompletion(ctx context.Context, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.CompletionsTotal.Add(ctx, 1, attrs)
	if duration > 0 {
		m.SaveDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

func (m *OnboardingMetrics) RecordDraftFailure(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.DraftFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
