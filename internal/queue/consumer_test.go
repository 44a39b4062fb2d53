package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitcoach/internal/model"
	"fitcoach/internal/model/dto"
	"fitcoach/pkg/errors"
)

type fakeLoader struct {
	profile *model.UserProfile
	err     error
}

func (f *fakeLoader) GetByUserID(ctx context.Context, userID string) (*model.UserProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

type fakeWarmer struct {
	mu  sync.Mutex
	set map[string]*dto.ProfileData
	err error
}

func (f *fakeWarmer) Set(ctx context.Context, userID string, data *dto.ProfileData) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set == nil {
		f.set = make(map[string]*dto.ProfileData)
	}
	f.set[userID] = data
	return nil
}

type fakeDedup struct {
	mu        sync.Mutex
	seen      map[string]bool
	processed map[string]bool
	tryErr    error
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{seen: map[string]bool{}, processed: map[string]bool{}}
}

func (f *fakeDedup) TryMark(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if f.tryErr != nil {
		return false, f.tryErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[id] {
		return false, nil
	}
	f.seen[id] = true
	return true, nil
}

func (f *fakeDedup) Unmark(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.seen, id)
	return nil
}

func (f *fakeDedup) MarkProcessed(ctx context.Context, id string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[id] = true
	return nil
}

func body(t *testing.T, msg model.OnboardingCompletedMessage) []byte {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return b
}

func TestHandleWarmsCache(t *testing.T) {
	loader := &fakeLoader{profile: &model.UserProfile{UserID: "u1", Language: "sv", OnboardingCompleted: true}}
	warmer := &fakeWarmer{}
	dedup := newFakeDedup()
	h := NewOnboardingCompletedHandler(loader, warmer, dedup)

	msg := model.OnboardingCompletedMessage{MessageID: "m1", UserID: "u1", SessionID: "s1"}
	require.NoError(t, h.Handle(context.Background(), body(t, msg)))

	require.Contains(t, warmer.set, "u1")
	assert.True(t, warmer.set["u1"].OnboardingCompleted)
	assert.True(t, dedup.processed["m1"])
}

func TestHandleSkipsDuplicates(t *testing.T) {
	h := NewOnboardingCompletedHandler(
		&fakeLoader{profile: &model.UserProfile{UserID: "u1"}},
		&fakeWarmer{},
		newFakeDedup(),
	)
	msg := body(t, model.OnboardingCompletedMessage{MessageID: "m1", UserID: "u1"})

	require.NoError(t, h.Handle(context.Background(), msg))

	err := h.Handle(context.Background(), msg)
	var skip *errors.SkipMessageError
	assert.True(t, stderrors.As(err, &skip))
}

func TestHandleUnmarksOnFailure(t *testing.T) {
	dedup := newFakeDedup()
	loader := &fakeLoader{err: stderrors.New("db down")}
	h := NewOnboardingCompletedHandler(loader, &fakeWarmer{}, dedup)
	msg := body(t, model.OnboardingCompletedMessage{MessageID: "m2", UserID: "u2"})

	err := h.Handle(context.Background(), msg)
	require.Error(t, err)
	var skip *errors.SkipMessageError
	assert.False(t, stderrors.As(err, &skip))
	assert.False(t, dedup.seen["m2"], "failed message must be retryable")

	loader.err = nil
	loader.profile = &model.UserProfile{UserID: "u2"}
	assert.NoError(t, h.Handle(context.Background(), msg))
}

func TestHandleProceedsWhenDedupUnavailable(t *testing.T) {
	dedup := newFakeDedup()
	dedup.tryErr = stderrors.New("redis down")
	warmer := &fakeWarmer{}
	h := NewOnboardingCompletedHandler(&fakeLoader{profile: &model.UserProfile{UserID: "u3"}}, warmer, dedup)

	require.NoError(t, h.Handle(context.Background(), body(t, model.OnboardingCompletedMessage{MessageID: "m3", UserID: "u3"})))
	assert.Contains(t, warmer.set, "u3")
}

func TestHandleMalformed(t *testing.T) {
	h := NewOnboardingCompletedHandler(&fakeLoader{}, &fakeWarmer{}, newFakeDedup())

	var skip *errors.SkipMessageError
	assert.True(t, stderrors.As(h.Handle(context.Background(), []byte("{")), &skip))
	assert.True(t, stderrors.As(h.Handle(context.Background(), []byte(`{"message_id":"x"}`)), &skip))
}
