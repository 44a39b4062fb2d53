package service

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitcoach/internal/model"
	"fitcoach/internal/model/dto"
	"fitcoach/pkg/errors"
)

func TestGetProfileCacheHit(t *testing.T) {
	c := newMemCache()
	c.entries["u1"] = &dto.ProfileData{UserID: "u1", Age: 30}
	svc := NewProfileService(newMemProfiles(), c)

	got, err := svc.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 30, got.Age)
}

func TestGetProfileFillsCache(t *testing.T) {
	repo := newMemProfiles()
	repo.rows["u1"] = &model.UserProfile{UserID: "u1", Age: 41, OnboardingCompleted: true}
	c := newMemCache()
	svc := NewProfileService(repo, c)

	got, err := svc.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 41, got.Age)

	require.Contains(t, c.entries, "u1")
	assert.Equal(t, got, c.entries["u1"])
}

func TestGetProfileNotFoundIsCached(t *testing.T) {
	c := newMemCache()
	svc := NewProfileService(newMemProfiles(), c)

	_, err := svc.GetProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, errors.ProfileNotFound)

	cached, ok := c.entries["ghost"]
	assert.True(t, ok)
	assert.Nil(t, cached)

	_, err = svc.GetProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, errors.ProfileNotFound)
}

func TestGetProfileFallsBackWhenCacheFails(t *testing.T) {
	repo := newMemProfiles()
	repo.rows["u1"] = &model.UserProfile{UserID: "u1", Height: 180}
	c := newMemCache()
	c.getErr = stderrors.New("redis down")

	got, err := NewProfileService(repo, c).GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 180.0, got.Height)
}
