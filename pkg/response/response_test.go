package response

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitcoach/pkg/errors"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errors.OnboardingNotFound, http.StatusNotFound},
		{errors.OnboardingStepIncomplete, http.StatusConflict},
		{errors.OnboardingSubmitting, http.StatusConflict},
		{errors.OnboardingFieldInvalid.WithMessage("bad age"), http.StatusBadRequest},
		{fmt.Errorf("complete: %w", errors.ProfileSaveFailed), http.StatusBadGateway},
		{errors.MissingUserID, http.StatusUnauthorized},
		{errors.TooManyRequests, http.StatusTooManyRequests},
		{stderrors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestErrorWritesEnvelope(t *testing.T) {
	c := app.NewContext(0)
	Error(context.Background(), c, fmt.Errorf("wrapped: %w", errors.OnboardingNotFound))

	assert.Equal(t, http.StatusNotFound, c.Response.StatusCode())

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(c.Response.Body(), &body))
	assert.Equal(t, "ONBOARDING_NOT_FOUND", body.Error.Code)
}

func TestErrorUnknownIsInternal(t *testing.T) {
	c := app.NewContext(0)
	Error(context.Background(), c, stderrors.New("database exploded"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(c.Response.Body(), &body))
	assert.Equal(t, http.StatusInternalServerError, c.Response.StatusCode())
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
}
