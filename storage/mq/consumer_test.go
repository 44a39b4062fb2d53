package mq

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"fitcoach/pkg/errors"
)

func TestDecide(t *testing.T) {
	skip := fmt.Errorf("handler: %w", &errors.SkipMessageError{Reason: "duplicate"})
	boom := stderrors.New("boom")

	assert.Equal(t, AckOK, Decide(nil, false))
	assert.Equal(t, AckOK, Decide(skip, true))
	assert.Equal(t, AckRequeue, Decide(boom, false))
	assert.Equal(t, AckDrop, Decide(boom, true))
}
