package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fitcoach/config"
)

func TestKey(t *testing.T) {
	prev := config.Cfg.RedisPrefix
	t.Cleanup(func() { config.Cfg.RedisPrefix = prev })

	config.Cfg.RedisPrefix = "fitc"
	assert.Equal(t, "fitc:onboarding:draft:42", Key("onboarding:draft", "42"))
	assert.Equal(t, "fitc:profile", Key("profile", ""))

	config.Cfg.RedisPrefix = ""
	assert.Equal(t, "fitc:x", Key("x"))
}
