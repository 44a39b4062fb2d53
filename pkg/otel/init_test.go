package otel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigNormalize(t *testing.T) {
	cases := []struct {
		name  string
		in    Config
		ratio float64
		env   string
	}{
		{name: "development samples everything", in: Config{SampleRatio: 0.2}, ratio: 1, env: "development"},
		{name: "production default", in: Config{Environment: "production"}, ratio: 0.1, env: "production"},
		{name: "production keeps ratio", in: Config{Environment: "production", SampleRatio: 0.25}, ratio: 0.25, env: "production"},
		{name: "ratio capped", in: Config{Environment: "staging", SampleRatio: 3}, ratio: 1, env: "staging"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.in.normalize()
			assert.Equal(t, tc.ratio, got.SampleRatio)
			assert.Equal(t, tc.env, got.Environment)
		})
	}
}

func TestTrimScheme(t *testing.T) {
	assert.Equal(t, "collector:4317", trimScheme("http://collector:4317"))
	assert.Equal(t, "collector:4317", trimScheme("https://collector:4317"))
	assert.Equal(t, "collector:4317", trimScheme("collector:4317"))
}
