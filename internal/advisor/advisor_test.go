package advisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckWithoutAPIKeyNeverBlocks(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	a := New()
	v := a.Check(context.Background(), []string{"loop", "loop", "loop"})
	assert.False(t, v.Stuck)
}

func TestCheckDisabledByEnvVar(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-fake")
	t.Setenv("ACPHUB_DISABLE_ADVISOR", "1")
	a := New()
	v := a.Check(context.Background(), []string{"x"})
	assert.False(t, v.Stuck)
}

func TestParseVerdictHandlesMarkdownFence(t *testing.T) {
	text := "Here is my answer:\n```json\n{\"stuck\": true, \"confidence\": 0.95, \"reasoning\": \"repeating\"}\n```\n"
	v, ok := parseVerdict(text)
	assert.True(t, ok)
	assert.True(t, v.Stuck)
	assert.Equal(t, 0.95, v.Confidence)
}

func TestParseVerdictRejectsGarbage(t *testing.T) {
	_, ok := parseVerdict("not json at all")
	assert.False(t, ok)
}
