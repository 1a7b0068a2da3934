package tools

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateTailKeepsUnderLimitUnchanged(t *testing.T) {
	s := "short output"
	assert.Equal(t, s, truncateTail(s))
}

// TestTruncateTailIsRuneAware guards against slicing mid-rune: the tail
// must still be valid UTF-8 and exactly truncateKeep runes long, even when
// the cut point would fall inside a multi-byte character under a
// byte-offset slice.
func TestTruncateTailIsRuneAware(t *testing.T) {
	filler := strings.Repeat("x", truncateKeep-1)
	s := filler + "日本語"

	got := truncateTail(s)
	assert.True(t, strings.Contains(got, "truncated"))

	tail := got[strings.Index(got, "\n")+1:]
	assert.Equal(t, truncateKeep, len([]rune(tail)))
	assert.True(t, strings.HasSuffix(tail, "日本語"))
}
