package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSystemPrompt_KnownStyles(t *testing.T) {
	for _, style := range []string{"friend", "coach", "assistant", "custom"} {
		t.Run(style, func(t *testing.T) {
			prompt := DefaultSystemPrompt(style)
			assert.NotEmpty(t, prompt, "style %q must have a prompt", style)
		})
	}
}

func TestDefaultSystemPrompt_DistinctPrompts(t *testing.T) {
	assert.NotEqual(t, DefaultSystemPrompt("friend"), DefaultSystemPrompt("coach"))
}

func TestDefaultSystemPrompt_UnknownStyleFallsBack(t *testing.T) {
	prompt := DefaultSystemPrompt("does-not-exist")
	assert.Equal(t, DefaultSystemPrompt("custom"), prompt)
}

func TestStyleNames(t *testing.T) {
	names := StyleNames()
	require.Len(t, names, 4)
	assert.Equal(t, []string{"assistant", "coach", "custom", "friend"}, names)
}
