package dialog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpokenPhone(t *testing.T) {
	assert.Equal(t, "5 5 5, 1 2 3, 4 5 6 7", SpokenPhone("+15551234567"))
	assert.Equal(t, "5 5 5, 1 2 3, 4 5 6 7", SpokenPhone("(555) 123-4567"))
	assert.Equal(t, "12345", SpokenPhone("12345"))
}

func TestJoinOr(t *testing.T) {
	assert.Equal(t, "", joinOr(nil))
	assert.Equal(t, "a", joinOr([]string{"a"}))
	assert.Equal(t, "a or b", joinOr([]string{"a", "b"}))
	assert.Equal(t, "a; b; or c", joinOr([]string{"a", "b", "c"}))
}

func TestPrompts_Static(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	static := h.machine.Prompts().Static()

	assert.NotEmpty(t, static)
	seen := map[string]bool{}
	for _, p := range static {
		assert.NotEmpty(t, p)
		seen[p] = true
	}
	assert.True(t, seen[h.machine.Prompts().Greeting()])
	assert.Contains(t, h.machine.Prompts().AskTime(), "morning, 8 AM to noon")
}

func TestChangeTarget(t *testing.T) {
	tests := map[string]State{
		"the name is spelled wrong":   StateCollectName,
		"wrong phone number":          StateCollectPhone,
		"the street is wrong":         StateCollectAddress,
		"change the problem":          StateCollectIssue,
		"a different day":             StateCollectDate,
		"can we do afternoon instead": StateCollectTime,
	}
	for text, want := range tests {
		got, ok := changeTarget(text)
		assert.True(t, ok, text)
		assert.Equal(t, want, got, text)
	}

	_, ok := changeTarget("no")
	assert.False(t, ok)
}
