package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeArgStripsDangerousChars(t *testing.T) {
	in := "a|b&c;d>e<f`g$h\ni\rj"
	out := sanitizeArg(in)
	for _, r := range dangerousChars {
		assert.NotContains(t, out, string(r))
	}
	assert.Equal(t, "abcdefghij", out)
}

func TestSanitizeArgPreservesOrderOfSafeChars(t *testing.T) {
	in := "status --all"
	assert.Equal(t, in, sanitizeArg(in))
}

func TestSanitizeArgsAppliesToEveryElement(t *testing.T) {
	out := sanitizeArgs([]string{"a;b", "c|d"})
	assert.Equal(t, []string{"ab", "cd"}, out)
}
