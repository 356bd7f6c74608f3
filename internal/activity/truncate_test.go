package activity

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 255))
	assert.Equal(t, "abc", truncate("abcdef", 3))

	ua := "a" + strings.Repeat("€", 100)
	got := truncate(ua, 255)
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, 253)
	assert.True(t, strings.HasPrefix(ua, got))

	assert.Equal(t, "", truncate("€", 2))
}
