package stringutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 7, "this is..."},
		{"撤回消息测试", 2, "撤回..."},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Truncate(c.in, c.n), "Truncate(%q, %d)", c.in, c.n)
	}
}

func TestMask(t *testing.T) {
	assert.Equal(t, "(not configured)", Mask("", 4))
	assert.Equal(t, "123456...", Mask("123456:ABCDEF", 6))
	assert.Equal(t, "abc", Mask("abc", 6))
}
