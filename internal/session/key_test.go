package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_StringRoundTrip(t *testing.T) {
	k := NewKey("onebot", Group, "100")
	require.Equal(t, "onebot:group:100", k.String())

	parsed, err := Parse(k.String())
	require.NoError(t, err)
	assert.Equal(t, k, parsed)
}

func TestParse_ChatIDWithColon(t *testing.T) {
	k, err := Parse("onebot:group:guild:42")
	require.NoError(t, err)
	assert.Equal(t, "guild:42", k.ChatID)
}

func TestParse_Malformed(t *testing.T) {
	for _, s := range []string{"", "telegram", "telegram:group", "telegram:channel:1", ":group:1", "telegram:private:"} {
		_, err := Parse(s)
		assert.Error(t, err, "Parse(%q)", s)
	}
}

func TestKey_GroupID(t *testing.T) {
	assert.Empty(t, NewKey("telegram", Private, "7").GroupID(), "private session has no group id")
	assert.Equal(t, "-1001", NewKey("telegram", Group, "-1001").GroupID())
}

func TestKey_Comparable(t *testing.T) {
	m := map[Key]int{}
	m[NewKey("slack", Group, "C1")] = 1
	m[NewKey("slack", Group, "C1")] = 2
	assert.Len(t, m, 1, "identical keys collapse")
}
