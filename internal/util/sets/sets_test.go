package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := New("a", "b")
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("c"))

	assert.True(t, s.Add("c"))
	assert.False(t, s.Add("c"), "second add reports presence")
	assert.Len(t, s, 3)

	s.Delete("a")
	assert.False(t, s.Has("a"))
}
