package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagIndex(t *testing.T) {
	idx := newTagIndex()

	idx.assign("a", []string{"x", "y", "x"})
	idx.assign("b", []string{"y"})
	assert.ElementsMatch(t, []string{"a", "b"}, idx.keys("y"))

	idx.assign("a", []string{"z"})
	assert.Empty(t, idx.keys("x"))
	assert.ElementsMatch(t, []string{"b"}, idx.keys("y"))

	idx.add("a", []string{"z", "y"})
	assert.ElementsMatch(t, []string{"a", "b"}, idx.keys("y"))

	assert.ElementsMatch(t, []string{"a", "b"}, idx.take("y"))
	assert.Empty(t, idx.keys("y"))
	assert.Equal(t, []string{"a"}, idx.keys("z"))

	idx.remove("a")
	tags, keys := idx.size()
	assert.Zero(t, tags)
	assert.Zero(t, keys)
}
