package groupcache

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveGroupIDDeterministic(t *testing.T) {
	first := DeriveGroupID("Tech Momentum")
	second := DeriveGroupID("Tech Momentum")
	assert.Equal(t, first, second)
}

func TestDeriveGroupIDNormalizesCaseAndWhitespace(t *testing.T) {
	base := DeriveGroupID("Tech Momentum")
	assert.Equal(t, base, DeriveGroupID("tech momentum"))
	assert.Equal(t, base, DeriveGroupID("  Tech Momentum  "))
	assert.Equal(t, base, DeriveGroupID("TECH MOMENTUM"))
}

func TestDeriveGroupIDShape(t *testing.T) {
	id := DeriveGroupID("Defensive Basket")
	assert.Len(t, id, 16)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), id)
}

func TestDeriveGroupIDDistinctNames(t *testing.T) {
	assert.NotEqual(t, DeriveGroupID("Group A"), DeriveGroupID("Group B"))
	// Internal whitespace is not collapsed, only the edges are trimmed.
	assert.NotEqual(t, DeriveGroupID("Group  A"), DeriveGroupID("Group A"))
}
