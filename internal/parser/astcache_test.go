package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestASTCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewASTCache(3)

	cache.Put("a", nil)
	cache.Put("b", nil)
	cache.Put("c", nil)
	cache.Put("d", nil) // evicts a

	_, ok := cache.Get("a")
	assert.False(t, ok, "a was least recently used")
	_, ok = cache.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 3, cache.Len())
}

func TestASTCache_TouchRefreshesRecency(t *testing.T) {
	cache := NewASTCache(3)

	cache.Put("a", nil)
	cache.Put("b", nil)
	cache.Put("c", nil)
	cache.Get("a")      // a becomes most recent
	cache.Put("d", nil) // evicts b instead

	_, ok := cache.Get("a")
	assert.True(t, ok)
	_, ok = cache.Get("b")
	assert.False(t, ok)
}

func TestASTCache_GetAfterRemoveMisses(t *testing.T) {
	cache := NewASTCache(3)
	cache.Put("a", nil)
	cache.Remove("a")
	_, ok := cache.Get("a")
	assert.False(t, ok)
}

func TestASTCache_DefaultSize(t *testing.T) {
	cache := NewASTCache(0)
	for i := 0; i < DefaultASTCacheSize+10; i++ {
		cache.Put(string(rune('a'+i%26))+string(rune('0'+i/26)), nil)
	}
	assert.LessOrEqual(t, cache.Len(), DefaultASTCacheSize)
}
