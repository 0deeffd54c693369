package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("a", 1))

	v, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegisterRejectsDuplicatesAndEmptyNames(t *testing.T) {
	r := NewBaseRegistry[string]()
	require.NoError(t, r.Register("a", "x"))
	assert.Error(t, r.Register("a", "y"))
	assert.Error(t, r.Register("", "z"))
}

func TestNamesSorted(t *testing.T) {
	r := NewBaseRegistry[int]()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, r.Register(name, 0))
	}
	assert.Equal(t, []string{"a", "b", "c"}, r.Names())
}

func TestRemoveAndClear(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("a", 1))
	require.NoError(t, r.Remove("a"))
	assert.Error(t, r.Remove("a"))

	require.NoError(t, r.Register("b", 2))
	r.Clear()
	assert.Equal(t, 0, r.Count())
}

func TestConcurrentAccess(t *testing.T) {
	r := NewBaseRegistry[int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.Register(fmt.Sprintf("item-%d", i), i)
			r.Get("item-0")
			r.Count()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, r.Count())
}
