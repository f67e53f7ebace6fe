package cancellation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLifecycle(t *testing.T) {
	r := New()

	e, err := r.Register("req-1")
	require.NoError(t, err)
	assert.Equal(t, "req-1", e.ID())
	assert.Equal(t, 1, r.Len())
	assert.False(t, r.IsCancelled("req-1"))
	assert.False(t, e.Cancelled())

	assert.True(t, r.Cancel("req-1"))
	assert.True(t, r.IsCancelled("req-1"))
	assert.True(t, e.Cancelled())

	select {
	case <-e.Done():
	default:
		t.Fatal("done channel should be closed after cancel")
	}

	// Second cancel is a no-op but the entry is still live.
	assert.True(t, r.Cancel("req-1"))

	e.Release()
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.IsCancelled("req-1"), "read after delete must be false")
	assert.False(t, r.Cancel("req-1"), "cancel after delete must be a no-op")

	// Double release is safe.
	e.Release()
	assert.Equal(t, 0, r.Len())
}

func TestRegistryRejectsDuplicateAndEmptyIDs(t *testing.T) {
	r := New()

	_, err := r.Register("")
	require.Error(t, err)

	first, err := r.Register("dup")
	require.NoError(t, err)

	_, err = r.Register("dup")
	require.ErrorIs(t, err, ErrDuplicateID)

	first.Release()
	second, err := r.Register("dup")
	require.NoError(t, err)

	// Releasing the stale entry must not remove the new one.
	first.Release()
	assert.Equal(t, 1, r.Len())
	second.Release()
	assert.Equal(t, 0, r.Len())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for i := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("req-%d", i)

			e, err := r.Register(id)
			if !assert.NoError(t, err) {
				return
			}
			defer e.Release()

			if i%2 == 0 {
				r.Cancel(id)
				assert.True(t, r.IsCancelled(id))
			} else {
				assert.False(t, r.IsCancelled(id))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
}
