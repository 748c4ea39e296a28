package admission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestController(clock *fakeClock) *Controller {
	return NewController(Options{Now: clock.Now})
}

func TestUploadBucketRefillsAfterInterval(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestController(clock)

	for i := 0; i < 20; i++ {
		require.True(t, c.TryAcquire("user:m", ClassUpload), "upload %d", i+1)
	}
	require.False(t, c.TryAcquire("user:m", ClassUpload))

	clock.Advance(time.Minute/20 + time.Millisecond)
	require.True(t, c.TryAcquire("user:m", ClassUpload))
	require.False(t, c.TryAcquire("user:m", ClassUpload))
}

func TestClassesAndIdentitiesAreIndependent(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestController(clock)

	for i := 0; i < 20; i++ {
		require.True(t, c.TryAcquire("user:m", ClassUpload))
	}
	require.False(t, c.TryAcquire("user:m", ClassUpload))

	assert.True(t, c.TryAcquire("user:m", ClassDownload))
	assert.True(t, c.TryAcquire("user:m", ClassGeneric))
	assert.True(t, c.TryAcquire("user:other", ClassUpload))
	assert.Equal(t, 4, c.Len())
}

func TestDefaultCapacities(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestController(clock)
	for class, want := range map[Class]int{ClassGeneric: 60, ClassUpload: 20, ClassDownload: 40} {
		got := 0
		for c.TryAcquire("id", class) {
			got++
		}
		assert.Equal(t, want, got, "class %s", class)
	}
}

func TestBoundedKeyCount(t *testing.T) {
	c := NewController(Options{MaxKeys: 2})
	c.TryAcquire("a", ClassGeneric)
	c.TryAcquire("b", ClassGeneric)
	c.TryAcquire("c", ClassGeneric)
	assert.Equal(t, 2, c.Len())
}

func TestIdleBucketsExpire(t *testing.T) {
	c := NewController(Options{IdleTTL: 20 * time.Millisecond})
	c.TryAcquire("a", ClassGeneric)
	require.Equal(t, 1, c.Len())
	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestAdmitImplementsAdmitter(t *testing.T) {
	var a Admitter = NewController(Options{})
	ok, err := a.Admit(context.Background(), "user:x", ClassUpload)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "memory", a.Name())
}
