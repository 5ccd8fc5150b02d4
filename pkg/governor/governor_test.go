package governor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageLockExclusion(t *testing.T) {
	l := NewStageLock("test")

	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire(), "second acquire must fail while held")
	assert.True(t, l.Held())

	l.Release()
	assert.False(t, l.Held())
	assert.True(t, l.TryAcquire(), "lock must be reusable after release")
}

func TestStageLockAcquireError(t *testing.T) {
	l := NewStageLock("embed")
	require.NoError(t, l.Acquire())

	err := l.Acquire()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockBusy)
	assert.Contains(t, err.Error(), "embed")
}

func TestGovernorDefensiveCoercion(t *testing.T) {
	g := New(0, -1, 0)
	assert.Equal(t, 1, g.BrowserPoolSize())
	assert.Equal(t, 1, g.LLMConcurrency())
	assert.Equal(t, 1, g.QdrantBatchSize())
}

func TestBrowserPageLimiterBounds(t *testing.T) {
	g := New(2, 3, 100)
	ctx := context.Background()

	require.NoError(t, g.AcquireBrowserPage(ctx))
	require.NoError(t, g.AcquireBrowserPage(ctx))

	// Third acquisition must block until a slot frees or the context ends.
	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := g.AcquireBrowserPage(blocked)
	assert.Error(t, err)

	g.ReleaseBrowserPage()
	require.NoError(t, g.AcquireBrowserPage(ctx))

	g.ReleaseBrowserPage()
	g.ReleaseBrowserPage()
}

func TestLLMLimiterRespectsCancellation(t *testing.T) {
	g := New(5, 1, 100)
	ctx := context.Background()

	require.NoError(t, g.AcquireLLMSlot(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := g.AcquireLLMSlot(cancelled)
	assert.ErrorIs(t, err, context.Canceled)

	g.ReleaseLLMSlot()
}

func TestStageLocksAreIndependent(t *testing.T) {
	g := New(1, 1, 1)

	assert.True(t, g.BrowserActivity.TryAcquire())
	assert.True(t, g.Synthesize.TryAcquire())
	assert.True(t, g.Embed.TryAcquire())

	assert.False(t, g.Embed.TryAcquire())
	g.Embed.Release()
	assert.True(t, g.Embed.TryAcquire())
}
