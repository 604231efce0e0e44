package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/clock"
)

func TestHub_FanOut(t *testing.T) {
	h := NewHub(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := h.Subscribe(ctx)
	require.NoError(t, err)
	b, err := h.Subscribe(ctx)
	require.NoError(t, err)

	rec := Record{From: "Bob", FromID: "p-1", Body: "hi"}
	assert.Equal(t, 2, h.Publish(rec))
	assert.Equal(t, rec, <-a)
	assert.Equal(t, rec, <-b)
}

func TestHub_DropsWhenFull(t *testing.T) {
	h := NewHub(1)
	ch, err := h.Subscribe(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, h.Publish(Record{Body: "one"}))
	assert.Equal(t, 0, h.Publish(Record{Body: "two"}))
	assert.Equal(t, "one", (<-ch).Body)
}

func TestHub_UnsubscribeOnCancel(t *testing.T) {
	h := NewHub(1)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := h.Subscribe(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("subscription not closed")
	}
	assert.Equal(t, 0, h.Publish(Record{Body: "late"}))
}

func TestHub_Close(t *testing.T) {
	h := NewHub(1)
	ch, err := h.Subscribe(context.Background())
	require.NoError(t, err)

	h.Close()
	_, ok := <-ch
	assert.False(t, ok)

	_, err = h.Subscribe(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLimiter_PerSender(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	l := NewLimiter(clk, 6, 2) // one token every 10s

	assert.True(t, l.Allow("bob"))
	assert.True(t, l.Allow("bob"))
	assert.False(t, l.Allow("bob"))
	assert.True(t, l.Allow("carol"), "buckets are per sender")

	clk.Advance(10 * time.Second)
	assert.True(t, l.Allow("bob"))
	assert.False(t, l.Allow("bob"))
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(nil, 0, 1)
	assert.False(t, l.Enabled())
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("bob"))
	}
}

func TestLimiter_PrunesStale(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	l := NewLimiter(clk, 60, 1)
	l.Allow("bob")

	clk.Advance(staleAfter + time.Second)
	l.Allow("carol")
	assert.Len(t, l.limiters, 1)
}
