package chat

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecord(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"from":"Bob","fromId":"p-1","body":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, Record{From: "Bob", FromID: "p-1", Body: "hi"}, rec)

	_, err = DecodeRecord([]byte(`{"from":"Bob","body":"hi"}`))
	assert.Error(t, err)

	_, err = DecodeRecord([]byte(`not json`))
	assert.Error(t, err)
}

func TestRedisFeed_SubscribeReportsDeadServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	feed := NewRedisFeed(client, "hyperfy:chat")
	defer feed.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := feed.Subscribe(ctx)
	assert.ErrorContains(t, err, "subscribe hyperfy:chat")
}

func TestDialRedisFeed_BadURL(t *testing.T) {
	_, err := DialRedisFeed("http://redis:6379", "c")
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	a, b := NewHub(4), NewHub(4)
	ctx, cancel := context.WithCancel(context.Background())

	records, err := Merge(a, b).Subscribe(ctx)
	require.NoError(t, err)

	a.Publish(Record{FromID: "p-1", Body: "from a"})
	b.Publish(Record{FromID: "p-2", Body: "from b"})

	got := map[string]string{}
	for range 2 {
		select {
		case rec := <-records:
			got[rec.FromID] = rec.Body
		case <-time.After(2 * time.Second):
			t.Fatal("merged feed stalled")
		}
	}
	assert.Equal(t, map[string]string{"p-1": "from a", "p-2": "from b"}, got)

	cancel()
	select {
	case _, ok := <-records:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("merged feed not closed after cancel")
	}
}

func TestMerge_SingleFeedPassesThrough(t *testing.T) {
	h := NewHub(1)
	assert.Same(t, h, Merge(h))
}
