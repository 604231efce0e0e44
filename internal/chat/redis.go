package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisFeed reads chat records published as JSON on a Redis pub/sub
// channel by the world bridge.
type RedisFeed struct {
	client  *redis.Client
	channel string
	buffer  int
}

// NewRedisFeed wraps an existing client. The caller owns the client.
func NewRedisFeed(client *redis.Client, channel string) *RedisFeed {
	return &RedisFeed{client: client, channel: channel, buffer: 64}
}

// DialRedisFeed parses a redis:// URL and builds a feed on a new client.
func DialRedisFeed(rawURL, channel string) (*RedisFeed, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisFeed(redis.NewClient(opts), channel), nil
}

// Subscribe confirms the subscription before returning, so a dead server is
// reported here rather than as a silent feed.
func (f *RedisFeed) Subscribe(ctx context.Context) (<-chan Record, error) {
	ps := f.client.Subscribe(ctx, f.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", f.channel, err)
	}

	out := make(chan Record, f.buffer)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				rec, err := DecodeRecord([]byte(msg.Payload))
				if err != nil {
					slog.Warn("chat: dropping redis record", "channel", f.channel, "error", err)
					continue
				}
				select {
				case out <- rec:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	slog.Info("chat: subscribed to redis", "channel", f.channel)
	return out, nil
}

// Publish sends rec to the channel, for bridges and the console.
func (f *RedisFeed) Publish(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, data).Err()
}

// Close releases the client.
func (f *RedisFeed) Close() error {
	return f.client.Close()
}

// DecodeRecord parses one JSON chat record. A record needs a sender id.
func DecodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	if rec.FromID == "" {
		return Record{}, errors.New("record has no fromId")
	}
	return rec, nil
}
