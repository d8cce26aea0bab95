package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis implements Broker over Redis Pub/Sub, one channel per instance.
type Redis struct {
	rdb *redis.Client

	mu   sync.Mutex
	subs map[chan Event]*redis.PubSub
}

func NewRedis(url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisClient(redis.NewClient(opt)), nil
}

func NewRedisClient(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb, subs: map[chan Event]*redis.PubSub{}}
}

// Subscribe returns once Redis has confirmed the subscription, so no event
// published after it returns is missed.
func (b *Redis) Subscribe(ctx context.Context, instance string) (chan Event, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ps := b.rdb.Subscribe(ctx, channelName(instance))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channelName(instance), err)
	}
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch, nil
}

// Unsubscribe closes the subscription; ch is closed once its reader
// goroutine drains.
func (b *Redis) Unsubscribe(_ string, ch chan Event) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *Redis) Publish(ctx context.Context, evt Event) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelName(evt.Instance), data).Err()
}

func (b *Redis) Close() error {
	b.mu.Lock()
	for ch, ps := range b.subs {
		_ = ps.Close()
		delete(b.subs, ch)
	}
	b.mu.Unlock()
	return b.rdb.Close()
}

func channelName(instance string) string { return "cvrp:progress:" + instance }
