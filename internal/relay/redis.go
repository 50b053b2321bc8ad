package relay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRelay implements Relay over Redis pub/sub. Subscription grants are
// HMAC-SHA256 signed with the shared relay secret, in the key:signature form
// hosted relays use for private channels.
type RedisRelay struct {
	rdb    *redis.Client
	key    string
	secret string
}

func NewRedisRelay(rdb *redis.Client, key, secret string) *RedisRelay {
	return &RedisRelay{rdb: rdb, key: key, secret: secret}
}

func (r *RedisRelay) Publish(ctx context.Context, channel, event string, payload any) error {
	data, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(Event{Channel: channel, Name: event, Data: data})
	if err != nil {
		return fmt.Errorf("relay: marshal event: %w", err)
	}
	if err := r.rdb.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("relay: publish %s: %w", channel, err)
	}
	return nil
}

func (r *RedisRelay) AuthorizeSubscription(socketID, channel string) (Grant, error) {
	if socketID == "" || channel == "" {
		return Grant{}, errors.New("relay: socket id and channel required")
	}
	mac := hmac.New(sha256.New, []byte(r.secret))
	fmt.Fprintf(mac, "%s:%s", socketID, channel)
	sig := hex.EncodeToString(mac.Sum(nil))
	return Grant{Auth: r.key + ":" + sig}, nil
}

func (r *RedisRelay) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := r.rdb.Subscribe(ctx, channel)
	// Force the SUBSCRIBE round-trip so the feed is live before we return;
	// a caller that fetches history afterwards cannot miss an in-between send.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("relay: subscribe %s: %w", channel, err)
	}

	sub := &redisSubscription{
		ps:     ps,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
	go sub.run()
	return sub, nil
}

type redisSubscription struct {
	ps     *redis.PubSub
	events chan Event
	done   chan struct{}
}

func (s *redisSubscription) run() {
	defer close(s.events)
	for msg := range s.ps.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			// Foreign payload on our channel; skip it.
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Events() <-chan Event { return s.events }

func (s *redisSubscription) Close() error {
	close(s.done)
	return s.ps.Close()
}
