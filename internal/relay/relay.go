// Package relay wraps the hosted pub/sub service used for live message
// fan-out. The relay is advisory only: the message store stays authoritative
// and any client can recover by re-reading history.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// EventNewMessage is the event name published on a conversation channel
	// after a durable append.
	EventNewMessage = "new-message"

	channelPrefix = "private-conversation-"
)

// ChannelForConversation derives the relay channel name from a conversation id.
func ChannelForConversation(conversationID string) string {
	return channelPrefix + conversationID
}

// ConversationForChannel is the inverse mapping, used by the
// subscription-authorization endpoint. ok is false for foreign channel names.
func ConversationForChannel(channel string) (string, bool) {
	if len(channel) <= len(channelPrefix) || channel[:len(channelPrefix)] != channelPrefix {
		return "", false
	}
	return channel[len(channelPrefix):], true
}

// Event is a single broadcast received on a subscription.
type Event struct {
	Channel string          `json:"channel"`
	Name    string          `json:"name"`
	Data    json.RawMessage `json:"data"`
}

// MessagePayload is the data carried by an EventNewMessage broadcast.
type MessagePayload struct {
	ID         uint64    `json:"id"`
	SenderID   uint64    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// Grant is the signed credential a client presents to the relay to complete a
// private-channel subscription.
type Grant struct {
	Auth string `json:"auth"`
}

// Subscription is a live feed of events for one channel. Close is synchronous;
// after it returns no further events are delivered and Events is closed.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Relay is the process-wide broadcast client, injected so tests can fake it.
type Relay interface {
	// Publish sends an event to everyone subscribed to channel. Callers on
	// the send path treat failures as advisory (log, don't surface).
	Publish(ctx context.Context, channel, event string, payload any) error

	// AuthorizeSubscription signs a grant for socketID to join channel. It
	// performs no membership check itself; the HTTP boundary decides who may
	// ask for which channel.
	AuthorizeSubscription(socketID, channel string) (Grant, error)

	// Subscribe opens a live feed for channel.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

func marshalPayload(payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("relay: marshal payload: %w", err)
	}
	return b, nil
}
