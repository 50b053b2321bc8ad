package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/healthlink/healthlink-backend/internal/relay"
)

// SessionState is the lifecycle of one open conversation view.
type SessionState int32

const (
	StateIdle SessionState = iota
	StateLoadingHistory
	StateLive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingHistory:
		return "loading_history"
	case StateLive:
		return "live"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Store is the slice of Service a ChatSession needs. *Service satisfies it.
type Store interface {
	ListMessages(ctx context.Context, userID uint64, conversationID string) ([]Message, error)
	Append(ctx context.Context, userID uint64, conversationID, body string) (*Message, error)
}

// ChatSession coordinates history load, live subscription and sends for one
// open conversation view. The merged message list never contains a duplicate
// id and stays ascending after every merge; the live stream and the history
// fetch are separately sourced, so dedup by id is what closes the overlap.
//
// The session does not optimistically append its own sends; the sender sees
// their message when the broadcast echoes back (or on the next history load
// if the broadcast was lost).
type ChatSession struct {
	conversationID string
	userID         uint64
	store          Store
	relay          relay.Relay

	mu    sync.Mutex
	state SessionState
	msgs  []Message
	seen  map[uint64]struct{}
	sub   relay.Subscription

	done chan struct{}
}

func NewChatSession(conversationID string, userID uint64, store Store, r relay.Relay) *ChatSession {
	return &ChatSession{
		conversationID: conversationID,
		userID:         userID,
		store:          store,
		relay:          r,
		state:          StateIdle,
		seen:           make(map[uint64]struct{}),
	}
}

// Open subscribes to the live channel and then loads history, so a message
// appended between the two lands in the subscription buffer instead of being
// lost; the merge dedups the overlap. On failure the session returns to Idle
// and Open may be retried.
func (cs *ChatSession) Open(ctx context.Context) error {
	cs.mu.Lock()
	switch cs.state {
	case StateIdle:
	case StateClosed:
		cs.mu.Unlock()
		return errors.New("chat session closed")
	default:
		cs.mu.Unlock()
		return errors.New("chat session already open")
	}
	cs.state = StateLoadingHistory
	cs.mu.Unlock()

	sub, err := cs.relay.Subscribe(ctx, relay.ChannelForConversation(cs.conversationID))
	if err != nil {
		cs.setState(StateIdle)
		return fmt.Errorf("subscribe: %w", err)
	}

	history, err := cs.store.ListMessages(ctx, cs.userID, cs.conversationID)
	if err != nil {
		_ = sub.Close()
		cs.setState(StateIdle)
		return fmt.Errorf("load history: %w", err)
	}

	cs.mu.Lock()
	cs.sub = sub
	for _, m := range history {
		cs.mergeLocked(m)
	}
	cs.state = StateLive
	cs.done = make(chan struct{})
	cs.mu.Unlock()

	go cs.run(sub)
	return nil
}

func (cs *ChatSession) run(sub relay.Subscription) {
	defer close(cs.done)
	for ev := range sub.Events() {
		if ev.Name != relay.EventNewMessage {
			continue
		}
		var p relay.MessagePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			log.Printf("chat session: bad event payload conversation=%s err=%v", cs.conversationID, err)
			continue
		}
		cs.mu.Lock()
		cs.mergeLocked(Message{
			ID:             p.ID,
			ConversationID: cs.conversationID,
			SenderID:       p.SenderID,
			Body:           p.Body,
			CreatedAt:      p.CreatedAt,
		})
		cs.mu.Unlock()
	}
}

// mergeLocked inserts m keeping ascending id order, dropping duplicates.
func (cs *ChatSession) mergeLocked(m Message) {
	if _, dup := cs.seen[m.ID]; dup {
		return
	}
	cs.seen[m.ID] = struct{}{}

	i := sort.Search(len(cs.msgs), func(i int) bool { return cs.msgs[i].ID >= m.ID })
	cs.msgs = append(cs.msgs, Message{})
	copy(cs.msgs[i+1:], cs.msgs[i:])
	cs.msgs[i] = m
}

// Send stores the message through the service, which broadcasts after the
// durable write. Empty bodies are rejected here before any network call, and
// an error leaves the caller's composer state untouched.
func (cs *ChatSession) Send(ctx context.Context, body string) (*Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: message body required", ErrValidation)
	}
	cs.mu.Lock()
	state := cs.state
	cs.mu.Unlock()
	if state != StateLive {
		return nil, fmt.Errorf("chat session not live (state=%s)", state)
	}
	return cs.store.Append(ctx, cs.userID, cs.conversationID, body)
}

// Messages returns a snapshot of the merged view.
func (cs *ChatSession) Messages() []Message {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]Message, len(cs.msgs))
	copy(out, cs.msgs)
	return out
}

func (cs *ChatSession) State() SessionState {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.state
}

// Close unsubscribes synchronously and discards the in-memory view.
// Idempotent.
func (cs *ChatSession) Close() error {
	cs.mu.Lock()
	if cs.state == StateClosed {
		cs.mu.Unlock()
		return nil
	}
	sub := cs.sub
	done := cs.done
	cs.state = StateClosed
	cs.sub = nil
	cs.msgs = nil
	cs.seen = make(map[uint64]struct{})
	cs.mu.Unlock()

	if sub == nil {
		return nil
	}
	err := sub.Close()
	if done != nil {
		<-done
	}
	return err
}

func (cs *ChatSession) setState(s SessionState) {
	cs.mu.Lock()
	cs.state = s
	cs.mu.Unlock()
}
