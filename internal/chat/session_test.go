package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/healthlink/healthlink-backend/internal/relay"
)

func waitForMessages(t *testing.T, cs *ChatSession, want int) []Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msgs := cs.Messages()
		if len(msgs) >= want {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages, have %d", want, len(cs.Messages()))
	return nil
}

func publishRaw(t *testing.T, fr *fakeRelay, conversationID string, p relay.MessagePayload) {
	t.Helper()
	if err := fr.Publish(context.Background(), relay.ChannelForConversation(conversationID), relay.EventNewMessage, p); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestChatSession_HistoryThenLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.EnsureConversation(ctx, f.patient.ID, f.appt.ID, f.doctor.ID)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := f.svc.Append(ctx, f.patient.ID, conv.ConversationID, "before open"); err != nil {
		t.Fatalf("append: %v", err)
	}

	cs := NewChatSession(conv.ConversationID, f.doctor.ID, f.svc, f.relay)
	if cs.State() != StateIdle {
		t.Fatalf("expected idle, got %s", cs.State())
	}
	if err := cs.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer cs.Close()
	if cs.State() != StateLive {
		t.Fatalf("expected live, got %s", cs.State())
	}

	msgs := cs.Messages()
	if len(msgs) != 1 || msgs[0].Body != "before open" {
		t.Fatalf("history not loaded: %+v", msgs)
	}

	// A send from the other participant arrives over the live stream.
	if _, err := f.svc.Append(ctx, f.patient.ID, conv.ConversationID, "while live"); err != nil {
		t.Fatalf("append: %v", err)
	}
	msgs = waitForMessages(t, cs, 2)
	if msgs[1].Body != "while live" {
		t.Fatalf("live message not merged: %+v", msgs)
	}
	if msgs[0].ID >= msgs[1].ID {
		t.Fatalf("ids not ascending after merge: %d then %d", msgs[0].ID, msgs[1].ID)
	}
}

func TestChatSession_SenderSeesOwnEcho(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.EnsureConversation(ctx, f.patient.ID, f.appt.ID, f.doctor.ID)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	cs := NewChatSession(conv.ConversationID, f.patient.ID, f.svc, f.relay)
	if err := cs.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer cs.Close()

	// No optimistic append: the view fills in when the broadcast echoes back.
	sent, err := cs.Send(ctx, "Hello Doctor")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs := waitForMessages(t, cs, 1)
	if msgs[0].ID != sent.ID || msgs[0].Body != "Hello Doctor" {
		t.Fatalf("echo mismatch: sent %d, view %+v", sent.ID, msgs[0])
	}
}

func TestChatSession_DedupOnReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.EnsureConversation(ctx, f.patient.ID, f.appt.ID, f.doctor.ID)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	stored, err := f.svc.Append(ctx, f.patient.ID, conv.ConversationID, "only once")
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	cs := NewChatSession(conv.ConversationID, f.doctor.ID, f.svc, f.relay)
	if err := cs.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer cs.Close()

	if len(cs.Messages()) != 1 {
		t.Fatalf("expected 1 message from history")
	}

	// Replay the broadcast for a message already present in history.
	publishRaw(t, f.relay, conv.ConversationID, relay.MessagePayload{
		ID: stored.ID, SenderID: stored.SenderID, SenderName: "Pat Patient",
		Body: stored.Body, CreatedAt: stored.CreatedAt,
	})
	// And a genuinely new event, so we can tell delivery finished.
	publishRaw(t, f.relay, conv.ConversationID, relay.MessagePayload{
		ID: stored.ID + 1, SenderID: f.doctor.ID, SenderName: "Dr. Dolan",
		Body: "new", CreatedAt: time.Now(),
	})

	msgs := waitForMessages(t, cs, 2)
	if len(msgs) != 2 {
		t.Fatalf("replay duplicated the view: %d messages", len(msgs))
	}
	if msgs[0].ID != stored.ID || msgs[1].Body != "new" {
		t.Fatalf("unexpected merged view: %+v", msgs)
	}
}

func TestChatSession_OutOfOrderEventsStayAscending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.EnsureConversation(ctx, f.patient.ID, f.appt.ID, f.doctor.ID)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	cs := NewChatSession(conv.ConversationID, f.patient.ID, f.svc, f.relay)
	if err := cs.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer cs.Close()

	now := time.Now()
	for _, id := range []uint64{5, 2, 9, 1} {
		publishRaw(t, f.relay, conv.ConversationID, relay.MessagePayload{
			ID: id, SenderID: f.doctor.ID, SenderName: "Dr. Dolan", Body: "m", CreatedAt: now,
		})
	}

	msgs := waitForMessages(t, cs, 4)
	for i := 1; i < len(msgs); i++ {
		if msgs[i-1].ID >= msgs[i].ID {
			t.Fatalf("view not ascending: %+v", msgs)
		}
	}
}

func TestChatSession_SendGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.EnsureConversation(ctx, f.patient.ID, f.appt.ID, f.doctor.ID)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	cs := NewChatSession(conv.ConversationID, f.patient.ID, f.svc, f.relay)

	// Whitespace-only bodies are rejected before any call; session state is
	// irrelevant to the guard.
	if _, err := cs.Send(ctx, "   \n"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// Not yet live.
	if _, err := cs.Send(ctx, "hello"); err == nil {
		t.Fatalf("expected error sending before open")
	}
}

func TestChatSession_CloseUnsubscribes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.EnsureConversation(ctx, f.patient.ID, f.appt.ID, f.doctor.ID)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	cs := NewChatSession(conv.ConversationID, f.patient.ID, f.svc, f.relay)
	if err := cs.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	channel := relay.ChannelForConversation(conv.ConversationID)
	f.relay.mu.Lock()
	open := len(f.relay.subs[channel])
	f.relay.mu.Unlock()
	if open != 1 {
		t.Fatalf("expected 1 open subscription, got %d", open)
	}

	if err := cs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if cs.State() != StateClosed {
		t.Fatalf("expected closed, got %s", cs.State())
	}
	if len(cs.Messages()) != 0 {
		t.Fatalf("expected in-memory state discarded")
	}

	f.relay.mu.Lock()
	open = len(f.relay.subs[channel])
	f.relay.mu.Unlock()
	if open != 0 {
		t.Fatalf("dangling subscription after close: %d", open)
	}

	// Idempotent close, and no reopen after close.
	if err := cs.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := cs.Open(ctx); err == nil {
		t.Fatalf("expected error reopening a closed session")
	}
}
