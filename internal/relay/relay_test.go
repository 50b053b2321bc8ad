package relay

import (
	"strings"
	"testing"
)

func TestChannelForConversation_RoundTrip(t *testing.T) {
	ch := ChannelForConversation("01HXAMPLECONV0000000000000")
	if ch != "private-conversation-01HXAMPLECONV0000000000000" {
		t.Fatalf("unexpected channel: %q", ch)
	}

	id, ok := ConversationForChannel(ch)
	if !ok || id != "01HXAMPLECONV0000000000000" {
		t.Fatalf("round trip failed: id=%q ok=%v", id, ok)
	}
}

func TestConversationForChannel_Foreign(t *testing.T) {
	for _, ch := range []string{"", "private-conversation-", "presence-lobby", "conversation-abc"} {
		if _, ok := ConversationForChannel(ch); ok {
			t.Fatalf("expected %q to be rejected", ch)
		}
	}
}

func TestAuthorizeSubscription_SignsDeterministically(t *testing.T) {
	r := NewRedisRelay(nil, "app-key", "app-secret")

	g1, err := r.AuthorizeSubscription("socket-1", "private-conversation-abc")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	g2, err := r.AuthorizeSubscription("socket-1", "private-conversation-abc")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if g1.Auth != g2.Auth {
		t.Fatalf("grants differ for identical input: %q vs %q", g1.Auth, g2.Auth)
	}
	if !strings.HasPrefix(g1.Auth, "app-key:") {
		t.Fatalf("grant missing key prefix: %q", g1.Auth)
	}

	g3, err := r.AuthorizeSubscription("socket-2", "private-conversation-abc")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if g3.Auth == g1.Auth {
		t.Fatalf("different sockets must not share a grant")
	}
}

func TestAuthorizeSubscription_RequiresInput(t *testing.T) {
	r := NewRedisRelay(nil, "app-key", "app-secret")
	if _, err := r.AuthorizeSubscription("", "private-conversation-abc"); err == nil {
		t.Fatalf("expected error for empty socket id")
	}
	if _, err := r.AuthorizeSubscription("socket-1", ""); err == nil {
		t.Fatalf("expected error for empty channel")
	}
}
