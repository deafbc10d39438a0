package rtc

import (
	"context"
	"testing"
)

func TestParseICEServers(t *testing.T) {
	servers := parseICEServers(`[{"urls":["turn:turn.example.com:3478"],"username":"u","credential":"c"}]`)
	if len(servers) != 1 || servers[0].URLs[0] != "turn:turn.example.com:3478" {
		t.Fatalf("unexpected servers: %+v", servers)
	}

	// invalid or empty input falls back to public STUN
	for _, in := range []string{"", "not json", "[]"} {
		servers = parseICEServers(in)
		if len(servers) != 1 || servers[0].URLs[0] != "stun:stun.l.google.com:19302" {
			t.Fatalf("expected STUN fallback for %q, got %+v", in, servers)
		}
	}
}

func TestHandleOffer_RejectsInvalidOffer(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	if _, err := h.HandleOffer(context.Background(), SessionDescription{Type: "offer"}); err == nil {
		t.Fatalf("empty SDP must be rejected")
	}
	if _, err := h.HandleOffer(context.Background(), SessionDescription{Type: "answer", SDP: "v=0"}); err == nil {
		t.Fatalf("non-offer type must be rejected")
	}
}
