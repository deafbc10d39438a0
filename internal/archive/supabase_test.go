package archive

import (
	"strings"
	"testing"
	"time"
)

func TestObjectKey(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	key := ObjectKey("abc-123", at)
	if key != "transcripts/abc-123/20260314T092653Z.json" {
		t.Fatalf("unexpected key %q", key)
	}
	if !strings.HasPrefix(key, "transcripts/") {
		t.Fatalf("keys must live under transcripts/: %q", key)
	}
}

func TestObjectKey_DistinctPerArchive(t *testing.T) {
	a := ObjectKey("s", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := ObjectKey("s", time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC))
	if a == b {
		t.Fatalf("repeated archives of one session must not collide")
	}
}
