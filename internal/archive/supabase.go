// Package archive uploads conversation transcripts to Supabase storage
// before a session's history is cleared, so cleared chats are not lost.
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/chat"
)

type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Archiver writes transcript snapshots to a storage bucket.
type Archiver interface {
	ArchiveSession(sess chat.Session) (string, error)
}

type SupabaseArchiver struct {
	client *supabase.Client
	bucket string
}

func New(config Config) (*SupabaseArchiver, error) {
	client, err := supabase.NewClient(config.URL, config.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseArchiver{client: client, bucket: config.Bucket}, nil
}

// transcriptDocument is the stored shape; it omits transient fields like
// the pending edit and the clip fingerprint.
type transcriptDocument struct {
	SessionID   string      `json:"session_id"`
	Personality string      `json:"personality"`
	Language    string      `json:"language"`
	TurnCount   int         `json:"turn_count"`
	ArchivedAt  time.Time   `json:"archived_at"`
	Turns       []chat.Turn `json:"turns"`
}

// ArchiveSession uploads the session transcript as JSON and returns the
// object key. Empty sessions are skipped.
func (a *SupabaseArchiver) ArchiveSession(sess chat.Session) (string, error) {
	if len(sess.Turns) == 0 {
		return "", nil
	}

	doc := transcriptDocument{
		SessionID:   sess.ID,
		Personality: sess.Personality.ID,
		Language:    sess.Language.ID,
		TurnCount:   sess.TurnCount,
		ArchivedAt:  time.Now().UTC(),
		Turns:       sess.Turns,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}

	key := ObjectKey(sess.ID, doc.ArchivedAt)
	if _, err := a.client.Storage.UploadFile(a.bucket, key, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("upload transcript %s: %w", key, err)
	}
	return key, nil
}

// ObjectKey names transcripts by session and archive time so repeated
// clears of one session never overwrite each other.
func ObjectKey(sessionID string, at time.Time) string {
	return fmt.Sprintf("transcripts/%s/%s.json", sessionID, at.Format("20060102T150405Z"))
}
