package chat

import (
	"time"

	"github.com/google/uuid"
)

// Session is the per-user conversation state. It is not safe for concurrent
// use; the turn controller serializes access to it.
type Session struct {
	ID          string      `json:"id"`
	Turns       []Turn      `json:"turns"`
	Personality Personality `json:"personality"`
	Language    Language    `json:"language"`
	CaptureMode CaptureMode `json:"capture_mode"`
	TurnCount   int         `json:"turn_count"`

	// Edit staged for the most recent transcribed user turn, if any.
	Pending *PendingEdit `json:"pending_edit,omitempty"`

	// Hash of the last processed audio clip; identical clips are dropped.
	LastFingerprint string `json:"last_fingerprint,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession starts a session with the default persona and language in
// manual capture mode.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:          uuid.NewString(),
		Personality: DefaultPersonality(),
		Language:    DefaultLanguage(),
		CaptureMode: CaptureManual,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// AppendExchange records a completed user/assistant pair. The turn count
// tracks completed exchanges, which the conversation-flow UI surfaces.
func (s *Session) AppendExchange(user, assistant string) {
	s.Turns = append(s.Turns, Turn{Role: RoleUser, Content: user})
	s.Turns = append(s.Turns, Turn{Role: RoleAssistant, Content: assistant})
	s.TurnCount++
	s.UpdatedAt = time.Now()
}

// DropLastExchange removes the trailing user/assistant pair, if present.
// Used when an edited transcription replaces the original exchange.
func (s *Session) DropLastExchange() {
	if len(s.Turns) < 2 {
		return
	}
	last, prev := s.Turns[len(s.Turns)-1], s.Turns[len(s.Turns)-2]
	if prev.Role != RoleUser || last.Role != RoleAssistant {
		return
	}
	s.Turns = s.Turns[:len(s.Turns)-2]
	if s.TurnCount > 0 {
		s.TurnCount--
	}
	s.UpdatedAt = time.Now()
}

// SetPersonality switches persona. A personality switch is a hard context
// reset: the turn sequence is cleared.
func (s *Session) SetPersonality(p Personality) {
	if p.ID == s.Personality.ID {
		return
	}
	s.Personality = p
	s.Turns = nil
	s.TurnCount = 0
	s.Pending = nil
	s.UpdatedAt = time.Now()
}

// SetLanguage switches languages and reports whether anything changed, so
// the caller can flush cached synthesized audio.
func (s *Session) SetLanguage(l Language) bool {
	if l.ID == s.Language.ID {
		return false
	}
	s.Language = l
	s.UpdatedAt = time.Now()
	return true
}

// ClearTurns empties the conversation history.
func (s *Session) ClearTurns() {
	s.Turns = nil
	s.TurnCount = 0
	s.Pending = nil
	s.UpdatedAt = time.Now()
}

// StageEdit stores the latest transcription so the user can correct a
// misheard utterance after seeing the reply.
func (s *Session) StageEdit(transcribed string) {
	s.Pending = &PendingEdit{OriginalText: transcribed, EditableText: transcribed}
	s.UpdatedAt = time.Now()
}

// DiscardEdit drops any staged correction.
func (s *Session) DiscardEdit() {
	s.Pending = nil
	s.UpdatedAt = time.Now()
}

// EditTargetsLastExchange reports whether the staged edit still refers to
// the trailing user turn. The check compares literal text, which misfires
// if two consecutive user turns coincidentally say the same thing; kept as
// a known limitation of the edit feature.
func (s *Session) EditTargetsLastExchange() bool {
	if s.Pending == nil || len(s.Turns) < 2 {
		return false
	}
	prev := s.Turns[len(s.Turns)-2]
	return prev.Role == RoleUser && prev.Content == s.Pending.OriginalText
}
