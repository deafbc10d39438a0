package llm

import (
	"fmt"

	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/chat"
)

// Request is the assembled input for one completion call: the persona's
// system prompt (with any language override), the prior turns in order, and
// the new user message last.
type Request struct {
	SystemPrompt string
	History      []chat.Turn
	NewMessage   string
}

// BuildRequest assembles a completion request from the session. The history
// is the session's turn sequence as-is; the caller appends the pending user
// turn only after the reply arrives, so it must not already be in Turns.
func BuildRequest(s *chat.Session, newMessage string) Request {
	system := s.Personality.SystemPrompt
	if s.Language.ID != chat.DefaultLanguage().ID {
		name := s.Language.DisplayName
		system = fmt.Sprintf("%s\n\nIMPORTANT: Please respond in %s. The user is communicating in %s, so respond naturally in %s.",
			system, name, name, name)
	}
	history := make([]chat.Turn, len(s.Turns))
	copy(history, s.Turns)
	return Request{SystemPrompt: system, History: history, NewMessage: newMessage}
}
