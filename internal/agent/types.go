package agent

import (
	"context"

	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/llm"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/tts"
)

// Completion generates a single assistant reply for an assembled request.
type Completion interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// Transcriber converts one audio clip to text in the given recognition
// language. It may return the unclear-audio sentinel instead of real text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, recognitionTag string) (string, error)
}

// Synthesizer produces audio bytes for text in the given synthesis language.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, languageTag string) ([]byte, error)
}

// Speaker plays text aloud as a side effect (offline voice output).
type Speaker interface {
	Speak(ctx context.Context, text string, voice tts.Voice) error
}

// State of the turn controller.
type State string

const (
	StateIdle            State = "idle"
	StateAwaitingCapture State = "awaiting_capture"
	StateTranscribing    State = "transcribing"
	StateGenerating      State = "generating_reply"
	StateReplyReady      State = "reply_ready"
	StateAwaitingEdit    State = "awaiting_edit_decision"
)

// Exchange is the outcome of one user interaction. ErrorTurn marks replies
// that are synthetic error messages rather than model output.
type Exchange struct {
	UserText  string `json:"user_text"`
	ReplyText string `json:"reply_text"`
	ErrorTurn bool   `json:"error_turn,omitempty"`
}
