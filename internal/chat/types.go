package chat

import "errors"

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message authored by either the user or the assistant.
// Turns are immutable once appended to a session.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CaptureMode governs how and when voice recording is (re)armed.
type CaptureMode string

const (
	// CaptureManual requires an explicit user action per recording.
	CaptureManual CaptureMode = "manual"
	// CaptureSemiAuto prompts the user to speak again after each reply.
	CaptureSemiAuto CaptureMode = "semi_auto"
	// CaptureFullAuto re-arms the VAD recorder immediately after each reply.
	CaptureFullAuto CaptureMode = "full_auto"
)

// PendingEdit stages a correction of the most recent transcribed user turn.
// It exists only between "reply received" and either resend or discard.
type PendingEdit struct {
	OriginalText string `json:"original_text"`
	EditableText string `json:"editable_text"`
}

// UnclearAudioSentinel is forwarded as user content when transcription could
// not make out the clip, so the user can correct it afterwards.
const UnclearAudioSentinel = "[unclear audio - please edit]"

// Failure classes recovered at the controller boundary. None are fatal;
// every one of them leaves the session ready for the next turn.
var (
	ErrCaptureEmpty             = errors.New("capture produced no audible audio")
	ErrTranscriptionUnavailable = errors.New("transcription service unavailable")
	ErrTranscriptionUnclear     = errors.New("transcription could not understand audio")
	ErrCompletionService        = errors.New("completion service error")
	ErrSynthesis                = errors.New("speech synthesis error")
)
