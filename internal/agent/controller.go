package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/capture"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/chat"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/llm"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/tts"
)

// ErrBusy is returned when a capture or message arrives while an exchange
// is already in flight; the caller should drop the input, not queue it.
var ErrBusy = errors.New("exchange already in progress")

// ErrNoPendingEdit is returned when resend/discard has nothing staged.
var ErrNoPendingEdit = errors.New("no pending edit")

// Options configures a Controller. Completion and Transcriber are required
// for their respective paths; Synthesizer and Speaker are optional.
type Options struct {
	Completion  Completion
	Transcriber Transcriber
	Synthesizer Synthesizer
	Speaker     Speaker
	Voice       tts.Voice

	// SettleDelay is how long semi/fully automatic modes linger in the
	// edit decision before re-arming capture.
	SettleDelay time.Duration
}

// Controller runs the turn-taking state machine for one session: decide
// after each utterance and reply whether to re-arm capture, stage an
// editable transcript, and emit synthesized audio.
//
// One exchange at a time: a clip arriving while a reply is being generated
// is ignored until the machine returns to Idle or AwaitingCapture.
type Controller struct {
	mu    sync.Mutex
	sess  *chat.Session
	state State
	opts  Options
	cache *tts.Cache

	// gen increments whenever in-flight work must be abandoned (persona or
	// language switch, history clear). Blocking calls re-check it before
	// committing results.
	gen      uint64
	inFlight bool

	playCancel  context.CancelFunc
	settleTimer *time.Timer
}

// NewController wires a controller around a session.
func NewController(sess *chat.Session, opts Options) *Controller {
	if opts.SettleDelay == 0 {
		opts.SettleDelay = time.Second
	}
	return &Controller{sess: sess, state: StateIdle, opts: opts, cache: tts.NewCache()}
}

// State returns the current machine state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the session state for rendering.
func (c *Controller) Session() chat.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := *c.sess
	snap.Turns = make([]chat.Turn, len(c.sess.Turns))
	copy(snap.Turns, c.sess.Turns)
	if c.sess.Pending != nil {
		p := *c.sess.Pending
		snap.Pending = &p
	}
	return snap
}

// ArmCapture is the user's explicit record action in manual mode.
func (c *Controller) ArmCapture() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle || c.state == StateAwaitingEdit {
		c.sess.DiscardEdit()
		c.state = StateAwaitingCapture
	}
}

// SubmitClip runs one full voice exchange: fingerprint check, transcription,
// completion, edit staging. It blocks until the reply is available. A clip
// whose fingerprint matches the previous one is dropped silently and (nil,
// nil) is returned.
func (c *Controller) SubmitClip(ctx context.Context, audio []byte) (*Exchange, error) {
	c.mu.Lock()
	if c.inFlight || c.state == StateTranscribing || c.state == StateGenerating {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	fp := capture.Fingerprint(audio)
	if fp == c.sess.LastFingerprint {
		c.mu.Unlock()
		return nil, nil
	}
	c.sess.LastFingerprint = fp
	c.sess.DiscardEdit()
	c.stopPlaybackLocked()
	c.stopSettleLocked()
	c.inFlight = true
	c.state = StateTranscribing
	gen := c.gen
	lang := c.sess.Language
	c.mu.Unlock()

	text, err := c.opts.Transcriber.Transcribe(ctx, audio, lang.RecognitionTag)
	if err != nil {
		if errors.Is(err, chat.ErrTranscriptionUnclear) || errors.Is(err, chat.ErrCaptureEmpty) {
			// still produce exactly one user turn so the sequence stays
			// consistent and the user can edit it afterwards
			text = chat.UnclearAudioSentinel
		} else {
			log.Printf("transcription error: %v", err)
			// forget the fingerprint so retrying the identical clip is
			// not dropped as a duplicate
			c.mu.Lock()
			c.sess.LastFingerprint = ""
			c.mu.Unlock()
			return c.finishWithErrorTurn(gen, chat.UnclearAudioSentinel,
				"Error: voice transcription is unavailable right now. Please try again or type your message.")
		}
	}

	return c.generateAndCommit(ctx, gen, text, true)
}

// SubmitText handles typed input; no fingerprinting or edit staging.
func (c *Controller) SubmitText(ctx context.Context, text string) (*Exchange, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, chat.ErrCaptureEmpty
	}
	c.mu.Lock()
	if c.inFlight || c.state == StateTranscribing || c.state == StateGenerating {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.stopPlaybackLocked()
	c.stopSettleLocked()
	c.inFlight = true
	gen := c.gen
	c.mu.Unlock()

	return c.generateAndCommit(ctx, gen, text, false)
}

// ResendEdit replaces the last exchange with a corrected user turn and
// generates a fresh reply; only the corrected turn is persisted.
func (c *Controller) ResendEdit(ctx context.Context, edited string) (*Exchange, error) {
	edited = strings.TrimSpace(edited)
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if c.sess.Pending == nil || !c.sess.EditTargetsLastExchange() {
		c.mu.Unlock()
		return nil, ErrNoPendingEdit
	}
	if edited == "" {
		edited = c.sess.Pending.EditableText
	}
	c.sess.DropLastExchange()
	c.sess.DiscardEdit()
	c.stopPlaybackLocked()
	c.stopSettleLocked()
	c.inFlight = true
	gen := c.gen
	c.mu.Unlock()

	return c.generateAndCommit(ctx, gen, edited, false)
}

// DiscardEdit drops the staged correction and returns to Idle.
func (c *Controller) DiscardEdit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess.Pending == nil {
		return ErrNoPendingEdit
	}
	c.sess.DiscardEdit()
	if c.state == StateAwaitingEdit {
		c.state = StateIdle
	}
	return nil
}

// generateAndCommit runs the completion call and appends the exchange. Any
// completion failure becomes a synthetic assistant error turn; the session
// stays usable.
func (c *Controller) generateAndCommit(ctx context.Context, gen uint64, userText string, stageEdit bool) (*Exchange, error) {
	c.mu.Lock()
	if c.abandonedLocked(gen) {
		c.mu.Unlock()
		return nil, nil
	}
	c.state = StateGenerating
	req := llm.BuildRequest(c.sess, userText)
	c.mu.Unlock()

	reply, err := c.opts.Completion.Generate(ctx, req)
	if err != nil {
		log.Printf("completion error: %v", err)
		return c.finishWithErrorTurn(gen, userText, fmt.Sprintf("Error: %v", err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if c.abandonedLocked(gen) {
		return nil, nil
	}
	c.sess.AppendExchange(userText, reply)
	c.state = StateReplyReady
	if stageEdit {
		c.sess.StageEdit(userText)
		c.enterEditDecisionLocked()
	} else if c.sess.CaptureMode != chat.CaptureManual {
		c.enterEditDecisionLocked()
	} else {
		c.state = StateIdle
	}
	c.startPlaybackLocked(reply)
	return &Exchange{UserText: userText, ReplyText: reply}, nil
}

func (c *Controller) finishWithErrorTurn(gen uint64, userText, message string) (*Exchange, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if c.abandonedLocked(gen) {
		return nil, nil
	}
	c.sess.AppendExchange(userText, message)
	c.state = StateIdle
	return &Exchange{UserText: userText, ReplyText: message, ErrorTurn: true}, nil
}

func (c *Controller) abandonedLocked(gen uint64) bool {
	if c.gen != gen {
		c.inFlight = false
		return true
	}
	return false
}

// enterEditDecisionLocked moves ReplyReady into the edit decision and, in
// semi/fully automatic modes, arms the settle timer that re-enters capture.
func (c *Controller) enterEditDecisionLocked() {
	c.state = StateAwaitingEdit
	mode := c.sess.CaptureMode
	if mode != chat.CaptureSemiAuto && mode != chat.CaptureFullAuto {
		return
	}
	gen := c.gen
	c.settleTimer = time.AfterFunc(c.opts.SettleDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen || c.state != StateAwaitingEdit {
			return
		}
		c.state = StateAwaitingCapture
	})
}

// ShouldPromptContinue reports whether the UI should nudge the user to
// speak again (semi-automatic conversation flow).
func (c *Controller) ShouldPromptContinue() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.CaptureMode == chat.CaptureSemiAuto &&
		(c.state == StateAwaitingCapture || c.state == StateAwaitingEdit)
}

// SetPersonality abandons in-flight work and resets the conversation.
func (c *Controller) SetPersonality(id string) error {
	p, err := chat.PersonalityByID(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abandonLocked()
	c.sess.SetPersonality(p)
	return nil
}

// SetLanguage abandons in-flight work; a real change flushes the synthesis
// cache so stale-language audio can never be served.
func (c *Controller) SetLanguage(id string) error {
	l, err := chat.LanguageByID(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abandonLocked()
	if c.sess.SetLanguage(l) {
		c.cache.Flush()
	}
	return nil
}

// EnableConversationFlow toggles semi-automatic mode. Enabling it forces
// fully-automatic off; the two are mutually exclusive.
func (c *Controller) EnableConversationFlow(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.sess.CaptureMode = chat.CaptureSemiAuto
		c.rearmAfterReplyLocked()
		return
	}
	if c.sess.CaptureMode == chat.CaptureSemiAuto {
		c.sess.CaptureMode = chat.CaptureManual
	}
}

// EnableAutoCapture toggles fully-automatic mode, forcing semi-automatic
// off when enabled.
func (c *Controller) EnableAutoCapture(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.sess.CaptureMode = chat.CaptureFullAuto
		c.rearmAfterReplyLocked()
		return
	}
	if c.sess.CaptureMode == chat.CaptureFullAuto {
		c.sess.CaptureMode = chat.CaptureManual
	}
}

// rearmAfterReplyLocked covers switching into an automatic mode when a
// reply is already on screen: the controller moves straight to capture
// instead of waiting for the next exchange's settle timer.
func (c *Controller) rearmAfterReplyLocked() {
	if c.state != StateIdle || len(c.sess.Turns) == 0 {
		return
	}
	if c.sess.Turns[len(c.sess.Turns)-1].Role == chat.RoleAssistant {
		c.state = StateAwaitingCapture
	}
}

// CaptureMode returns the active capture policy.
func (c *Controller) CaptureMode() chat.CaptureMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.CaptureMode
}

// ClearHistory abandons in-flight work and empties the conversation.
func (c *Controller) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abandonLocked()
	c.sess.ClearTurns()
	c.cache.Flush()
}

// abandonLocked cancels playback and settle timers and invalidates any
// blocking call still in flight. State returns to Idle.
func (c *Controller) abandonLocked() {
	c.gen++
	c.inFlight = false
	c.stopPlaybackLocked()
	c.stopSettleLocked()
	c.state = StateIdle
}

// SpeechForTurn returns synthesized audio for an assistant turn, reusing
// the cache so each (turn, language) pair is synthesized at most once.
// truncated reports whether the spoken text was cut at the hard limit.
func (c *Controller) SpeechForTurn(ctx context.Context, turnIndex int) (audio []byte, truncated bool, err error) {
	c.mu.Lock()
	if c.opts.Synthesizer == nil {
		c.mu.Unlock()
		return nil, false, fmt.Errorf("no synthesizer configured: %w", chat.ErrSynthesis)
	}
	if turnIndex < 0 || turnIndex >= len(c.sess.Turns) {
		c.mu.Unlock()
		return nil, false, fmt.Errorf("turn %d out of range", turnIndex)
	}
	turn := c.sess.Turns[turnIndex]
	if turn.Role != chat.RoleAssistant {
		c.mu.Unlock()
		return nil, false, fmt.Errorf("turn %d is not an assistant turn", turnIndex)
	}
	tag := c.sess.Language.SynthesisTag
	spoken, _, truncated := tts.Prepare(turn.Content)
	if b, ok := c.cache.Get(turnIndex, tag); ok {
		c.mu.Unlock()
		return b, truncated, nil
	}
	c.mu.Unlock()

	b, err := c.opts.Synthesizer.Synthesize(ctx, spoken, tag)
	if err != nil {
		return nil, truncated, fmt.Errorf("%v: %w", err, chat.ErrSynthesis)
	}
	c.mu.Lock()
	c.cache.Put(turnIndex, tag, b)
	c.mu.Unlock()
	return b, truncated, nil
}

// startPlaybackLocked speaks a reply in the background when an offline
// speaker is configured. The handle is cancellable: a new capture event
// stops any in-flight playback before starting.
func (c *Controller) startPlaybackLocked(reply string) {
	if c.opts.Speaker == nil {
		return
	}
	spoken, _, _ := tts.Prepare(reply)
	ctx, cancel := context.WithCancel(context.Background())
	c.playCancel = cancel
	sp, voice := c.opts.Speaker, c.opts.Voice
	go func() {
		if err := sp.Speak(ctx, spoken, voice); err != nil && ctx.Err() == nil {
			log.Printf("playback error: %v", err)
		}
	}()
}

func (c *Controller) stopPlaybackLocked() {
	if c.playCancel != nil {
		c.playCancel()
		c.playCancel = nil
	}
}

func (c *Controller) stopSettleLocked() {
	if c.settleTimer != nil {
		c.settleTimer.Stop()
		c.settleTimer = nil
	}
}
