package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/chat"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/llm"
)

type fakeTranscriber struct {
	text  string
	err   error
	calls int32
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, tag string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeLLM struct {
	reply   string
	err     error
	calls   int32
	lastReq llm.Request
	gate    chan struct{}
}

func (f *fakeLLM) Generate(ctx context.Context, req llm.Request) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	f.lastReq = req
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeSynth struct{ calls int32 }

func (f *fakeSynth) Synthesize(ctx context.Context, text, tag string) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	if len(text) > 8 {
		text = text[:8]
	}
	return []byte(tag + ":" + text), nil
}

func newTestController(tr *fakeTranscriber, g *fakeLLM) *Controller {
	return NewController(chat.NewSession(), Options{
		Completion:  g,
		Transcriber: tr,
		Synthesizer: &fakeSynth{},
		SettleDelay: 20 * time.Millisecond,
	})
}

func TestVoiceExchange_AppendsPairAndStagesEdit(t *testing.T) {
	tr := &fakeTranscriber{text: "explain photosynthesis"}
	g := &fakeLLM{reply: "Plants convert light into energy."}
	c := newTestController(tr, g)

	ex, err := c.SubmitClip(context.Background(), []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ex.UserText != "explain photosynthesis" || ex.ReplyText != g.reply {
		t.Fatalf("bad exchange: %+v", ex)
	}
	sess := c.Session()
	if len(sess.Turns) != 2 {
		t.Fatalf("expected one user/assistant pair, got %d turns", len(sess.Turns))
	}
	if sess.Pending == nil || sess.Pending.OriginalText != "explain photosynthesis" {
		t.Fatalf("expected staged edit, got %+v", sess.Pending)
	}
	if c.State() != StateAwaitingEdit {
		t.Fatalf("expected awaiting edit, got %s", c.State())
	}
	if !strings.Contains(g.lastReq.SystemPrompt, "helpful") {
		t.Fatalf("system prompt missing persona: %q", g.lastReq.SystemPrompt)
	}
	if strings.Contains(g.lastReq.SystemPrompt, "IMPORTANT: Please respond in") {
		t.Fatalf("English session must not carry a language clause")
	}
}

func TestVoiceExchange_SpanishAddsLanguageClause(t *testing.T) {
	tr := &fakeTranscriber{text: "hola"}
	g := &fakeLLM{reply: "¡Hola!"}
	c := newTestController(tr, g)
	if err := c.SetLanguage("es"); err != nil {
		t.Fatalf("set language: %v", err)
	}
	if _, err := c.SubmitClip(context.Background(), []byte{9}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.Contains(g.lastReq.SystemPrompt, "respond in Spanish") {
		t.Fatalf("expected Spanish clause, got %q", g.lastReq.SystemPrompt)
	}
}

func TestDuplicateClip_SilentlyDropped(t *testing.T) {
	tr := &fakeTranscriber{text: "hello"}
	g := &fakeLLM{reply: "hi"}
	c := newTestController(tr, g)

	clip := []byte{1, 2, 3, 4}
	if _, err := c.SubmitClip(context.Background(), clip); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	ex, err := c.SubmitClip(context.Background(), clip)
	if err != nil {
		t.Fatalf("duplicate submit must not error: %v", err)
	}
	if ex != nil {
		t.Fatalf("duplicate clip must be dropped, got %+v", ex)
	}
	if atomic.LoadInt32(&tr.calls) != 1 {
		t.Fatalf("expected exactly one transcription call, got %d", tr.calls)
	}
}

func TestUnclearTranscription_ForwardsSentinel(t *testing.T) {
	tr := &fakeTranscriber{err: fmt.Errorf("mumbled: %w", chat.ErrTranscriptionUnclear)}
	g := &fakeLLM{reply: "Could you repeat that?"}
	c := newTestController(tr, g)

	ex, err := c.SubmitClip(context.Background(), []byte{7})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ex.UserText != chat.UnclearAudioSentinel {
		t.Fatalf("expected sentinel user text, got %q", ex.UserText)
	}
	if atomic.LoadInt32(&g.calls) != 1 {
		t.Fatalf("sentinel should still be forwarded to the model")
	}
	sess := c.Session()
	if sess.Turns[0].Content != chat.UnclearAudioSentinel {
		t.Fatalf("sentinel not persisted as user turn")
	}
}

func TestUnavailableTranscription_SyntheticErrorTurn(t *testing.T) {
	tr := &fakeTranscriber{err: fmt.Errorf("down: %w", chat.ErrTranscriptionUnavailable)}
	g := &fakeLLM{reply: "unused"}
	c := newTestController(tr, g)

	ex, err := c.SubmitClip(context.Background(), []byte{7})
	if err != nil {
		t.Fatalf("failure must be recovered, got %v", err)
	}
	if !ex.ErrorTurn {
		t.Fatalf("expected synthetic error turn")
	}
	if atomic.LoadInt32(&g.calls) != 0 {
		t.Fatalf("no completion call expected when transcription is down")
	}
	if c.State() != StateIdle {
		t.Fatalf("session must return to idle, got %s", c.State())
	}
	if len(c.Session().Turns)%2 != 0 {
		t.Fatalf("turn pairing broken")
	}
}

func TestUnavailableTranscription_SameClipCanBeRetried(t *testing.T) {
	tr := &fakeTranscriber{err: fmt.Errorf("down: %w", chat.ErrTranscriptionUnavailable)}
	g := &fakeLLM{reply: "got it"}
	c := newTestController(tr, g)

	clip := []byte{5, 6, 7}
	ex, err := c.SubmitClip(context.Background(), clip)
	if err != nil || !ex.ErrorTurn {
		t.Fatalf("expected recovered error turn, got ex=%+v err=%v", ex, err)
	}

	// service comes back; the identical clip is a retry, not a duplicate
	tr.err = nil
	tr.text = "second attempt"
	ex, err = c.SubmitClip(context.Background(), clip)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if ex == nil || ex.UserText != "second attempt" {
		t.Fatalf("retry of the same clip must be processed, got %+v", ex)
	}
	if atomic.LoadInt32(&tr.calls) != 2 {
		t.Fatalf("expected two transcription attempts, got %d", tr.calls)
	}
}

func TestCompletionError_SyntheticErrorTurnAndRecovery(t *testing.T) {
	tr := &fakeTranscriber{text: "hi"}
	g := &fakeLLM{err: fmt.Errorf("boom: %w", chat.ErrCompletionService)}
	c := newTestController(tr, g)

	ex, err := c.SubmitClip(context.Background(), []byte{1})
	if err != nil {
		t.Fatalf("completion failure must be recovered: %v", err)
	}
	if !ex.ErrorTurn || !strings.HasPrefix(ex.ReplyText, "Error:") {
		t.Fatalf("expected error reply, got %+v", ex)
	}
	if c.State() != StateIdle {
		t.Fatalf("expected idle after error, got %s", c.State())
	}

	// session stays usable for the next turn
	g.err = nil
	g.reply = "recovered"
	ex, err = c.SubmitClip(context.Background(), []byte{2})
	if err != nil || ex == nil || ex.ErrorTurn {
		t.Fatalf("next exchange should succeed: ex=%+v err=%v", ex, err)
	}
}

func TestTextExchange_ManualReturnsToIdle(t *testing.T) {
	g := &fakeLLM{reply: "sure"}
	c := newTestController(&fakeTranscriber{}, g)
	ex, err := c.SubmitText(context.Background(), "  typed question  ")
	if err != nil {
		t.Fatalf("submit text: %v", err)
	}
	if ex.UserText != "typed question" {
		t.Fatalf("expected trimmed user text, got %q", ex.UserText)
	}
	if c.State() != StateIdle {
		t.Fatalf("typed exchange should land in idle, got %s", c.State())
	}
	if c.Session().Pending != nil {
		t.Fatalf("typed input must not stage an edit")
	}
}

func TestBusy_SecondSubmissionIgnored(t *testing.T) {
	g := &fakeLLM{reply: "slow", gate: make(chan struct{})}
	c := newTestController(&fakeTranscriber{text: "hi"}, g)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.SubmitClip(context.Background(), []byte{1})
	}()
	// wait until the exchange reaches the completion call
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && atomic.LoadInt32(&g.calls) == 0 {
		time.Sleep(time.Millisecond)
	}

	if _, err := c.SubmitClip(context.Background(), []byte{2}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	if _, err := c.SubmitText(context.Background(), "also ignored"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected busy for text too, got %v", err)
	}
	close(g.gate)
	<-done
}

func TestResendEdit_ReplacesLastExchange(t *testing.T) {
	tr := &fakeTranscriber{text: "explain fotosintesis"}
	g := &fakeLLM{reply: "first reply"}
	c := newTestController(tr, g)

	if _, err := c.SubmitClip(context.Background(), []byte{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	g.reply = "second reply"
	ex, err := c.ResendEdit(context.Background(), "explain photosynthesis")
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if ex.UserText != "explain photosynthesis" {
		t.Fatalf("corrected text not used: %q", ex.UserText)
	}
	sess := c.Session()
	if len(sess.Turns) != 2 {
		t.Fatalf("resend must replace, not append: %d turns", len(sess.Turns))
	}
	if sess.Turns[0].Content != "explain photosynthesis" || sess.Turns[1].Content != "second reply" {
		t.Fatalf("wrong turns after resend: %+v", sess.Turns)
	}
	if sess.Pending != nil {
		t.Fatalf("pending edit should be cleared after resend")
	}
}

func TestDiscardEdit(t *testing.T) {
	tr := &fakeTranscriber{text: "hello"}
	g := &fakeLLM{reply: "hi"}
	c := newTestController(tr, g)
	if _, err := c.SubmitClip(context.Background(), []byte{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := c.DiscardEdit(); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if c.State() != StateIdle {
		t.Fatalf("expected idle after discard, got %s", c.State())
	}
	if err := c.DiscardEdit(); !errors.Is(err, ErrNoPendingEdit) {
		t.Fatalf("expected no-pending error, got %v", err)
	}
}

func TestPersonalitySwitch_ClearsTurnsAndAbandons(t *testing.T) {
	tr := &fakeTranscriber{text: "hi"}
	g := &fakeLLM{reply: "hello"}
	c := newTestController(tr, g)
	if _, err := c.SubmitClip(context.Background(), []byte{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := c.SetPersonality("fitness-coach"); err != nil {
		t.Fatalf("set personality: %v", err)
	}
	sess := c.Session()
	if len(sess.Turns) != 0 {
		t.Fatalf("personality switch must clear turns, got %d", len(sess.Turns))
	}
	if c.State() != StateIdle {
		t.Fatalf("expected idle, got %s", c.State())
	}
}

func TestLanguageSwitch_FlushesSynthesisCache(t *testing.T) {
	tr := &fakeTranscriber{text: "hi"}
	g := &fakeLLM{reply: "hello there"}
	synth := &fakeSynth{}
	c := NewController(chat.NewSession(), Options{
		Completion: g, Transcriber: tr, Synthesizer: synth, SettleDelay: time.Hour,
	})
	if _, err := c.SubmitClip(context.Background(), []byte{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, _, err := c.SpeechForTurn(context.Background(), 1); err != nil {
		t.Fatalf("speech: %v", err)
	}
	if _, _, err := c.SpeechForTurn(context.Background(), 1); err != nil {
		t.Fatalf("speech (cached): %v", err)
	}
	if atomic.LoadInt32(&synth.calls) != 1 {
		t.Fatalf("expected at-most-once synthesis per key, got %d calls", synth.calls)
	}

	if err := c.SetLanguage("fr"); err != nil {
		t.Fatalf("set language: %v", err)
	}
	// language switch cleared turns? no - only cache; turn 1 still exists
	if _, _, err := c.SpeechForTurn(context.Background(), 1); err != nil {
		t.Fatalf("speech after switch: %v", err)
	}
	if atomic.LoadInt32(&synth.calls) != 2 {
		t.Fatalf("expected fresh synthesis after language switch, got %d calls", synth.calls)
	}
}

func TestSpeechForTurn_TruncatesLongReplies(t *testing.T) {
	longReply := strings.Repeat("a", 1200)
	tr := &fakeTranscriber{text: "talk a lot"}
	g := &fakeLLM{reply: longReply}
	c := newTestController(tr, g)
	if _, err := c.SubmitClip(context.Background(), []byte{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, truncated, err := c.SpeechForTurn(context.Background(), 1)
	if err != nil {
		t.Fatalf("speech: %v", err)
	}
	if !truncated {
		t.Fatalf("1200-char reply must report truncation")
	}
}

func TestSpeechForTurn_RejectsUserTurns(t *testing.T) {
	tr := &fakeTranscriber{text: "hi"}
	g := &fakeLLM{reply: "hello"}
	c := newTestController(tr, g)
	if _, err := c.SubmitClip(context.Background(), []byte{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, err := c.SpeechForTurn(context.Background(), 0); err == nil {
		t.Fatalf("expected error for user turn")
	}
	if _, _, err := c.SpeechForTurn(context.Background(), 9); err == nil {
		t.Fatalf("expected error for out-of-range turn")
	}
}

func TestArmCapture(t *testing.T) {
	tr := &fakeTranscriber{text: "hi"}
	g := &fakeLLM{reply: "hello"}
	c := newTestController(tr, g)

	c.ArmCapture()
	if c.State() != StateAwaitingCapture {
		t.Fatalf("expected awaiting capture, got %s", c.State())
	}

	// arming from the edit decision abandons the staged correction
	if _, err := c.SubmitClip(context.Background(), []byte{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if c.State() != StateAwaitingEdit {
		t.Fatalf("expected awaiting edit, got %s", c.State())
	}
	c.ArmCapture()
	if c.State() != StateAwaitingCapture {
		t.Fatalf("expected awaiting capture, got %s", c.State())
	}
	if c.Session().Pending != nil {
		t.Fatalf("re-arming must discard the staged edit")
	}
}

func TestModeToggles_MutuallyExclusive(t *testing.T) {
	c := newTestController(&fakeTranscriber{}, &fakeLLM{})

	c.EnableConversationFlow(true)
	if c.CaptureMode() != chat.CaptureSemiAuto {
		t.Fatalf("expected semi-auto, got %s", c.CaptureMode())
	}
	c.EnableAutoCapture(true)
	if c.CaptureMode() != chat.CaptureFullAuto {
		t.Fatalf("enabling full-auto must force semi-auto off, got %s", c.CaptureMode())
	}
	c.EnableConversationFlow(true)
	if c.CaptureMode() != chat.CaptureSemiAuto {
		t.Fatalf("enabling semi-auto must force full-auto off, got %s", c.CaptureMode())
	}
	c.EnableConversationFlow(false)
	if c.CaptureMode() != chat.CaptureManual {
		t.Fatalf("disabling the active mode returns to manual, got %s", c.CaptureMode())
	}
	// disabling an inactive mode changes nothing
	c.EnableAutoCapture(true)
	c.EnableConversationFlow(false)
	if c.CaptureMode() != chat.CaptureFullAuto {
		t.Fatalf("disabling inactive semi-auto must not touch full-auto")
	}
}

func TestEnableFlowAfterReply_ReArmsImmediately(t *testing.T) {
	tr := &fakeTranscriber{text: "hi"}
	g := &fakeLLM{reply: "hello"}
	c := newTestController(tr, g)

	// manual exchange finished, reply on screen, state back to idle
	if _, err := c.SubmitText(context.Background(), "hi there"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if c.State() != StateIdle {
		t.Fatalf("expected idle, got %s", c.State())
	}

	c.EnableConversationFlow(true)
	if c.State() != StateAwaitingCapture {
		t.Fatalf("enabling flow after a reply must arm capture, got %s", c.State())
	}
	if !c.ShouldPromptContinue() {
		t.Fatalf("continue prompt should show for the reply already on screen")
	}
}

func TestEnableFlowOnFreshSession_StaysIdle(t *testing.T) {
	c := newTestController(&fakeTranscriber{}, &fakeLLM{})
	c.EnableConversationFlow(true)
	if c.State() != StateIdle {
		t.Fatalf("no reply yet, expected idle, got %s", c.State())
	}
	c.EnableConversationFlow(false)

	c.EnableAutoCapture(true)
	if c.State() != StateIdle {
		t.Fatalf("no reply yet, expected idle, got %s", c.State())
	}
}

func TestSettleDelay_ReArmsCaptureInSemiAuto(t *testing.T) {
	tr := &fakeTranscriber{text: "hi"}
	g := &fakeLLM{reply: "hello"}
	c := newTestController(tr, g)
	c.EnableConversationFlow(true)

	if _, err := c.SubmitClip(context.Background(), []byte{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if c.State() != StateAwaitingEdit {
		t.Fatalf("expected edit window first, got %s", c.State())
	}
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) && c.State() != StateAwaitingCapture {
		time.Sleep(5 * time.Millisecond)
	}
	if c.State() != StateAwaitingCapture {
		t.Fatalf("settle delay should re-arm capture, got %s", c.State())
	}
	if !c.ShouldPromptContinue() {
		t.Fatalf("conversation flow should prompt the user to continue")
	}
}

func TestSettleDelay_ManualModeStaysInEditDecision(t *testing.T) {
	tr := &fakeTranscriber{text: "hi"}
	g := &fakeLLM{reply: "hello"}
	c := newTestController(tr, g)
	if _, err := c.SubmitClip(context.Background(), []byte{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if c.State() != StateAwaitingEdit {
		t.Fatalf("manual mode must wait for an explicit decision, got %s", c.State())
	}
}

func TestTurnCountTracksExchanges(t *testing.T) {
	tr := &fakeTranscriber{text: "hi"}
	g := &fakeLLM{reply: "hello"}
	c := newTestController(tr, g)
	c.EnableConversationFlow(true)
	for i := 0; i < 3; i++ {
		if _, err := c.SubmitClip(context.Background(), []byte{byte(i)}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if got := c.Session().TurnCount; got != 3 {
		t.Fatalf("expected 3 conversation turns, got %d", got)
	}
}
