package capture

import (
	"encoding/binary"
	"testing"
	"time"
)

// pcmFrame builds 10ms of PCM16LE at 16kHz with the given amplitude.
func pcmFrame(amplitude int16) []byte {
	b := make([]byte, 160*2)
	for i := 0; i < 160; i++ {
		binary.LittleEndian.PutUint16(b[i*2:(i+1)*2], uint16(amplitude))
	}
	return b
}

func testConfig(autoStart bool) Config {
	return Config{
		AutoStart:        autoStart,
		SilenceThreshold: 0.02,
		SilenceDuration:  50 * time.Millisecond,
		SampleRate:       16000,
	}
}

func drainClip(t *testing.T, r *Recorder) []byte {
	t.Helper()
	select {
	case clip := <-r.Clips():
		return clip
	default:
		t.Fatalf("expected a clip")
		return nil
	}
}

func TestRecorder_EmitsOneClipAfterSilence(t *testing.T) {
	r := NewRecorder(testConfig(false))
	r.Arm()
	for i := 0; i < 5; i++ {
		r.Feed(pcmFrame(5000))
	}
	// 50ms of silence at 16kHz is 800 samples; feed 6 silent frames
	for i := 0; i < 6; i++ {
		r.Feed(pcmFrame(0))
	}
	clip := drainClip(t, r)
	if len(clip) == 0 {
		t.Fatalf("empty clip")
	}
	if r.Armed() {
		t.Fatalf("manual recorder must disarm after emitting")
	}
	// further audio is ignored until re-armed
	r.Feed(pcmFrame(5000))
	select {
	case <-r.Clips():
		t.Fatalf("unexpected clip while disarmed")
	default:
	}
}

func TestRecorder_NothingForPureSilence(t *testing.T) {
	r := NewRecorder(testConfig(false))
	r.Arm()
	for i := 0; i < 50; i++ {
		r.Feed(pcmFrame(0))
	}
	select {
	case <-r.Clips():
		t.Fatalf("silence must not produce a clip")
	default:
	}
}

func TestRecorder_AutoStartRearms(t *testing.T) {
	r := NewRecorder(testConfig(true))
	if !r.Armed() {
		t.Fatalf("auto-start recorder should arm on creation")
	}
	for round := 0; round < 2; round++ {
		for i := 0; i < 5; i++ {
			r.Feed(pcmFrame(5000))
		}
		for i := 0; i < 6; i++ {
			r.Feed(pcmFrame(0))
		}
		if clip := drainClip(t, r); len(clip) == 0 {
			t.Fatalf("round %d: empty clip", round)
		}
		if !r.Armed() {
			t.Fatalf("round %d: auto-start recorder must stay armed", round)
		}
	}
}

func TestFingerprint_StableAndDistinct(t *testing.T) {
	a := []byte{1, 2, 3}
	if Fingerprint(a) != Fingerprint([]byte{1, 2, 3}) {
		t.Fatalf("fingerprint not stable")
	}
	if Fingerprint(a) == Fingerprint([]byte{3, 2, 1}) {
		t.Fatalf("distinct clips must not collide")
	}
}

func TestRMSLevel(t *testing.T) {
	if l := rmsLevel(pcmFrame(0)); l != 0 {
		t.Fatalf("silence level = %v", l)
	}
	if l := rmsLevel(pcmFrame(16000)); l < 0.4 {
		t.Fatalf("loud frame level too low: %v", l)
	}
}
