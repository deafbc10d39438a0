package capture

import (
	"sync"
	"time"
)

// Config holds the recorder knobs. SilenceThreshold is a normalized RMS
// level (0..1) below which a frame counts as silence; SilenceDuration is
// how long silence must persist, after speech was heard, before the clip
// is considered finished.
type Config struct {
	AutoStart        bool
	SilenceThreshold float64
	SilenceDuration  time.Duration
	SampleRate       int
}

// DefaultConfig matches the browser widget's defaults.
func DefaultConfig() Config {
	return Config{SilenceThreshold: 0.02, SilenceDuration: 2 * time.Second, SampleRate: 16000}
}

// Recorder segments a PCM16LE mono stream into clips using RMS voice
// activity detection. Per activation it emits exactly one clip, or none if
// the activation ended before any speech was heard. Silence is measured in
// audio time (sample counts), not wall-clock time.
type Recorder struct {
	cfg Config

	mu            sync.Mutex
	armed         bool
	buf           []byte
	speechSeen    bool
	silentSamples int

	clips chan []byte
}

func NewRecorder(cfg Config) *Recorder {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = 0.02
	}
	if cfg.SilenceDuration == 0 {
		cfg.SilenceDuration = 2 * time.Second
	}
	r := &Recorder{cfg: cfg, clips: make(chan []byte, 4)}
	if cfg.AutoStart {
		r.armed = true
	}
	return r
}

// Clips delivers one finished audio payload per activation.
func (r *Recorder) Clips() <-chan []byte { return r.clips }

// Arm starts a new activation, dropping any partial buffer.
func (r *Recorder) Arm() {
	r.mu.Lock()
	r.armed = true
	r.reset()
	r.mu.Unlock()
}

// Disarm ends the activation without emitting anything.
func (r *Recorder) Disarm() {
	r.mu.Lock()
	r.armed = false
	r.reset()
	r.mu.Unlock()
}

// Armed reports whether the recorder is currently listening.
func (r *Recorder) Armed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.armed
}

func (r *Recorder) reset() {
	r.buf = nil
	r.speechSeen = false
	r.silentSamples = 0
}

// Feed consumes a PCM16LE frame. When speech has been heard and silence
// then persists for SilenceDuration, the buffered clip is emitted and the
// recorder re-arms itself only if AutoStart is set.
func (r *Recorder) Feed(pcm []byte) {
	if len(pcm) < 2 {
		return
	}
	r.mu.Lock()
	if !r.armed {
		r.mu.Unlock()
		return
	}
	r.buf = append(r.buf, pcm...)

	if rmsLevel(pcm) >= r.cfg.SilenceThreshold {
		r.speechSeen = true
		r.silentSamples = 0
		r.mu.Unlock()
		return
	}
	if !r.speechSeen {
		r.mu.Unlock()
		return
	}
	r.silentSamples += len(pcm) / 2
	needed := int(float64(r.cfg.SampleRate) * r.cfg.SilenceDuration.Seconds())
	if r.silentSamples < needed {
		r.mu.Unlock()
		return
	}

	clip := r.buf
	r.reset()
	if !r.cfg.AutoStart {
		r.armed = false
	}
	r.mu.Unlock()

	select {
	case r.clips <- clip:
	default:
		// consumer is behind; drop rather than block the audio path
	}
}
