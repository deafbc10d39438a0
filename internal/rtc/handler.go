// Package rtc is the fully-automatic voice transport: a browser streams
// mic audio over WebRTC, the voice detector segments it into clips, each
// clip runs through the turn controller, and the reply audio is paced
// back on the outgoing track.
package rtc

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"

	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/agent"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/capture"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/chat"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/tts"
)

// SessionDescription is a small DTO so transport handlers never expose
// webrtc types.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Handler builds one turn controller per peer connection. The synthesizer
// must yield 48kHz mono linear16 so its output can feed the Opus pacer
// directly.
type Handler struct {
	completion     agent.Completion
	transcriber    agent.Transcriber
	synthesizer    agent.Synthesizer
	iceServersJSON string
	captureCfg     capture.Config
	settleDelay    time.Duration
}

func NewHandler(completion agent.Completion, transcriber agent.Transcriber, synthesizer agent.Synthesizer) *Handler {
	return &Handler{
		completion:  completion,
		transcriber: transcriber,
		synthesizer: synthesizer,
		captureCfg:  capture.DefaultConfig(),
	}
}

// WithICEServers sets the ICE server list as a JSON array; invalid or
// empty input falls back to a public STUN server.
func (h *Handler) WithICEServers(iceJSON string) *Handler {
	h.iceServersJSON = iceJSON
	return h
}

// WithCapture overrides the voice-detection knobs for incoming audio.
func (h *Handler) WithCapture(cfg capture.Config) *Handler {
	h.captureCfg = cfg
	return h
}

// WithSettleDelay sets the controller's re-arm delay.
func (h *Handler) WithSettleDelay(d time.Duration) *Handler {
	h.settleDelay = d
	return h
}

// HandleOffer accepts an SDP offer and returns an SDP answer with ICE
// gathering complete (non-trickle path).
func (h *Handler) HandleOffer(ctx context.Context, offer SessionDescription) (SessionDescription, error) {
	if offer.Type != "offer" || offer.SDP == "" {
		return SessionDescription{}, errors.New("invalid offer")
	}

	pc, outTrack, cleanup, err := h.createPeer()
	if err != nil {
		return SessionDescription{}, err
	}

	callID := generateCallID()
	h.attachMediaHandlers(callID, pc, outTrack)

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := pc.SetRemoteDescription(remoteOffer); err != nil {
		cleanup()
		return SessionDescription{}, err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		cleanup()
		return SessionDescription{}, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		cleanup()
		return SessionDescription{}, err
	}
	<-gatherComplete
	local := pc.LocalDescription()
	if local == nil {
		cleanup()
		return SessionDescription{}, errors.New("no local description")
	}
	return SessionDescription{Type: "answer", SDP: local.SDP}, nil
}

// createPeer prepares a PeerConnection with default codecs, interceptors
// and the outgoing reply track.
func (h *Handler) createPeer() (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, func(), error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, nil, nil, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return nil, nil, nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: parseICEServers(h.iceServersJSON)})
	if err != nil {
		return nil, nil, nil, err
	}
	outTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1},
		"assistant-audio", "assistant",
	)
	if err != nil {
		_ = pc.Close()
		return nil, nil, nil, err
	}
	if _, err := pc.AddTrack(outTrack); err != nil {
		_ = pc.Close()
		return nil, nil, nil, err
	}
	return pc, outTrack, func() { _ = pc.Close() }, nil
}

// attachMediaHandlers wires the per-connection controller, voice detector
// and reply playback onto the peer connection.
func (h *Handler) attachMediaHandlers(callID string, pc *webrtc.PeerConnection, outTrack *webrtc.TrackLocalStaticSample) {
	ctrl := agent.NewController(chat.NewSession(), agent.Options{
		Completion:  h.completion,
		Transcriber: h.transcriber,
		Synthesizer: h.synthesizer,
		SettleDelay: h.settleDelay,
	})
	ctrl.EnableAutoCapture(true)

	var pacedPtr atomic.Pointer[OpusPacedWriter]

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("[%s] peer connection state: %s", callID, state)
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			logTranscript(callID, ctrl.Session())
			_ = pc.Close()
		}
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Printf("[%s] ICE state: %s", callID, state)
	})

	// client-initiated interruption: "stop" cuts playback, "cancel" also
	// flushes whatever was queued at the pacer
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != "control" {
			return
		}
		log.Printf("[%s] control channel opened", callID)
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			cmd := strings.TrimSpace(strings.ToLower(string(msg.Data)))
			switch cmd {
			case "stop", "stop-speaking", "cancel":
				if p := pacedPtr.Load(); p != nil {
					p.Reset()
				}
			case "clear":
				ctrl.ClearHistory()
			}
		})
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		log.Printf("[%s] remote audio track: codec=%s", callID, remote.Codec().MimeType)

		paced, err := NewOpusPacedWriter(outTrack)
		if err != nil {
			log.Printf("[%s] opus encoder error: %v", callID, err)
			return
		}
		pacedPtr.Store(paced)

		cfg := h.captureCfg
		cfg.AutoStart = true
		rec := capture.NewRecorder(cfg)
		rec.Arm()

		ctxConn, cancelConn := context.WithCancel(context.Background())
		pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
			switch state {
			case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
				cancelConn()
				paced.FlushTail()
				time.AfterFunc(400*time.Millisecond, paced.Close)
			}
		})

		go h.runExchanges(ctxConn, callID, ctrl, rec, paced)
		go h.readMic(ctxConn, callID, remote, rec)
	})
}

// runExchanges consumes detected clips, runs each through the controller
// and streams the spoken reply to the pacer.
func (h *Handler) runExchanges(ctx context.Context, callID string, ctrl *agent.Controller, rec *capture.Recorder, paced *OpusPacedWriter) {
	for {
		select {
		case <-ctx.Done():
			return
		case clip, ok := <-rec.Clips():
			if !ok {
				return
			}
			ex, err := ctrl.SubmitClip(ctx, clip)
			if err != nil {
				log.Printf("[%s] exchange error: %v", callID, err)
				continue
			}
			if ex == nil {
				// duplicate clip, dropped
				continue
			}
			log.Printf("[%s] user: %s", callID, ex.UserText)
			log.Printf("[%s] assistant: %s", callID, ex.ReplyText)
			if ex.ErrorTurn {
				continue
			}

			spoken, _, _ := tts.Prepare(ex.ReplyText)
			lang := ctrl.Session().Language
			audio, err := h.synthesizer.Synthesize(ctx, spoken, lang.SynthesisTag)
			if err != nil {
				log.Printf("[%s] synthesis error: %v", callID, err)
				continue
			}
			paced.Reset()
			paced.WritePCM(audio)
		}
	}
}

// readMic decodes incoming Opus RTP to 16kHz mono PCM and feeds the voice
// detector.
func (h *Handler) readMic(ctx context.Context, callID string, remote *webrtc.TrackRemote, rec *capture.Recorder) {
	dec, err := opus.NewDecoder(16000, 1)
	if err != nil {
		log.Printf("[%s] opus decoder error: %v", callID, err)
		return
	}
	samples := make([]int16, 1920)
	pcm := make([]byte, 0, len(samples)*2)
	for ctx.Err() == nil {
		pkt, _, readErr := remote.ReadRTP()
		if readErr != nil {
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, decErr := dec.Decode(pkt.Payload, samples)
		if decErr != nil {
			log.Printf("[%s] opus decode error: %v", callID, decErr)
			continue
		}
		pcm = pcm[:n*2]
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint16(pcm[i*2:(i+1)*2], uint16(samples[i]))
		}
		rec.Feed(pcm)
	}
}

func logTranscript(callID string, sess chat.Session) {
	log.Printf("[%s] transcript (%d turns):", callID, len(sess.Turns))
	for i, t := range sess.Turns {
		log.Printf("[%s] %02d %s: %s", callID, i+1, strings.ToUpper(string(t.Role)), t.Content)
	}
}

func parseICEServers(iceJSON string) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if err := json.Unmarshal([]byte(iceJSON), &servers); err == nil && len(servers) > 0 {
		return servers
	}
	return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
}

func generateCallID() string { return time.Now().Format("0102150405.000") }
