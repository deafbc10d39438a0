package rtc

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
)

// signalMessage is the WebSocket signaling format. Types: "offer",
// "answer", "candidate", "ice-complete", "bye", "error".
type signalMessage struct {
	Type          string  `json:"type"`
	SDP           string  `json:"sdp,omitempty"`
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
	Error         string  `json:"error,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// any origin; this service sits behind its own frontend
		return true
	},
}

type jsonWriter interface {
	WriteJSON(v interface{}) error
}

// safeConn serializes WriteJSON calls; the ICE candidate callback writes
// from its own goroutine while the handler writes the answer, and the
// websocket connection permits only one writer at a time.
type safeConn struct {
	mu   sync.Mutex
	conn jsonWriter
}

func (s *safeConn) WriteJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// ServeWebSocket upgrades to WebSocket and performs offer/answer plus
// trickle ICE signaling, then keeps the connection open for the life of
// the peer connection.
func (h *Handler) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	offerSDP, ok := readOffer(conn)
	if !ok {
		return
	}

	out := &safeConn{conn: conn}

	pc, outTrack, cleanup, err := h.createPeer()
	if err != nil {
		writeWSError(out, err)
		return
	}
	defer cleanup()

	callID := generateCallID()

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			_ = out.WriteJSON(signalMessage{Type: "ice-complete"})
			return
		}
		init := c.ToJSON()
		_ = out.WriteJSON(signalMessage{
			Type:          "candidate",
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})

	// remote trickle candidates from the client
	go func() {
		for {
			_, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}
			var m signalMessage
			if json.Unmarshal(data, &m) != nil {
				continue
			}
			switch strings.ToLower(m.Type) {
			case "candidate":
				if m.Candidate == "" {
					continue
				}
				_ = pc.AddICECandidate(webrtc.ICECandidateInit{
					Candidate: m.Candidate, SDPMid: m.SDPMid, SDPMLineIndex: m.SDPMLineIndex,
				})
			case "bye":
				_ = pc.Close()
				return
			}
		}
	}()

	h.attachMediaHandlers(callID, pc, outTrack)

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := pc.SetRemoteDescription(remoteOffer); err != nil {
		writeWSError(out, err)
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		writeWSError(out, err)
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		writeWSError(out, err)
		return
	}
	local := pc.LocalDescription()
	if local == nil {
		writeWSError(out, errors.New("no local description"))
		return
	}
	if err := out.WriteJSON(signalMessage{Type: "answer", SDP: local.SDP}); err != nil {
		log.Printf("[%s] ws write answer error: %v", callID, err)
		return
	}

	for {
		time.Sleep(2 * time.Second)
		switch pc.ConnectionState() {
		case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
			return
		}
	}
}

// readOffer consumes messages until an offer arrives; "bye" or a read
// error gives up.
func readOffer(conn *websocket.Conn) (string, bool) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("ws read error before offer: %v", err)
			return "", false
		}
		if mt != websocket.TextMessage {
			continue
		}
		var m signalMessage
		if json.Unmarshal(data, &m) != nil {
			continue
		}
		switch strings.ToLower(m.Type) {
		case "offer":
			if m.SDP != "" {
				return m.SDP, true
			}
		case "bye":
			return "", false
		}
	}
}

func writeWSError(w jsonWriter, err error) {
	_ = w.WriteJSON(signalMessage{Type: "error", Error: err.Error()})
}
