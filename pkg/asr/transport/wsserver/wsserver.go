// Package wsserver exposes a session.Session over a WebSocket, following the
// upgrade-and-pump pattern of the teacher's pkg/mqtt0.wsListener
// (websocket.Upgrader, CheckOrigin allow-all, one goroutine per connection)
// and the binary-audio-frame / control-frame split of
// pkg/doubaospeech.ASRStreamSession; here the only control frame is the
// plain text message "stop". Events are framed with
// github.com/vmihailenco/msgpack/v5, matching the msgpack struct tags used
// across pkg/recall and pkg/memory.
package wsserver

import (
	"log/slog"
	"math"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/giztoy-asr/pkg/asr/events"
	"github.com/haivivi/giztoy-asr/pkg/asr/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WireEvent is the msgpack-encoded frame shape sent to clients. Only the
// fields belonging to the Kind tag are populated: both texts for "display",
// Text for "confirmed", the five stats for "stats", FullText for "ended".
type WireEvent struct {
	Kind string `msgpack:"kind"`

	ConfirmedText   string `msgpack:"confirmedText,omitempty"`
	ProvisionalText string `msgpack:"provisionalText,omitempty"`

	Text string `msgpack:"text,omitempty"`

	EncodedWindowCount int     `msgpack:"encodedWindowCount,omitempty"`
	TotalAudioSeconds  float64 `msgpack:"totalAudioSeconds,omitempty"`
	TokensPerSecond    float64 `msgpack:"tokensPerSecond,omitempty"`
	RealTimeFactor     float64 `msgpack:"realTimeFactor,omitempty"`
	PeakMemoryGB       float64 `msgpack:"peakMemoryGb,omitempty"`

	FullText string `msgpack:"fullText,omitempty"`
}

func toWireEvent(e events.Event) WireEvent {
	switch v := e.(type) {
	case events.DisplayUpdate:
		return WireEvent{Kind: "display", ConfirmedText: v.ConfirmedText, ProvisionalText: v.ProvisionalText}
	case events.Confirmed:
		return WireEvent{Kind: "confirmed", Text: v.Text}
	case events.Stats:
		return WireEvent{
			Kind:               "stats",
			EncodedWindowCount: v.EncodedWindowCount,
			TotalAudioSeconds:  v.TotalAudioSeconds,
			TokensPerSecond:    v.TokensPerSecond,
			RealTimeFactor:     v.RealTimeFactor,
			PeakMemoryGB:       v.PeakMemoryGB,
		}
	case events.Ended:
		return WireEvent{Kind: "ended", FullText: v.FullText}
	default:
		return WireEvent{Kind: "unknown"}
	}
}

// Handler upgrades incoming HTTP requests to WebSocket connections, each
// backed by a fresh Session from factory.
type Handler struct {
	factory func() *session.Session
	log     *slog.Logger
}

// NewHandler builds a Handler that creates one Session per connection via
// factory.
func NewHandler(factory func() *session.Session) *Handler {
	return &Handler{factory: factory, log: slog.Default()}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("wsserver: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sess := h.factory()
	defer sess.Cancel()

	go h.pumpEvents(conn, sess)
	h.readAudio(conn, sess)
}

// readAudio reads binary frames as little-endian float32 PCM samples and
// feeds them to the session; a text frame with payload "stop" ends the
// stream gracefully.
func (h *Handler) readAudio(conn *websocket.Conn, sess *session.Session) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			sess.Cancel()
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			samples := decodeFloat32LE(data)
			sess.FeedAudio(samples)
		case websocket.TextMessage:
			if string(data) == "stop" {
				sess.Stop()
				return
			}
		}
	}
}

// pumpEvents drains the session's event stream and forwards each event to
// the client as a msgpack binary frame, until the stream ends or the
// connection breaks.
func (h *Handler) pumpEvents(conn *websocket.Conn, sess *session.Session) {
	stream := sess.Events()
	for {
		ev, err := stream.Next()
		if err != nil {
			return
		}

		wire := toWireEvent(ev)
		payload, err := msgpack.Marshal(wire)
		if err != nil {
			h.log.Error("wsserver: encode event", "error", err)
			continue
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
			return
		}

		if wire.Kind == "ended" {
			return
		}
	}
}

func decodeFloat32LE(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
