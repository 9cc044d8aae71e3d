// Package workerws bridges the local audio device to the assistant over a
// websocket: microphone PCM and detection signals in, assistant PCM and
// playback commands out.
package workerws

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
	ws "nhooyr.io/websocket"

	"parley/assistant/internal/auth"
	"parley/assistant/internal/config"
)

type Message struct {
	Type      string         `json:"type"`
	TsMs      int64          `json:"ts_ms"`
	Seq       int64          `json:"seq,omitempty"`
	CommandID string         `json:"command_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Capture receives the device's detection signals and microphone audio.
type Capture interface {
	OnSpeechStart() bool
	OnSpeechEnd() bool
	OnKeywordDetected(result string) bool
	ForwardAudio(pcm []byte) error
}

type Journal interface {
	Append(typ string, payload map[string]any)
}

type Server struct {
	Secret   string
	SkewSecs int
	Capture  Capture
	Playback *Playback
	Reg      *Registry
	Journal  Journal
	Log      *zap.Logger
}

func NewServer(cfg config.Config, capture Capture, pb *Playback, reg *Registry, j Journal, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		Secret:   cfg.Device.TokenSecret,
		SkewSecs: cfg.Device.TokenSkewSecs,
		Capture:  capture,
		Playback: pb,
		Reg:      reg,
		Journal:  j,
		Log:      log.Named("device"),
	}
}

func (s *Server) HandleDeviceWS(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		deviceID = "default"
	}
	if s.Secret != "" {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			metricConnections.WithLabelValues("unauthorized").Inc()
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if _, _, err := auth.ValidateDeviceToken(s.Secret, token, deviceID, time.Now(), s.SkewSecs); err != nil {
			metricConnections.WithLabelValues("unauthorized").Inc()
			s.Log.Warn("device token rejected", zap.String("device_id", deviceID), zap.Error(err))
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}

	c, err := ws.Accept(w, r, nil)
	if err != nil {
		s.Log.Warn("ws accept", zap.Error(err))
		return
	}
	c.SetReadLimit(1 << 20)
	metricConnections.WithLabelValues("accepted").Inc()
	if s.Reg.Replace(deviceID, c) {
		metricConnections.WithLabelValues("replaced").Inc()
		s.record("device_replaced", map[string]any{"device_id": deviceID})
	}
	s.record("device_connected", map[string]any{"device_id": deviceID})
	s.Log.Info("device connected", zap.String("device_id", deviceID))

	ctx := r.Context()
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if typ == ws.MessageBinary {
			metricMicBytes.Add(float64(len(data)))
			if err := s.Capture.ForwardAudio(data); err != nil {
				s.Log.Debug("mic frame not forwarded", zap.Error(err))
			}
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.record("device_msg_invalid", map[string]any{"error": err.Error()})
			continue
		}
		s.dispatch(deviceID, msg)
	}
	_ = c.Close(ws.StatusNormalClosure, "done")
	if s.Reg.Remove(c) {
		s.Playback.SetPlaying(false)
	}
	s.record("device_disconnected", map[string]any{"device_id": deviceID})
	s.Log.Info("device disconnected", zap.String("device_id", deviceID))
}

func (s *Server) dispatch(deviceID string, msg Message) {
	metricMessages.WithLabelValues(knownType(msg.Type)).Inc()
	switch msg.Type {
	case "hello":
		payload := msg.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		payload["device_id"] = deviceID
		s.record("device_hello", payload)
	case "speech_start":
		s.Capture.OnSpeechStart()
	case "speech_end":
		s.Capture.OnSpeechEnd()
	case "keyword_detected":
		kw, _ := msg.Payload["keyword"].(string)
		s.Capture.OnKeywordDetected(kw)
	case "playback_started":
		s.Playback.SetPlaying(true)
	case "playback_stopped":
		s.Playback.SetPlaying(false)
	case "cmd_ack":
		s.record("cmd_ack", map[string]any{"command_id": msg.CommandID})
	default:
		s.Log.Warn("unknown device message", zap.String("type", msg.Type))
		s.record("device_msg_unknown", map[string]any{"type": msg.Type})
	}
}

func (s *Server) record(typ string, payload map[string]any) {
	if s.Journal != nil {
		s.Journal.Append(typ, payload)
	}
}

func knownType(t string) string {
	switch t {
	case "hello", "speech_start", "speech_end", "keyword_detected", "playback_started", "playback_stopped", "cmd_ack":
		return t
	}
	return "other"
}
