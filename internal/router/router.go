// Package router demultiplexes server events from the realtime session:
// audio goes to playback, tool call notices go through the call registry to
// the dispatcher, and everything else is observed.
package router

import (
	"context"
	"encoding/base64"
	"sync"

	"go.uber.org/zap"

	"parley/assistant/internal/calls"
	"parley/assistant/internal/realtime"
	"parley/assistant/internal/tools"
)

type Playback interface {
	Enqueue(pcm []byte)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, call tools.Call)
}

type Journal interface {
	Append(typ string, payload map[string]any)
}

// Cursor is the last (item, content part) an audio fragment arrived for.
type Cursor struct {
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
}

type Config struct {
	Playback   Playback
	Calls      *calls.Registry
	Dispatcher Dispatcher
	Journal    Journal
	Logger     *zap.Logger
}

type Router struct {
	playback Playback
	calls    *calls.Registry
	dispatch Dispatcher
	journal  Journal
	log      *zap.Logger

	mu     sync.Mutex
	cursor Cursor
}

func New(cfg Config) *Router {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		playback: cfg.Playback,
		calls:    cfg.Calls,
		dispatch: cfg.Dispatcher,
		journal:  cfg.Journal,
		log:      log.Named("router"),
	}
}

func (r *Router) Cursor() Cursor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Handle routes one server event. It must be called from a single
// goroutine.
func (r *Router) Handle(ctx context.Context, ev realtime.Event) {
	if !realtime.Known(ev.Type) {
		r.OnUnhandled(ev)
		return
	}
	metricEvents.WithLabelValues(ev.Type).Inc()

	switch ev.Type {
	case realtime.EventResponseAudioDelta:
		r.onAudioDelta(ev)
	case realtime.EventResponseOutputItemAdded:
		r.onOutputItemAdded(ev)
	case realtime.EventResponseFunctionCallArgumentsDone:
		r.onArgumentsDone(ctx, ev)
	case realtime.EventError:
		r.onError(ev)
	default:
		r.observe(ev)
	}
}

func (r *Router) onAudioDelta(ev realtime.Event) {
	if ev.Delta == "" {
		r.log.Warn("audio delta without payload", zap.String("item_id", ev.ItemID))
		return
	}
	pcm, err := base64.StdEncoding.DecodeString(ev.Delta)
	if err != nil {
		metricDecodeErrors.Inc()
		r.log.Warn("dropping undecodable audio fragment",
			zap.String("item_id", ev.ItemID), zap.Int("content_index", ev.ContentIndex), zap.Error(err))
		return
	}
	r.mu.Lock()
	r.cursor = Cursor{ItemID: ev.ItemID, ContentIndex: ev.ContentIndex}
	r.mu.Unlock()
	metricAudioBytes.Add(float64(len(pcm)))
	r.playback.Enqueue(pcm)
}

func (r *Router) onOutputItemAdded(ev realtime.Event) {
	if ev.Item == nil || ev.Item.Type != "function_call" {
		r.observe(ev)
		return
	}
	if err := r.calls.Register(ev.Item.CallID, ev.Item.Name); err != nil {
		r.log.Warn("function call not registered",
			zap.String("call_id", ev.Item.CallID), zap.String("function", ev.Item.Name), zap.Error(err))
		return
	}
	r.log.Info("function call announced", zap.String("call_id", ev.Item.CallID), zap.String("function", ev.Item.Name))
}

func (r *Router) onArgumentsDone(ctx context.Context, ev realtime.Event) {
	name, err := r.calls.Resolve(ev.CallID)
	if err != nil {
		r.log.Warn("arguments for unknown function call", zap.String("call_id", ev.CallID), zap.Error(err))
		return
	}
	r.record("tool_call", map[string]any{"call_id": ev.CallID, "function": name, "arguments": ev.Arguments})
	r.dispatch.Dispatch(ctx, tools.Call{ID: ev.CallID, Name: name, Arguments: ev.Arguments})
}

func (r *Router) onError(ev realtime.Event) {
	fields := []zap.Field{zap.String("event_id", ev.EventID)}
	payload := map[string]any{}
	if ev.Error != nil {
		fields = append(fields, zap.String("type", ev.Error.Type), zap.String("code", ev.Error.Code), zap.String("message", ev.Error.Message))
		payload["type"] = ev.Error.Type
		payload["code"] = ev.Error.Code
		payload["message"] = ev.Error.Message
	}
	r.log.Error("session error", fields...)
	r.record("session_error", payload)
}

func (r *Router) observe(ev realtime.Event) {
	switch ev.Type {
	case realtime.EventInputAudioTranscriptionCompleted:
		r.log.Info("user transcript", zap.String("text", ev.Transcript))
		r.record("user_transcript", map[string]any{"item_id": ev.ItemID, "text": ev.Transcript})
	case realtime.EventResponseAudioTranscriptDone:
		r.log.Info("assistant transcript", zap.String("text", ev.Transcript))
		r.record("assistant_transcript", map[string]any{"item_id": ev.ItemID, "text": ev.Transcript})
	case realtime.EventResponseOutputItemDone:
		if t := ev.Item.AudioTranscript(); t != "" {
			r.log.Info("output item done", zap.String("transcript", t))
		}
	case realtime.EventResponseDone:
		if ev.Response != nil {
			r.log.Info("response done", zap.String("response_id", ev.Response.ID), zap.String("status", ev.Response.Status))
			r.record("response_done", map[string]any{"response_id": ev.Response.ID, "status": ev.Response.Status})
		}
	case realtime.EventRateLimitsUpdated:
		for _, rl := range ev.RateLimits {
			r.log.Debug("rate limit", zap.String("name", rl.Name), zap.Int("remaining", rl.Remaining), zap.Int("limit", rl.Limit))
		}
	case realtime.EventSessionCreated, realtime.EventSessionUpdated, realtime.EventReconnected:
		r.log.Info("session notice", zap.String("type", ev.Type))
		r.record(ev.Type, nil)
	case realtime.EventInputAudioTranscriptionFailed:
		r.log.Warn("user transcription failed", zap.String("item_id", ev.ItemID))
	default:
		r.log.Debug("event", zap.String("type", ev.Type), zap.String("item_id", ev.ItemID))
	}
}

// OnUnhandled is the fallback for event kinds the router does not know.
// They are never dropped silently.
func (r *Router) OnUnhandled(ev realtime.Event) {
	metricUnhandled.Inc()
	r.log.Warn("unhandled event", zap.String("type", ev.Type), zap.ByteString("raw", truncate(ev.Raw, 256)))
	r.record("unhandled_event", map[string]any{"type": ev.Type})
}

func (r *Router) record(typ string, payload map[string]any) {
	if r.journal != nil {
		r.journal.Append(typ, payload)
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
