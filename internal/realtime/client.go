// Package realtime is a websocket client for the realtime speech-to-speech
// API. It owns one live connection, re-dials it when it drops and exposes
// the session as a queue of outbound client events plus a channel of typed
// server events.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	defaultURL        = "wss://api.openai.com/v1/realtime"
	defaultModel      = "gpt-4o-realtime-preview"
	defaultAPIVersion = "2024-10-01-preview"
	defaultQueueSize  = 256
	readLimit         = 16 << 20
)

type Options struct {
	// URL overrides the OpenAI endpoint. Ignored when AzureEndpoint is set.
	URL             string
	APIKey          string
	AzureEndpoint   string
	AzureAPIVersion string

	Model         string
	Voice         string
	Instructions  string
	Temperature   float64
	TurnDetection *TurnDetection
	Tools         []Tool

	AutoReconnect bool
	QueueSize     int
	Logger        *zap.Logger
}

type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	opts   Options
	url    string
	header http.Header
	log    *zap.Logger

	// Outbound JSON frames; senders get ErrQueueFull on pressure
	sendQ  chan []byte
	events chan Event
	done   chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	connected atomic.Bool
	sessions  atomic.Int64

	// Backoff/circuit, owned by run
	fails   []time.Time
	circuit time.Time
}

func NewClient(parent context.Context, opts Options) (*Client, error) {
	u, hdr, err := opts.endpoint()
	if err != nil {
		return nil, err
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Client{
		ctx:    ctx,
		cancel: cancel,
		opts:   opts,
		url:    u,
		header: hdr,
		log:    log.Named("realtime"),
		sendQ:  make(chan []byte, opts.QueueSize),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}, nil
}

func (o Options) endpoint() (string, http.Header, error) {
	hdr := make(http.Header)
	if o.AzureEndpoint != "" {
		if o.APIKey == "" {
			return "", nil, ErrMissingAPIKey
		}
		u, err := url.Parse(o.AzureEndpoint)
		if err != nil {
			return "", nil, fmt.Errorf("realtime: azure endpoint: %w", err)
		}
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		case "http":
			u.Scheme = "ws"
		}
		if !strings.HasSuffix(u.Path, "/openai/realtime") {
			u.Path = strings.TrimRight(u.Path, "/") + "/openai/realtime"
		}
		q := url.Values{}
		q.Set("api-version", orDefault(o.AzureAPIVersion, defaultAPIVersion))
		q.Set("deployment", orDefault(o.Model, defaultModel))
		u.RawQuery = q.Encode()
		hdr.Set("api-key", o.APIKey)
		return u.String(), hdr, nil
	}
	if o.URL == "" && o.APIKey == "" {
		return "", nil, ErrMissingAPIKey
	}
	q := url.Values{}
	q.Set("model", orDefault(o.Model, defaultModel))
	if o.APIKey != "" {
		hdr.Set("Authorization", "Bearer "+o.APIKey)
	}
	hdr.Set("OpenAI-Beta", "realtime=v1")
	return orDefault(o.URL, defaultURL) + "?" + q.Encode(), hdr, nil
}

func (c *Client) Start() {
	c.startOnce.Do(func() {
		c.started.Store(true)
		go c.run()
	})
}

// Close stops the connection and waits for the event channel to close.
func (c *Client) Close() {
	c.cancel()
	if c.started.Load() {
		<-c.done
	}
}

// Events delivers server events in arrival order. It is closed when the
// client stops.
func (c *Client) Events() <-chan Event { return c.events }

func (c *Client) Connected() bool { return c.connected.Load() }

func (c *Client) QueueLen() int { return len(c.sendQ) }

func (c *Client) SendAudio(pcm []byte) error {
	return c.enqueue(clientEvent{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
}

// SendText adds a user message to the conversation and asks for a reply.
func (c *Client) SendText(text string) error {
	err := c.enqueue(clientEvent{
		Type: "conversation.item.create",
		Item: &Item{
			Type:    "message",
			Role:    "user",
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	})
	if err != nil {
		return err
	}
	return c.GenerateResponse()
}

func (c *Client) GenerateResponse() error {
	return c.enqueue(clientEvent{Type: "response.create"})
}

// GenerateResponseFromFunctionCall submits a tool result and asks the model
// to continue with it.
func (c *Client) GenerateResponseFromFunctionCall(callID, output string) error {
	err := c.enqueue(clientEvent{
		Type: "conversation.item.create",
		Item: &Item{Type: "function_call_output", CallID: callID, Output: output},
	})
	if err != nil {
		return err
	}
	return c.GenerateResponse()
}

func (c *Client) CancelResponse() error {
	return c.enqueue(clientEvent{Type: "response.cancel"})
}

func (c *Client) ClearInputAudioBuffer() error {
	return c.enqueue(clientEvent{Type: "input_audio_buffer.clear"})
}

func (c *Client) enqueue(ev clientEvent) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	ev.EventID = newEventID()
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("realtime: encode %s: %w", ev.Type, err)
	}
	select {
	case c.sendQ <- b:
		metricSent.WithLabelValues(ev.Type).Inc()
		return nil
	default:
		metricDrops.Inc()
		return ErrQueueFull
	}
}

func (c *Client) run() {
	defer close(c.done)
	defer close(c.events)
	for {
		if wait := time.Until(c.circuit); wait > 0 {
			c.log.Warn("circuit open, delaying reconnect", zap.Duration("wait", wait))
			if !c.sleep(wait) {
				return
			}
		}
		err := c.connectAndPump()
		c.connected.Store(false)
		if c.ctx.Err() != nil {
			return
		}
		if err != nil {
			c.addFailure()
			c.log.Warn("session interrupted", zap.Error(err), zap.Int("recent_failures", len(c.fails)))
			// surface as a transport error; the conversation carries on
			c.emit(Event{Type: EventError, Error: &APIError{Type: "transport_error", Message: err.Error()}})
		}
		if !c.opts.AutoReconnect {
			return
		}
		if !c.sleep(c.nextBackoff()) {
			return
		}
	}
}

func (c *Client) connectAndPump() error {
	dctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()
	start := time.Now()
	c.log.Info("connecting", zap.String("url", c.url))
	ws, _, err := websocket.Dial(dctx, c.url, &websocket.DialOptions{HTTPHeader: c.header})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	metricConnectMS.Observe(float64(time.Since(start).Milliseconds()))
	metricReconnects.Inc()
	ws.SetReadLimit(readLimit)
	defer ws.Close(websocket.StatusNormalClosure, "bye")

	// session.update goes out before anything queued
	if err := c.write(c.ctx, ws, c.configureMessage()); err != nil {
		return fmt.Errorf("session.update: %w", err)
	}
	c.connected.Store(true)
	c.resetFailures()
	c.log.Info("connected", zap.Int64("connect_ms", time.Since(start).Milliseconds()))
	if c.sessions.Add(1) > 1 {
		// audio and commands queued for the dead session mean nothing to the new one
		if n := c.discardQueued(); n > 0 {
			c.log.Info("discarded stale outbound events", zap.Int("count", n))
		}
		c.emit(Event{Type: EventReconnected})
	}

	pctx, pcancel := context.WithCancel(c.ctx)
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		c.writeLoop(pctx, ws)
	}()
	defer func() {
		pcancel()
		<-writeDone
	}()

	for {
		_, data, err := ws.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if len(data) == 0 {
			continue
		}
		ev, err := ParseEvent(data)
		if err != nil {
			metricParseErrors.Inc()
			c.log.Warn("undecodable server frame", zap.Error(err), zap.Int("bytes", len(data)))
			continue
		}
		metricReceived.Inc()
		c.emit(ev)
	}
}

func (c *Client) writeLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-c.sendQ:
			gaugeQueueDepth.Set(float64(len(c.sendQ)))
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := ws.Write(wctx, websocket.MessageText, b)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					c.log.Warn("write error", zap.Error(err))
					// unblocks the reader so the session is re-dialed
					_ = ws.Close(websocket.StatusInternalError, "write failed")
				}
				return
			}
		}
	}
}

func (c *Client) discardQueued() int {
	n := 0
	for {
		select {
		case <-c.sendQ:
			n++
		default:
			metricStale.Add(float64(n))
			gaugeQueueDepth.Set(float64(len(c.sendQ)))
			return n
		}
	}
}

func (c *Client) configureMessage() clientEvent {
	return clientEvent{Type: "session.update", EventID: newEventID(), Session: c.opts.sessionConfig()}
}

func (c *Client) write(ctx context.Context, ws *websocket.Conn, ev clientEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return ws.Write(wctx, websocket.MessageText, b)
}

// emit blocks until the consumer takes the event or the client stops.
// Audio fragments must not be dropped here.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Client) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Client) addFailure() {
	now := time.Now()
	c.fails = append(c.fails, now)
	// prune older than 60s
	cutoff := now.Add(-60 * time.Second)
	j := 0
	for _, t := range c.fails {
		if t.After(cutoff) {
			c.fails[j] = t
			j++
		}
	}
	c.fails = c.fails[:j]
	if len(c.fails) >= 3 {
		c.circuit = now.Add(30 * time.Second)
		c.fails = nil
		metricCircuitOpens.Inc()
	}
}

func (c *Client) resetFailures() { c.fails = nil }

func (c *Client) nextBackoff() time.Duration {
	n := len(c.fails)
	if n <= 0 {
		return time.Second
	}
	if n > 5 {
		n = 5
	}
	base := time.Duration(1<<uint(n-1)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	return base
}

func newEventID() string {
	return "evt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
