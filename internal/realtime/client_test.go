package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

type fakeServer struct {
	srv    *httptest.Server
	recv   chan map[string]any
	conns  atomic.Int32
	script func(ctx context.Context, n int32, ws *websocket.Conn)
}

func newFakeServer(t *testing.T, script func(ctx context.Context, n int32, ws *websocket.Conn)) *fakeServer {
	t.Helper()
	fs := &fakeServer{recv: make(chan map[string]any, 64), script: script}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close(websocket.StatusNormalClosure, "")
		n := fs.conns.Add(1)
		ctx := r.Context()
		if fs.script != nil {
			go fs.script(ctx, n, ws)
		}
		for {
			_, data, err := ws.Read(ctx)
			if err != nil {
				return
			}
			var m map[string]any
			if json.Unmarshal(data, &m) == nil {
				fs.recv <- m
			}
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) wsURL() string { return "ws" + strings.TrimPrefix(fs.srv.URL, "http") }

func (fs *fakeServer) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case m := <-fs.recv:
		return m
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for client event")
		return nil
	}
}

func waitEvent(t *testing.T, c *Client, typ string) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				t.Fatalf("events closed before %s", typ)
			}
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestSessionUpdateThenQueuedEvents(t *testing.T) {
	fs := newFakeServer(t, nil)
	c, err := NewClient(context.Background(), Options{
		URL:   fs.wsURL(),
		Voice: "ballad",
		Tools: []Tool{{Type: "function", Name: "fetch_weather"}},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()

	// queued before the connection exists
	if err := c.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("send audio: %v", err)
	}
	c.Start()

	first := fs.next(t)
	if first["type"] != "session.update" {
		t.Fatalf("expected session.update first, got %v", first["type"])
	}
	session := first["session"].(map[string]any)
	if td, ok := session["turn_detection"]; !ok || td != nil {
		t.Fatalf("local turn detection should be sent as null, got %v", td)
	}
	if session["tool_choice"] != "auto" {
		t.Fatalf("expected tool_choice auto, got %v", session["tool_choice"])
	}

	audio := fs.next(t)
	if audio["type"] != "input_audio_buffer.append" || audio["audio"] != "AQIDBA==" {
		t.Fatalf("unexpected audio event: %v", audio)
	}
	if id, _ := audio["event_id"].(string); !strings.HasPrefix(id, "evt_") {
		t.Fatalf("missing event id: %v", audio["event_id"])
	}

	if err := c.GenerateResponseFromFunctionCall("call-1", `{"weather":"Sunny"}`); err != nil {
		t.Fatalf("function output: %v", err)
	}
	item := fs.next(t)
	if item["type"] != "conversation.item.create" {
		t.Fatalf("expected item create, got %v", item["type"])
	}
	it := item["item"].(map[string]any)
	if it["type"] != "function_call_output" || it["call_id"] != "call-1" {
		t.Fatalf("unexpected item: %v", it)
	}
	if next := fs.next(t); next["type"] != "response.create" {
		t.Fatalf("expected response.create, got %v", next["type"])
	}
}

func TestServerVADSessionConfig(t *testing.T) {
	fs := newFakeServer(t, nil)
	c, err := NewClient(context.Background(), Options{URL: fs.wsURL(), TurnDetection: ServerVAD()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()
	c.Start()

	session := fs.next(t)["session"].(map[string]any)
	td := session["turn_detection"].(map[string]any)
	if td["type"] != "server_vad" || td["threshold"] != 0.5 {
		t.Fatalf("unexpected turn detection: %v", td)
	}
	if td["prefix_padding_ms"] != float64(300) || td["silence_duration_ms"] != float64(200) {
		t.Fatalf("unexpected vad timings: %v", td)
	}
}

func TestServerEventsDelivered(t *testing.T) {
	fs := newFakeServer(t, func(ctx context.Context, n int32, ws *websocket.Conn) {
		_ = ws.Write(ctx, websocket.MessageText, []byte(`not json`))
		_ = ws.Write(ctx, websocket.MessageText, []byte(`{"type":"response.audio.delta","item_id":"item_1","content_index":0,"delta":"AAE="}`))
		_ = ws.Write(ctx, websocket.MessageText, []byte(`{"type":"error","error":{"type":"invalid_request_error","code":"bad","message":"nope"}}`))
	})
	c, err := NewClient(context.Background(), Options{URL: fs.wsURL()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()
	c.Start()

	ev := waitEvent(t, c, EventResponseAudioDelta)
	if ev.ItemID != "item_1" || ev.Delta != "AAE=" {
		t.Fatalf("unexpected audio event: %+v", ev)
	}
	if len(ev.Raw) == 0 {
		t.Fatal("raw frame not kept")
	}
	errEv := waitEvent(t, c, EventError)
	if errEv.Error == nil || errEv.Error.Code != "bad" {
		t.Fatalf("unexpected error payload: %+v", errEv.Error)
	}
	if !c.Connected() {
		t.Fatal("expected connected")
	}
}

func TestReconnectEmitsEvent(t *testing.T) {
	fs := newFakeServer(t, func(ctx context.Context, n int32, ws *websocket.Conn) {
		if n == 1 {
			time.Sleep(50 * time.Millisecond)
			_ = ws.Close(websocket.StatusGoingAway, "restart")
		}
	})
	c, err := NewClient(context.Background(), Options{URL: fs.wsURL(), AutoReconnect: true})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()
	c.Start()

	waitEvent(t, c, EventReconnected)
	if fs.conns.Load() < 2 {
		t.Fatalf("expected a second connection, got %d", fs.conns.Load())
	}
}

func TestReconnectDiscardsStaleQueue(t *testing.T) {
	fs := newFakeServer(t, nil)
	c, err := NewClient(context.Background(), Options{URL: fs.wsURL()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()
	// queued while the previous session was down
	c.sessions.Store(1)
	_ = c.SendAudio([]byte{1, 2})
	_ = c.CancelResponse()
	c.Start()

	waitEvent(t, c, EventReconnected)
	if c.QueueLen() != 0 {
		t.Fatalf("stale events still queued: %d", c.QueueLen())
	}
	if err := c.GenerateResponse(); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if typ := fs.next(t)["type"]; typ != "session.update" {
		t.Fatalf("expected session.update first, got %v", typ)
	}
	if typ := fs.next(t)["type"]; typ != "response.create" {
		t.Fatalf("stale event replayed: got %v", typ)
	}
}

func TestSendAfterClose(t *testing.T) {
	c, err := NewClient(context.Background(), Options{URL: "ws://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	c.Close()
	if err := c.CancelResponse(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestQueueFull(t *testing.T) {
	c, err := NewClient(context.Background(), Options{URL: "ws://127.0.0.1:1", QueueSize: 1})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()
	if err := c.ClearInputAudioBuffer(); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := c.ClearInputAudioBuffer(); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if c.QueueLen() != 1 {
		t.Fatalf("expected one queued message, got %d", c.QueueLen())
	}
}

func TestEndpoint(t *testing.T) {
	if _, _, err := (Options{}).endpoint(); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}

	u, hdr, err := Options{APIKey: "sk"}.endpoint()
	if err != nil {
		t.Fatalf("openai endpoint: %v", err)
	}
	if u != "wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview" {
		t.Fatalf("unexpected url %s", u)
	}
	if hdr.Get("Authorization") != "Bearer sk" || hdr.Get("OpenAI-Beta") != "realtime=v1" {
		t.Fatalf("unexpected headers %v", hdr)
	}

	u, hdr, err = Options{AzureEndpoint: "https://res.openai.azure.com", APIKey: "az", Model: "rt"}.endpoint()
	if err != nil {
		t.Fatalf("azure endpoint: %v", err)
	}
	if u != "wss://res.openai.azure.com/openai/realtime?api-version=2024-10-01-preview&deployment=rt" {
		t.Fatalf("unexpected azure url %s", u)
	}
	if hdr.Get("api-key") != "az" {
		t.Fatalf("expected api-key header, got %v", hdr)
	}
}

func TestKnownAndTranscript(t *testing.T) {
	if !Known(EventResponseFunctionCallArgumentsDone) || !Known(EventReconnected) {
		t.Fatal("expected known kinds")
	}
	if Known("response.something_new") {
		t.Fatal("unexpected kind reported as known")
	}

	ev, err := ParseEvent([]byte(`{"type":"response.output_item.done","item":{"type":"message","content":[{"type":"audio","transcript":"hi there"}]}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := ev.Item.AudioTranscript(); got != "hi there" {
		t.Fatalf("expected transcript, got %q", got)
	}
}
