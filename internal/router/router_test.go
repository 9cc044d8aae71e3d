package router

import (
	"context"
	"sync"
	"testing"

	"parley/assistant/internal/calls"
	"parley/assistant/internal/realtime"
	"parley/assistant/internal/tools"
)

type fakePlayback struct{ frames [][]byte }

func (p *fakePlayback) Enqueue(pcm []byte) { p.frames = append(p.frames, pcm) }

type fakeDispatcher struct{ calls []tools.Call }

func (d *fakeDispatcher) Dispatch(_ context.Context, c tools.Call) { d.calls = append(d.calls, c) }

type fakeJournal struct {
	mu    sync.Mutex
	types []string
}

func (j *fakeJournal) Append(typ string, _ map[string]any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.types = append(j.types, typ)
}

func (j *fakeJournal) has(typ string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, t := range j.types {
		if t == typ {
			return true
		}
	}
	return false
}

type fixture struct {
	r        *Router
	playback *fakePlayback
	dispatch *fakeDispatcher
	journal  *fakeJournal
	calls    *calls.Registry
}

func newFixture() fixture {
	f := fixture{
		playback: &fakePlayback{},
		dispatch: &fakeDispatcher{},
		journal:  &fakeJournal{},
		calls:    calls.NewRegistry(),
	}
	f.r = New(Config{Playback: f.playback, Calls: f.calls, Dispatcher: f.dispatch, Journal: f.journal})
	return f
}

func TestAudioDeltaDecodedAndCursorTracked(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.r.Handle(ctx, realtime.Event{Type: realtime.EventResponseAudioDelta, ItemID: "item_1", ContentIndex: 0, Delta: "AAEC"})
	f.r.Handle(ctx, realtime.Event{Type: realtime.EventResponseAudioDelta, ItemID: "item_2", ContentIndex: 1, Delta: "AwQF"})

	if len(f.playback.frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(f.playback.frames))
	}
	if got := f.playback.frames[0]; len(got) != 3 || got[2] != 2 {
		t.Fatalf("unexpected pcm %v", got)
	}
	if c := f.r.Cursor(); c.ItemID != "item_2" || c.ContentIndex != 1 {
		t.Fatalf("unexpected cursor %+v", c)
	}
}

func TestBadAudioFragmentDropped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.r.Handle(ctx, realtime.Event{Type: realtime.EventResponseAudioDelta, ItemID: "item_1", Delta: "AAEC"})
	f.r.Handle(ctx, realtime.Event{Type: realtime.EventResponseAudioDelta, ItemID: "item_bad", Delta: "!!not-base64!!"})
	f.r.Handle(ctx, realtime.Event{Type: realtime.EventResponseAudioDelta, ItemID: "item_empty"})

	if len(f.playback.frames) != 1 {
		t.Fatalf("bad fragments must be dropped, have %d frames", len(f.playback.frames))
	}
	if c := f.r.Cursor(); c.ItemID != "item_1" {
		t.Fatalf("cursor moved on a dropped fragment: %+v", c)
	}
}

func TestFunctionCallRegisterThenDispatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.r.Handle(ctx, realtime.Event{
		Type: realtime.EventResponseOutputItemAdded,
		Item: &realtime.Item{Type: "function_call", CallID: "call-1", Name: "fetch_weather"},
	})
	if f.calls.Len() != 1 {
		t.Fatal("expected pending call")
	}
	f.r.Handle(ctx, realtime.Event{
		Type:      realtime.EventResponseFunctionCallArgumentsDone,
		CallID:    "call-1",
		Arguments: `{"location":"Tokyo"}`,
	})

	if len(f.dispatch.calls) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(f.dispatch.calls))
	}
	got := f.dispatch.calls[0]
	if got.ID != "call-1" || got.Name != "fetch_weather" || got.Arguments != `{"location":"Tokyo"}` {
		t.Fatalf("unexpected call %+v", got)
	}
	if f.calls.Len() != 0 {
		t.Fatal("call should be resolved")
	}

	// a repeated arguments-done for the same call is dropped
	f.r.Handle(ctx, realtime.Event{Type: realtime.EventResponseFunctionCallArgumentsDone, CallID: "call-1"})
	if len(f.dispatch.calls) != 1 {
		t.Fatal("unknown call must not be dispatched")
	}
}

func TestFunctionCallMissingNameNotRegistered(t *testing.T) {
	f := newFixture()
	f.r.Handle(context.Background(), realtime.Event{
		Type: realtime.EventResponseOutputItemAdded,
		Item: &realtime.Item{Type: "function_call", CallID: "call-1"},
	})
	if f.calls.Len() != 0 {
		t.Fatal("call without a name must not be registered")
	}
}

func TestUnhandledEventIsObservable(t *testing.T) {
	f := newFixture()
	f.r.Handle(context.Background(), realtime.Event{Type: "response.brand_new_kind", Raw: []byte(`{"type":"response.brand_new_kind"}`)})

	if !f.journal.has("unhandled_event") {
		t.Fatal("unhandled event must be journaled")
	}
	if len(f.playback.frames) != 0 || len(f.dispatch.calls) != 0 {
		t.Fatal("unhandled event must have no effect")
	}
}

func TestObserversHaveNoStateEffect(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for _, ev := range []realtime.Event{
		{Type: realtime.EventInputAudioTranscriptionCompleted, Transcript: "what time is it"},
		{Type: realtime.EventResponseAudioTranscriptDone, Transcript: "It is nine."},
		{Type: realtime.EventRateLimitsUpdated, RateLimits: []realtime.RateLimit{{Name: "tokens", Limit: 10, Remaining: 9}}},
		{Type: realtime.EventResponseDone, Response: &realtime.Response{ID: "resp_1", Status: "completed"}},
		{Type: realtime.EventResponseOutputItemDone},
		{Type: realtime.EventError, Error: &realtime.APIError{Type: "server_error", Message: "oops"}},
	} {
		f.r.Handle(ctx, ev)
	}
	if !f.journal.has("user_transcript") || !f.journal.has("session_error") {
		t.Fatalf("expected transcript and error entries, got %v", f.journal.types)
	}
	if len(f.playback.frames) != 0 || f.calls.Len() != 0 || (f.r.Cursor() != Cursor{}) {
		t.Fatal("observers must not change state")
	}
}
