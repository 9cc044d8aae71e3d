package floor

import (
	"errors"
	"testing"
)

type fakeSession struct {
	ops []string
	err error
}

func (s *fakeSession) ClearInputAudioBuffer() error {
	s.ops = append(s.ops, "clear")
	return s.err
}

func (s *fakeSession) CancelResponse() error {
	s.ops = append(s.ops, "cancel")
	return s.err
}

type fakePlayback struct{ drains int }

func (p *fakePlayback) DrainAndRestart() { p.drains++ }

func TestDecidePolicyTable(t *testing.T) {
	cases := []struct {
		mode    TurnDetection
		playing bool
		want    bool
	}{
		{Local, true, true},
		{Local, false, false},
		{Server, true, false},
		{Server, false, false},
	}
	for _, tc := range cases {
		d := Decide(tc.mode, tc.playing)
		if d.Interrupt != tc.want {
			t.Fatalf("%s playing=%v: expected interrupt=%v, got %+v", tc.mode, tc.playing, tc.want, d)
		}
	}
}

func TestBargeInClearsCancelsAndDrains(t *testing.T) {
	s, p := &fakeSession{}, &fakePlayback{}
	c := NewController(s, p, nil)

	d := c.MaybeInterrupt(Local, true)
	if !d.Interrupt || d.Reason != ReasonBargeIn {
		t.Fatalf("expected barge-in, got %+v", d)
	}
	if len(s.ops) != 2 || s.ops[0] != "clear" || s.ops[1] != "cancel" {
		t.Fatalf("expected clear then cancel, got %v", s.ops)
	}
	if p.drains != 1 {
		t.Fatalf("expected one drain, got %d", p.drains)
	}
}

func TestIdlePlaybackDoesNothing(t *testing.T) {
	s, p := &fakeSession{}, &fakePlayback{}
	c := NewController(s, p, nil)

	if d := c.MaybeInterrupt(Local, false); d.Interrupt {
		t.Fatalf("should not interrupt when idle, got %+v", d)
	}
	if d := c.MaybeInterrupt(Server, true); d.Interrupt {
		t.Fatalf("local detection must not interrupt in server mode, got %+v", d)
	}
	if len(s.ops) != 0 || p.drains != 0 {
		t.Fatal("no side effects expected")
	}
}

func TestServerSpeechStarted(t *testing.T) {
	s, p := &fakeSession{}, &fakePlayback{}
	c := NewController(s, p, nil)

	if d := c.OnServerSpeechStarted(Local); d.Interrupt {
		t.Fatal("server notice must be ignored in local mode")
	}
	d := c.OnServerSpeechStarted(Server)
	if !d.Interrupt || d.Reason != ReasonServerVAD {
		t.Fatalf("expected server_vad interrupt, got %+v", d)
	}
	if len(s.ops) != 2 || p.drains != 1 {
		t.Fatalf("expected clear, cancel and drain, got %v drains=%d", s.ops, p.drains)
	}
}

func TestSessionErrorsDoNotStopDrain(t *testing.T) {
	s, p := &fakeSession{err: errors.New("queue full")}, &fakePlayback{}
	c := NewController(s, p, nil)

	c.MaybeInterrupt(Local, true)
	if p.drains != 1 {
		t.Fatal("playback must still drain when session sends fail")
	}
}
