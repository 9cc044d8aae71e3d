// Package orchestrator runs the turn-taking state machine between the local
// capture pipeline and the realtime session.
//
// All state lives on the goroutine running Machine.Run. Capture callbacks,
// server events, silence timer firings and tool completions reach it as
// messages on a single inbox and are applied in arrival order.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"parley/assistant/internal/calls"
	"parley/assistant/internal/floor"
	"parley/assistant/internal/realtime"
	"parley/assistant/internal/router"
	"parley/assistant/internal/silence"
	"parley/assistant/internal/tools"
)

var (
	ErrAlreadyRunning = errors.New("orchestrator: already running")
	ErrStopped        = errors.New("orchestrator: stopped")
)

// Session is the realtime session as seen by the coordinator. Every call
// is fire-and-forget.
type Session interface {
	SendAudio(pcm []byte) error
	SendText(text string) error
	GenerateResponse() error
	GenerateResponseFromFunctionCall(callID, output string) error
	CancelResponse() error
	ClearInputAudioBuffer() error
}

type Playback interface {
	Enqueue(pcm []byte)
	IsPlaying() bool
	DrainAndRestart()
}

type Journal interface {
	Append(typ string, payload map[string]any)
}

type Deps struct {
	Session  Session
	Playback Playback
	Tools    tools.Executor
	Journal  Journal
	Logger   *zap.Logger
}

type Options struct {
	TurnDetection      floor.TurnDetection
	SilenceTimeout     time.Duration
	Greeting           string
	MaxConcurrentTools int
	ToolTimeout        time.Duration
	InboxSize          int
}

type Machine struct {
	session  Session
	playback Playback
	journal  Journal
	log      *zap.Logger

	mode     floor.TurnDetection
	greeting string

	timer      *silence.Timer
	calls      *calls.Registry
	dispatcher *tools.Dispatcher
	router     *router.Router
	floor      *floor.Controller

	inbox chan message
	done  chan struct{}
	state atomic.Int32

	running  atomic.Bool
	stopOnce sync.Once
}

func New(deps Deps, opts Options) *Machine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	journal := deps.Journal
	if journal == nil {
		journal = nopJournal{}
	}
	if opts.Greeting == "" {
		opts.Greeting = "Hello"
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 256
	}

	m := &Machine{
		session:  deps.Session,
		playback: deps.Playback,
		journal:  journal,
		log:      log.Named("orch"),
		mode:     opts.TurnDetection,
		greeting: opts.Greeting,
		calls:    calls.NewRegistry(),
		inbox:    make(chan message, opts.InboxSize),
		done:     make(chan struct{}),
	}
	m.timer = silence.New(opts.SilenceTimeout, func(gen uint64) {
		m.enqueue(silenceFired{gen: gen})
	})
	m.dispatcher = tools.NewDispatcher(deps.Tools, deps.Session,
		tools.WithMaxConcurrent(opts.MaxConcurrentTools),
		tools.WithTimeout(opts.ToolTimeout),
		tools.WithLogger(log),
		tools.WithPost(m.post),
	)
	m.router = router.New(router.Config{
		Playback:   deps.Playback,
		Calls:      m.calls,
		Dispatcher: m.dispatcher,
		Journal:    journal,
		Logger:     log,
	})
	m.floor = floor.NewController(deps.Session, deps.Playback, log)
	return m
}

// HandleLocal queues a capture pipeline signal. It is safe to call from
// any goroutine and reports false once the machine has stopped.
func (m *Machine) HandleLocal(ev LocalEvent) bool {
	metricLocalEvents.WithLabelValues(ev.Kind.String()).Inc()
	return m.enqueue(localSignal{ev: ev})
}

func (m *Machine) OnSpeechStart() bool { return m.HandleLocal(LocalEvent{Kind: SpeechStart}) }

func (m *Machine) OnSpeechEnd() bool { return m.HandleLocal(LocalEvent{Kind: SpeechEnd}) }

func (m *Machine) OnKeywordDetected(result string) bool {
	return m.HandleLocal(LocalEvent{Kind: KeywordDetected, Keyword: result})
}

// HandleRemote queues a server event.
func (m *Machine) HandleRemote(ev realtime.Event) bool {
	return m.enqueue(remoteEvent{ev: ev})
}

// PumpRemote feeds server events from ch until it closes or ctx is done.
func (m *Machine) PumpRemote(ctx context.Context, ch <-chan realtime.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if !m.HandleRemote(ev) {
				return nil
			}
		}
	}
}

// ForwardAudio sends microphone audio to the session while the
// conversation is active and drops it otherwise.
func (m *Machine) ForwardAudio(pcm []byte) error {
	if m.State() != StateConversationActive {
		metricMicFrames.WithLabelValues("gated").Inc()
		return nil
	}
	metricMicFrames.WithLabelValues("forwarded").Inc()
	return m.session.SendAudio(pcm)
}

func (m *Machine) State() State { return State(m.state.Load()) }

func (m *Machine) Mode() floor.TurnDetection { return m.mode }

func (m *Machine) Status() Status {
	c := m.router.Cursor()
	return Status{
		State:         m.State().String(),
		TurnDetection: m.mode.String(),
		TimerArmed:    m.timer.IsArmed(),
		ToolsInFlight: m.dispatcher.InFlight(),
		PendingCalls:  m.calls.Len(),
		ItemID:        c.ItemID,
		ContentIndex:  c.ContentIndex,
	}
}

// Run applies queued messages until ctx is done, then releases the silence
// timer, waits for tool workers and drops pending calls.
func (m *Machine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	select {
	case <-m.done:
		return ErrStopped
	default:
	}
	defer m.shutdown()

	m.log.Info("coordinator started",
		zap.Stringer("turn_detection", m.mode),
		zap.Duration("silence_timeout", m.timer.Timeout()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-m.inbox:
			gaugeInboxDepth.Set(float64(len(m.inbox)))
			m.apply(ctx, msg)
		}
	}
}

func (m *Machine) shutdown() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.timer.Cancel()
		released := m.calls.Reset()
		m.dispatcher.Wait()
		// tool completions posted before done was observed
	drain:
		for {
			select {
			case msg := <-m.inbox:
				if f, ok := msg.(coordinated); ok {
					f()
				}
			default:
				break drain
			}
		}
		m.setState(StateIdle)
		m.log.Info("coordinator stopped", zap.Int("released_calls", released))
	})
}

func (m *Machine) enqueue(msg message) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.inbox <- msg:
		return true
	case <-m.done:
		return false
	}
}

// post runs f on the coordinator. After shutdown it runs f in place so
// tool completions still clear their in-flight mark.
func (m *Machine) post(f func()) {
	if !m.enqueue(coordinated(f)) {
		f()
	}
}

type nopJournal struct{}

func (nopJournal) Append(string, map[string]any) {}
