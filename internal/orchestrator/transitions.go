package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"parley/assistant/internal/floor"
	"parley/assistant/internal/realtime"
)

type message interface{ isMessage() }

type localSignal struct{ ev LocalEvent }

type remoteEvent struct{ ev realtime.Event }

type silenceFired struct{ gen uint64 }

// coordinated is a function to run on the coordinator, used for tool
// completions.
type coordinated func()

func (localSignal) isMessage()  {}
func (remoteEvent) isMessage()  {}
func (silenceFired) isMessage() {}
func (coordinated) isMessage()  {}

func (m *Machine) apply(ctx context.Context, msg message) {
	switch v := msg.(type) {
	case localSignal:
		switch v.ev.Kind {
		case KeywordDetected:
			m.onKeywordDetected(v.ev.Keyword)
		case SpeechStart:
			m.onSpeechStart()
		case SpeechEnd:
			m.onSpeechEnd()
		default:
			m.log.Warn("unknown local signal", zap.Int("kind", int(v.ev.Kind)))
		}
	case remoteEvent:
		m.onRemote(ctx, v.ev)
	case silenceFired:
		m.onSilenceFired(v.gen)
	case coordinated:
		v()
	}
}

func (m *Machine) onKeywordDetected(result string) {
	m.log.Info("keyword detected", zap.String("keyword", result), zap.Stringer("state", m.State()))
	m.setState(StateKeywordDetected)
	if err := m.session.SendText(m.greeting); err != nil {
		m.log.Warn("greeting not sent", zap.Error(err))
	}
	m.timer.Arm()
}

func (m *Machine) onSpeechStart() {
	prior := m.State()
	m.log.Debug("speech started", zap.Stringer("state", prior))
	if prior != StateKeywordDetected && prior != StateConversationActive {
		return
	}
	m.setState(StateConversationActive)
	m.timer.Cancel()

	// Only a conversation that was already active can be interrupted; the
	// first utterance after the keyword talks over the greeting.
	if prior == StateConversationActive {
		if d := m.floor.MaybeInterrupt(m.mode, m.playback.IsPlaying()); d.Interrupt {
			m.journal.Append("barge_in", map[string]any{"reason": d.Reason})
		}
	}
}

func (m *Machine) onSpeechEnd() {
	if m.State() != StateConversationActive || m.mode != floor.Local {
		return
	}
	if err := m.session.GenerateResponse(); err != nil {
		m.log.Warn("response request failed", zap.Error(err))
	}
	m.timer.Arm()
}

func (m *Machine) onSilenceFired(gen uint64) {
	if !m.timer.Claim(gen) {
		metricSilence.WithLabelValues("stale").Inc()
		return
	}
	if playing, busy := m.playback.IsPlaying(), m.dispatcher.Processing(); playing || busy {
		metricSilence.WithLabelValues("rearmed").Inc()
		m.log.Debug("silence timeout deferred", zap.Bool("playing", playing), zap.Bool("tool_running", busy))
		m.timer.Arm()
		return
	}
	metricSilence.WithLabelValues("expired").Inc()
	m.log.Info("silence timeout, returning to idle")
	if err := m.session.ClearInputAudioBuffer(); err != nil {
		m.log.Warn("clear input buffer failed", zap.Error(err))
	}
	m.setState(StateIdle)
}

func (m *Machine) onRemote(ctx context.Context, ev realtime.Event) {
	switch ev.Type {
	case realtime.EventInputAudioBufferSpeechStarted:
		m.log.Info("server speech started", zap.Int("audio_start_ms", ev.AudioStartMs), zap.String("item_id", ev.ItemID))
		if d := m.floor.OnServerSpeechStarted(m.mode); d.Interrupt {
			m.journal.Append("barge_in", map[string]any{"reason": d.Reason})
		}
	case realtime.EventInputAudioBufferSpeechStopped:
		m.log.Info("server speech stopped", zap.Int("audio_end_ms", ev.AudioEndMs), zap.String("item_id", ev.ItemID))
	}
	m.router.Handle(ctx, ev)
}

// setState is the only writer of the state. Leaving the active conversation
// always releases the silence timer first.
func (m *Machine) setState(to State) {
	if to != StateConversationActive {
		m.timer.Cancel()
	}
	from := m.State()
	if from == to {
		return
	}
	metricStateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	m.state.Store(int32(to))
	m.log.Info("state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	m.journal.Append("state_changed", map[string]any{"from": from.String(), "to": to.String()})
}
