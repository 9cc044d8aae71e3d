// Package floor decides when the user takes the floor from the assistant
// and carries out the interruption.
package floor

import "go.uber.org/zap"

// TurnDetection is fixed for the lifetime of a session.
type TurnDetection int

const (
	// Local turn detection: the capture pipeline reports speech boundaries.
	Local TurnDetection = iota
	// Server turn detection: the model's VAD decides and pre-empts itself.
	Server
)

func (t TurnDetection) String() string {
	if t == Server {
		return "server"
	}
	return "local"
}

const (
	ReasonBargeIn   = "barge_in"
	ReasonServerVAD = "server_vad"
)

// Decision represents the action the floor controller wants to take.
type Decision struct {
	Interrupt bool
	Reason    string
}

type Session interface {
	ClearInputAudioBuffer() error
	CancelResponse() error
}

type Playback interface {
	DrainAndRestart()
}

// Decide applies the local detection policy. With server turn detection the
// server owns interruption, so local detection never interrupts.
func Decide(mode TurnDetection, assistantPlaying bool) Decision {
	if mode == Local && assistantPlaying {
		return Decision{Interrupt: true, Reason: ReasonBargeIn}
	}
	return Decision{}
}

type Controller struct {
	session  Session
	playback Playback
	log      *zap.Logger
}

func NewController(s Session, p Playback, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{session: s, playback: p, log: log.Named("floor")}
}

// MaybeInterrupt is called when local detection reports speech during an
// active conversation.
func (c *Controller) MaybeInterrupt(mode TurnDetection, assistantPlaying bool) Decision {
	d := Decide(mode, assistantPlaying)
	if d.Interrupt {
		c.interrupt(d.Reason)
	}
	return d
}

// OnServerSpeechStarted handles the server VAD speech-start notice. It is
// ignored with local turn detection.
func (c *Controller) OnServerSpeechStarted(mode TurnDetection) Decision {
	if mode != Server {
		return Decision{}
	}
	d := Decision{Interrupt: true, Reason: ReasonServerVAD}
	c.interrupt(d.Reason)
	return d
}

func (c *Controller) interrupt(reason string) {
	metricBargeIn.WithLabelValues(reason).Inc()
	c.log.Info("interrupting assistant response", zap.String("reason", reason))
	if err := c.session.ClearInputAudioBuffer(); err != nil {
		c.log.Warn("clear input buffer failed", zap.Error(err))
	}
	if err := c.session.CancelResponse(); err != nil {
		c.log.Warn("cancel response failed", zap.Error(err))
	}
	c.playback.DrainAndRestart()
}
