package workerws

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNoDevice = errors.New("workerws: no device connected")

// Playback streams assistant audio to the connected device. The device
// reports when its speaker starts and stops.
type Playback struct {
	reg *Registry
	log *zap.Logger

	queue   chan []byte
	control chan Message
	playing atomic.Bool
	drains  atomic.Int64
}

func NewPlayback(reg *Registry, queueSize int, log *zap.Logger) *Playback {
	if queueSize <= 0 {
		queueSize = 512
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Playback{
		reg:     reg,
		log:     log.Named("playback"),
		queue:   make(chan []byte, queueSize),
		control: make(chan Message, 8),
	}
}

// Enqueue never blocks; frames are dropped when the queue is full.
func (p *Playback) Enqueue(pcm []byte) {
	select {
	case p.queue <- pcm:
	default:
		metricPlaybackFrames.WithLabelValues("dropped_full").Inc()
	}
}

// IsPlaying is true while frames are queued or the device reports that its
// speaker is active.
func (p *Playback) IsPlaying() bool {
	return len(p.queue) > 0 || p.playing.Load()
}

// DrainAndRestart discards queued audio and has Run tell the device to
// flush its buffer. It never waits on the device connection. Playback
// resumes with the next enqueued frame.
func (p *Playback) DrainAndRestart() {
	n := 0
drain:
	for {
		select {
		case <-p.queue:
			n++
		default:
			break drain
		}
	}
	p.playing.Store(false)
	p.drains.Add(1)
	metricPlaybackFrames.WithLabelValues("drained").Add(float64(n))

	cmd := Message{Type: "drain_playback", TsMs: time.Now().UnixMilli(), CommandID: uuid.NewString()}
	select {
	case p.control <- cmd:
		p.log.Info("playback drained", zap.Int("frames", n), zap.String("command_id", cmd.CommandID))
	default:
		// a drain is already pending; the device flushes once either way
		p.log.Warn("drain command dropped, control queue full", zap.String("command_id", cmd.CommandID))
	}
}

func (p *Playback) SetPlaying(v bool) { p.playing.Store(v) }

func (p *Playback) Drains() int64 { return p.drains.Load() }

// Run forwards control commands and queued frames to the device until ctx
// is done. Pending commands go out before the next frame.
func (p *Playback) Run(ctx context.Context) error {
	for {
		select {
		case cmd := <-p.control:
			p.sendControl(ctx, cmd)
			continue
		default:
		}
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-p.control:
			p.sendControl(ctx, cmd)
		case b := <-p.queue:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := p.reg.SendBinary(wctx, b)
			cancel()
			switch {
			case errors.Is(err, ErrNoDevice):
				metricPlaybackFrames.WithLabelValues("dropped_no_device").Inc()
			case err != nil:
				metricPlaybackFrames.WithLabelValues("write_error").Inc()
				p.log.Debug("playback write failed", zap.Error(err))
			default:
				metricPlaybackFrames.WithLabelValues("sent").Inc()
			}
		}
	}
}

func (p *Playback) sendControl(ctx context.Context, cmd Message) {
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.reg.SendJSON(wctx, cmd); err != nil {
		p.log.Warn("control command failed", zap.String("type", cmd.Type), zap.String("command_id", cmd.CommandID), zap.Error(err))
	}
}
