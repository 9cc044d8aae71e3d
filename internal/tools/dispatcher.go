package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ResultSink receives the output of a successful call.
type ResultSink interface {
	GenerateResponseFromFunctionCall(callID, output string) error
}

type Call struct {
	ID        string
	Name      string
	Arguments string
}

type Result struct {
	Call     Call
	Output   string
	Err      error
	Duration time.Duration
	panicked bool
}

// Dispatcher runs tool calls on worker goroutines. Completion is handed to
// post, which lets the owner apply it on its own goroutine; the default
// runs it on the worker.
type Dispatcher struct {
	exec    Executor
	sink    ResultSink
	log     *zap.Logger
	sem     *semaphore.Weighted
	timeout time.Duration
	post    func(func())

	inflight atomic.Int32
	wg       sync.WaitGroup
}

type Option func(*Dispatcher)

// WithMaxConcurrent bounds how many tools execute at once. Calls beyond the
// bound wait for a slot but still count as in flight.
func WithMaxConcurrent(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = t }
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l.Named("tools")
		}
	}
}

func WithPost(post func(func())) Option {
	return func(d *Dispatcher) {
		if post != nil {
			d.post = post
		}
	}
}

func NewDispatcher(exec Executor, sink ResultSink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		exec: exec,
		sink: sink,
		log:  zap.NewNop(),
		sem:  semaphore.NewWeighted(1),
		post: func(f func()) { f() },
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch marks the call in flight before returning and executes it in the
// background.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) {
	d.inflight.Add(1)
	gaugeInFlight.Inc()
	d.wg.Add(1)
	go d.work(ctx, call)
}

// Processing reports whether any call is in flight.
func (d *Dispatcher) Processing() bool { return d.inflight.Load() > 0 }

func (d *Dispatcher) InFlight() int { return int(d.inflight.Load()) }

// Wait blocks until every dispatched worker has posted its completion.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) work(ctx context.Context, call Call) {
	defer d.wg.Done()
	res := Result{Call: call}
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("tools: %s panicked: %v", call.Name, p)
			res.panicked = true
		}
		res.Duration = time.Since(start)
		d.post(func() { d.complete(res) })
	}()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		res.Err = fmt.Errorf("tools: %s not started: %w", call.Name, err)
		return
	}
	defer d.sem.Release(1)

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	d.log.Debug("executing", zap.String("call_id", call.ID), zap.String("function", call.Name))
	select {
	case out := <-d.execute(ctx, call):
		res.Output, res.Err, res.panicked = out.Output, out.Err, out.panicked
	case <-ctx.Done():
		// the tool keeps running on its own goroutine; its result is dropped
		metricAbandoned.WithLabelValues(call.Name).Inc()
		res.Err = fmt.Errorf("tools: %s abandoned: %w", call.Name, ctx.Err())
	}
}

// execute runs the tool on its own goroutine so a tool that ignores ctx
// cannot hold the worker past its deadline.
func (d *Dispatcher) execute(ctx context.Context, call Call) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		var out Result
		defer func() {
			if p := recover(); p != nil {
				out = Result{Err: fmt.Errorf("tools: %s panicked: %v", call.Name, p), panicked: true}
			}
			ch <- out
		}()
		out.Output, out.Err = d.exec.Execute(ctx, call.Name, call.Arguments)
	}()
	return ch
}

func (d *Dispatcher) complete(res Result) {
	d.inflight.Add(-1)
	gaugeInFlight.Dec()

	log := d.log.With(zap.String("call_id", res.Call.ID), zap.String("function", res.Call.Name))
	metricCallMS.WithLabelValues(res.Call.Name).Observe(float64(res.Duration.Milliseconds()))

	outcome := "ok"
	switch {
	case res.panicked:
		outcome = "panic"
		log.Error("tool panicked, call abandoned", zap.Error(res.Err))
	case errors.Is(res.Err, ErrInvalidArguments):
		outcome = "decode_error"
		log.Warn("malformed tool arguments, call abandoned", zap.Error(res.Err))
	case res.Err != nil:
		outcome = "error"
		log.Error("tool failed, call abandoned", zap.Error(res.Err))
	default:
		if err := d.sink.GenerateResponseFromFunctionCall(res.Call.ID, res.Output); err != nil {
			outcome = "sink_error"
			log.Warn("could not submit tool output", zap.Error(err))
		} else {
			log.Info("tool completed", zap.Duration("took", res.Duration))
		}
	}
	metricCalls.WithLabelValues(res.Call.Name, outcome).Inc()
}
