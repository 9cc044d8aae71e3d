package health

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type CheckResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	s := fmt.Sprintf("Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		s += fmt.Sprintf("  %s %s (%dms)", mark, c.Name, c.LatencyMS)
		if c.Error != "" {
			s += fmt.Sprintf(" - %s", c.Error)
		}
		s += "\n"
	}
	return s
}

// Probe is a named readiness check.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Ready builds a probe from a boolean condition.
func Ready(name string, ok func() bool, reason string) Probe {
	return Probe{Name: name, Check: func(context.Context) error {
		if !ok() {
			return errors.New(reason)
		}
		return nil
	}}
}

// CheckAll runs all probes and returns combined status
func CheckAll(ctx context.Context, probes ...Probe) HealthStatus {
	checks := make([]CheckResult, 0, len(probes))
	allOK := true
	for _, p := range probes {
		start := time.Now()
		r := CheckResult{Name: p.Name}
		if err := p.Check(ctx); err != nil {
			r.Error = err.Error()
			allOK = false
		} else {
			r.OK = true
		}
		r.LatencyMS = time.Since(start).Milliseconds()
		checks = append(checks, r)
	}
	return HealthStatus{
		OK:        allOK,
		Checks:    checks,
		CheckedAt: time.Now().UTC(),
	}
}
