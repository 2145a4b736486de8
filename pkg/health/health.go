package health

import (
	"context"
	"fmt"
	"time"
)

// CheckType names the transport a probe uses
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
)

// Result is the outcome of one probe
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

func result(start time.Time, healthy bool, format string, args ...any) Result {
	return Result{
		Healthy:   healthy,
		Message:   fmt.Sprintf(format, args...),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Checker probes one backend. The deadline comes from ctx.
type Checker interface {
	Check(ctx context.Context) Result
	Type() CheckType
}

// Config controls how often backends are probed
type Config struct {
	Interval time.Duration
	// Timeout bounds a single probe
	Timeout time.Duration
	// Retries is the number of consecutive failures before a backend is
	// reported unhealthy
	Retries int
}

// DefaultConfig returns the probe settings used by the server
func DefaultConfig() Config {
	return Config{Interval: 30 * time.Second, Timeout: 5 * time.Second, Retries: 3}
}

// Status is the debounced health of one backend
type Status struct {
	Healthy    bool
	Failures   int // consecutive
	Probes     int
	LastResult Result
}

// NewStatus returns the status of a backend that has not been probed yet
func NewStatus() *Status {
	return &Status{Healthy: true}
}

// Update folds a probe result in and reports whether Healthy flipped. One
// success recovers; Retries failures in a row are needed to fail.
func (s *Status) Update(r Result, retries int) bool {
	s.Probes++
	s.LastResult = r

	healthy := s.Healthy
	if r.Healthy {
		s.Failures = 0
		healthy = true
	} else {
		s.Failures++
		healthy = healthy && s.Failures < retries
	}
	changed := healthy != s.Healthy
	s.Healthy = healthy
	return changed
}
