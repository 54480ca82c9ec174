// Package sampler orchestrates periodic measurement of a fleet of sensor
// drivers and fans the results into the message bus.
//
// Drivers are wrapped in Adaptors with a split-phase measurement cycle:
// Trigger starts a conversion and reports how long it takes, Collect picks
// up the result. The worker owns all bus I/O timing, so adaptors stay free
// of goroutines. ErrNotReady from Collect means "ask again shortly"; the
// worker retries with backoff and, when the retry budget runs out, resets
// the adaptor's register caches so stale values are never reported.
package sampler

import (
	"context"
	"errors"
	"time"
)

// ErrNotReady signals the worker to retry Collect after backoff.
var ErrNotReady = errors.New("sampler: not ready")

// Reading is one datum for one measurement kind.
type Reading struct {
	Kind  string  // e.g. "temperature", "pm2_5", "co2"
	Value float64
	Unit  string // e.g. "degC", "ug/m3", "ppm"
	TsMs  int64  // producer timestamp (ms)
}

// Sample is a batch collected together.
type Sample []Reading

// Info is a device's retained identity document: chip id, serial number,
// firmware, whatever the hardware can report about itself.
type Info map[string]any

// Adaptor wraps one concrete driver. Implementations must not own
// goroutines or touch the bus.
type Adaptor interface {
	ID() string
	// Identity reads the device's self-description for the retained info
	// document. Drivers serve repeat calls from non-volatile caches.
	Identity(ctx context.Context) (Info, error)
	// Split-phase measurement cycle.
	Trigger(ctx context.Context) (collectAfter time.Duration, err error)
	Collect(ctx context.Context) (Sample, error)
	// InvalidateCache resets the driver's register caches to unknown.
	InvalidateCache()
}

// Request asks the worker to run one measurement cycle for an adaptor.
type Request struct {
	ID      string
	Adaptor Adaptor
	Prio    bool // re-trigger immediately if a cycle is already pending
}

// Result is one completed (or failed) measurement cycle.
type Result struct {
	ID     string
	Sample Sample
	Err    error
}

func now() int64 { return time.Now().UnixMilli() }

// reading stamps a Reading with the current time.
func reading(kind string, value float64, unit string) Reading {
	return Reading{Kind: kind, Value: value, Unit: unit, TsMs: now()}
}
