package engine

import (
	"time"

	"github.com/flowmesh/workflow/engine/emit"
)

// Options configures an Engine. Use New with functional Option values, or
// populate this struct directly — both compose, mirroring the teacher's
// convention of accepting a struct that functional options can still patch.
type Options struct {
	// Emitter receives observability events. Defaults to emit.NewNullEmitter().
	Emitter emit.Emitter

	// Clock is used everywhere the engine needs "now" (StartedAt, TTL
	// checks). Defaults to time.Now. Tests that need
	// determinism should inject a fixed/stepped clock.
	Clock func() time.Time

	// MaxAutoAdvanceHops bounds consecutive auto-advanced info steps,
	// preventing a misconfigured definition (an info→info cycle) from
	// hanging a single HandleAction call forever. Default 50.
	MaxAutoAdvanceHops int

	// DefaultToolTimeout bounds every ToolExecutor.Execute call. Default 10s.
	DefaultToolTimeout time.Duration

	// SweepInterval sets how often the background TTL sweeper scans the
	// store for expired states. Default 60s. A zero value disables the
	// sweeper entirely, leaving only the lazy per-access expiry check.
	SweepInterval time.Duration
}

// Option mutates Options during New.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Emitter:            emit.NewNullEmitter(),
		Clock:              time.Now,
		MaxAutoAdvanceHops: 50,
		DefaultToolTimeout: 10 * time.Second,
		SweepInterval:      60 * time.Second,
	}
}

// WithEmitter overrides the engine's observability sink.
func WithEmitter(e emit.Emitter) Option {
	return func(o *Options) { o.Emitter = e }
}

// WithClock overrides the engine's time source. Primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *Options) { o.Clock = clock }
}

// WithMaxAutoAdvanceHops overrides the auto-advance safety cap.
func WithMaxAutoAdvanceHops(n int) Option {
	return func(o *Options) { o.MaxAutoAdvanceHops = n }
}

// WithDefaultToolTimeout overrides the default tool-call timeout.
func WithDefaultToolTimeout(d time.Duration) Option {
	return func(o *Options) { o.DefaultToolTimeout = d }
}

// WithSweepInterval overrides the background TTL sweeper's period. Pass 0
// to disable the sweeper.
func WithSweepInterval(d time.Duration) Option {
	return func(o *Options) { o.SweepInterval = d }
}
