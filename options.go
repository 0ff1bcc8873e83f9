package async

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// loopOptions holds configuration applied at Loop construction.
type loopOptions struct {
	logger *logiface.Logger[*stumpy.Event]
	stats  bool
}

// LoopOption configures a Loop instance, matching the functional-options
// shape used throughout this runtime's constructors.
type LoopOption interface {
	applyLoop(*loopOptions)
}

type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions)
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) {
	l.applyLoopFunc(opts)
}

// WithLogger attaches a structured logger to the Loop. Loop lifecycle
// events, fiber panics, and timer activity are logged through it. Absent
// this option, a no-op logger discarding all events is used.
func WithLogger(logger *logiface.Logger[*stumpy.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) {
		opts.logger = logger
	}}
}

// WithStats enables the Loop's lightweight activity counters (ticks,
// fibers resumed, microtasks drained, timers fired), readable via
// Loop.Stats(). Disabled by default to avoid the atomic increments on
// the hot path.
func WithStats(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) {
		opts.stats = enabled
	}}
}

// resolveLoopOptions applies a slice of LoopOption, skipping nils.
func resolveLoopOptions(opts []LoopOption) *loopOptions {
	cfg := &loopOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyLoop(cfg)
	}
	return cfg
}
