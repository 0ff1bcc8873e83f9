package async

import (
	"io"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the structured logger type accepted throughout this runtime.
// It is the generic logiface.Logger bound to stumpy's JSON event, matching
// the logiface-stumpy binding in the wider dependency pack.
type Logger = logiface.Logger[*stumpy.Event]

// newNopLogger constructs a logger wired to stumpy's event model but
// writing nowhere, so call sites never need a nil check.
func newNopLogger() *Logger {
	return stumpy.L.New(stumpy.WithStumpy(stumpy.WithWriter(io.Discard)))
}

// logFiberPanic records a fiber body panic, including the recovered value
// and the fiber's id.
func logFiberPanic(logger *Logger, fiberID uint64, recovered any) {
	logger.Err().
		Uint64(`fiber`, fiberID).
		Interface(`panic`, recovered).
		Log(`fiber body panicked`)
}

// logLoopEvent records a loop lifecycle transition (start, shutdown).
func logLoopEvent(logger *Logger, event string) {
	logger.Info().
		Str(`event`, event).
		Log(`loop lifecycle`)
}

// logTimerEvent records a timer firing or being cancelled.
func logTimerEvent(logger *Logger, event string, id uint64) {
	logger.Debug().
		Str(`event`, event).
		Uint64(`timer`, id).
		Log(`timer`)
}

// logMutexEvent records a mutex acquire/release, including current queue
// depth, useful for diagnosing contention.
func logMutexEvent(logger *Logger, event string, queueDepth int) {
	logger.Debug().
		Str(`event`, event).
		Int(`queueDepth`, queueDepth).
		Log(`mutex`)
}

// logCancellationEvent records a cancellation source transitioning to the
// cancelled state, or a cancel-after timer being armed.
func logCancellationEvent(logger *Logger, event string, trackedCount int) {
	logger.Debug().
		Str(`event`, event).
		Int(`tracked`, trackedCount).
		Log(`cancellation`)
}
