package async

import (
	"runtime"
	"sync"
)

// getGoroutineID returns the current goroutine's runtime id, parsed out of
// the header line of runtime.Stack's output - the only portable way to
// recognise "am I running on the same goroutine as fiber X" without
// threading an explicit context value through every call.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// fiberRegistry maps goroutine ids to the Fiber currently executing on
// them, so InFiber/CurrentFiber can answer without any caller-supplied
// context.
var fiberRegistry sync.Map // map[uint64]*Fiber

func registerCurrentFiber(f *Fiber) {
	fiberRegistry.Store(getGoroutineID(), f)
}

func unregisterCurrentFiber() {
	fiberRegistry.Delete(getGoroutineID())
}

// InFiber reports whether the calling goroutine is executing as a fiber
// body.
func InFiber() bool {
	_, ok := fiberRegistry.Load(getGoroutineID())
	return ok
}

// CurrentFiber returns the Fiber bound to the calling goroutine, or nil if
// the caller is not running as a fiber.
func CurrentFiber() *Fiber {
	v, ok := fiberRegistry.Load(getGoroutineID())
	if !ok {
		return nil
	}
	return v.(*Fiber)
}

// ValidateFiberContext returns a *NotInFiberError if the calling goroutine
// is not currently running as a fiber body, nil otherwise. message, if
// given, is folded into the error to identify the offending call site.
func ValidateFiberContext(message ...string) error {
	if InFiber() {
		return nil
	}
	var msg string
	if len(message) > 0 {
		msg = message[0]
	}
	return &NotInFiberError{Message: msg}
}
