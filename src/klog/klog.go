// Package klog is the kernel's line logger: plain fmt-formatted output
// to a swappable io.Writer, the same bare convention the rest of the
// corpus uses (no structured logging library anywhere in biscuit's
// kernel code) (spec.md §8 scenario 6, SPEC_FULL.md "Logging").
package klog

import (
	"fmt"
	"io"
	"os"
	"sync"
)

/// Level orders the four severities the syscall surface exposes
/// (defs.KlogInfo..KlogTrace).
type Level int

const (
	Error Level = iota
	Info
	Debug
	Trace
)

func (l Level) String() string {
	switch l {
	case Error:
		return "ERROR"
	case Info:
		return "INFO"
	case Debug:
		return "DEBUG"
	case Trace:
		return "TRACE"
	default:
		return "?"
	}
}

var (
	mu     sync.Mutex
	writer io.Writer = os.Stderr
	// ticks and cpuID are supplied by the caller rather than read from
	// hardware here, so klog has no dependency on cpu/trap and can log
	// from hosted tests unchanged.
	ticksFn = func() uint64 { return 0 }
	cpuIDFn = func() int { return 0 }
)

/// SetWriter redirects all subsequent log output, e.g. to a serial-port
/// writer at boot or a buffer in tests.
func SetWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	writer = w
}

/// SetClock installs the callbacks klog uses to stamp each line's
/// `[#<cpu>][T<ticks>]` prefix.
func SetClock(ticks func() uint64, cpuID func() int) {
	mu.Lock()
	defer mu.Unlock()
	ticksFn = ticks
	cpuIDFn = cpuID
}

/// Logf writes one line formatted exactly `[#<cpu>][T<ticks>][LEVEL] msg`
/// (spec.md §8 scenario 6).
func Logf(level Level, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(writer, "[#%d][T%d][%s] %s\n", cpuIDFn(), ticksFn(), level, fmt.Sprintf(format, args...))
}

func Infof(format string, args ...interface{})  { Logf(Info, format, args...) }
func Errorf(format string, args ...interface{}) { Logf(Error, format, args...) }
func Debugf(format string, args ...interface{}) { Logf(Debug, format, args...) }
func Tracef(format string, args ...interface{}) { Logf(Trace, format, args...) }
