package logger

import (
	"sync"
	"sync/atomic"
)

// Warn and error tallies, bumped by the Entry wrappers and read by the
// periodic runtime report. Component names come from WithComponent.
var (
	warnTotal  int64
	errorTotal int64
	components sync.Map // map[string]*componentTally
)

type componentTally struct {
	warns  int64
	errors int64
}

func recordWarn(component string) {
	atomic.AddInt64(&warnTotal, 1)
	atomic.AddInt64(&tallyFor(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&errorTotal, 1)
	atomic.AddInt64(&tallyFor(component).errors, 1)
}

func tallyFor(component string) *componentTally {
	v, _ := components.LoadOrStore(component, &componentTally{})
	return v.(*componentTally)
}

// WarnCount returns the number of warnings logged since process start.
func WarnCount() int64 {
	return atomic.LoadInt64(&warnTotal)
}

// ErrorCount returns the number of errors logged since process start.
func ErrorCount() int64 {
	return atomic.LoadInt64(&errorTotal)
}

// ComponentCounts is a point-in-time warn/error tally for one component.
type ComponentCounts struct {
	Warns  int64 `json:"warns"`
	Errors int64 `json:"errors"`
}

// CountsByComponent snapshots per-component tallies.
func CountsByComponent() map[string]ComponentCounts {
	out := map[string]ComponentCounts{}
	components.Range(func(k, v any) bool {
		tally := v.(*componentTally)
		out[k.(string)] = ComponentCounts{
			Warns:  atomic.LoadInt64(&tally.warns),
			Errors: atomic.LoadInt64(&tally.errors),
		}
		return true
	})
	return out
}
