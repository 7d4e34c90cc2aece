// Package progress defines the capability callbacks a caller hands to each
// pipeline call. Nothing in this package holds state between calls.
package progress

import "fmt"

// Update describes how far a long-running step has advanced.
type Update struct {
	Stage string
	Done  int64
	Total int64 // 0 when unknown
}

// Percent returns the completion percentage, or false when the total is unknown.
func (u Update) Percent() (int, bool) {
	if u.Total <= 0 {
		return 0, false
	}
	p := int(u.Done * 100 / u.Total)
	if p > 100 {
		p = 100
	}
	return p, true
}

// String renders the update for an output channel.
func (u Update) String() string {
	if p, ok := u.Percent(); ok {
		return fmt.Sprintf("%s... %d%%", u.Stage, p)
	}
	return fmt.Sprintf("%s... %d bytes (total unknown)", u.Stage, u.Done)
}

// Hooks carries the operator-facing sinks. Either field may be nil.
// Callbacks run on the goroutine that produced the event and may be invoked
// from several goroutines over the life of one call, so implementations
// must be safe for concurrent use. They must not block for long.
type Hooks struct {
	Log      func(line string)
	Progress func(u Update)
}

// Logf formats and forwards a line to the log sink.
func (h Hooks) Logf(format string, args ...interface{}) {
	if h.Log == nil {
		return
	}
	h.Log(fmt.Sprintf(format, args...))
}

// Report forwards a progress update.
func (h Hooks) Report(u Update) {
	if h.Progress != nil {
		h.Progress(u)
	}
}
