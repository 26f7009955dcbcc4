// Package assertbus implements the per-test counters, silencing/terminate
// flags, and the non-local assertion-failure signal that the Check
// protocol, the Machine, and the Runner all funnel through.
package assertbus

import "fmt"

// FirstFailure captures the location and message of the first failed
// check in a run. Only the first one is ever kept; later failures still
// increment the counters but do not overwrite this.
type FirstFailure struct {
	File    string
	Line    int
	Message string
}

// Bus is the per-execution assertion state. A fresh Bus is installed
// before every test body runs and discarded after.
type Bus struct {
	NumChecks       int
	NumFailedChecks int

	// Silenced suppresses failure-log output but still counts failures.
	Silenced bool

	// AlwaysTerminate treats every failed check as fatal, as if it were
	// a REQUIRE instead of a CHECK.
	AlwaysTerminate bool

	first   *FirstFailure
	onFail  func(file string, line int, message string)
	handler func()
}

// New returns a zeroed Bus.
func New() *Bus {
	return &Bus{}
}

// FirstFailure returns the first recorded failure, or nil if none.
func (b *Bus) FirstFailure() *FirstFailure {
	return b.first
}

// DidFail reports whether any check has failed so far.
func (b *Bus) DidFail() bool {
	return b.NumFailedChecks > 0
}

// SetLogSink installs the function called with each non-silenced
// failure's location and message. It may be nil.
func (b *Bus) SetLogSink(fn func(file string, line int, message string)) {
	b.onFail = fn
}

// InstallHandler binds the assertion-failure handler for the duration
// of a test body, letting a cooperating library's own assertion hooks
// funnel through this bus. Uninstall unbinds it once the body returns.
func (b *Bus) InstallHandler(fn func()) {
	b.handler = fn
}

// Uninstall clears the currently bound handler.
func (b *Bus) Uninstall() {
	b.handler = nil
}

// RecordResult is the single entry point used by the Check protocol.
// terminate is true for REQUIRE-style checks. ok is the check's verdict;
// file/line/message describe the failure if !ok.
//
// RecordResult panics with failureSignal when the check must unwind:
// terminate is set or AlwaysTerminate is on. A bound handler, if any,
// is called just before the signal is raised.
func (b *Bus) RecordResult(ok bool, terminate bool, file string, line int, message string) {
	b.NumChecks++

	if ok {
		return
	}

	b.NumFailedChecks++

	if !b.Silenced && b.onFail != nil {
		b.onFail(file, line, message)
	}

	if b.first == nil {
		b.first = &FirstFailure{File: file, Line: line, Message: message}
	}

	if terminate || b.AlwaysTerminate {
		if b.handler != nil {
			b.handler()
		}

		Raise(fmt.Sprintf("%s:%d: %s", file, line, message))
	}
}
