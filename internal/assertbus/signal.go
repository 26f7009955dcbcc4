package assertbus

// failureSignal is the dedicated, single-variant assertion-failure
// channel. It is deliberately not a plain error: nothing in this
// codebase is permitted to construct one except Raise, and the only
// place that recovers it is Catch.
type failureSignal struct {
	reason string
}

// Raise unwinds the current goroutine with the assertion-failure signal.
// Callers outside of assertbus should never call this directly; go
// through Bus.RecordResult (CHECK/REQUIRE) instead.
func Raise(reason string) {
	panic(failureSignal{reason: reason})
}

// Catch runs fn and recovers a failureSignal raised inside it, returning
// the reason and true if one was caught. Any other panic value is
// re-panicked unchanged: only the assertion signal gets the non-local
// exit treatment, user bugs keep their stack trace.
func Catch(fn func()) (reason string, failed bool) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		sig, ok := r.(failureSignal)
		if !ok {
			panic(r)
		}

		reason = sig.reason
		failed = true
	}()

	fn()

	return "", false
}
