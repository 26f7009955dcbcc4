package nexus

import (
	"fmt"
	"reflect"

	"github.com/google/go-cmp/cmp"

	"github.com/arcana-nexus/nexus/internal/assertbus"
	"github.com/arcana-nexus/nexus/internal/valuepool"
)

// TB is implemented by *T. It is the minimal surface the Check/Require
// functions need. Each call records exactly one comparison or one
// boolean; compound conditions must be split into multiple calls, which
// keeps every failure message attributable to a single predicate.
type TB interface {
	bus() *assertbus.Bus
}

func (t *T) bus() *assertbus.Bus { return t.handle.Bus }

// RegisterTypeString registers a representative-string printer for V
// values, used in check failure messages and in paired-value mismatch
// reports. Unregistered types fall back to fmt.Sprintf("%v", ...).
// Call it from an init func, alongside test registration.
func RegisterTypeString[V any](fn func(v V) string) {
	valuepool.Default.SetString(reflect.TypeOf((*V)(nil)).Elem(), func(v any) string {
		return fn(v.(V))
	})
}

// RegisterTypeEqual registers the equality used for V values by
// CheckEqual/RequireEqual and by non-bridge paired comparisons in
// equivalence mode. Unregistered types fall back to reflect.DeepEqual.
// Call it from an init func, alongside test registration.
func RegisterTypeEqual[V any](fn func(a, b V) bool) {
	valuepool.Default.SetEqual(reflect.TypeOf((*V)(nil)).Elem(), func(a, b any) bool {
		bv, ok := b.(V)
		if !ok {
			return false
		}

		return fn(a.(V), bv)
	})
}

func formatMsg(msgAndArgs []any) string {
	if len(msgAndArgs) == 0 {
		return ""
	}

	if format, ok := msgAndArgs[0].(string); ok && len(msgAndArgs) > 1 {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}

	return fmt.Sprint(msgAndArgs...)
}

func finish(tb TB, ok, terminate bool, file string, line int, message string) bool {
	tb.bus().RecordResult(ok, terminate, file, line, message)

	return ok
}

// safeDiff enriches a failure message with a structural diff where
// go-cmp can produce one. cmp panics on types with unexported fields
// and no Equal method, so the panic is swallowed and the caller falls
// back to the representative strings alone.
func safeDiff[T any](lhs, rhs T) (diff string) {
	defer func() {
		if recover() != nil {
			diff = ""
		}
	}()

	return cmp.Diff(lhs, rhs)
}

func diffMessage[T any](ok bool, lhs, rhs T, prefix string, msgAndArgs []any) string {
	if ok {
		return ""
	}

	if custom := formatMsg(msgAndArgs); custom != "" {
		prefix = custom
	}

	msg := fmt.Sprintf("%s: lhs: %s, rhs: %s", prefix, valuepool.Default.Repr(lhs), valuepool.Default.Repr(rhs))

	if d := safeDiff(lhs, rhs); d != "" {
		msg += "\n(-lhs +rhs):\n" + d
	}

	return msg
}

func condMessage(ok bool, def string, msgAndArgs []any) string {
	if ok {
		return ""
	}

	if custom := formatMsg(msgAndArgs); custom != "" {
		return custom
	}

	return def
}

// CheckEqual reports lhs != rhs as a failed, non-terminating check.
// Equality is the type-registered hook when one exists (see
// RegisterTypeEqual), else reflect.DeepEqual.
func CheckEqual[T any](tb TB, lhs, rhs T, msgAndArgs ...any) bool {
	file, line := callerLoc(2)
	ok := valuepool.Default.Equal(lhs, rhs)

	return finish(tb, ok, false, file, line, diffMessage(ok, lhs, rhs, "values not equal", msgAndArgs))
}

// RequireEqual is CheckEqual, escalated to terminate the test on failure.
func RequireEqual[T any](tb TB, lhs, rhs T, msgAndArgs ...any) {
	file, line := callerLoc(2)
	ok := valuepool.Default.Equal(lhs, rhs)

	finish(tb, ok, true, file, line, diffMessage(ok, lhs, rhs, "values not equal", msgAndArgs))
}

// CheckNotEqual reports lhs == rhs as a failed, non-terminating check.
func CheckNotEqual[T any](tb TB, lhs, rhs T, msgAndArgs ...any) bool {
	file, line := callerLoc(2)
	ok := !valuepool.Default.Equal(lhs, rhs)

	return finish(tb, ok, false, file, line, condMessage(ok, "values unexpectedly equal", msgAndArgs))
}

// RequireNotEqual is CheckNotEqual, escalated to terminate on failure.
func RequireNotEqual[T any](tb TB, lhs, rhs T, msgAndArgs ...any) {
	file, line := callerLoc(2)
	ok := !valuepool.Default.Equal(lhs, rhs)

	finish(tb, ok, true, file, line, condMessage(ok, "values unexpectedly equal", msgAndArgs))
}

// CheckTrue reports !cond as a failed, non-terminating check.
func CheckTrue(tb TB, cond bool, msgAndArgs ...any) bool {
	file, line := callerLoc(2)

	return finish(tb, cond, false, file, line, condMessage(cond, "expected condition to be true", msgAndArgs))
}

// RequireTrue is CheckTrue, escalated to terminate on failure.
func RequireTrue(tb TB, cond bool, msgAndArgs ...any) {
	file, line := callerLoc(2)

	finish(tb, cond, true, file, line, condMessage(cond, "expected condition to be true", msgAndArgs))
}

// CheckFalse reports cond as a failed, non-terminating check.
func CheckFalse(tb TB, cond bool, msgAndArgs ...any) bool {
	file, line := callerLoc(2)
	ok := !cond

	return finish(tb, ok, false, file, line, condMessage(ok, "expected condition to be false", msgAndArgs))
}

// RequireFalse is CheckFalse, escalated to terminate on failure.
func RequireFalse(tb TB, cond bool, msgAndArgs ...any) {
	file, line := callerLoc(2)
	ok := !cond

	finish(tb, ok, true, file, line, condMessage(ok, "expected condition to be false", msgAndArgs))
}
