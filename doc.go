// Package nexus is a unit- and property-testing harness. A test binary
// self-registers its test cases at program start; the harness then
// discovers, selects, seeds, runs, times, and reports them.
//
// The package's hardest piece is the model-based testing engine, which
// dynamically composes heterogeneous user-supplied operations over a
// typed value pool, enforces preconditions and invariants, detects
// failure via assertion interception, shrinks a failing trace by
// well-founded edit moves, and serializes a replayable reproduction
// string. Everything else — CLI parsing, scratch directories, XML
// reporting — is a thin collaborator around that core.
//
// A typical test binary looks like:
//
//	func init() {
//	    nexus.Test("stack/push-pop", func(t *nexus.T) {
//	        mt := nexus.NewMachineTest(t)
//	        mt.AddOp("newStack", func() stack { return stack{} })
//	        mt.AddOp("push", func(s *stack, v int) { s.items = append(s.items, v) })
//	        mt.AddOp("pop", func(s *stack) int { return s.pop() })
//	        mt.AddInvariant("sizeNonNegative", func(s stack) bool { return len(s.items) >= 0 })
//	        mt.Execute()
//	    })
//	}
//
//	func main() {
//	    os.Exit(nexus.Run(os.Args[1:]))
//	}
package nexus
