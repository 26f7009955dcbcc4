// Package debugconsole implements the optional liner-backed REPL the
// Runner drops into when a test configured with the Debug option fails. It never
// changes pass/fail semantics: it is purely a place to inspect the
// failing trace before the assertion-failure signal is allowed to
// propagate.
package debugconsole

import (
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
)

// Trace is the minimal view of a failing run the console can print; the
// Runner supplies it so this package stays free of a dependency on
// internal/trace or internal/mctdriver.
type Trace struct {
	TestName        string
	FailureMessage  string
	ReproduceString string
	OpSummaries     []string
}

// Run starts the console, reading commands from in-process liner input
// and writing to out, until the user quits. It returns when the user
// types "continue"/"c" or "quit"/"q"; the caller (the Runner) decides
// what each means for control flow.
func Run(out io.Writer, tr Trace) {
	fmt.Fprintf(out, "nexus debug console: test %q failed\n", tr.TestName)
	fmt.Fprintln(out, "type 'help' for available commands")

	l := liner.NewLiner()
	defer l.Close()

	l.SetCtrlCAborts(true)

	for {
		line, err := l.Prompt("nexus-debug> ")
		if err != nil {
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		l.AppendHistory(line)

		switch strings.ToLower(strings.Fields(line)[0]) {
		case "continue", "c", "quit", "q":
			return
		case "trace", "t":
			if len(tr.OpSummaries) == 0 {
				fmt.Fprintln(out, "(no ops recorded)")

				continue
			}

			for i, op := range tr.OpSummaries {
				fmt.Fprintf(out, "%4d: %s\n", i, op)
			}
		case "repr", "r":
			fmt.Fprintln(out, tr.ReproduceString)
		case "why":
			fmt.Fprintln(out, tr.FailureMessage)
		case "help", "?":
			printHelp(out)
		default:
			fmt.Fprintf(out, "unknown command %q, type 'help'\n", line)
		}
	}
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "  trace, t      print every op in the failing trace")
	fmt.Fprintln(out, "  repr, r       print the reproduction string")
	fmt.Fprintln(out, "  why           print the first failure message")
	fmt.Fprintln(out, "  continue, c   let the failure propagate")
	fmt.Fprintln(out, "  quit, q       same as continue")
}
