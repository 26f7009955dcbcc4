package runner

import (
	"fmt"
	"io"

	flag "github.com/spf13/pflag"
)

// Config is the parsed CLI input the Runner consumes.
type Config struct {
	PrintHelp         bool
	ForceEndless      bool
	ForceReproduction string
	XMLOutputPath     string
	ConfigPath        string

	// Names is the positional-argument list: explicit test/app names,
	// OR'ed together. The same slice is forwarded verbatim as each
	// selected App's residual argv.
	Names []string
}

// ParseArgs parses args (typically os.Args[1:]) into a Config.
func ParseArgs(args []string) (Config, error) {
	fs := flag.NewFlagSet("nexus", flag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.Usage = func() {}
	fs.SetOutput(io.Discard)

	help := fs.BoolP("help", "h", false, "Show help")
	endless := fs.Bool("endless", false, "Force endless mode on every fuzz/MCT test")
	repr := fs.String("repr", "", "Force reproduction from a seed or trace `string`")
	xmlOut := fs.String("xml", "", "Write a JUnit-compatible XML report to `path`")
	cfgPath := fs.String("config", "", "Load run configuration from `path`")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return Config{
		PrintHelp:         *help,
		ForceEndless:      *endless,
		ForceReproduction: *repr,
		XMLOutputPath:     *xmlOut,
		ConfigPath:        *cfgPath,
		Names:             fs.Args(),
	}, nil
}

// PrintUsage writes the tool's usage lines to out.
func PrintUsage(out io.Writer) {
	fmt.Fprintln(out, "usage: nexus [options] [test-or-app-name ...]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "options:")
	fmt.Fprintln(out, "  -h, --help          show this help")
	fmt.Fprintln(out, "      --endless       force endless mode on every fuzz/MCT test")
	fmt.Fprintln(out, "      --repr string   force reproduction from a seed or trace string")
	fmt.Fprintln(out, "      --xml path      write a JUnit-compatible XML report to path")
	fmt.Fprintln(out, "      --config path   load run configuration from path")
}
