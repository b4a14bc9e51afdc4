package cli

import (
	"io"

	"github.com/spf13/pflag"
)

const versionString = "1.0.0"

type cliOptions struct {
	configPath  string
	watch       bool
	history     int
	historyJSON bool
	dependents  string
	noSplit     bool
	verbose     bool
	version     bool
}

func parseOptions(args []string, stderr io.Writer) (cliOptions, error) {
	var opts cliOptions
	fs := pflag.NewFlagSet("polybuild", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVarP(&opts.configPath, "config", "c", "", "Path to polybuild.toml (default: searched upward from the working directory)")
	fs.BoolVarP(&opts.watch, "watch", "w", false, "Rebuild whenever a project file changes")
	fs.IntVar(&opts.history, "history", 0, "Print the last N recorded builds and exit")
	fs.BoolVar(&opts.historyJSON, "json", false, "Print --history as JSON instead of TSV")
	fs.StringVar(&opts.dependents, "dependents", "", "Print the fragments that referenced a dependency URL in the last successful build")
	fs.BoolVar(&opts.noSplit, "no-split", false, "Write analyzed files without splitting inline scripts")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}
	return opts, nil
}
