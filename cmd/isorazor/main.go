package main

import (
	"io"
	"os"

	"github.com/itsatony/go-isorazor"
)

func main() {
	// A re-executed worker never reaches the command line parser.
	isorazor.RunWorkerIfRequested()

	exitCode := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// run is the CLI entry point, separated for testing
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCommand(stdin)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		return exitCodeFor(err, stderr)
	}
	return ExitCodeSuccess
}
