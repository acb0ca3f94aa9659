package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/itsatony/go-isorazor"
)

// globalOptions are shared by every subcommand
type globalOptions struct {
	configPath string
	verbose    bool
}

// cliError carries the exit code a failure maps to
type cliError struct {
	code int
	msg  string
	err  error
}

func (e *cliError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *cliError) Unwrap() error { return e.err }

func newCLIError(code int, msg string, err error) error {
	return &cliError{code: code, msg: msg, err: err}
}

// exitCodeFor prints err and returns its exit code
func exitCodeFor(err error, stderr io.Writer) int {
	var ce *cliError
	if !errors.As(err, &ce) {
		fmt.Fprintf(stderr, FmtErrorWithCause, CLIName, err)
		return ExitCodeError
	}

	if ce.err == nil {
		fmt.Fprintln(stderr, ce.msg)
	} else {
		fmt.Fprintf(stderr, FmtErrorWithCause, ce.msg, ce.err)
	}
	return ce.code
}

// newRootCommand builds the command tree
func newRootCommand(stdin io.Reader) *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:           CLIName,
		Short:         CLIDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return newCLIError(ExitCodeUsageError, ErrMsgUnknownCommand, fmt.Errorf("%q", args[0]))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, FlagConfig, "", "YAML config file")
	root.PersistentFlags().BoolVarP(&g.verbose, FlagVerbose, FlagVerboseShort, false, "Log to stderr")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newCLIError(ExitCodeUsageError, err.Error(), nil)
	})

	root.AddCommand(
		newRenderCommand(g, stdin),
		newCompileCommand(g, stdin),
		newWorkerCommand(),
		newVersionCommand(),
	)
	return root
}

// templaterOptions collects options from the config file and the flags.
// Flag options come last and win.
func (g *globalOptions) templaterOptions(stderr io.Writer, extra ...isorazor.Option) ([]isorazor.Option, error) {
	var opts []isorazor.Option
	if g.configPath != "" {
		cfg, err := isorazor.LoadConfig(g.configPath)
		if err != nil {
			return nil, newCLIError(ExitCodeInputError, ErrMsgSetupFailed, err)
		}
		fromConfig, err := cfg.Options()
		if err != nil {
			return nil, newCLIError(ExitCodeError, ErrMsgSetupFailed, err)
		}
		opts = append(opts, fromConfig...)
	}
	if g.verbose {
		opts = append(opts, isorazor.WithLogger(newLogger(stderr)))
	}
	return append(opts, extra...), nil
}

func newLogger(w io.Writer) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(w),
		zap.DebugLevel,
	)
	return zap.New(core)
}

// allowedDirs returns the directories of the template files, so ReadText
// can reach files next to them.
func allowedDirs(paths ...string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, p := range paths {
		if p == "" || p == InputSourceStdin {
			continue
		}
		dir, err := filepath.Abs(filepath.Dir(p))
		if err != nil || seen[dir] {
			continue
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	if len(dirs) == 0 {
		if wd, err := os.Getwd(); err == nil {
			dirs = append(dirs, wd)
		}
	}
	return dirs
}

// classify maps library errors to exit codes
func classify(msg string, err error) error {
	var compErr *isorazor.CompilationError
	switch {
	case errors.As(err, &compErr):
		return newCLIError(ExitCodeValidationError, ErrMsgCompileFailed, compErr)
	case errors.Is(err, isorazor.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return newCLIError(ExitCodeTimeout, ErrMsgRenderTimeout, err)
	case errors.Is(err, isorazor.ErrModelMismatch), errors.Is(err, isorazor.ErrMissingSection):
		return newCLIError(ExitCodeValidationError, msg, err)
	}
	return newCLIError(ExitCodeError, msg, err)
}
