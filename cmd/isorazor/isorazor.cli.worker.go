package main

import (
	"github.com/spf13/cobra"

	"github.com/itsatony/go-isorazor"
)

// newWorkerCommand serves the worker protocol on stdin/stdout. Templaters
// started with WithWorkerCommand("isorazor", "worker") use it instead of
// re-executing their own binary.
func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:    CmdNameWorker,
		Short:  "Serve template compile and render requests on stdin/stdout",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := isorazor.ServeWorker(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
				return newCLIError(ExitCodeError, isorazor.ErrMsgWorkerFailed, err)
			}
			return nil
		},
	}
}
