package main

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// versionInfo describes the running binary
type versionInfo struct {
	Version   string `json:"version"`
	Module    string `json:"module"`
	GoVersion string `json:"go_version"`
}

func readVersionInfo() versionInfo {
	info := versionInfo{
		Version:   VersionUnknown,
		Module:    VersionUnknown,
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.Module = bi.Main.Path
		if bi.Main.Version != "" {
			info.Version = bi.Main.Version
		}
	}
	return info
}

func newVersionCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   CmdNameVersion,
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := readVersionInfo()
			out := cmd.OutOrStdout()
			switch format {
			case OutputFormatText:
				fmt.Fprintf(out, VersionTextTemplate, info.Version, info.Module, info.GoVersion)
				return nil
			case OutputFormatJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			return newCLIError(ExitCodeUsageError, ErrMsgInvalidFormat, fmt.Errorf("%q", format))
		},
	}
	cmd.Flags().StringVarP(&format, FlagFormat, FlagFormatShort, FlagDefaultFormat, "Output format: text or json")
	return cmd
}
