package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/itsatony/go-isorazor"
)

type compileOptions struct {
	template    string
	name        string
	asLayout    bool
	templateDir string
	persist     bool
	format      string
}

// compileResult is the JSON form of a successful compile
type compileResult struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

func newCompileCommand(g *globalOptions, stdin io.Reader) *cobra.Command {
	o := &compileOptions{}
	cmd := &cobra.Command{
		Use:   CmdNameCompile,
		Short: "Compile a template and print the artifact location",
		Long: `Compile a template without rendering it. Diagnostics go to stderr
and the command exits with code 3 when the template does not compile.
With --persist the artifact and the cache survive in --template-dir.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCompile(cmd, g, o, stdin)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.template, FlagTemplate, FlagTemplateShort, "", "Template file (- for stdin)")
	f.StringVar(&o.name, FlagName, "", "Template name (default: file name)")
	f.BoolVar(&o.asLayout, FlagAsLayout, false, "Compile as a layout")
	f.StringVar(&o.templateDir, FlagTemplateDir, "", "Artifact directory")
	f.BoolVar(&o.persist, FlagPersist, false, "Keep the artifact cache after exit")
	f.StringVarP(&o.format, FlagFormat, FlagFormatShort, FlagDefaultFormat, "Output format: text or json")
	return cmd
}

func runCompile(cmd *cobra.Command, g *globalOptions, o *compileOptions, stdin io.Reader) error {
	if o.template == "" {
		return newCLIError(ExitCodeUsageError, ErrMsgMissingTemplate, nil)
	}
	if o.format != OutputFormatText && o.format != OutputFormatJSON {
		return newCLIError(ExitCodeUsageError, ErrMsgInvalidFormat, fmt.Errorf("%q", o.format))
	}
	source, err := readInput(o.template, stdin)
	if err != nil {
		return newCLIError(ExitCodeInputError, ErrMsgReadFileFailed, err)
	}

	extra := []isorazor.Option{isorazor.WithIsolation(isorazor.IsolationInProcess)}
	if o.templateDir != "" {
		extra = append(extra, isorazor.WithTemplateDir(o.templateDir))
	}
	if o.persist {
		extra = append(extra, isorazor.WithPersistence(true))
	}
	opts, err := g.templaterOptions(cmd.ErrOrStderr(), extra...)
	if err != nil {
		return err
	}
	t, err := isorazor.New(opts...)
	if err != nil {
		return newCLIError(ExitCodeError, ErrMsgSetupFailed, err)
	}
	defer t.Close()

	name := o.name
	if name == "" {
		name = templateName(o.template)
	}
	compile := t.Compile
	if o.asLayout {
		compile = t.CompileLayout
	}
	location, err := compile(cmd.Context(), name, string(source), modTime(o.template))
	if err != nil {
		return classify(ErrMsgCompileFailed, err)
	}

	out := cmd.OutOrStdout()
	if o.format == OutputFormatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(compileResult{Name: name, Location: location})
	}
	fmt.Fprintln(out, location)
	return nil
}
