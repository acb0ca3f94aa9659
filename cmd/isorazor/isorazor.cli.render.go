package main

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/itsatony/go-isorazor"
)

type renderOptions struct {
	template  string
	name      string
	layouts   []string
	includes  []string
	data      string
	dataFile  string
	bag       string
	output    string
	timeoutMs int
	isolation string
	encoding  string
	baseURL   string
}

func newRenderCommand(g *globalOptions, stdin io.Reader) *cobra.Command {
	o := &renderOptions{}
	cmd := &cobra.Command{
		Use:   CmdNameRender,
		Short: "Render a template with an optional JSON model",
		Example: `  isorazor render -t page.cshtml -l _Layout=layout.cshtml -d '{"Name":"Ada"}'
  cat page.cshtml | isorazor render -t - --encoding raw`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRender(cmd, g, o, stdin)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.template, FlagTemplate, FlagTemplateShort, "", "Template file (- for stdin)")
	f.StringVar(&o.name, FlagName, "", "Template name (default: file name)")
	f.StringArrayVarP(&o.layouts, FlagLayout, FlagLayoutShort, nil, "Layout as name=path (repeatable)")
	f.StringArrayVarP(&o.includes, FlagInclude, FlagIncludeShort, nil, "Included template as name=path (repeatable)")
	f.StringVarP(&o.data, FlagData, FlagDataShort, "", "JSON model")
	f.StringVarP(&o.dataFile, FlagDataFile, FlagDataFileShort, "", "JSON model file")
	f.StringVar(&o.bag, FlagViewBag, "", "JSON object for the view bag")
	f.StringVarP(&o.output, FlagOutput, FlagOutputShort, FlagDefaultOutput, "Output file (- for stdout)")
	f.IntVar(&o.timeoutMs, FlagTimeout, FlagDefaultTimeout, "Render deadline in milliseconds (0 disables)")
	f.StringVar(&o.isolation, FlagIsolation, isorazor.IsolationProcess, "Isolation mode: process or inprocess")
	f.StringVar(&o.encoding, FlagEncoding, FlagDefaultEncoding, "Output encoding: html or raw")
	f.StringVar(&o.baseURL, FlagBaseURL, "", "What ~ expands to in ResolveUrl")
	return cmd
}

func runRender(cmd *cobra.Command, g *globalOptions, o *renderOptions, stdin io.Reader) error {
	if o.template == "" {
		return newCLIError(ExitCodeUsageError, ErrMsgMissingTemplate, nil)
	}
	encoding, err := isorazor.ParseEncoding(o.encoding)
	if err != nil {
		return newCLIError(ExitCodeUsageError, err.Error(), nil)
	}

	source, err := readInput(o.template, stdin)
	if err != nil {
		return newCLIError(ExitCodeInputError, ErrMsgReadFileFailed, err)
	}
	model, err := loadJSON(o.data, o.dataFile)
	if err != nil {
		return newCLIError(ExitCodeInputError, ErrMsgInvalidJSON, err)
	}
	bagData, err := loadJSON(o.bag, "")
	if err != nil {
		return newCLIError(ExitCodeInputError, ErrMsgInvalidJSON, err)
	}

	paths := []string{o.template}
	for _, v := range append(append([]string(nil), o.layouts...), o.includes...) {
		_, p := splitNamed(v)
		paths = append(paths, p)
	}

	extra := []isorazor.Option{
		isorazor.WithIsolation(o.isolation),
		isorazor.WithRenderTimeout(time.Duration(o.timeoutMs) * time.Millisecond),
		isorazor.WithAllowedReadDirs(allowedDirs(paths...)...),
	}
	if o.baseURL != "" {
		extra = append(extra, isorazor.WithBaseURL(o.baseURL))
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

	// A nil map must stay a nil interface.
	var m any
	if model != nil {
		m = model
	}
	baseType := isorazor.BaseTypeForModel(m)

	ctx := cmd.Context()
	for _, v := range o.layouts {
		if err := compileFile(cmd, t, v, true, stdin); err != nil {
			return err
		}
	}
	// includes share the page model, so they compile against its type
	for _, v := range o.includes {
		if err := compileFile(cmd, t, v, false, stdin, isorazor.WithBaseType(baseType)); err != nil {
			return err
		}
	}

	name := o.name
	if name == "" {
		name = templateName(o.template)
	}

	var bag *isorazor.ViewBag
	if bagData != nil {
		bag = isorazor.ViewBagFromMap(bagData)
	}

	if _, err := t.Compile(ctx, name, string(source), modTime(o.template), isorazor.WithBaseType(baseType)); err != nil {
		return classify(ErrMsgCompileFailed, err)
	}
	out, err := t.Render(ctx, name, m, bag,
		isorazor.WithEncoding(encoding),
		isorazor.WithTimeout(time.Duration(o.timeoutMs)*time.Millisecond),
	)
	if err != nil {
		return classify(ErrMsgRenderFailed, err)
	}

	if err := writeOutput(o.output, []byte(out), cmd.OutOrStdout()); err != nil {
		return newCLIError(ExitCodeError, ErrMsgWriteOutputFailed, err)
	}
	return nil
}

// compileFile compiles one name=path flag value as a layout or a template
func compileFile(cmd *cobra.Command, t *isorazor.Templater, value string, layout bool, stdin io.Reader, opts ...isorazor.CompileOption) error {
	name, path := splitNamed(value)
	text, err := readInput(path, stdin)
	if err != nil {
		return newCLIError(ExitCodeInputError, ErrMsgReadFileFailed, err)
	}
	if layout {
		_, err = t.CompileLayout(cmd.Context(), name, string(text), modTime(path))
	} else {
		_, err = t.Compile(cmd.Context(), name, string(text), modTime(path), opts...)
	}
	if err != nil {
		return classify(ErrMsgCompileFailed, err)
	}
	return nil
}
