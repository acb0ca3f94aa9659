package isorazor

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/itsatony/go-isorazor/internal"
)

// FuncNameReadText is the template function reading a text file
const FuncNameReadText = "ReadText"

// Capabilities restrict what template code may touch. TemplateDir is the
// working directory of a render; ReadDirs are additionally readable.
type Capabilities struct {
	TemplateDir string   `json:"template_dir" yaml:"template_dir"`
	ReadDirs    []string `json:"read_dirs" yaml:"read_dirs"`
}

// allowedRoots returns the absolute, cleaned readable directories
func (c Capabilities) allowedRoots() []string {
	var roots []string
	for _, dir := range append([]string{c.TemplateDir}, c.ReadDirs...) {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		roots = append(roots, filepath.Clean(abs))
	}
	return roots
}

// CheckRead returns the absolute path for a readable file, or a
// PermissionError when path lies outside every allowed directory.
// Relative paths are taken from the template directory.
func (c Capabilities) CheckRead(path string) (string, error) {
	if !filepath.IsAbs(path) && c.TemplateDir != "" {
		path = filepath.Join(c.TemplateDir, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", NewPermissionError(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	for _, root := range c.allowedRoots() {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return abs, nil
		}
	}
	return "", NewPermissionError(path)
}

// ReadText reads a file the capabilities allow
func (c Capabilities) ReadText(path string) (string, error) {
	abs, err := c.CheckRead(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// capabilityFuncs returns the template functions bound to caps
func capabilityFuncs(caps Capabilities) []*internal.Func {
	return []*internal.Func{
		{
			Name:    FuncNameReadText,
			Group:   internal.GroupIO,
			MinArgs: 1,
			MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				return caps.ReadText(internal.FormatValue(args[0]))
			},
		},
	}
}

// checkFuncs lists the capability functions for compile-time call checks
func checkFuncs() []*internal.Func {
	return capabilityFuncs(Capabilities{})
}
