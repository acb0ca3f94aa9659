package isorazor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"github.com/itsatony/go-isorazor/internal"
)

// Reference is a module an artifact was built against
type Reference struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

// Compiler turns parsed units into a loadable artifact written at
// outputPath and returns its location.
type Compiler interface {
	Compile(ctx context.Context, units []*CompilableUnit, references []Reference, outputPath string) (string, error)
}

// DedupeReferences keeps one reference per path, the one with the highest
// semantic version. Invalid versions lose to valid ones. The result is
// sorted by path.
func DedupeReferences(refs []Reference) []Reference {
	best := make(map[string]Reference, len(refs))
	for _, ref := range refs {
		if ref.Path == "" {
			continue
		}
		current, ok := best[ref.Path]
		if !ok || newerVersion(ref.Version, current.Version) {
			best[ref.Path] = ref
		}
	}

	out := make([]Reference, 0, len(best))
	for _, ref := range best {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func newerVersion(candidate, current string) bool {
	switch {
	case semver.IsValid(candidate) && !semver.IsValid(current):
		return true
	case !semver.IsValid(candidate):
		return false
	}
	return semver.Compare(candidate, current) > 0
}

// BuildReferences collects the modules of the running binary
func BuildReferences() []Reference {
	refs := []Reference{{Path: "go", Version: runtime.Version()}}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return refs
	}
	refs = append(refs, Reference{Path: info.Main.Path, Version: info.Main.Version})
	for _, dep := range info.Deps {
		mod := dep
		if dep.Replace != nil {
			mod = dep.Replace
		}
		refs = append(refs, Reference{Path: dep.Path, Version: mod.Version})
	}
	return DedupeReferences(refs)
}

// Artifact is the on-disk form of a compiled template or template group
type Artifact struct {
	Format     string          `json:"format"`
	Namespace  string          `json:"namespace"`
	References []Reference     `json:"references"`
	Classes    []ArtifactClass `json:"classes"`
}

// ArtifactClass is one compiled template class
type ArtifactClass struct {
	Name     string          `json:"name"`
	BaseType string          `json:"base_type"`
	Imports  []string        `json:"imports"`
	Program  json.RawMessage `json:"program"`
}

// ArtifactCompiler is the default Compiler. It validates every unit and
// writes a JSON artifact.
type ArtifactCompiler struct {
	namespace string
	logger    *zap.Logger
}

// NewArtifactCompiler creates the default compiler
func NewArtifactCompiler(namespace string, logger *zap.Logger) *ArtifactCompiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactCompiler{namespace: namespace, logger: logger}
}

// Compile validates the units and writes the artifact. All diagnostics of
// all units are reported together.
func (c *ArtifactCompiler) Compile(ctx context.Context, units []*CompilableUnit, references []Reference, outputPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	artifact := Artifact{
		Format:     ArtifactFormat,
		Namespace:  c.namespace,
		References: DedupeReferences(references),
	}
	var diags []Diagnostic
	for _, unit := range units {
		diags = append(diags, c.checkUnit(unit)...)
		artifact.Classes = append(artifact.Classes, ArtifactClass{
			Name:     unit.ClassName,
			BaseType: unit.BaseType,
			Imports:  unit.Imports,
			Program:  unit.Code,
		})
	}
	if len(diags) > 0 {
		return "", &CompilationError{Diagnostics: diags}
	}

	data, err := json.Marshal(artifact)
	if err != nil {
		return "", &CompilationError{Cause: err}
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), TemplateDirPerm); err != nil {
		return "", &CompilationError{Cause: err}
	}
	if err := os.WriteFile(outputPath, data, ArtifactFilePerm); err != nil {
		return "", &CompilationError{Cause: err}
	}
	c.logger.Debug(LogMsgCompileDone,
		zap.String(LogFieldLocation, outputPath),
		zap.Int(LogFieldClasses, len(artifact.Classes)))
	return outputPath, nil
}

func (c *ArtifactCompiler) checkUnit(unit *CompilableUnit) []Diagnostic {
	name := unit.Name
	if name == "" {
		name = unit.ClassName
	}
	if _, err := ResolveBaseType(unit.BaseType); err != nil {
		return []Diagnostic{{Template: name, Message: ErrMsgUnknownBaseType + ": " + unit.BaseType, Line: 1, Column: 1}}
	}

	program, err := internal.DecodeProgram(unit.Code)
	if err != nil {
		return []Diagnostic{{Template: name, Message: ErrMsgBadArtifact + ": " + err.Error()}}
	}
	if err := program.Link(); err != nil {
		return NewCompilationError(name, err).Diagnostics
	}
	return convertDiagnostics(name, program.CheckCalls(unit.Imports, checkFuncs()...))
}
