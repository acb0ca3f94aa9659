package isorazor

import (
	"encoding/json"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/itsatony/go-isorazor/internal"
)

// loadedClass is a template class ready to instantiate
type loadedClass struct {
	typeName string
	baseType string
	imports  []string
	factory  BaseTypeFactory
	program  *internal.Program
}

// loadedArtifact is a decoded artifact file
type loadedArtifact struct {
	location string
	classes  map[string]*loadedClass
}

// artifactTable is the process-wide set of loaded artifacts, keyed by
// location. Artifacts are immutable so sharing them between templaters is
// safe.
var artifactTable = struct {
	mu sync.Mutex
	m  map[string]*loadedArtifact
}{m: make(map[string]*loadedArtifact)}

// loadArtifact returns the loaded artifact at location, reading it on
// first use.
func loadArtifact(location string) (*loadedArtifact, error) {
	artifactTable.mu.Lock()
	defer artifactTable.mu.Unlock()
	if art, ok := artifactTable.m[location]; ok {
		return art, nil
	}

	art, err := readArtifact(location)
	if err != nil {
		return nil, err
	}
	artifactTable.m[location] = art
	return art, nil
}

func readArtifact(location string) (*loadedArtifact, error) {
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, NewBoundaryError(ErrMsgBadArtifact, err)
	}
	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, NewBoundaryError(ErrMsgBadArtifact, err)
	}
	if artifact.Format != ArtifactFormat {
		return nil, NewValidationError(ErrMsgArtifactFormat, MetaKeyLocation, location)
	}

	art := &loadedArtifact{location: location, classes: make(map[string]*loadedClass, len(artifact.Classes))}
	for _, class := range artifact.Classes {
		factory, err := ResolveBaseType(class.BaseType)
		if err != nil {
			return nil, err
		}
		program, err := internal.DecodeProgram(class.Program)
		if err != nil {
			return nil, NewBoundaryError(ErrMsgBadArtifact, err)
		}
		typeName := QualifiedTypeName(artifact.Namespace, class.Name)
		art.classes[typeName] = &loadedClass{
			typeName: typeName,
			baseType: class.BaseType,
			imports:  class.Imports,
			factory:  factory,
			program:  program,
		}
	}
	return art, nil
}

// class returns the named class of the artifact. An unknown class is
// reported as a missing template.
func (a *loadedArtifact) class(typeName string) (*loadedClass, error) {
	class, ok := a.classes[typeName]
	if !ok {
		return nil, NewTemplateNotFoundError(typeName)
	}
	return class, nil
}

// unloadArtifacts drops locations from the table
func unloadArtifacts(locations ...string) {
	artifactTable.mu.Lock()
	defer artifactTable.mu.Unlock()
	for _, loc := range locations {
		delete(artifactTable.m, loc)
	}
}

// loadedArtifactCount reports how many artifacts are loaded
func loadedArtifactCount() int {
	artifactTable.mu.Lock()
	defer artifactTable.mu.Unlock()
	return len(artifactTable.m)
}

// instantiate creates a template instance of the class. Every instance
// gets its own function registry bound to caps.
func (c *loadedClass) instantiate(caps Capabilities, stop func() bool, logger *zap.Logger) Template {
	body := &programBody{
		program: c.program,
		funcs:   internal.NewImportedRegistry(c.imports, capabilityFuncs(caps)...),
		stop:    stop,
		logger:  logger,
	}
	return c.factory(body)
}
