package isorazor

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/itsatony/go-isorazor/internal"
)

// ParseRequest is the input of a Parser
type ParseRequest struct {
	Name      string
	Text      string
	ClassName string
	Imports   []string
	BaseType  string
}

// CompilableUnit is the parser output for one template class
type CompilableUnit struct {
	Name      string          `json:"name"`
	ClassName string          `json:"class_name"`
	BaseType  string          `json:"base_type"`
	Imports   []string        `json:"imports"`
	Code      json.RawMessage `json:"code"`
}

// Parser turns template text into a compilable unit. Failures are
// returned as *CompilationError.
type Parser interface {
	Parse(ctx context.Context, req ParseRequest) (*CompilableUnit, error)
}

// RazorParser is the default Parser for the Razor template syntax
type RazorParser struct {
	logger *zap.Logger
}

// NewRazorParser creates the default parser
func NewRazorParser(logger *zap.Logger) *RazorParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RazorParser{logger: logger}
}

// Parse parses req.Text into a serialized program
func (p *RazorParser) Parse(ctx context.Context, req ParseRequest) (*CompilableUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	program, err := internal.ParseTemplate(req.Text, p.logger)
	if err != nil {
		return nil, NewCompilationError(req.Name, err)
	}
	code, err := program.Encode()
	if err != nil {
		return nil, NewCompilationError(req.Name, err)
	}
	return &CompilableUnit{
		Name:      req.Name,
		ClassName: req.ClassName,
		BaseType:  req.BaseType,
		Imports:   req.Imports,
		Code:      code,
	}, nil
}
