package internal

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Position represents a location in the template source
type Position struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

// String returns a human-readable position string
func (p Position) String() string {
	return fmt.Sprintf("line %d, column %d", p.Line, p.Column)
}

// Tagged is a string with the source offset it came from
type Tagged struct {
	Value    string `json:"value"`
	Position int    `json:"position"`
}

// AttrSegment is one whitespace-separated part of an attribute value
type AttrSegment struct {
	Prefix   Tagged `json:"prefix"`
	Text     string `json:"text,omitempty"`
	Expr     string `json:"expr,omitempty"`
	Literal  bool   `json:"literal"`
	Position int    `json:"position"`
}

// Attribute is a markup attribute whose value contains code
type Attribute struct {
	Name     string        `json:"name"`
	Prefix   Tagged        `json:"prefix"`
	Suffix   Tagged        `json:"suffix"`
	Segments []AttrSegment `json:"segments"`
}

// Node is one instruction of a template program
type Node struct {
	Kind     NodeKind   `json:"kind"`
	Text     string     `json:"text,omitempty"`
	Expr     string     `json:"expr,omitempty"`
	Var      string     `json:"var,omitempty"`
	Declare  bool       `json:"declare,omitempty"`
	Children []*Node    `json:"children,omitempty"`
	Else     []*Node    `json:"else,omitempty"`
	Attr     *Attribute `json:"attr,omitempty"`
	Pos      Position   `json:"pos"`
}

// Program is the compiled form of one template class
type Program struct {
	Nodes []*Node `json:"nodes"`

	linkOnce sync.Once
	linkErr  error
	exprs    map[string]ExprNode
}

// Diagnostic is a single problem found while parsing or linking
type Diagnostic struct {
	Message  string   `json:"message"`
	Position Position `json:"position"`
}

// String formats the diagnostic with its position
func (d Diagnostic) String() string {
	return fmt.Sprintf("%s (%s)", d.Message, d.Position)
}

// DiagnosticsError carries one or more diagnostics
type DiagnosticsError struct {
	Diagnostics []Diagnostic
}

// Error joins all diagnostics into one message
func (e *DiagnosticsError) Error() string {
	parts := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		parts[i] = d.String()
	}
	return strings.Join(parts, "; ")
}

// DecodeProgram decodes a serialized program
func DecodeProgram(data []byte) (*Program, error) {
	var p Program
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Encode serializes the program
func (p *Program) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// exprSite is an expression together with where it appears
type exprSite struct {
	source string
	pos    Position
}

// expressions lists every expression in the program in source order
func (p *Program) expressions() []exprSite {
	var sites []exprSite
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			if n.Expr != "" {
				sites = append(sites, exprSite{source: n.Expr, pos: n.Pos})
			}
			if n.Attr != nil {
				for _, seg := range n.Attr.Segments {
					if !seg.Literal {
						sites = append(sites, exprSite{source: seg.Expr, pos: n.Pos})
					}
				}
			}
			walk(n.Children)
			walk(n.Else)
		}
	}
	walk(p.Nodes)
	return sites
}

// Link parses every expression once. It is safe to call concurrently; the
// first result is kept.
func (p *Program) Link() error {
	p.linkOnce.Do(func() {
		exprs := make(map[string]ExprNode)
		var diags []Diagnostic
		for _, site := range p.expressions() {
			if _, done := exprs[site.source]; done {
				continue
			}
			node, err := ParseExpression(site.source)
			if err != nil {
				diags = append(diags, Diagnostic{
					Message:  fmt.Sprintf("%v in %q", err, site.source),
					Position: site.pos,
				})
				continue
			}
			exprs[site.source] = node
		}
		if len(diags) > 0 {
			p.linkErr = &DiagnosticsError{Diagnostics: diags}
			return
		}
		p.exprs = exprs
	})
	return p.linkErr
}

// Expr returns the linked expression for source
func (p *Program) Expr(source string) (ExprNode, bool) {
	node, ok := p.exprs[source]
	return node, ok
}

// CheckCalls reports calls to functions that are neither runtime members nor
// available through the imported groups. Method calls on values are checked
// at run time.
func (p *Program) CheckCalls(imports []string, extra ...*Func) []Diagnostic {
	if err := p.Link(); err != nil {
		return nil
	}
	available := NewImportedRegistry(imports, extra...)
	members := make(map[string]bool, len(RuntimeMembers))
	for _, m := range RuntimeMembers {
		members[m] = true
	}

	seen := make(map[string]bool)
	var diags []Diagnostic
	for _, site := range p.expressions() {
		WalkExpr(p.exprs[site.source], func(n ExprNode) {
			call, ok := n.(*CallNode)
			if !ok || call.IsMethodCall() || members[call.Name] || available.Has(call.Name) || seen[call.Name] {
				return
			}
			seen[call.Name] = true
			msg := fmt.Sprintf("%s: %s", ErrMsgUnknownFunction, call.Name)
			if group, known := FuncGroupOf(call.Name, extra...); known {
				msg = fmt.Sprintf("%s %s: %s", ErrMsgFunctionNotImport, group, call.Name)
			}
			diags = append(diags, Diagnostic{Message: msg, Position: site.pos})
		})
	}
	sort.SliceStable(diags, func(i, j int) bool {
		return diags[i].Position.Offset < diags[j].Position.Offset
	})
	return diags
}

// CountNodes returns the number of nodes in the program
func (p *Program) CountNodes() int {
	var count func(nodes []*Node) int
	count = func(nodes []*Node) int {
		n := len(nodes)
		for _, node := range nodes {
			n += count(node.Children) + count(node.Else)
		}
		return n
	}
	return count(p.Nodes)
}
