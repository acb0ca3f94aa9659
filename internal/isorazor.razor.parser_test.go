package internal

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ignorePos = cmpopts.IgnoreFields(Node{}, "Pos")

func text(s string) *Node { return &Node{Kind: NodeKindText, Text: s} }
func expr(s string) *Node { return &Node{Kind: NodeKindExpr, Expr: s} }

func parseNodes(t *testing.T, source string) []*Node {
	t.Helper()
	program, err := ParseTemplate(source, nil)
	require.NoError(t, err)
	return program.Nodes
}

func TestRazorParser_Structure(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		expected []*Node
	}{
		{
			name:     "plain text",
			source:   "Hello world",
			expected: []*Node{text("Hello world")},
		},
		{
			name:     "implicit expression",
			source:   "Hello @Model.Name!",
			expected: []*Node{text("Hello "), expr("Model.Name"), text("!")},
		},
		{
			name:     "implicit call",
			source:   `<p>@Include("Footer", Model)</p>`,
			expected: []*Node{text("<p>"), expr(`Include("Footer", Model)`), text("</p>")},
		},
		{
			name:     "trailing dot is text",
			source:   "Bye @Model.Name.",
			expected: []*Node{text("Bye "), expr("Model.Name"), text(".")},
		},
		{
			name:     "explicit expression",
			source:   "@(1 + 2)px",
			expected: []*Node{expr("1 + 2"), text("px")},
		},
		{
			name:     "escaped at",
			source:   "@@Model",
			expected: []*Node{text("@Model")},
		},
		{
			name:     "email address",
			source:   "mail ada@example.com",
			expected: []*Node{text("mail ada@example.com")},
		},
		{
			name:     "adjacent expressions",
			source:   "@Model.Name@Model.Age",
			expected: []*Node{expr("Model.Name"), expr("Model.Age")},
		},
		{
			name:   "expression before code block",
			source: "@ViewBag.Greeting@{ x = 1; }",
			expected: []*Node{
				expr("ViewBag.Greeting"),
				{Kind: NodeKindAssign, Var: "x", Expr: "1"},
			},
		},
		{
			name:     "email after expression",
			source:   "@Model.Name mail ada@example.com",
			expected: []*Node{expr("Model.Name"), text(" mail ada@example.com")},
		},
		{
			name:     "lone at",
			source:   "a @ b",
			expected: []*Node{text("a @ b")},
		},
		{
			name:     "comment",
			source:   "a@* hidden @Model *@b",
			expected: []*Node{text("ab")},
		},
		{
			name:   "code block",
			source: "@{ var x = 1; ViewBag.Title = \"T\"; Layout = \"Main\"; Touch(); }\nbody",
			expected: []*Node{
				{Kind: NodeKindAssign, Var: "x", Expr: "1", Declare: true},
				{Kind: NodeKindAssign, Var: "ViewBag.Title", Expr: `"T"`},
				{Kind: NodeKindAssign, Var: "Layout", Expr: `"Main"`},
				{Kind: NodeKindEval, Expr: "Touch()"},
				text("body"),
			},
		},
		{
			name:   "if else",
			source: "@if (Model.On) {\n  <b>on</b>\n} else {\n  off\n}\n",
			expected: []*Node{{
				Kind:     NodeKindIf,
				Expr:     "Model.On",
				Children: []*Node{text("  <b>on</b>\n")},
				Else:     []*Node{text("  off\n")},
			}},
		},
		{
			name:   "else if chain",
			source: "@if (a) {A} else if (b) {B} else {C}",
			expected: []*Node{{
				Kind:     NodeKindIf,
				Expr:     "a",
				Children: []*Node{text("A")},
				Else: []*Node{{
					Kind:     NodeKindIf,
					Expr:     "b",
					Children: []*Node{text("B")},
					Else:     []*Node{text("C")},
				}},
			}},
		},
		{
			name:   "foreach",
			source: "<ul>\n@foreach (var item in Model.Items) {\n  <li>@item</li>\n}\n</ul>",
			expected: []*Node{
				text("<ul>\n"),
				{
					Kind:     NodeKindForeach,
					Var:      "item",
					Expr:     "Model.Items",
					Children: []*Node{text("  <li>"), expr("item"), text("</li>\n")},
				},
				text("</ul>"),
			},
		},
		{
			name:     "while statement",
			source:   "@while (Next());",
			expected: []*Node{{Kind: NodeKindWhile, Expr: "Next()"}},
		},
		{
			name:   "section",
			source: "@section Scripts {\n<script></script>\n}",
			expected: []*Node{{
				Kind:     NodeKindSection,
				Text:     "Scripts",
				Children: []*Node{text("<script></script>\n")},
			}},
		},
		{
			name:   "nested braces in block",
			source: "@if (a) {x{y}z}",
			expected: []*Node{{
				Kind:     NodeKindIf,
				Expr:     "a",
				Children: []*Node{text("x{y}z")},
			}},
		},
		{
			name:   "block indentation",
			source: "<p>\n    @if (true) {\n    yes\n    }\n</p>",
			expected: []*Node{
				text("<p>\n"),
				{Kind: NodeKindIf, Expr: "true", Children: []*Node{text("    yes\n")}},
				text("</p>"),
			},
		},
		{
			name:     "static attribute email",
			source:   `<a href="mailto:ada@example.com">x</a>`,
			expected: []*Node{text(`<a href="mailto:ada@example.com">x</a>`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes := parseNodes(t, tt.source)
			if diff := cmp.Diff(tt.expected, nodes, ignorePos); diff != "" {
				t.Errorf("nodes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRazorParser_DynamicAttributes(t *testing.T) {
	nodes := parseNodes(t, `<a href="@Model.Url" class="btn @Model.Kind">x</a>`)

	expected := []*Node{
		text("<a"),
		{
			Kind: NodeKindAttribute,
			Attr: &Attribute{
				Name:   "href",
				Prefix: Tagged{Value: ` href="`, Position: 2},
				Suffix: Tagged{Value: `"`, Position: 19},
				Segments: []AttrSegment{
					{Prefix: Tagged{Position: 9}, Expr: "Model.Url", Position: 9},
				},
			},
		},
		{
			Kind: NodeKindAttribute,
			Attr: &Attribute{
				Name:   "class",
				Prefix: Tagged{Value: ` class="`, Position: 20},
				Suffix: Tagged{Value: `"`, Position: 43},
				Segments: []AttrSegment{
					{Prefix: Tagged{Position: 28}, Text: "btn", Literal: true, Position: 28},
					{Prefix: Tagged{Value: " ", Position: 31}, Expr: "Model.Kind", Position: 32},
				},
			},
		},
		text(">x</a>"),
	}
	if diff := cmp.Diff(expected, nodes, ignorePos); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestRazorParser_AttributeMixedWord(t *testing.T) {
	nodes := parseNodes(t, `<div id="item-@(Model.Id)">`)

	require.Len(t, nodes, 3)
	attr := nodes[1].Attr
	require.NotNil(t, attr)
	assert.Equal(t, "id", attr.Name)
	require.Len(t, attr.Segments, 2)
	assert.Equal(t, "item-", attr.Segments[0].Text)
	assert.True(t, attr.Segments[0].Literal)
	assert.Equal(t, "Model.Id", attr.Segments[1].Expr)
	assert.Empty(t, attr.Segments[1].Prefix.Value)
}

func TestRazorParser_CodeOutsideQuotesIsNotAnAttribute(t *testing.T) {
	nodes := parseNodes(t, `<input @Model.Extra>`)
	if diff := cmp.Diff([]*Node{text("<input "), expr("Model.Extra"), text(">")}, nodes, ignorePos); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestRazorParser_Errors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		msg    string
	}{
		{"unterminated code block", "@{ x = 1", ErrMsgUnterminatedBlock},
		{"unterminated paren", "@(a", ErrMsgUnterminatedParen},
		{"unterminated comment", "@* x", ErrMsgUnterminatedComment},
		{"missing condition", "@if x {}", ErrMsgExpectedCondition},
		{"bad foreach", "@foreach (item in x) {}", ErrMsgInvalidForeach},
		{"unterminated body", "@if (a) { x", ErrMsgUnterminatedBlock},
		{"missing section name", "@section {}", ErrMsgExpectedSectionName},
		{"bad else", "@if (a) {} else x", ErrMsgElseWithoutBlock},
		{"missing body", "@while (a) x", ErrMsgExpectedBlock},
		{"empty explicit", "@( )", ErrMsgEmptyExpression},
		{"bad statement", "@{ var = 1; }", ErrMsgInvalidStatement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplate(tt.source, nil)
			var diags *DiagnosticsError
			require.True(t, errors.As(err, &diags), "got %v", err)
			require.NotEmpty(t, diags.Diagnostics)
			assert.Equal(t, tt.msg, diags.Diagnostics[0].Message)
		})
	}
}

func TestRazorParser_ErrorPosition(t *testing.T) {
	_, err := ParseTemplate("line1\n  @(a", nil)

	var diags *DiagnosticsError
	require.True(t, errors.As(err, &diags))
	assert.Equal(t, Position{Offset: 9, Line: 2, Column: 4}, diags.Diagnostics[0].Position)
}

func TestProgram_EncodeRoundTripLinks(t *testing.T) {
	program, err := ParseTemplate(`Hi @upper(Model.Name) <i class="@Model.Css">`, nil)
	require.NoError(t, err)

	data, err := program.Encode()
	require.NoError(t, err)
	decoded, err := DecodeProgram(data)
	require.NoError(t, err)

	require.NoError(t, decoded.Link())
	_, ok := decoded.Expr("upper(Model.Name)")
	assert.True(t, ok)
	_, ok = decoded.Expr("Model.Css")
	assert.True(t, ok)
	assert.Equal(t, program.CountNodes(), decoded.CountNodes())
}

func TestProgram_LinkReportsBadExpressions(t *testing.T) {
	program, err := ParseTemplate("@(1 +) and @(Model..X)", nil)
	require.NoError(t, err)

	err = program.Link()
	var diags *DiagnosticsError
	require.True(t, errors.As(err, &diags))
	assert.Len(t, diags.Diagnostics, 2)
}

func TestProgram_CheckCalls(t *testing.T) {
	program, err := ParseTemplate(`@upper(Model.Name) @count(Model.Items) @Raw("x") @Model.Greet() @bogus()`, nil)
	require.NoError(t, err)

	diags := program.CheckCalls([]string{GroupText})
	require.Len(t, diags, 2)
	assert.Contains(t, diags[0].Message, GroupLinq)
	assert.Contains(t, diags[0].Message, "count")
	assert.Contains(t, diags[1].Message, ErrMsgUnknownFunction)
	assert.Contains(t, diags[1].Message, "bogus")
}
