package internal

// NodeKind identifies the kind of a program node
type NodeKind string

// Node kind constants
const (
	NodeKindText      NodeKind = "text"
	NodeKindExpr      NodeKind = "expr"
	NodeKindAssign    NodeKind = "assign"
	NodeKindEval      NodeKind = "eval"
	NodeKindIf        NodeKind = "if"
	NodeKindForeach   NodeKind = "foreach"
	NodeKindWhile     NodeKind = "while"
	NodeKindSection   NodeKind = "section"
	NodeKindAttribute NodeKind = "attribute"
)

// Razor transition and delimiter characters
const (
	CharAt          = '@'
	CharStar        = '*'
	CharOpenBrace   = '{'
	CharCloseBrace  = '}'
	CharOpenParen   = '('
	CharCloseParen  = ')'
	CharOpenAngle   = '<'
	CharCloseAngle  = '>'
	CharDot         = '.'
	CharSemicolon   = ';'
	CharEquals      = '='
	CharDoubleQuote = '"'
	CharSingleQuote = '\''
	CharBackslash   = '\\'
	CharNewline     = '\n'
	CharSlash       = '/'
)

// Razor keywords following the transition character
const (
	KeywordIf      = "if"
	KeywordElse    = "else"
	KeywordForeach = "foreach"
	KeywordWhile   = "while"
	KeywordSection = "section"
	KeywordVar     = "var"
	KeywordIn      = "in"
)

// Comment delimiters
const (
	StrCommentOpen  = "@*"
	StrCommentClose = "*@"
	StrEscapedAt    = "@@"
)

// Template members provided by the runtime rather than by function groups
const (
	MemberModel            = "Model"
	MemberViewBag          = "ViewBag"
	MemberLayout           = "Layout"
	MemberHtmlNewLine      = "HtmlNewLine"
	MemberRaw              = "Raw"
	MemberInclude          = "Include"
	MemberRenderBody       = "RenderBody"
	MemberRenderSection    = "RenderSection"
	MemberIsSectionDefined = "IsSectionDefined"
	MemberResolveUrl       = "ResolveUrl"
)

// RuntimeMembers lists the callable members every template exposes
var RuntimeMembers = []string{
	MemberRaw,
	MemberInclude,
	MemberRenderBody,
	MemberRenderSection,
	MemberIsSectionDefined,
	MemberResolveUrl,
}

// Function group names. Templates import groups by name.
const (
	GroupSystem      = "System"
	GroupCollections = "Collections"
	GroupLinq        = "Linq"
	GroupText        = "Text"
	GroupIsorazor    = "Isorazor"
	GroupHtml        = "Html"
	GroupIO          = "IO"
)

// Member names recognised on collections and strings
const (
	MemberCount  = "Count"
	MemberLength = "Length"
	MemberKey    = "Key"
	MemberValue  = "Value"
)

// Parser error messages
const (
	ErrMsgUnterminatedComment = "unterminated comment"
	ErrMsgUnterminatedBlock   = "unterminated block, missing '}'"
	ErrMsgUnterminatedParen   = "unterminated expression, missing ')'"
	ErrMsgUnterminatedString  = "unterminated string literal"
	ErrMsgExpectedBlock       = "expected '{'"
	ErrMsgExpectedCondition   = "expected '(' followed by a condition"
	ErrMsgInvalidForeach      = "invalid foreach header, expected 'var name in expression'"
	ErrMsgExpectedSectionName = "expected section name"
	ErrMsgInvalidStatement    = "invalid statement"
	ErrMsgEmptyExpression     = "empty expression"
	ErrMsgUnexpectedClose     = "unexpected '}'"
	ErrMsgElseWithoutBlock    = "expected '{' or 'if' after else"
)

// Compile and execution error messages
const (
	ErrMsgUnknownFunction   = "unknown function"
	ErrMsgFunctionNotImport = "function is not available without importing group"
	ErrMsgNotIterable       = "value is not iterable"
	ErrMsgCannotAssign      = "cannot assign to"
	ErrMsgUnknownMethod     = "unknown method"
	ErrMsgMethodFailed      = "method call failed"
	ErrMsgAborted           = "execution aborted"
	ErrMsgUnlinkedExpr      = "expression not linked"
	ErrMsgDivideByZero      = "division by zero"
	ErrMsgValueTooLarge     = "value exceeds the size limit"
	ErrMsgFormatWidth       = "format width or precision exceeds the limit"
)

// Size limits for values built by operators and builtins. A single call
// runs without kill-flag checks, so none may allocate more than this.
const (
	MaxCollectionLen = 1 << 20
	MaxStringLen     = 1 << 24
	MaxFormatWidth   = 1 << 12
)

// Logging messages
const (
	LogMsgParseStart   = "razor parse started"
	LogMsgParseEnd     = "razor parse complete"
	LogMsgProgramLink  = "program linked"
	LogMsgExecStart    = "program execution started"
	LogMsgExecAborted  = "program execution aborted"
	LogFieldSource     = "source_length"
	LogFieldNodes      = "node_count"
	LogFieldExprs      = "expr_count"
	LogFieldDiagnostic = "diagnostics"
)

// String value constants for conversions
const (
	StringValueNil   = "nil"
	StringValueTrue  = "true"
	StringValueFalse = "false"
	StringValueEmpty = ""
)

// Numeric constants for conversions
const (
	FloatFormatFlag   = 'f'
	FloatPrecisionAll = -1
	FloatBitSize64    = 64
	IntBase10         = 10
)

// Display helper outputs. The doubled display:none keeps mail clients
// that drop !important rules from showing the element.
const (
	CSSDisplayNone        = "display:none; display:none !important;"
	CSSDisplayFormat      = "display: %s;"
	CSSDisplayInherit     = "inherit"
	CSSDisplayBlock       = "block"
	CSSDisplayInlineBlock = "inline-block"
	HTMLLineBreak         = "<br />"
)
