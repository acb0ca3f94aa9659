package isorazor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDedupeReferences(t *testing.T) {
	refs := []Reference{
		{Path: "b", Version: "v1.2.0"},
		{Path: "a", Version: "(devel)"},
		{Path: "b", Version: "v1.10.0"},
		{Path: "a", Version: "v0.1.0"},
		{Path: "b", Version: "v1.9.9"},
		{Path: "", Version: "v9.9.9"},
	}

	assert.Equal(t, []Reference{
		{Path: "a", Version: "v0.1.0"},
		{Path: "b", Version: "v1.10.0"},
	}, DedupeReferences(refs))
}

func TestBuildReferences(t *testing.T) {
	refs := BuildReferences()
	require.NotEmpty(t, refs)
	seen := map[string]bool{}
	for _, ref := range refs {
		assert.False(t, seen[ref.Path], "duplicate %s", ref.Path)
		seen[ref.Path] = true
	}
	assert.True(t, seen["go"])
}

func TestArtifactCompiler_Diagnostics(t *testing.T) {
	ctx := context.Background()
	parser := NewRazorParser(zap.NewNop())
	compiler := NewArtifactCompiler(DefaultNamespace, zap.NewNop())

	unit, err := parser.Parse(ctx, ParseRequest{Name: "u", Text: "@nosuchfunc(1)", ClassName: "U", BaseType: DefaultBaseType})
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "u.rzc")

	_, err = compiler.Compile(ctx, []*CompilableUnit{unit}, nil, out)
	var compErr *CompilationError
	require.ErrorAs(t, err, &compErr)
	require.NotEmpty(t, compErr.Diagnostics)
	assert.NoFileExists(t, out)

	// functions outside the imported groups are diagnostics too
	unit, err = parser.Parse(ctx, ParseRequest{Name: "u", Text: "@upper(\"ok\")", ClassName: "U", BaseType: DefaultBaseType})
	require.NoError(t, err)
	_, err = compiler.Compile(ctx, []*CompilableUnit{unit}, nil, out)
	require.ErrorAs(t, err, &compErr)
	assert.Contains(t, compErr.Diagnostics[0].Message, "upper")

	unit, err = parser.Parse(ctx, ParseRequest{Name: "u", Text: "@upper(\"ok\")", ClassName: "U", BaseType: "NoSuchBase", Imports: DefaultImports})
	require.NoError(t, err)
	_, err = compiler.Compile(ctx, []*CompilableUnit{unit}, nil, out)
	require.ErrorAs(t, err, &compErr)
	assert.Contains(t, compErr.Diagnostics[0].Message, ErrMsgUnknownBaseType)
}

func TestArtifactCompiler_WritesArtifact(t *testing.T) {
	ctx := context.Background()
	parser := NewRazorParser(nil)
	compiler := NewArtifactCompiler(DefaultNamespace, nil)

	unit, err := parser.Parse(ctx, ParseRequest{Name: "u", Text: "hi @upper(\"ok\")", ClassName: "U", BaseType: DefaultBaseType, Imports: DefaultImports})
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "nested", "u.rzc")

	loc, err := compiler.Compile(ctx, []*CompilableUnit{unit}, BuildReferences(), out)
	require.NoError(t, err)
	assert.Equal(t, out, loc)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Contains(t, string(data), ArtifactFormat)
}
