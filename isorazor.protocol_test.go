package isorazor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsatony/go-isorazor/internal"
)

func TestWireError_RoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"template not found", NewTemplateNotFoundError("x"), ErrTemplateNotFound},
		{"layout not found", NewLayoutNotFoundError("Main", nil), ErrLayoutNotFound},
		{"model mismatch", NewModelMismatchError("Person", "Order"), ErrModelMismatch},
		{"missing section", NewMissingSectionError("Side"), ErrMissingSection},
		{"permission", NewPermissionError("/etc"), ErrPermission},
		{"duplicate key", NewDuplicateKeyError("k"), ErrDuplicateKey},
		{"compilation", &CompilationError{Name: "p", Diagnostics: []Diagnostic{{Message: "bad", Line: 1, Column: 2}}}, ErrCompilation},
		{"aborted", internal.ErrAborted, internal.ErrAborted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(toWireError(tt.err))
			require.NoError(t, err)
			var w wireError
			require.NoError(t, json.Unmarshal(data, &w))

			back := fromWireError(&w)
			assert.ErrorIs(t, back, tt.sentinel)
		})
	}

	t.Run("metadata survives", func(t *testing.T) {
		back := fromWireError(toWireError(NewModelMismatchError("Person", "Order")))
		assert.Contains(t, toWireError(back).Meta, MetaKeyExpected)
		assert.Equal(t, "Person", toWireError(back).Meta[MetaKeyExpected])
	})

	t.Run("other errors", func(t *testing.T) {
		back := fromWireError(toWireError(errors.New("boom")))
		require.Error(t, back)
		assert.Contains(t, back.Error(), "boom")
		assert.Nil(t, toWireError(nil))
		assert.NoError(t, fromWireError(nil))
	})
}

func TestServeWorker_CompileAndRender(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvWorkerConfig, `{"namespace":"`+DefaultNamespace+`","capabilities":{"template_dir":"`+dir+`"}}`)

	location := filepath.Join(dir, "Hello.test"+ArtifactExtension)
	requests := []workerMessage{
		{ID: "1", Op: opCompile, Compile: &CompileRequest{
			Name:       "Hello",
			Units:      []UnitSource{{Name: "Hello", ClassName: "Hello", Text: "Hi @Model.Name"}},
			BaseType:   ModelBaseType("Person"),
			OutputPath: location,
		}},
	}

	var in bytes.Buffer
	enc := json.NewEncoder(&in)
	for _, req := range requests {
		require.NoError(t, enc.Encode(req))
	}

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ServeWorker(ctx, &in, &out))

	replies := decodeReplies(t, &out)
	require.Len(t, replies, 1)
	assert.Equal(t, "1", replies[0].ID)
	assert.Equal(t, opResult, replies[0].Op)
	require.Nil(t, replies[0].Error)
	assert.Equal(t, location, replies[0].Location)

	model, err := json.Marshal(testPerson{Name: "Ada"})
	require.NoError(t, err)
	in.Reset()
	out.Reset()
	require.NoError(t, json.NewEncoder(&in).Encode(workerMessage{ID: "2", Op: opRender, Render: &renderPayload{
		Name:      "Hello",
		Location:  location,
		TypeName:  QualifiedTypeName(DefaultNamespace, "Hello"),
		Model:     model,
		ModelType: "Person",
	}}))
	require.NoError(t, ServeWorker(ctx, &in, &out))

	result := resultReply(t, &out)
	require.Nil(t, result.Error)
	assert.Equal(t, "Hi Ada", result.Output)

	// a model of another type is rejected before it is decoded
	in.Reset()
	out.Reset()
	require.NoError(t, json.NewEncoder(&in).Encode(workerMessage{ID: "3", Op: opRender, Render: &renderPayload{
		Name:      "Hello",
		Location:  location,
		TypeName:  QualifiedTypeName(DefaultNamespace, "Hello"),
		Model:     json.RawMessage(`{"ID":7}`),
		ModelType: "Order",
	}}))
	require.NoError(t, ServeWorker(ctx, &in, &out))

	result = resultReply(t, &out)
	require.NotNil(t, result.Error)
	assert.ErrorIs(t, fromWireError(result.Error), ErrModelMismatch)
}

func resultReply(t *testing.T, r io.Reader) *workerMessage {
	t.Helper()
	replies := decodeReplies(t, r)
	for i := range replies {
		if replies[i].Op == opResult {
			return &replies[i]
		}
	}
	require.Fail(t, "no result reply")
	return nil
}

func decodeReplies(t *testing.T, r io.Reader) []workerMessage {
	t.Helper()
	var out []workerMessage
	dec := json.NewDecoder(r)
	for {
		var msg workerMessage
		err := dec.Decode(&msg)
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, msg)
	}
}
