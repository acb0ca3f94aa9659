package isorazor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseTypeForModel(t *testing.T) {
	assert.Equal(t, BaseTypeTemplate, BaseTypeForModel(nil))
	assert.Equal(t, ModelBaseType("Person"), BaseTypeForModel(testPerson{}))
	assert.Equal(t, ModelBaseType(ModelNameMap), BaseTypeForModel(map[string]any{}))
	assert.Equal(t, ModelBaseType(ModelNameAny), BaseTypeForModel(struct{ X int }{}))
}

func TestRegisterModel(t *testing.T) {
	require.NoError(t, RegisterModel[testPerson]("Person"))
	assert.Error(t, RegisterModel[testOrder]("Person"))
	assert.Error(t, RegisterModel[testOrder](" "))
	assert.Contains(t, RegisteredModels(), "Order")
}

func TestResolveBaseType(t *testing.T) {
	for _, name := range []string{BaseTypeTemplate, BaseTypeLayout, ModelBaseType("Person"), ModelBaseType(ModelNameAny)} {
		_, err := ResolveBaseType(name)
		assert.NoError(t, err, name)
	}

	_, err := ResolveBaseType("Nope")
	assert.Error(t, err)
	_, err = ResolveBaseType(ModelBaseType("Unregistered"))
	assert.Error(t, err)
}

func TestDecodeModel(t *testing.T) {
	data, err := json.Marshal(testPerson{Name: "Ada", Age: 36})
	require.NoError(t, err)

	model, err := decodeModel(ModelBaseType("Person"), "Person", data)
	require.NoError(t, err)
	assert.Equal(t, testPerson{Name: "Ada", Age: 36}, model)

	generic, err := decodeModel(BaseTypeTemplate, "Person", data)
	require.NoError(t, err)
	assert.IsType(t, map[string]any{}, generic)

	anyModel, err := decodeModel(ModelBaseType(ModelNameAny), "Person", data)
	require.NoError(t, err)
	assert.Equal(t, testPerson{Name: "Ada", Age: 36}, anyModel)

	none, err := decodeModel(ModelBaseType("Person"), "", json.RawMessage("null"))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestDecodeModel_Mismatch(t *testing.T) {
	data, err := json.Marshal(testOrder{ID: 7})
	require.NoError(t, err)

	tests := []struct {
		name      string
		modelType string
	}{
		{"other registered type", "Order"},
		{"unregistered type", "main.Invoice"},
		{"missing type name", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeModel(ModelBaseType("Person"), tt.modelType, data)
			assert.ErrorIs(t, err, ErrModelMismatch)
		})
	}
}

func TestTypedTemplate_SetModel(t *testing.T) {
	tmpl := NewTypedTemplateFor[testPerson](BodyFunc(func(Template) error { return nil }))
	assert.NoError(t, tmpl.SetModel(testPerson{Name: "A"}))
	assert.ErrorIs(t, tmpl.SetModel(testOrder{}), ErrModelMismatch)
	assert.NoError(t, tmpl.SetModel(nil))
}

func TestLayout_Sections(t *testing.T) {
	layout := NewLayout(BodyFunc(func(Template) error { return nil }))
	layout.SetSections(map[string]SectionAction{
		"Side": func(w *Writer) error { w.WriteLiteral("side"); return nil },
	})

	// sections write to the layout's output and return an empty marker
	out, err := layout.RenderSection("Side", true)
	require.NoError(t, err)
	assert.Equal(t, "", out.EncodedString())
	assert.Equal(t, "side", layout.Output().String())

	_, err = layout.RenderSection("Other", false)
	require.NoError(t, err)
	assert.Equal(t, "side", layout.Output().String())

	_, err = layout.RenderSection("Other", true)
	assert.ErrorIs(t, err, ErrMissingSection)
}

func TestTemplateBase_DefineSection(t *testing.T) {
	tmpl := NewTemplate(BodyFunc(func(Template) error { return nil }))
	noop := func(*Writer) error { return nil }

	require.NoError(t, tmpl.DefineSection("A", noop))
	assert.Error(t, tmpl.DefineSection("A", noop))

	defined, err := tmpl.IsSectionDefined("A")
	require.NoError(t, err)
	assert.True(t, defined)
	_, err = tmpl.IsSectionDefined(" ")
	assert.Error(t, err)
}
