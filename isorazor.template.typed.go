package isorazor

import (
	"reflect"
)

// TypedTemplate is a template with a declared model type. Include called
// without a model renders the included template untyped, like TemplateBase.
type TypedTemplate struct {
	TemplateBase
	model     any
	modelType reflect.Type
	modelName string
}

// NewTypedTemplate creates a template whose model must be assignable to
// modelType. modelName is used in mismatch errors.
func NewTypedTemplate(body Body, modelName string, modelType reflect.Type) *TypedTemplate {
	t := &TypedTemplate{modelType: modelType, modelName: modelName}
	t.init(t, body)
	return t
}

// NewTypedTemplateFor creates a TypedTemplate for model type M
func NewTypedTemplateFor[M any](body Body) *TypedTemplate {
	typ := reflect.TypeFor[M]()
	return NewTypedTemplate(body, typ.String(), typ)
}

// Model returns the current model
func (t *TypedTemplate) Model() any { return t.model }

// ModelType returns the declared model type name
func (t *TypedTemplate) ModelType() string { return t.modelName }

// SetModel assigns the model after checking its type. Nil clears it.
func (t *TypedTemplate) SetModel(model any) error {
	if model == nil {
		t.model = nil
		return nil
	}
	if t.modelType != nil && !reflect.TypeOf(model).AssignableTo(t.modelType) {
		return NewModelMismatchError(t.modelName, modelTypeName(model))
	}
	t.model = model
	return nil
}

func modelTypeName(model any) string {
	if model == nil {
		return ModelTypeNone
	}
	if name, ok := registeredModelName(reflect.TypeOf(model)); ok {
		return name
	}
	return reflect.TypeOf(model).String()
}
