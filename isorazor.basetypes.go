package isorazor

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// BaseTypeFactory creates a template instance around a body
type BaseTypeFactory func(body Body) Template

var (
	modelsMu   sync.RWMutex
	models     = map[string]reflect.Type{}
	modelNames = map[reflect.Type]string{}

	baseTypesMu sync.RWMutex
	baseTypes   = map[string]BaseTypeFactory{}
)

func init() {
	mustRegisterModelType(ModelNameAny, reflect.TypeFor[any]())
	mustRegisterModelType(ModelNameMap, reflect.TypeFor[map[string]any]())

	baseTypes[BaseTypeTemplate] = func(body Body) Template { return NewTemplate(body) }
	baseTypes[BaseTypeLayout] = func(body Body) Template { return NewLayout(body) }
}

// RegisterModel makes M available as the base type TemplateBase[name].
// Registration is process wide; worker processes see the models registered
// during package initialization of the host binary.
func RegisterModel[M any](name string) error {
	return registerModelType(name, reflect.TypeFor[M]())
}

// MustRegisterModel is RegisterModel that panics on error
func MustRegisterModel[M any](name string) {
	if err := RegisterModel[M](name); err != nil {
		panic(err)
	}
}

func mustRegisterModelType(name string, typ reflect.Type) {
	if err := registerModelType(name, typ); err != nil {
		panic(err)
	}
}

func registerModelType(name string, typ reflect.Type) error {
	if strings.TrimSpace(name) == "" {
		return NewValidationError(ErrMsgEmptyName, MetaKeyBaseType, name)
	}
	modelsMu.Lock()
	defer modelsMu.Unlock()
	if existing, ok := models[name]; ok && existing != typ {
		return NewValidationError(ErrMsgModelRegistered, MetaKeyBaseType, name)
	}
	models[name] = typ
	if _, ok := modelNames[typ]; !ok {
		modelNames[typ] = name
	}
	return nil
}

func registeredModelName(typ reflect.Type) (string, bool) {
	modelsMu.RLock()
	defer modelsMu.RUnlock()
	name, ok := modelNames[typ]
	return name, ok
}

func lookupModel(name string) (reflect.Type, bool) {
	modelsMu.RLock()
	defer modelsMu.RUnlock()
	typ, ok := models[name]
	return typ, ok
}

// RegisteredModels returns the registered model names, sorted
func RegisteredModels() []string {
	modelsMu.RLock()
	defer modelsMu.RUnlock()
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterBaseType adds a named base type backed by factory
func RegisterBaseType(name string, factory BaseTypeFactory) error {
	if strings.TrimSpace(name) == "" || factory == nil {
		return NewValidationError(ErrMsgUnknownBaseType, MetaKeyBaseType, name)
	}
	baseTypesMu.Lock()
	defer baseTypesMu.Unlock()
	if _, exists := baseTypes[name]; exists {
		return NewValidationError(ErrMsgModelRegistered, MetaKeyBaseType, name)
	}
	baseTypes[name] = factory
	return nil
}

// ModelBaseType returns the base type name for a registered model name
func ModelBaseType(model string) string {
	return fmt.Sprintf(BaseTypeModelFmt, model)
}

// parseModelBaseType splits "TemplateBase[Model]" into the model name
func parseModelBaseType(name string) (string, bool) {
	prefix := BaseTypeTemplate + "["
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, "]") {
		return "", false
	}
	model := strings.TrimSpace(name[len(prefix) : len(name)-1])
	return model, model != ""
}

// ResolveBaseType returns the factory for a base type name
func ResolveBaseType(name string) (BaseTypeFactory, error) {
	baseTypesMu.RLock()
	factory, ok := baseTypes[name]
	baseTypesMu.RUnlock()
	if ok {
		return factory, nil
	}

	model, ok := parseModelBaseType(name)
	if !ok {
		return nil, NewValidationError(ErrMsgUnknownBaseType, MetaKeyBaseType, name)
	}
	typ, ok := lookupModel(model)
	if !ok {
		return nil, NewValidationError(ErrMsgUnknownModel, MetaKeyBaseType, name)
	}
	return func(body Body) Template {
		return NewTypedTemplate(body, model, typ)
	}, nil
}

// BaseTypeForModel picks the base type a model renders with: the
// registered name of its type, or TemplateBase[any] when unregistered.
func BaseTypeForModel(model any) string {
	if model == nil {
		return BaseTypeTemplate
	}
	if name, ok := registeredModelName(reflect.TypeOf(model)); ok {
		return ModelBaseType(name)
	}
	return ModelBaseType(ModelNameAny)
}

// decodeModel rebuilds a model that crossed a process boundary as JSON.
// modelType is the host's name for the model's type (see modelTypeName).
// A typed base type only accepts a registered type assignable to its own;
// TemplateBase[any] accepts everything.
func decodeModel(baseType, modelType string, data json.RawMessage) (any, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	typ := reflect.TypeFor[any]()
	if model, ok := parseModelBaseType(baseType); ok {
		if declared, found := lookupModel(model); found {
			sent, known := lookupModel(modelType)
			switch {
			case declared.Kind() == reflect.Interface:
				if known && sent.AssignableTo(declared) {
					typ = sent
				}
			case known && sent.AssignableTo(declared):
				typ = declared
			default:
				return nil, NewModelMismatchError(model, modelType)
			}
		}
	}
	ptr := reflect.New(typ)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}
