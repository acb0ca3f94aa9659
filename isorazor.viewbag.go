package isorazor

import (
	"encoding/json"
	"reflect"
	"sort"
	"sync"
)

// MemberSource is implemented by values that expose named members to
// ViewBagFrom and AddFromList.
type MemberSource interface {
	MemberNames() []string
	Member(name string) (any, error)
}

// ViewBag is a dynamic string-keyed property bag shared between a page, its
// layout and its includes. It is safe for concurrent use, and the zero
// value is an empty bag.
type ViewBag struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewViewBag creates an empty bag
func NewViewBag() *ViewBag {
	return &ViewBag{values: make(map[string]any)}
}

// ViewBagFromMap creates a bag holding a copy of m
func ViewBagFromMap(m map[string]any) *ViewBag {
	b := NewViewBag()
	for k, v := range m {
		b.values[k] = v
	}
	return b
}

// ViewBagFrom creates a bag seeded from parent. Supported parents are
// another *ViewBag, map[string]any, map[string]string and MemberSource.
// Members that fail to read are skipped, and any other parent yields an
// empty bag.
func ViewBagFrom(parent any) *ViewBag {
	b := NewViewBag()
	switch p := parent.(type) {
	case nil:
	case *ViewBag:
		if p != nil {
			for k, v := range p.ToMap() {
				b.values[k] = v
			}
		}
	case map[string]any:
		for k, v := range p {
			b.values[k] = v
		}
	case map[string]string:
		for k, v := range p {
			b.values[k] = v
		}
	case MemberSource:
		for _, name := range p.MemberNames() {
			if _, exists := b.values[name]; exists {
				continue
			}
			v, err := p.Member(name)
			if err != nil {
				continue
			}
			b.values[name] = v
		}
	}
	return b
}

// Get returns the value stored under name
func (b *ViewBag) Get(name string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[name]
	return v, ok
}

// Set stores value under name, replacing any previous value
func (b *ViewBag) Set(name string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.values == nil {
		b.values = make(map[string]any)
	}
	b.values[name] = value
}

// Add stores value under a new name
func (b *ViewBag) Add(name string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addLocked(name, value)
}

func (b *ViewBag) addLocked(name string, value any) error {
	if _, exists := b.values[name]; exists {
		return NewDuplicateKeyError(name)
	}
	if b.values == nil {
		b.values = make(map[string]any)
	}
	b.values[name] = value
	return nil
}

// Delete removes name and reports whether it was present
func (b *ViewBag) Delete(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.values[name]
	delete(b.values, name)
	return ok
}

// Names returns the stored names in sorted order
func (b *ViewBag) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.values))
	for k := range b.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of stored names
func (b *ViewBag) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.values)
}

// ToMap returns a copy of the contents
func (b *ViewBag) ToMap() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m := make(map[string]any, len(b.values))
	for k, v := range b.values {
		m[k] = v
	}
	return m
}

// AddFromList adds every item under the string read from its keyField.
// Items are processed in order and processing stops at the first failure;
// items added before it stay in the bag.
func (b *ViewBag) AddFromList(items []any, keyField string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, item := range items {
		if item == nil {
			return NewValidationError(ErrMsgNilItem, MetaKeyKey, keyField)
		}
		raw, ok := readKeyField(item, keyField)
		if !ok {
			return NewValidationError(ErrMsgMissingKey, MetaKeyKey, keyField)
		}
		key, ok := raw.(string)
		if !ok {
			return NewValidationError(ErrMsgKeyNotString, MetaKeyKey, keyField)
		}
		if err := b.addLocked(key, item); err != nil {
			return err
		}
	}
	return nil
}

// AddFromMapping adds every entry of m in sorted key order, stopping at the
// first duplicate.
func (b *ViewBag) AddFromMapping(m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		if err := b.addLocked(k, m[k]); err != nil {
			return err
		}
	}
	return nil
}

func readKeyField(item any, field string) (any, bool) {
	switch it := item.(type) {
	case map[string]any:
		v, ok := it[field]
		return v, ok
	case MemberSource:
		v, err := it.Member(field)
		return v, err == nil
	}

	rv := reflect.ValueOf(item)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	sf, ok := rv.Type().FieldByName(field)
	if !ok || !sf.IsExported() {
		return nil, false
	}
	return rv.FieldByIndex(sf.Index).Interface(), true
}

// MarshalJSON encodes the bag as a JSON object
func (b *ViewBag) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.ToMap())
}

// UnmarshalJSON replaces the contents with a JSON object
func (b *ViewBag) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if m == nil {
		m = make(map[string]any)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = m
	return nil
}
