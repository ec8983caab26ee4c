package value

// Object is an insertion-ordered string-keyed map of values.
//
// Iteration, key listing and serialization all follow insertion order, so
// template output over an object is deterministic. Setting an existing key
// replaces the value but keeps the key's original position.
type Object struct {
	keys  []string
	items map[string]Value
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{items: make(map[string]Value)}
}

// Set inserts or replaces the value for key.
func (o *Object) Set(key string, v Value) {
	if _, ok := o.items[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.items[key] = v
}

// Get returns the value for key and whether it was present.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.items[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.items[key]
	return ok
}

// Delete removes key if present.
func (o *Object) Delete(key string) {
	if _, ok := o.items[key]; !ok {
		return
	}
	delete(o.items, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (o *Object) Len() int {
	return len(o.keys)
}

// Keys returns the keys in insertion order. The slice is a copy.
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Range calls fn for each entry in insertion order until fn returns false.
func (o *Object) Range(fn func(key string, v Value) bool) {
	for _, k := range o.keys {
		if !fn(k, o.items[k]) {
			return
		}
	}
}

// Clone returns a deep copy of the object.
func (o *Object) Clone() *Object {
	out := &Object{
		keys:  make([]string, len(o.keys)),
		items: make(map[string]Value, len(o.items)),
	}
	copy(out.keys, o.keys)
	for k, v := range o.items {
		out.items[k] = v.Clone()
	}
	return out
}

// Merge copies every entry of other into o, replacing existing keys.
func (o *Object) Merge(other *Object) {
	if other == nil {
		return
	}
	other.Range(func(k string, v Value) bool {
		o.Set(k, v)
		return true
	})
}
