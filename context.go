package lysine

import (
	"fmt"
	"sort"

	"github.com/ctcl-bregis/lysine/value"
)

// Context holds the variables exposed to one render call. It is built by the
// caller ahead of rendering and treated as read-only for the render's
// duration, so the same context can back concurrent renders.
type Context struct {
	data *value.Object
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{data: value.NewObject()}
}

// Insert converts a Go value with value.FromAny and binds it under key.
func (c *Context) Insert(key string, val any) {
	c.data.Set(key, value.FromAny(val))
}

// Set binds an already constructed value under key.
func (c *Context) Set(key string, val value.Value) {
	c.data.Set(key, val)
}

// Get returns the top-level value bound under key.
func (c *Context) Get(key string) (value.Value, bool) {
	return c.data.Get(key)
}

// Extend merges other into this context. On conflicting keys the value from
// other wins.
func (c *Context) Extend(other *Context) {
	if other == nil {
		return
	}
	c.data.Merge(other.data)
}

// ContextFromValue builds a context from an object value.
func ContextFromValue(v value.Value) (*Context, error) {
	obj, ok := v.AsObject()
	if !ok {
		return nil, NewError(ErrInvalidArgument,
			fmt.Sprintf("context root must be an object, got %s", v.Kind()))
	}
	return &Context{data: obj}, nil
}

// ContextFromMap builds a context from a Go map. Keys are inserted sorted so
// iteration order over the context root is deterministic.
func ContextFromMap(m map[string]any) *Context {
	ctx := NewContext()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ctx.Insert(k, m[k])
	}
	return ctx
}

// ContextFromJSON builds a context from a JSON document. The document must
// hold an object at the top level.
func ContextFromJSON(data []byte) (*Context, error) {
	v, err := value.FromJSON(data)
	if err != nil {
		return nil, NewError(ErrInvalidArgument, "invalid context JSON").WithSource(err)
	}
	return ContextFromValue(v)
}

// ContextFromYAML builds a context from a YAML document. The document must
// hold a mapping at the top level.
func ContextFromYAML(data []byte) (*Context, error) {
	v, err := value.FromYAML(data)
	if err != nil {
		return nil, NewError(ErrInvalidArgument, "invalid context YAML").WithSource(err)
	}
	return ContextFromValue(v)
}

// lookup resolves a dotted path against the context root.
func (c *Context) lookup(path string) (value.Value, bool) {
	return value.FromObject(c.data).ResolvePath(path)
}

// asValue exposes the whole context as a single object value.
func (c *Context) asValue() value.Value {
	return value.FromObject(c.data)
}
