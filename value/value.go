// Package value provides the dynamic value model used by the template engine.
//
// Values form a JSON-like tree: null, booleans, numbers, strings, arrays and
// insertion-ordered objects. A value is immutable once built and is shared by
// reference from the render context; capabilities that need an owned copy
// call Clone.
//
// Two extra states exist beyond the JSON kinds. The zero Value (and the
// result of a failed lookup) is Undefined, which is distinct from an explicit
// null so templates can tell "missing" from "present but empty". Strings can
// carry a safe mark, set by safe-marking filters, which exempts them from
// autoescaping.
//
//	v := value.FromInt(42)
//	if n, ok := v.AsInt(); ok {
//	    fmt.Println(n)
//	}
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Kind describes which member of the value union a Value holds.
type Kind int

const (
	// KindUndefined is a missing value: a failed lookup or the zero Value.
	KindUndefined Kind = iota
	// KindNull is an explicit null.
	KindNull
	// KindBool is true or false.
	KindBool
	// KindNumber is an integer or floating-point number.
	KindNumber
	// KindString is UTF-8 text, optionally marked safe for escaping.
	KindString
	// KindArray is an ordered sequence of values.
	KindArray
	// KindObject is an insertion-ordered string-keyed map.
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a dynamically typed template value.
//
// The zero Value is Undefined. Scalars are immutable; arrays and objects are
// held by reference, so Clone before mutating a value that may be shared.
type Value struct {
	data any
}

type nullType struct{}

// safeString marks text that must not be escaped again.
type safeString string

// Undefined returns the undefined value.
func Undefined() Value {
	return Value{}
}

// Null returns the explicit null value.
func Null() Value {
	return Value{data: nullType{}}
}

// FromBool creates a boolean value.
func FromBool(v bool) Value {
	return Value{data: v}
}

// FromInt creates an integer number value.
func FromInt(v int64) Value {
	return Value{data: v}
}

// FromFloat creates a floating-point number value.
func FromFloat(v float64) Value {
	return Value{data: v}
}

// FromString creates a string value. It is not marked safe and will be
// escaped when autoescaping applies; use FromSafeString for pre-escaped
// markup.
func FromString(v string) Value {
	return Value{data: v}
}

// FromSafeString creates a string value that autoescaping leaves untouched.
func FromSafeString(v string) Value {
	return Value{data: safeString(v)}
}

// FromSlice creates an array value. The slice is not copied.
func FromSlice(v []Value) Value {
	if v == nil {
		v = []Value{}
	}
	return Value{data: v}
}

// FromObject creates an object value. The object is not copied.
func FromObject(o *Object) Value {
	if o == nil {
		o = NewObject()
	}
	return Value{data: o}
}

// FromStringMap creates an object value from a plain Go map, with keys in
// sorted order so the result is deterministic.
func FromStringMap(m map[string]Value) Value {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	obj := NewObject()
	for _, k := range keys {
		obj.Set(k, m[k])
	}
	return FromObject(obj)
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// FromAny converts a Go value to a Value using reflection.
//
// nil maps to null; booleans, integer and float types, and strings map to
// their obvious kinds; slices and arrays map to arrays; maps with string
// keys and structs map to objects. Struct fields honor `json` tags the way
// encoding/json does ("-" skips the field, a name renames it). json.Number
// is converted to an integer when it has no fractional part. Values pass
// through unchanged. Anything unconvertible becomes undefined.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case *Object:
		return FromObject(t)
	case bool:
		return FromBool(t)
	case string:
		return FromString(t)
	case int:
		return FromInt(int64(t))
	case int8:
		return FromInt(int64(t))
	case int16:
		return FromInt(int64(t))
	case int32:
		return FromInt(int64(t))
	case int64:
		return FromInt(t)
	case uint:
		return FromInt(int64(t))
	case uint8:
		return FromInt(int64(t))
	case uint16:
		return FromInt(int64(t))
	case uint32:
		return FromInt(int64(t))
	case uint64:
		return FromInt(int64(t))
	case float32:
		return FromFloat(float64(t))
	case float64:
		return FromFloat(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return FromInt(i)
		}
		if f, err := t.Float64(); err == nil {
			return FromFloat(f)
		}
		return FromString(t.String())
	case []Value:
		return FromSlice(t)
	case map[string]Value:
		return FromStringMap(t)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sortStrings(keys)
		obj := NewObject()
		for _, k := range keys {
			obj.Set(k, FromAny(t[k]))
		}
		return FromObject(obj)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return FromSlice(items)
	}
	return fromReflect(reflect.ValueOf(v))
}

func fromReflect(rv reflect.Value) Value {
	if !rv.IsValid() {
		return Null()
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null()
		}
		return FromAny(rv.Elem().Interface())
	case reflect.Bool:
		return FromBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return FromInt(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return FromInt(int64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return FromFloat(rv.Float())
	case reflect.String:
		return FromString(rv.String())
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = FromAny(rv.Index(i).Interface())
		}
		return FromSlice(items)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Undefined()
		}
		keys := make([]string, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			keys = append(keys, iter.Key().String())
		}
		sortStrings(keys)
		obj := NewObject()
		for _, k := range keys {
			obj.Set(k, FromAny(rv.MapIndex(reflect.ValueOf(k)).Interface()))
		}
		return FromObject(obj)
	case reflect.Struct:
		return fromStruct(rv)
	}
	return Undefined()
}

func fromStruct(rv reflect.Value) Value {
	rt := rv.Type()
	obj := NewObject()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		obj.Set(name, FromAny(rv.Field(i).Interface()))
	}
	return FromObject(obj)
}

// FromJSON parses a JSON document into a Value. Integral numbers become
// integers rather than floats, and object key order follows the document.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSON(dec)
	if err != nil {
		return Undefined(), err
	}
	// Trailing garbage after the first document is an error.
	if dec.More() {
		return Undefined(), fmt.Errorf("unexpected data after JSON document")
	}
	return v, nil
}

func decodeJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Undefined(), err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeJSON(dec)
				if err != nil {
					return Undefined(), err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Undefined(), err
			}
			return FromSlice(items), nil
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Undefined(), err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Undefined(), fmt.Errorf("invalid JSON object key %v", keyTok)
				}
				item, err := decodeJSON(dec)
				if err != nil {
					return Undefined(), err
				}
				obj.Set(key, item)
			}
			if _, err := dec.Token(); err != nil {
				return Undefined(), err
			}
			return FromObject(obj), nil
		}
		return Undefined(), fmt.Errorf("unexpected JSON delimiter %v", t)
	case nil:
		return Null(), nil
	case bool:
		return FromBool(t), nil
	case string:
		return FromString(t), nil
	case json.Number:
		return FromAny(t), nil
	}
	return Undefined(), fmt.Errorf("unexpected JSON token %v", tok)
}

// Kind returns the kind of the value.
func (v Value) Kind() Kind {
	switch v.data.(type) {
	case nil:
		return KindUndefined
	case nullType:
		return KindNull
	case bool:
		return KindBool
	case int64, float64:
		return KindNumber
	case string, safeString:
		return KindString
	case []Value:
		return KindArray
	case *Object:
		return KindObject
	default:
		return KindUndefined
	}
}

// IsUndefined reports whether the value is undefined.
func (v Value) IsUndefined() bool {
	return v.Kind() == KindUndefined
}

// IsNull reports whether the value is an explicit null.
func (v Value) IsNull() bool {
	return v.Kind() == KindNull
}

// IsSafe reports whether the value is a string marked safe for escaping.
func (v Value) IsSafe() bool {
	_, ok := v.data.(safeString)
	return ok
}

// IsInt reports whether the value is an integer-backed number.
func (v Value) IsInt() bool {
	_, ok := v.data.(int64)
	return ok
}

// IsTrue returns the truthiness of the value: null, undefined, false, zero,
// the empty string and empty containers are false, everything else true.
func (v Value) IsTrue() bool {
	switch t := v.data.(type) {
	case nil, nullType:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	case safeString:
		return t != ""
	case []Value:
		return len(t) > 0
	case *Object:
		return t.Len() > 0
	}
	return false
}

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) {
	b, ok := v.data.(bool)
	return b, ok
}

// AsInt returns the integer payload. Floats with no fractional part convert.
func (v Value) AsInt() (int64, bool) {
	switch t := v.data.(type) {
	case int64:
		return t, true
	case float64:
		if t == float64(int64(t)) {
			return int64(t), true
		}
	}
	return 0, false
}

// AsFloat returns the numeric payload as a float.
func (v Value) AsFloat() (float64, bool) {
	switch t := v.data.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// AsString returns the string payload (safe or not).
func (v Value) AsString() (string, bool) {
	switch t := v.data.(type) {
	case string:
		return t, true
	case safeString:
		return string(t), true
	}
	return "", false
}

// AsArray returns the array payload.
func (v Value) AsArray() ([]Value, bool) {
	a, ok := v.data.([]Value)
	return a, ok
}

// AsObject returns the object payload.
func (v Value) AsObject() (*Object, bool) {
	o, ok := v.data.(*Object)
	return o, ok
}

// Len returns the length of a string (in runes), array or object.
func (v Value) Len() (int, bool) {
	switch t := v.data.(type) {
	case string:
		return len([]rune(t)), true
	case safeString:
		return len([]rune(string(t))), true
	case []Value:
		return len(t), true
	case *Object:
		return t.Len(), true
	}
	return 0, false
}

// String renders the value as display text. Null and undefined render empty,
// numbers render without superfluous digits (floats always keep a decimal
// point), and containers render as compact JSON. Interpolation-level
// restrictions on containers are the interpreter's concern, not String's.
func (v Value) String() string {
	switch t := v.data.(type) {
	case nil, nullType:
		return ""
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return formatFloat(t)
	case string:
		return t
	case safeString:
		return string(t)
	case []Value, *Object:
		var sb strings.Builder
		v.writeJSON(&sb)
		return sb.String()
	}
	return ""
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") && !strings.Contains(s, "NaN") && !strings.Contains(s, "Inf") {
		s += ".0"
	}
	return s
}

// writeJSON writes a compact JSON rendering, used for container display and
// the json_encode filter.
func (v Value) writeJSON(sb *strings.Builder) {
	switch t := v.data.(type) {
	case nil, nullType:
		sb.WriteString("null")
	case bool:
		if t {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case int64:
		sb.WriteString(strconv.FormatInt(t, 10))
	case float64:
		sb.WriteString(formatFloat(t))
	case string:
		writeJSONString(sb, t)
	case safeString:
		writeJSONString(sb, string(t))
	case []Value:
		sb.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				sb.WriteByte(',')
			}
			item.writeJSON(sb)
		}
		sb.WriteByte(']')
	case *Object:
		sb.WriteByte('{')
		first := true
		t.Range(func(k string, item Value) bool {
			if !first {
				sb.WriteByte(',')
			}
			first = false
			writeJSONString(sb, k)
			sb.WriteByte(':')
			item.writeJSON(sb)
			return true
		})
		sb.WriteByte('}')
	}
}

func writeJSONString(sb *strings.Builder, s string) {
	encoded, _ := json.Marshal(s)
	sb.Write(encoded)
}

// ToJSON returns the value as compact JSON text.
func (v Value) ToJSON() string {
	var sb strings.Builder
	v.writeJSON(&sb)
	return sb.String()
}

// ToJSONIndent returns the value as indented JSON text.
func (v Value) ToJSONIndent() string {
	compact := v.ToJSON()
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(compact), "", "  "); err != nil {
		return compact
	}
	return buf.String()
}

// Interface returns the value as plain Go data (nil, bool, int64, float64,
// string, []any or map-ordered pairs flattened to map[string]any).
func (v Value) Interface() any {
	switch t := v.data.(type) {
	case nil, nullType:
		return nil
	case bool:
		return t
	case int64:
		return t
	case float64:
		return t
	case string:
		return t
	case safeString:
		return string(t)
	case []Value:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = item.Interface()
		}
		return out
	case *Object:
		out := make(map[string]any, t.Len())
		t.Range(func(k string, item Value) bool {
			out[k] = item.Interface()
			return true
		})
		return out
	}
	return nil
}

// Clone returns a deep copy. Scalars share their immutable payload; arrays
// and objects are copied recursively.
func (v Value) Clone() Value {
	switch t := v.data.(type) {
	case []Value:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = item.Clone()
		}
		return FromSlice(items)
	case *Object:
		return FromObject(t.Clone())
	}
	return v
}

// MarkSafe returns the value with its string payload marked safe. Non-string
// values are returned unchanged.
func (v Value) MarkSafe() Value {
	if s, ok := v.data.(string); ok {
		return FromSafeString(s)
	}
	return v
}

