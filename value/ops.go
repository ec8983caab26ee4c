package value

import (
	"fmt"
	"math"
	"strings"
)

// isActualInt reports whether the value is stored as an int64, not a float64.
func isActualInt(v Value) bool {
	_, ok := v.data.(int64)
	return ok
}

// Neg performs unary negation.
func (v Value) Neg() (Value, error) {
	switch d := v.data.(type) {
	case int64:
		return FromInt(-d), nil
	case float64:
		return FromFloat(-d), nil
	default:
		return Undefined(), fmt.Errorf("cannot negate %s", v.Kind())
	}
}

// Add performs numeric addition. The result is an integer only when both
// operands are.
func (v Value) Add(other Value) (Value, error) {
	if f1, ok := v.AsFloat(); ok {
		if f2, ok := other.AsFloat(); ok {
			if isActualInt(v) && isActualInt(other) {
				return FromInt(int64(f1) + int64(f2)), nil
			}
			return FromFloat(f1 + f2), nil
		}
	}
	return Undefined(), fmt.Errorf("cannot add %s and %s", v.Kind(), other.Kind())
}

// Sub performs subtraction.
func (v Value) Sub(other Value) (Value, error) {
	if f1, ok := v.AsFloat(); ok {
		if f2, ok := other.AsFloat(); ok {
			if isActualInt(v) && isActualInt(other) {
				return FromInt(int64(f1) - int64(f2)), nil
			}
			return FromFloat(f1 - f2), nil
		}
	}
	return Undefined(), fmt.Errorf("cannot subtract %s from %s", other.Kind(), v.Kind())
}

// Mul performs multiplication.
func (v Value) Mul(other Value) (Value, error) {
	if f1, ok := v.AsFloat(); ok {
		if f2, ok := other.AsFloat(); ok {
			if isActualInt(v) && isActualInt(other) {
				return FromInt(int64(f1) * int64(f2)), nil
			}
			return FromFloat(f1 * f2), nil
		}
	}
	return Undefined(), fmt.Errorf("cannot multiply %s and %s", v.Kind(), other.Kind())
}

// Div performs division. The result is always a float; dividing by zero is
// an error.
func (v Value) Div(other Value) (Value, error) {
	if f1, ok := v.AsFloat(); ok {
		if f2, ok := other.AsFloat(); ok {
			if f2 == 0 {
				return Undefined(), fmt.Errorf("division by zero")
			}
			return FromFloat(f1 / f2), nil
		}
	}
	return Undefined(), fmt.Errorf("cannot divide %s by %s", v.Kind(), other.Kind())
}

// Rem performs the modulo operation.
func (v Value) Rem(other Value) (Value, error) {
	if i1, ok1 := v.data.(int64); ok1 {
		if i2, ok2 := other.data.(int64); ok2 {
			if i2 == 0 {
				return Undefined(), fmt.Errorf("modulo by zero")
			}
			return FromInt(i1 % i2), nil
		}
	}
	if f1, ok := v.AsFloat(); ok {
		if f2, ok := other.AsFloat(); ok {
			if f2 == 0 {
				return Undefined(), fmt.Errorf("modulo by zero")
			}
			return FromFloat(math.Mod(f1, f2)), nil
		}
	}
	return Undefined(), fmt.Errorf("cannot modulo %s by %s", v.Kind(), other.Kind())
}

// Concat performs tilde (~) string concatenation. Only strings and numbers
// concatenate; the result stays safe only when both sides were safe.
func (v Value) Concat(other Value) (Value, error) {
	concatenable := func(val Value) bool {
		switch val.Kind() {
		case KindString, KindNumber:
			return true
		}
		return false
	}
	if !concatenable(v) || !concatenable(other) {
		return Undefined(), fmt.Errorf("cannot concatenate %s and %s", v.Kind(), other.Kind())
	}
	s1 := v.String()
	s2 := other.String()
	if v.IsSafe() && other.IsSafe() {
		return FromSafeString(s1 + s2), nil
	}
	return FromString(s1 + s2), nil
}

// Equal reports deep equality. Numbers compare across the int/float split,
// so 1 equals 1.0. Mismatched kinds are unequal, never an error; operator
// level restrictions live in the interpreter.
func (v Value) Equal(other Value) bool {
	kind := v.Kind()
	if kind != other.Kind() {
		return false
	}
	switch kind {
	case KindUndefined, KindNull:
		return true
	case KindBool:
		a, _ := v.AsBool()
		b, _ := other.AsBool()
		return a == b
	case KindNumber:
		a, _ := v.AsFloat()
		b, _ := other.AsFloat()
		return a == b
	case KindString:
		a, _ := v.AsString()
		b, _ := other.AsString()
		return a == b
	case KindArray:
		a, _ := v.AsArray()
		b, _ := other.AsArray()
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	case KindObject:
		a, _ := v.AsObject()
		b, _ := other.AsObject()
		if a.Len() != b.Len() {
			return false
		}
		equal := true
		a.Range(func(k string, av Value) bool {
			bv, present := b.Get(k)
			if !present || !av.Equal(bv) {
				equal = false
				return false
			}
			return true
		})
		return equal
	}
	return false
}

// Compare orders two values of the same comparable kind: numbers
// numerically, strings lexicographically, booleans false before true.
// The second result is false when the pair cannot be ordered.
func (v Value) Compare(other Value) (int, bool) {
	switch {
	case v.Kind() == KindNumber && other.Kind() == KindNumber:
		a, _ := v.AsFloat()
		b, _ := other.AsFloat()
		switch {
		case a < b:
			return -1, true
		case a > b:
			return 1, true
		}
		return 0, true
	case v.Kind() == KindString && other.Kind() == KindString:
		a, _ := v.AsString()
		b, _ := other.AsString()
		return strings.Compare(a, b), true
	case v.Kind() == KindBool && other.Kind() == KindBool:
		a, _ := v.AsBool()
		b, _ := other.AsBool()
		switch {
		case !a && b:
			return -1, true
		case a && !b:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Contains implements the `in` operator: substring match for strings, member
// equality for arrays, key presence for objects. The second result is false
// when the receiver is not a container.
func (v Value) Contains(item Value) (bool, bool) {
	switch t := v.data.(type) {
	case string:
		s, ok := item.AsString()
		return ok && strings.Contains(t, s), true
	case safeString:
		s, ok := item.AsString()
		return ok && strings.Contains(string(t), s), true
	case []Value:
		for _, member := range t {
			if member.Equal(item) {
				return true, true
			}
		}
		return false, true
	case *Object:
		key, ok := item.AsString()
		return ok && t.Has(key), true
	}
	return false, false
}
