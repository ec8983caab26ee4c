package lysine

import (
	"fmt"

	"github.com/ctcl-bregis/lysine/value"
)

// loopItem is one materialized iteration of a for loop. key is only set when
// iterating an object with key and value bindings.
type loopItem struct {
	key value.Value
	val value.Value
}

// materializeLoop turns the evaluated iterable into the sequence of
// iterations. Arrays take a single binding, objects take key and value
// bindings; anything else is a type error.
func materializeLoop(iter value.Value, wantKey bool) ([]loopItem, error) {
	switch iter.Kind() {
	case value.KindArray:
		if wantKey {
			return nil, NewError(ErrInvalidOperation,
				"cannot iterate an array with key and value bindings")
		}
		arr, _ := iter.AsArray()
		items := make([]loopItem, len(arr))
		for i, v := range arr {
			items[i] = loopItem{val: v}
		}
		return items, nil

	case value.KindObject:
		if !wantKey {
			return nil, NewError(ErrInvalidOperation,
				"iterating an object requires key and value bindings")
		}
		obj, _ := iter.AsObject()
		items := make([]loopItem, 0, obj.Len())
		obj.Range(func(k string, v value.Value) bool {
			items = append(items, loopItem{key: value.FromString(k), val: v})
			return true
		})
		return items, nil

	default:
		return nil, NewError(ErrInvalidOperation,
			fmt.Sprintf("cannot iterate over a value of kind %s", iter.Kind()))
	}
}

// loopValue builds the `loop` variable for one iteration.
func loopValue(index0, length int) value.Value {
	obj := value.NewObject()
	obj.Set("index", value.FromInt(int64(index0+1)))
	obj.Set("index0", value.FromInt(int64(index0)))
	obj.Set("first", value.FromBool(index0 == 0))
	obj.Set("last", value.FromBool(index0 == length-1))
	obj.Set("length", value.FromInt(int64(length)))
	return value.FromObject(obj)
}
