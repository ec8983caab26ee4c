package lysine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ctcl-bregis/lysine/value"
)

// sortKeyFn extracts the ordering key from a list element.
type sortKeyFn func(v value.Value) (value.Value, error)

// identityKey orders elements by themselves.
func identityKey(v value.Value) (value.Value, error) { return v, nil }

// attributeKey orders elements by a dotted path into each of them. An
// element missing the attribute fails the whole operation.
func attributeKey(attr string) sortKeyFn {
	return func(v value.Value) (value.Value, error) {
		key, ok := v.ResolvePath(attr)
		if !ok || key.IsUndefined() {
			return value.Undefined(),
				fmt.Errorf("attribute %q not found on list element", attr)
		}
		return key, nil
	}
}

// orderingKeys extracts one key per element and checks that all keys share
// the kind of the first one. Only bools, numbers and strings order.
func orderingKeys(items []value.Value, keyOf sortKeyFn) ([]value.Value, error) {
	keys := make([]value.Value, len(items))
	for i, item := range items {
		key, err := keyOf(item)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	first := keys[0].Kind()
	switch first {
	case value.KindBool, value.KindNumber, value.KindString:
	default:
		return nil, fmt.Errorf("cannot order values of kind %s", first)
	}
	for _, key := range keys[1:] {
		if key.Kind() != first {
			return nil, fmt.Errorf("cannot order %s with %s", first, key.Kind())
		}
	}
	return keys, nil
}

// sortValues returns the elements sorted ascending and stable, ordered by
// the extracted keys. The input slice is left alone.
func sortValues(items []value.Value, keyOf sortKeyFn) ([]value.Value, error) {
	if len(items) == 0 {
		return items, nil
	}
	keys, err := orderingKeys(items, keyOf)
	if err != nil {
		return nil, err
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		c, _ := keys[idx[a]].Compare(keys[idx[b]])
		return c < 0
	})
	out := make([]value.Value, len(items))
	for i, j := range idx {
		out[i] = items[j]
	}
	return out, nil
}

// uniqueValues drops duplicate elements, keeping the first occurrence in
// order. String keys fold case unless caseSensitive is set.
func uniqueValues(items []value.Value, keyOf sortKeyFn, caseSensitive bool) ([]value.Value, error) {
	if len(items) == 0 {
		return items, nil
	}
	keys, err := orderingKeys(items, keyOf)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(items))
	out := make([]value.Value, 0, len(items))
	for i, item := range items {
		probe := uniqueProbe(keys[i], caseSensitive)
		if seen[probe] {
			continue
		}
		seen[probe] = true
		out = append(out, item)
	}
	return out, nil
}

// uniqueProbe maps an ordering key to the string that identifies the
// element in the seen set.
func uniqueProbe(key value.Value, caseSensitive bool) string {
	switch key.Kind() {
	case value.KindBool:
		b, _ := key.AsBool()
		return strconv.FormatBool(b)
	case value.KindNumber:
		f, _ := key.AsFloat()
		return strconv.FormatFloat(f, 'g', -1, 64)
	default:
		s, _ := key.AsString()
		if !caseSensitive {
			return strings.ToLower(s)
		}
		return s
	}
}
