package lysine

import (
	"fmt"
	"regexp"

	"github.com/ctcl-bregis/lysine/value"
)

// Built-in tester implementations. Like filters, testers return plain
// errors and the processor wraps them with position info.

// testerInput guards against a nil value pointer from host callers.
func testerInput(v *value.Value) value.Value {
	if v == nil {
		return value.Undefined()
	}
	return *v
}

func oneArg(name string, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Undefined(), fmt.Errorf("tester `%s` expects exactly one argument, got %d", name, len(args))
	}
	return args[0], nil
}

// testerDefined implements the `defined` tester.
func testerDefined(v *value.Value, _ []value.Value) (bool, error) {
	return !testerInput(v).IsUndefined(), nil
}

// testerUndefined implements the `undefined` tester.
func testerUndefined(v *value.Value, _ []value.Value) (bool, error) {
	return testerInput(v).IsUndefined(), nil
}

// testerOdd implements the `odd` tester.
func testerOdd(v *value.Value, _ []value.Value) (bool, error) {
	n, ok := testerInput(v).AsInt()
	if !ok {
		return false, fmt.Errorf("expected an integer, got %s", testerInput(v).Kind())
	}
	return n%2 != 0, nil
}

// testerEven implements the `even` tester.
func testerEven(v *value.Value, _ []value.Value) (bool, error) {
	n, ok := testerInput(v).AsInt()
	if !ok {
		return false, fmt.Errorf("expected an integer, got %s", testerInput(v).Kind())
	}
	return n%2 == 0, nil
}

// testerString implements the `string` tester.
func testerString(v *value.Value, _ []value.Value) (bool, error) {
	return testerInput(v).Kind() == value.KindString, nil
}

// testerNumber implements the `number` tester.
func testerNumber(v *value.Value, _ []value.Value) (bool, error) {
	return testerInput(v).Kind() == value.KindNumber, nil
}

// testerDivisibleBy implements the `divisibleby` tester.
func testerDivisibleBy(v *value.Value, args []value.Value) (bool, error) {
	n, ok := testerInput(v).AsInt()
	if !ok {
		return false, fmt.Errorf("expected an integer, got %s", testerInput(v).Kind())
	}
	arg, err := oneArg("divisibleby", args)
	if err != nil {
		return false, err
	}
	d, ok := arg.AsInt()
	if !ok {
		return false, fmt.Errorf("divisor must be an integer, got %s", arg.Kind())
	}
	if d == 0 {
		return false, fmt.Errorf("division by zero")
	}
	return n%d == 0, nil
}

// testerIterable implements the `iterable` tester: anything a for loop
// accepts.
func testerIterable(v *value.Value, _ []value.Value) (bool, error) {
	switch testerInput(v).Kind() {
	case value.KindArray, value.KindObject:
		return true, nil
	}
	return false, nil
}

// testerObject implements the `object` tester.
func testerObject(v *value.Value, _ []value.Value) (bool, error) {
	return testerInput(v).Kind() == value.KindObject, nil
}

// testerStartingWith implements the `starting_with` tester.
func testerStartingWith(v *value.Value, args []value.Value) (bool, error) {
	s, err := wantString(testerInput(v))
	if err != nil {
		return false, err
	}
	arg, err := oneArg("starting_with", args)
	if err != nil {
		return false, err
	}
	prefix, err := wantString(arg)
	if err != nil {
		return false, err
	}
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix, nil
}

// testerEndingWith implements the `ending_with` tester.
func testerEndingWith(v *value.Value, args []value.Value) (bool, error) {
	s, err := wantString(testerInput(v))
	if err != nil {
		return false, err
	}
	arg, err := oneArg("ending_with", args)
	if err != nil {
		return false, err
	}
	suffix, err := wantString(arg)
	if err != nil {
		return false, err
	}
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix, nil
}

// testerContaining implements the `containing` tester using the same
// semantics as the `in` operator: substring for strings, membership for
// arrays, key presence for objects.
func testerContaining(v *value.Value, args []value.Value) (bool, error) {
	arg, err := oneArg("containing", args)
	if err != nil {
		return false, err
	}
	found, ok := testerInput(v).Contains(arg)
	if !ok {
		return false, fmt.Errorf("cannot check containment in a %s", testerInput(v).Kind())
	}
	return found, nil
}

// testerMatching implements the `matching` tester.
func testerMatching(v *value.Value, args []value.Value) (bool, error) {
	s, err := wantString(testerInput(v))
	if err != nil {
		return false, err
	}
	arg, err := oneArg("matching", args)
	if err != nil {
		return false, err
	}
	pattern, err := wantString(arg)
	if err != nil {
		return false, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid regular expression %q", pattern)
	}
	return re.MatchString(s), nil
}
