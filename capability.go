package lysine

import "github.com/ctcl-bregis/lysine/value"

// Filter transforms a value. Arguments arrive by keyword only.
type Filter func(v value.Value, kwargs map[string]value.Value) (value.Value, error)

// Tester checks a property of a value inside an `is` expression. Extra
// arguments are positional.
type Tester func(v *value.Value, args []value.Value) (bool, error)

// Function is a callable available in expressions. Arguments arrive by
// keyword only.
type Function func(kwargs map[string]value.Value) (value.Value, error)

// filterEntry pairs a filter with its safe capability: safe filters mark
// their output as exempt from autoescaping.
type filterEntry struct {
	fn   Filter
	safe bool
}
