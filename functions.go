package lysine

import (
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/ctcl-bregis/lysine/value"
)

// Built-in function implementations.

// functionRange implements `range(end=, start=0, step_by=1)`; end is
// exclusive.
func functionRange(kwargs map[string]value.Value) (value.Value, error) {
	end, err := requireKwargInt(kwargs, "end")
	if err != nil {
		return value.Undefined(), err
	}
	start, _, err := kwargInt(kwargs, "start")
	if err != nil {
		return value.Undefined(), err
	}
	step, ok, err := kwargInt(kwargs, "step_by")
	if err != nil {
		return value.Undefined(), err
	}
	if !ok {
		step = 1
	}
	if step <= 0 {
		return value.Undefined(), fmt.Errorf("argument `step_by` must be positive")
	}
	if start > end {
		return value.Undefined(), fmt.Errorf("argument `start` must not be greater than `end`")
	}
	var items []value.Value
	for i := start; i < end; i += step {
		items = append(items, value.FromInt(i))
	}
	return value.FromSlice(items), nil
}

// functionNow implements `now(timestamp=false, utc=false)`.
func functionNow(kwargs map[string]value.Value) (value.Value, error) {
	timestamp, _, err := kwargBool(kwargs, "timestamp")
	if err != nil {
		return value.Undefined(), err
	}
	utc, _, err := kwargBool(kwargs, "utc")
	if err != nil {
		return value.Undefined(), err
	}
	t := time.Now()
	if utc {
		t = t.UTC()
	}
	if timestamp {
		return value.FromInt(t.Unix()), nil
	}
	return value.FromString(t.Format(time.RFC3339)), nil
}

// functionThrow implements `throw(message=)`, which always fails the
// render with the given message.
func functionThrow(kwargs map[string]value.Value) (value.Value, error) {
	message, err := requireKwargString(kwargs, "message")
	if err != nil {
		return value.Undefined(), err
	}
	return value.Undefined(), fmt.Errorf("%s", message)
}

// functionGetEnv implements `get_env(name=, default=)`.
func functionGetEnv(kwargs map[string]value.Value) (value.Value, error) {
	name, err := requireKwargString(kwargs, "name")
	if err != nil {
		return value.Undefined(), err
	}
	if val, ok := os.LookupEnv(name); ok {
		return value.FromString(val), nil
	}
	if fallback, ok := kwargs["default"]; ok {
		return fallback, nil
	}
	return value.Undefined(), fmt.Errorf("environment variable %q not found", name)
}

// functionPickRandom implements `pick_random(from=)`.
func functionPickRandom(kwargs map[string]value.Value) (value.Value, error) {
	from, ok := kwargs["from"]
	if !ok {
		return value.Undefined(), fmt.Errorf("argument `from` is required")
	}
	arr, err := wantArray(from)
	if err != nil {
		return value.Undefined(), err
	}
	if len(arr) == 0 {
		return value.Undefined(), fmt.Errorf("cannot pick from an empty array")
	}
	return arr[rand.IntN(len(arr))], nil
}

// functionRandomInt implements `random_int(start=0, end=)`; end is
// exclusive.
func functionRandomInt(kwargs map[string]value.Value) (value.Value, error) {
	end, err := requireKwargInt(kwargs, "end")
	if err != nil {
		return value.Undefined(), err
	}
	start, _, err := kwargInt(kwargs, "start")
	if err != nil {
		return value.Undefined(), err
	}
	if end <= start {
		return value.Undefined(), fmt.Errorf("argument `end` must be greater than `start`")
	}
	return value.FromInt(start + rand.Int64N(end-start)), nil
}
