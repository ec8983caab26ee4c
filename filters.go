package lysine

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/dustin/go-humanize"
	"github.com/goodsign/monday"
	"github.com/gosimple/slug"
	strftime "github.com/ncruces/go-strftime"
	"github.com/yuin/goldmark"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ctcl-bregis/lysine/value"
)

// Built-in filter implementations. Filters return plain errors; the
// processor wraps them with the filter name and template position.

func wantString(v value.Value) (string, error) {
	s, ok := v.AsString()
	if !ok {
		return "", fmt.Errorf("expected a string, got %s", v.Kind())
	}
	return s, nil
}

func wantArray(v value.Value) ([]value.Value, error) {
	arr, ok := v.AsArray()
	if !ok {
		return nil, fmt.Errorf("expected an array, got %s", v.Kind())
	}
	return arr, nil
}

func wantNumber(v value.Value) (float64, error) {
	f, ok := v.AsFloat()
	if !ok {
		return 0, fmt.Errorf("expected a number, got %s", v.Kind())
	}
	return f, nil
}

func wantObject(v value.Value) (*value.Object, error) {
	obj, ok := v.AsObject()
	if !ok {
		return nil, fmt.Errorf("expected an object, got %s", v.Kind())
	}
	return obj, nil
}

func kwargString(kwargs map[string]value.Value, name string) (string, bool, error) {
	v, ok := kwargs[name]
	if !ok {
		return "", false, nil
	}
	s, ok := v.AsString()
	if !ok {
		return "", false, fmt.Errorf("argument `%s` must be a string, got %s", name, v.Kind())
	}
	return s, true, nil
}

func kwargInt(kwargs map[string]value.Value, name string) (int64, bool, error) {
	v, ok := kwargs[name]
	if !ok {
		return 0, false, nil
	}
	n, ok := v.AsInt()
	if !ok {
		return 0, false, fmt.Errorf("argument `%s` must be an integer, got %s", name, v.Kind())
	}
	return n, true, nil
}

func kwargBool(kwargs map[string]value.Value, name string) (bool, bool, error) {
	v, ok := kwargs[name]
	if !ok {
		return false, false, nil
	}
	b, ok := v.AsBool()
	if !ok {
		return false, false, fmt.Errorf("argument `%s` must be a bool, got %s", name, v.Kind())
	}
	return b, true, nil
}

func requireKwargString(kwargs map[string]value.Value, name string) (string, error) {
	s, ok, err := kwargString(kwargs, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("argument `%s` is required", name)
	}
	return s, nil
}

func requireKwargInt(kwargs map[string]value.Value, name string) (int64, error) {
	n, ok, err := kwargInt(kwargs, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("argument `%s` is required", name)
	}
	return n, nil
}

// sortKeyFromKwargs builds the key extractor sort and unique share: by the
// element itself, or by the `attribute` kwarg when given.
func sortKeyFromKwargs(kwargs map[string]value.Value) (sortKeyFn, error) {
	attr, ok, err := kwargString(kwargs, "attribute")
	if err != nil {
		return nil, err
	}
	if !ok {
		return identityKey, nil
	}
	return attributeKey(attr), nil
}

// filterUpper implements the `upper` filter.
func filterUpper(v value.Value, _ map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromString(strings.ToUpper(s)), nil
}

// filterLower implements the `lower` filter.
func filterLower(v value.Value, _ map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromString(strings.ToLower(s)), nil
}

// filterTrim implements the `trim` filter.
func filterTrim(v value.Value, _ map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromString(strings.TrimSpace(s)), nil
}

// filterTrimStart implements the `trim_start` filter.
func filterTrimStart(v value.Value, _ map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromString(strings.TrimLeftFunc(s, unicode.IsSpace)), nil
}

// filterTrimEnd implements the `trim_end` filter.
func filterTrimEnd(v value.Value, _ map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromString(strings.TrimRightFunc(s, unicode.IsSpace)), nil
}

// filterTrimStartMatches implements the `trim_start_matches` filter. All
// leading repetitions of `pat` are removed.
func filterTrimStartMatches(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	pat, err := requireKwargString(kwargs, "pat")
	if err != nil {
		return value.Undefined(), err
	}
	if pat == "" {
		return value.FromString(s), nil
	}
	for strings.HasPrefix(s, pat) {
		s = s[len(pat):]
	}
	return value.FromString(s), nil
}

// filterTrimEndMatches implements the `trim_end_matches` filter.
func filterTrimEndMatches(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	pat, err := requireKwargString(kwargs, "pat")
	if err != nil {
		return value.Undefined(), err
	}
	if pat == "" {
		return value.FromString(s), nil
	}
	for strings.HasSuffix(s, pat) {
		s = s[:len(s)-len(pat)]
	}
	return value.FromString(s), nil
}

// filterTruncate implements the `truncate` filter. Truncation counts
// characters, not bytes, and appends `end` only when something was cut.
func filterTruncate(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	length, ok, err := kwargInt(kwargs, "length")
	if err != nil {
		return value.Undefined(), err
	}
	if !ok {
		length = 255
	}
	if length < 0 {
		return value.Undefined(), fmt.Errorf("argument `length` must not be negative")
	}
	end, ok, err := kwargString(kwargs, "end")
	if err != nil {
		return value.Undefined(), err
	}
	if !ok {
		end = "…"
	}
	runes := []rune(s)
	if int64(len(runes)) <= length {
		return value.FromString(s), nil
	}
	return value.FromString(string(runes[:length]) + end), nil
}

// filterWordcount implements the `wordcount` filter.
func filterWordcount(v value.Value, _ map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromInt(int64(len(strings.Fields(s)))), nil
}

// filterReplace implements the `replace` filter.
func filterReplace(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	from, err := requireKwargString(kwargs, "from")
	if err != nil {
		return value.Undefined(), err
	}
	to, err := requireKwargString(kwargs, "to")
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromString(strings.ReplaceAll(s, from, to)), nil
}

// filterCapitalize implements the `capitalize` filter: first letter upper,
// the rest lower.
func filterCapitalize(v value.Value, _ map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	if s == "" {
		return value.FromString(s), nil
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return value.FromString(string(runes)), nil
}

// filterTitle implements the `title` filter.
func filterTitle(v value.Value, _ map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromString(cases.Title(language.Und).String(s)), nil
}

// filterLinebreaksbr implements the `linebreaksbr` filter. The result is
// not safe-marked, so it usually pairs with `safe`.
func filterLinebreaksbr(v value.Value, _ map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	s = strings.ReplaceAll(s, "\r\n", "<br>")
	s = strings.ReplaceAll(s, "\n", "<br>")
	s = strings.ReplaceAll(s, "\r", "<br>")
	return value.FromString(s), nil
}

// filterIndent implements the `indent` filter.
func filterIndent(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	prefix, ok, err := kwargString(kwargs, "prefix")
	if err != nil {
		return value.Undefined(), err
	}
	if !ok {
		prefix = "    "
	}
	first, _, err := kwargBool(kwargs, "first")
	if err != nil {
		return value.Undefined(), err
	}
	blank, _, err := kwargBool(kwargs, "blank")
	if err != nil {
		return value.Undefined(), err
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if i == 0 && !first {
			continue
		}
		if line == "" && !blank {
			continue
		}
		lines[i] = prefix + line
	}
	return value.FromString(strings.Join(lines, "\n")), nil
}

var striptagsRe = regexp.MustCompile(`(?s)(<!--.*?-->|<[^>]*>)`)

// filterStriptags implements the `striptags` filter.
func filterStriptags(v value.Value, _ map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromString(striptagsRe.ReplaceAllString(s, "")), nil
}

var spacelessRe = regexp.MustCompile(`>\s+<`)

// filterSpaceless implements the `spaceless` filter, dropping whitespace
// between adjacent tags.
func filterSpaceless(v value.Value, _ map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromString(spacelessRe.ReplaceAllString(s, "><")), nil
}

// percentEncode escapes everything except unreserved characters and the
// extra characters in keep.
func percentEncode(s, keep string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			sb.WriteByte(c)
		case strings.IndexByte("-_.~"+keep, c) >= 0:
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, "%%%02X", c)
		}
	}
	return sb.String()
}

// filterURLEncode implements the `urlencode` filter; slashes pass through.
func filterURLEncode(v value.Value, _ map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromString(percentEncode(s, "/")), nil
}

// filterURLEncodeStrict implements the `urlencode_strict` filter, which
// also encodes slashes.
func filterURLEncodeStrict(v value.Value, _ map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromString(percentEncode(s, "")), nil
}

// filterSlugify implements the `slugify` filter.
func filterSlugify(v value.Value, _ map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromString(slug.Make(s)), nil
}

var addslashesReplacer = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `"`, `\"`)

// filterAddslashes implements the `addslashes` filter.
func filterAddslashes(v value.Value, _ map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromString(addslashesReplacer.Replace(s)), nil
}

// filterSplit implements the `split` filter.
func filterSplit(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	pat, err := requireKwargString(kwargs, "pat")
	if err != nil {
		return value.Undefined(), err
	}
	if pat == "" {
		return value.Undefined(), fmt.Errorf("argument `pat` must not be empty")
	}
	parts := strings.Split(s, pat)
	items := make([]value.Value, len(parts))
	for i, part := range parts {
		items[i] = value.FromString(part)
	}
	return value.FromSlice(items), nil
}

// filterAsStr implements the `as_str` filter. Compound values stringify
// as JSON.
func filterAsStr(v value.Value, _ map[string]value.Value) (value.Value, error) {
	return value.FromString(v.String()), nil
}

// filterSafe implements the `safe` filter. The value passes through; the
// safe capability on the registration does the marking.
func filterSafe(v value.Value, _ map[string]value.Value) (value.Value, error) {
	return v, nil
}

// filterEscape implements the `escape` filter.
func filterEscape(v value.Value, _ map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromString(EscapeHTML(s)), nil
}

// filterEscapeXML implements the `escape_xml` filter.
func filterEscapeXML(v value.Value, _ map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromString(EscapeXML(s)), nil
}

var markdownRenderer = goldmark.New()

// filterMarkdown implements the `markdown` filter. The default renderer
// drops raw HTML from the source, so the safe-marked output stays safe.
func filterMarkdown(v value.Value, _ map[string]value.Value) (value.Value, error) {
	s, err := wantString(v)
	if err != nil {
		return value.Undefined(), err
	}
	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(s), &buf); err != nil {
		return value.Undefined(), fmt.Errorf("markdown rendering failed: %v", err)
	}
	return value.FromString(buf.String()), nil
}

// filterInt implements the `int` filter. `base` applies to string input;
// `default` substitutes for failed conversions.
func filterInt(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	base, ok, err := kwargInt(kwargs, "base")
	if err != nil {
		return value.Undefined(), err
	}
	if !ok {
		base = 10
	}
	fallback, hasFallback := kwargs["default"]

	n, convErr := convertToInt(v, base)
	if convErr != nil {
		if hasFallback {
			return fallback, nil
		}
		return value.Undefined(), convErr
	}
	return value.FromInt(n), nil
}

func convertToInt(v value.Value, base int64) (int64, error) {
	switch v.Kind() {
	case value.KindNumber:
		if n, ok := v.AsInt(); ok {
			return n, nil
		}
		f, _ := v.AsFloat()
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("cannot convert float %v to an integer", f)
		}
		return int64(f), nil
	case value.KindString:
		s, _ := v.AsString()
		s = strings.TrimSpace(s)
		digits := s
		neg := strings.HasPrefix(digits, "-")
		if neg {
			digits = digits[1:]
		}
		switch base {
		case 2:
			digits = strings.TrimPrefix(digits, "0b")
		case 8:
			digits = strings.TrimPrefix(digits, "0o")
		case 16:
			digits = strings.TrimPrefix(digits, "0x")
		}
		if n, err := strconv.ParseInt(digits, int(base), 64); err == nil {
			if neg {
				n = -n
			}
			return n, nil
		}
		if base == 10 {
			if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) {
				return int64(f), nil
			}
		}
		return 0, fmt.Errorf("cannot parse %q as an integer in base %d", s, base)
	default:
		return 0, fmt.Errorf("expected a number or a string, got %s", v.Kind())
	}
}

// filterFloat implements the `float` filter.
func filterFloat(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	fallback, hasFallback := kwargs["default"]
	f, convErr := convertToFloat(v)
	if convErr != nil {
		if hasFallback {
			return fallback, nil
		}
		return value.Undefined(), convErr
	}
	return value.FromFloat(f), nil
}

func convertToFloat(v value.Value) (float64, error) {
	switch v.Kind() {
	case value.KindNumber:
		f, _ := v.AsFloat()
		return f, nil
	case value.KindString:
		s, _ := v.AsString()
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as a float", s)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected a number or a string, got %s", v.Kind())
	}
}

// filterAbs implements the `abs` filter.
func filterAbs(v value.Value, _ map[string]value.Value) (value.Value, error) {
	if n, ok := v.AsInt(); ok && v.IsInt() {
		if n == math.MinInt64 {
			return value.Undefined(), fmt.Errorf("integer overflow")
		}
		if n < 0 {
			n = -n
		}
		return value.FromInt(n), nil
	}
	f, err := wantNumber(v)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromFloat(math.Abs(f)), nil
}

// filterRound implements the `round` filter with the common, ceil and
// floor methods.
func filterRound(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	f, err := wantNumber(v)
	if err != nil {
		return value.Undefined(), err
	}
	method, ok, err := kwargString(kwargs, "method")
	if err != nil {
		return value.Undefined(), err
	}
	if !ok {
		method = "common"
	}
	precision, _, err := kwargInt(kwargs, "precision")
	if err != nil {
		return value.Undefined(), err
	}
	scale := math.Pow(10, float64(precision))
	switch method {
	case "common":
		f = math.Round(f*scale) / scale
	case "ceil":
		f = math.Ceil(f*scale) / scale
	case "floor":
		f = math.Floor(f*scale) / scale
	default:
		return value.Undefined(), fmt.Errorf("unknown rounding method `%s`", method)
	}
	return value.FromFloat(f), nil
}

// filterPluralize implements the `pluralize` filter: singular suffix at
// plus or minus one, plural suffix otherwise.
func filterPluralize(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	f, err := wantNumber(v)
	if err != nil {
		return value.Undefined(), err
	}
	singular, _, err := kwargString(kwargs, "singular")
	if err != nil {
		return value.Undefined(), err
	}
	plural, ok, err := kwargString(kwargs, "plural")
	if err != nil {
		return value.Undefined(), err
	}
	if !ok {
		plural = "s"
	}
	if f == 1 || f == -1 {
		return value.FromString(singular), nil
	}
	return value.FromString(plural), nil
}

// filterFilesizeformat implements the `filesizeformat` filter.
func filterFilesizeformat(v value.Value, _ map[string]value.Value) (value.Value, error) {
	n, ok := v.AsInt()
	if !ok {
		return value.Undefined(), fmt.Errorf("expected an integer, got %s", v.Kind())
	}
	if n < 0 {
		return value.Undefined(), fmt.Errorf("expected a non-negative size, got %d", n)
	}
	return value.FromString(humanize.IBytes(uint64(n))), nil
}

// filterFirst implements the `first` filter. An empty array yields an
// empty string.
func filterFirst(v value.Value, _ map[string]value.Value) (value.Value, error) {
	arr, err := wantArray(v)
	if err != nil {
		return value.Undefined(), err
	}
	if len(arr) == 0 {
		return value.FromString(""), nil
	}
	return arr[0], nil
}

// filterLast implements the `last` filter.
func filterLast(v value.Value, _ map[string]value.Value) (value.Value, error) {
	arr, err := wantArray(v)
	if err != nil {
		return value.Undefined(), err
	}
	if len(arr) == 0 {
		return value.FromString(""), nil
	}
	return arr[len(arr)-1], nil
}

// filterNth implements the `nth` filter, 0-indexed. Out of range yields an
// empty string.
func filterNth(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	arr, err := wantArray(v)
	if err != nil {
		return value.Undefined(), err
	}
	n, err := requireKwargInt(kwargs, "n")
	if err != nil {
		return value.Undefined(), err
	}
	if n < 0 || n >= int64(len(arr)) {
		return value.FromString(""), nil
	}
	return arr[n], nil
}

// filterJoin implements the `join` filter.
func filterJoin(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	arr, err := wantArray(v)
	if err != nil {
		return value.Undefined(), err
	}
	sep, _, err := kwargString(kwargs, "sep")
	if err != nil {
		return value.Undefined(), err
	}
	parts := make([]string, len(arr))
	for i, item := range arr {
		parts[i] = item.String()
	}
	return value.FromString(strings.Join(parts, sep)), nil
}

// filterSort implements the `sort` filter.
func filterSort(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	arr, err := wantArray(v)
	if err != nil {
		return value.Undefined(), err
	}
	keyOf, err := sortKeyFromKwargs(kwargs)
	if err != nil {
		return value.Undefined(), err
	}
	sorted, err := sortValues(arr, keyOf)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromSlice(sorted), nil
}

// filterUnique implements the `unique` filter.
func filterUnique(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	arr, err := wantArray(v)
	if err != nil {
		return value.Undefined(), err
	}
	keyOf, err := sortKeyFromKwargs(kwargs)
	if err != nil {
		return value.Undefined(), err
	}
	caseSensitive, _, err := kwargBool(kwargs, "case_sensitive")
	if err != nil {
		return value.Undefined(), err
	}
	uniq, err := uniqueValues(arr, keyOf, caseSensitive)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromSlice(uniq), nil
}

// filterSlice implements the `slice` filter. Negative bounds count from
// the end.
func filterSlice(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	arr, err := wantArray(v)
	if err != nil {
		return value.Undefined(), err
	}
	length := int64(len(arr))
	start, _, err := kwargInt(kwargs, "start")
	if err != nil {
		return value.Undefined(), err
	}
	end, ok, err := kwargInt(kwargs, "end")
	if err != nil {
		return value.Undefined(), err
	}
	if !ok {
		end = length
	}
	if start < 0 {
		start += length
	}
	if end < 0 {
		end += length
	}
	start = min(max(start, 0), length)
	end = min(max(end, 0), length)
	if start >= end {
		return value.FromSlice(nil), nil
	}
	return value.FromSlice(arr[start:end]), nil
}

// filterGroupBy implements the `group_by` filter. Elements without the
// attribute are skipped; groups keep first-seen order.
func filterGroupBy(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	arr, err := wantArray(v)
	if err != nil {
		return value.Undefined(), err
	}
	attr, err := requireKwargString(kwargs, "attribute")
	if err != nil {
		return value.Undefined(), err
	}
	groups := value.NewObject()
	for _, item := range arr {
		key, ok := item.ResolvePath(attr)
		if !ok || key.IsUndefined() || key.IsNull() {
			continue
		}
		name := key.String()
		existing, ok := groups.Get(name)
		if !ok {
			groups.Set(name, value.FromSlice([]value.Value{item}))
			continue
		}
		members, _ := existing.AsArray()
		groups.Set(name, value.FromSlice(append(members[:len(members):len(members)], item)))
	}
	return value.FromObject(groups), nil
}

// filterFilter implements the `filter` filter. With `value` it keeps
// elements whose attribute equals it; without, it keeps elements where the
// attribute is present and not null.
func filterFilter(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	arr, err := wantArray(v)
	if err != nil {
		return value.Undefined(), err
	}
	attr, err := requireKwargString(kwargs, "attribute")
	if err != nil {
		return value.Undefined(), err
	}
	want, hasWant := kwargs["value"]
	var out []value.Value
	for _, item := range arr {
		got, ok := item.ResolvePath(attr)
		if hasWant {
			if ok && got.Equal(want) {
				out = append(out, item)
			}
			continue
		}
		if ok && !got.IsUndefined() && !got.IsNull() {
			out = append(out, item)
		}
	}
	return value.FromSlice(out), nil
}

// filterMap implements the `map` filter. Elements without the attribute
// are skipped.
func filterMap(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	arr, err := wantArray(v)
	if err != nil {
		return value.Undefined(), err
	}
	attr, err := requireKwargString(kwargs, "attribute")
	if err != nil {
		return value.Undefined(), err
	}
	var out []value.Value
	for _, item := range arr {
		got, ok := item.ResolvePath(attr)
		if !ok || got.IsUndefined() {
			continue
		}
		out = append(out, got)
	}
	return value.FromSlice(out), nil
}

// filterConcat implements the `concat` filter. An array argument extends,
// anything else appends.
func filterConcat(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	arr, err := wantArray(v)
	if err != nil {
		return value.Undefined(), err
	}
	with, ok := kwargs["with"]
	if !ok {
		return value.Undefined(), fmt.Errorf("argument `with` is required")
	}
	out := append([]value.Value(nil), arr...)
	if more, ok := with.AsArray(); ok {
		out = append(out, more...)
	} else {
		out = append(out, with)
	}
	return value.FromSlice(out), nil
}

// filterLength implements the `length` filter for strings, arrays and
// objects. String length counts characters.
func filterLength(v value.Value, _ map[string]value.Value) (value.Value, error) {
	n, ok := v.Len()
	if !ok {
		return value.Undefined(), fmt.Errorf("cannot get the length of a %s", v.Kind())
	}
	return value.FromInt(int64(n)), nil
}

// filterReverse implements the `reverse` filter for arrays and strings.
func filterReverse(v value.Value, _ map[string]value.Value) (value.Value, error) {
	if arr, ok := v.AsArray(); ok {
		out := make([]value.Value, len(arr))
		for i, item := range arr {
			out[len(arr)-1-i] = item
		}
		return value.FromSlice(out), nil
	}
	if s, ok := v.AsString(); ok {
		runes := []rune(s)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return value.FromString(string(runes)), nil
	}
	return value.Undefined(), fmt.Errorf("cannot reverse a %s", v.Kind())
}

var dateInputLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// filterDate implements the `date` filter. Input is a unix timestamp or a
// date string; `format` takes strftime specifiers, `timezone` converts,
// and `locale` localizes month and day names.
func filterDate(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	t, err := parseDateValue(v)
	if err != nil {
		return value.Undefined(), err
	}
	format, ok, err := kwargString(kwargs, "format")
	if err != nil {
		return value.Undefined(), err
	}
	if !ok {
		format = "%Y-%m-%d"
	}
	tz, ok, err := kwargString(kwargs, "timezone")
	if err != nil {
		return value.Undefined(), err
	}
	if ok {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return value.Undefined(), fmt.Errorf("timezone %q not found", tz)
		}
		t = t.In(loc)
	}
	locale, ok, err := kwargString(kwargs, "locale")
	if err != nil {
		return value.Undefined(), err
	}
	if !ok {
		return value.FromString(strftime.Format(format, t)), nil
	}
	layout, err := strftime.Layout(format)
	if err != nil {
		return value.Undefined(), fmt.Errorf("format %q cannot be localized: %v", format, err)
	}
	return value.FromString(monday.Format(t, layout, monday.Locale(locale))), nil
}

func parseDateValue(v value.Value) (time.Time, error) {
	switch v.Kind() {
	case value.KindNumber:
		ts, ok := v.AsInt()
		if !ok {
			return time.Time{}, fmt.Errorf("timestamp must be an integer")
		}
		return time.Unix(ts, 0).UTC(), nil
	case value.KindString:
		s, _ := v.AsString()
		for _, layout := range dateInputLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse %q as a date", s)
	default:
		return time.Time{}, fmt.Errorf("expected a timestamp or a date string, got %s", v.Kind())
	}
}

// filterJSONEncode implements the `json_encode` filter.
func filterJSONEncode(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	pretty, _, err := kwargBool(kwargs, "pretty")
	if err != nil {
		return value.Undefined(), err
	}
	if pretty {
		return value.FromString(v.ToJSONIndent()), nil
	}
	return value.FromString(v.ToJSON()), nil
}

// filterYAMLEncode implements the `yaml_encode` filter.
func filterYAMLEncode(v value.Value, _ map[string]value.Value) (value.Value, error) {
	s, err := v.ToYAML()
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromString(s), nil
}

// filterGet implements the `get` filter: top-level key access on an
// object with an optional default.
func filterGet(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	obj, err := wantObject(v)
	if err != nil {
		return value.Undefined(), err
	}
	key, err := requireKwargString(kwargs, "key")
	if err != nil {
		return value.Undefined(), err
	}
	if got, ok := obj.Get(key); ok {
		return got, nil
	}
	if fallback, ok := kwargs["default"]; ok {
		return fallback, nil
	}
	return value.Undefined(), fmt.Errorf("object has no key %q", key)
}

// filterDefault implements the `default` filter, the one filter that
// accepts undefined input.
func filterDefault(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
	fallback, ok := kwargs["value"]
	if !ok {
		return value.Undefined(), fmt.Errorf("argument `value` is required")
	}
	if v.IsUndefined() {
		return fallback, nil
	}
	return v, nil
}
