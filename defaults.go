package lysine

// Names the engine reserves for itself. __lysine_one_off hosts RenderString
// sources; __lysine_context interpolates the whole context as pretty JSON.
const (
	oneOffTemplateName   = "__lysine_one_off"
	contextDebugVariable = "__lysine_context"
)

// defaultAutoescapeSuffixes returns the template suffixes that enable
// autoescaping on a fresh engine.
func defaultAutoescapeSuffixes() []string {
	return []string{".lisc", ".lism", ".lish"}
}

// registerBuiltins wires the built-in capabilities into a fresh engine.
func registerBuiltins(e *Engine) {
	// String filters
	e.filters["upper"] = filterEntry{fn: filterUpper}
	e.filters["lower"] = filterEntry{fn: filterLower}
	e.filters["trim"] = filterEntry{fn: filterTrim}
	e.filters["trim_start"] = filterEntry{fn: filterTrimStart}
	e.filters["trim_end"] = filterEntry{fn: filterTrimEnd}
	e.filters["trim_start_matches"] = filterEntry{fn: filterTrimStartMatches}
	e.filters["trim_end_matches"] = filterEntry{fn: filterTrimEndMatches}
	e.filters["truncate"] = filterEntry{fn: filterTruncate}
	e.filters["wordcount"] = filterEntry{fn: filterWordcount}
	e.filters["replace"] = filterEntry{fn: filterReplace}
	e.filters["capitalize"] = filterEntry{fn: filterCapitalize}
	e.filters["title"] = filterEntry{fn: filterTitle}
	e.filters["linebreaksbr"] = filterEntry{fn: filterLinebreaksbr}
	e.filters["indent"] = filterEntry{fn: filterIndent}
	e.filters["striptags"] = filterEntry{fn: filterStriptags}
	e.filters["spaceless"] = filterEntry{fn: filterSpaceless}
	e.filters["urlencode"] = filterEntry{fn: filterURLEncode}
	e.filters["urlencode_strict"] = filterEntry{fn: filterURLEncodeStrict}
	e.filters["slugify"] = filterEntry{fn: filterSlugify}
	e.filters["addslashes"] = filterEntry{fn: filterAddslashes}
	e.filters["split"] = filterEntry{fn: filterSplit}
	e.filters["as_str"] = filterEntry{fn: filterAsStr}

	// Escaping filters; their output never gets escaped again
	e.filters["safe"] = filterEntry{fn: filterSafe, safe: true}
	e.filters["escape"] = filterEntry{fn: filterEscape, safe: true}
	e.filters["escape_xml"] = filterEntry{fn: filterEscapeXML, safe: true}
	e.filters["markdown"] = filterEntry{fn: filterMarkdown, safe: true}

	// Number filters
	e.filters["int"] = filterEntry{fn: filterInt}
	e.filters["float"] = filterEntry{fn: filterFloat}
	e.filters["abs"] = filterEntry{fn: filterAbs}
	e.filters["round"] = filterEntry{fn: filterRound}
	e.filters["pluralize"] = filterEntry{fn: filterPluralize}
	e.filters["filesizeformat"] = filterEntry{fn: filterFilesizeformat}

	// Array filters
	e.filters["first"] = filterEntry{fn: filterFirst}
	e.filters["last"] = filterEntry{fn: filterLast}
	e.filters["nth"] = filterEntry{fn: filterNth}
	e.filters["join"] = filterEntry{fn: filterJoin}
	e.filters["sort"] = filterEntry{fn: filterSort}
	e.filters["unique"] = filterEntry{fn: filterUnique}
	e.filters["slice"] = filterEntry{fn: filterSlice}
	e.filters["group_by"] = filterEntry{fn: filterGroupBy}
	e.filters["filter"] = filterEntry{fn: filterFilter}
	e.filters["map"] = filterEntry{fn: filterMap}
	e.filters["concat"] = filterEntry{fn: filterConcat}

	// Common filters
	e.filters["length"] = filterEntry{fn: filterLength}
	e.filters["reverse"] = filterEntry{fn: filterReverse}
	e.filters["date"] = filterEntry{fn: filterDate}
	e.filters["json_encode"] = filterEntry{fn: filterJSONEncode}
	e.filters["yaml_encode"] = filterEntry{fn: filterYAMLEncode}
	e.filters["get"] = filterEntry{fn: filterGet}
	e.filters["default"] = filterEntry{fn: filterDefault}

	// Testers
	e.testers["defined"] = testerDefined
	e.testers["undefined"] = testerUndefined
	e.testers["odd"] = testerOdd
	e.testers["even"] = testerEven
	e.testers["string"] = testerString
	e.testers["number"] = testerNumber
	e.testers["divisibleby"] = testerDivisibleBy
	e.testers["iterable"] = testerIterable
	e.testers["object"] = testerObject
	e.testers["starting_with"] = testerStartingWith
	e.testers["ending_with"] = testerEndingWith
	e.testers["containing"] = testerContaining
	e.testers["matching"] = testerMatching

	// Functions
	e.functions["range"] = functionRange
	e.functions["now"] = functionNow
	e.functions["throw"] = functionThrow
	e.functions["get_env"] = functionGetEnv
	e.functions["pick_random"] = functionPickRandom
	e.functions["random_int"] = functionRandomInt
}
