package record

import "strings"

// ApplyFilters returns the records whose fields strictly equal every entry of
// filters. Filters combine as a conjunction; there is no any-match mode.
// An empty filter set returns rs itself.
func ApplyFilters(rs []Record, filters map[string]any) []Record {
	if len(filters) == 0 {
		return rs
	}
	out := make([]Record, 0, len(rs))
	for _, r := range rs {
		if matches(r, filters) {
			out = append(out, r)
		}
	}
	return out
}

func matches(r Record, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := r[key]
		if !ok || !strictEqual(got, want) {
			return false
		}
	}
	return true
}

// SplitTags splits a comma-joined tag list, dropping empty entries.
func SplitTags(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TaggedWith returns the records whose comma-joined field lists every one of
// tagIDs. A record without the field never matches a non-empty tagIDs.
func TaggedWith(rs []Record, field string, tagIDs []string) []Record {
	out := make([]Record, 0, len(rs))
	for _, r := range rs {
		if hasAllTags(r, field, tagIDs) {
			out = append(out, r)
		}
	}
	return out
}

func hasAllTags(r Record, field string, tagIDs []string) bool {
	if len(tagIDs) == 0 {
		return true
	}
	raw, ok := r[field].(string)
	if !ok {
		return false
	}
	have := make(map[string]struct{})
	for _, t := range strings.Split(raw, ",") {
		have[t] = struct{}{}
	}
	for _, id := range tagIDs {
		if _, ok := have[id]; !ok {
			return false
		}
	}
	return true
}
