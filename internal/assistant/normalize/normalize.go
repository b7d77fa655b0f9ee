// Package normalize canonicalizes oracle-extracted argument values,
// one field at a time. Every rule is idempotent: applying it twice
// yields the same result as once.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"crm-assistant/internal/assistant/intent"
	"crm-assistant/internal/models"
)

// Fields applies the per-field rules to an argument map and returns a
// new map. Empty strings are treated as "no value" and removed.
// Unparseable filter values pass through unchanged so the dispatch
// layer can ignore or surface them; normalization never rejects.
func Fields(args map[string]interface{}) map[string]interface{} {
	if args == nil {
		return nil
	}

	out := make(map[string]interface{}, len(args))
	for field, raw := range args {
		switch field {
		case "filters", "updates":
			if nested, ok := raw.(map[string]interface{}); ok {
				if normalized := Fields(nested); len(normalized) > 0 {
					out[field] = normalized
				}
				continue
			}
		}

		v, keep := Field(field, raw)
		if keep {
			out[field] = v
		}
	}
	return out
}

// Field normalizes a single value keyed by field name. The second
// return is false when the value should be dropped from the request.
func Field(field string, raw interface{}) (interface{}, bool) {
	if s, ok := raw.(string); ok {
		if strings.TrimSpace(s) == "" {
			return nil, false
		}
	}

	switch field {
	case "name", "city", "author", "publisher", "location", "company", "submitter":
		if s, ok := raw.(string); ok {
			return TitleCase(s), true
		}
	case "state":
		if s, ok := raw.(string); ok {
			return UpperState(s), true
		}
	case "category":
		if s, ok := raw.(string); ok {
			return MatchCategory(s), true
		}
	case "status":
		if s, ok := raw.(string); ok {
			return MatchStatus(s), true
		}
	case "role":
		if s, ok := raw.(string); ok {
			return MatchRole(s), true
		}
	case "priceFilter":
		if s, ok := raw.(string); ok {
			return CanonicalPriceFilter(s), true
		}
	case "startDate", "endDate", "reportDate":
		if t, ok := ParseLocalDate(raw); ok {
			return t, true
		}
		// Unparseable dates pass through for the dispatcher to report.
		return raw, true
	case "signed":
		b, ok := CoerceBool(raw)
		if !ok {
			return nil, false
		}
		return b, true
	}

	return raw, true
}

// TitleCase lower-cases then title-cases each word of a descriptive
// text field.
func TitleCase(s string) string {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	for i, w := range words {
		// First rune, not first byte: names like "Édouard" start with
		// a multibyte character.
		r, size := utf8.DecodeRuneInString(w)
		if r == utf8.RuneError && size <= 1 {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// UpperState upper-cases a state code. Deliberately permissive: any
// trimmed value is accepted, not just real two-letter codes.
func UpperState(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// MatchCategory resolves a free-form category against the closed enum,
// case-insensitively. Unmatched values pass through unchanged rather
// than being dropped, so a later layer can reject or surface them.
func MatchCategory(s string) string {
	return matchEnum(s, models.ContactCategories)
}

// MatchStatus resolves an expense-report status the same way.
func MatchStatus(s string) string {
	return matchEnum(s, models.ExpenseReportStatuses)
}

// MatchRole lower-cases a role name and resolves it against the known
// roles; unmatched values pass through lower-cased.
func MatchRole(s string) string {
	lowered := strings.ToLower(strings.TrimSpace(s))
	for _, r := range intent.AssignableRoles {
		if lowered == r {
			return r
		}
	}
	return lowered
}

func matchEnum(s string, values []string) string {
	trimmed := strings.TrimSpace(s)
	for _, v := range values {
		if strings.EqualFold(trimmed, v) {
			return v
		}
	}
	return trimmed
}

// PriceRange is a typed numeric constraint with optional open ends.
// MaxExclusive marks the "<N" shape, whose upper bound is exclusive.
type PriceRange struct {
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	MaxExclusive bool     `json:"maxExclusive,omitempty"`
}

// Contains reports whether v satisfies the range.
func (r *PriceRange) Contains(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil {
		if r.MaxExclusive {
			return v < *r.Max
		}
		return v <= *r.Max
	}
	return true
}

// String renders the canonical filter text; parsing it again yields
// the same bounds.
func (r *PriceRange) String() string {
	switch {
	case r.Min != nil && r.Max != nil:
		return fmt.Sprintf("%s-%s", formatBound(*r.Min), formatBound(*r.Max))
	case r.Max != nil:
		return "<" + formatBound(*r.Max)
	case r.Min != nil:
		return ">" + formatBound(*r.Min)
	default:
		return ""
	}
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParsePriceFilter parses one of three shapes: "<N" (upper-bounded,
// exclusive), ">N" (lower-bounded) or "A-B" (inclusive range).
// Whitespace is stripped before parsing. Malformed strings return
// ok=false; callers treat those as a no-op filter.
func ParsePriceFilter(s string) (*PriceRange, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if cleaned == "" {
		return nil, false
	}

	switch {
	case strings.HasPrefix(cleaned, "<"):
		max, err := strconv.ParseFloat(cleaned[1:], 64)
		if err != nil {
			return nil, false
		}
		return &PriceRange{Max: &max, MaxExclusive: true}, true

	case strings.HasPrefix(cleaned, ">"):
		min, err := strconv.ParseFloat(cleaned[1:], 64)
		if err != nil {
			return nil, false
		}
		return &PriceRange{Min: &min}, true

	case strings.Contains(cleaned, "-"):
		parts := strings.SplitN(cleaned, "-", 2)
		min, errMin := strconv.ParseFloat(parts[0], 64)
		max, errMax := strconv.ParseFloat(parts[1], 64)
		if errMin != nil || errMax != nil {
			return nil, false
		}
		if min > max {
			return nil, false
		}
		return &PriceRange{Min: &min, Max: &max}, true
	}

	return nil, false
}

// CanonicalPriceFilter re-serializes a parseable filter into its
// canonical form and passes malformed input through unchanged.
func CanonicalPriceFilter(s string) string {
	if r, ok := ParsePriceFilter(s); ok {
		return r.String()
	}
	return s
}

// ParseLocalDate accepts a YYYY-MM-DD literal or an already-typed
// time.Time. Literals are constructed in local time from their
// year/month/day components, never through a UTC-aware parse, so the
// calendar date survives any host timezone offset.
func ParseLocalDate(raw interface{}) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		parts := strings.SplitN(strings.TrimSpace(v), "-", 3)
		if len(parts) != 3 {
			return time.Time{}, false
		}
		year, errY := strconv.Atoi(parts[0])
		month, errM := strconv.Atoi(parts[1])
		day, errD := strconv.Atoi(parts[2])
		if errY != nil || errM != nil || errD != nil {
			return time.Time{}, false
		}
		if year < 1 || month < 1 || month > 12 || day < 1 || day > 31 {
			return time.Time{}, false
		}
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
		// time.Date normalizes overflow ("02-31" becomes March 3);
		// reject dates that do not round-trip.
		if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// CoerceBool accepts only the literal strings "true"/"false" (or a
// typed bool). Anything else, including "All", means "filter not set".
func CoerceBool(raw interface{}) (bool, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case string:
		switch strings.TrimSpace(v) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}
