// Package fields models the typed fields of the housing database and
// implements the normalization rules used to compare, display, and store
// form-submitted values. Submitted values arrive in many shapes (a phone
// number as "555-123-4567", a multi-select as either a list or a joined
// string) while the store keeps one canonical form; every comparison and
// render goes through the per-type handlers here.
package fields

import (
	"sort"
	"strconv"
	"strings"
)

// Type identifies a field's declared storage type.
type Type string

// Field types recognized by the comparator. Any other type falls back to
// raw trimmed equality.
const (
	TypeCheckbox        Type = "checkbox"
	TypePhoneNumber     Type = "phoneNumber"
	TypeNumber          Type = "number"
	TypeMultipleSelects Type = "multipleSelects"
	TypeSingleLineText  Type = "singleLineText"
	TypeMultilineText   Type = "multilineText"
)

// Options carries type-specific field options.
type Options struct {
	// Precision is the number of decimal places for number fields.
	Precision int `yaml:"precision" json:"precision"`
}

// Field describes one named, typed field of an entity.
type Field struct {
	Name    string  `yaml:"name" json:"name"`
	Type    Type    `yaml:"type" json:"type"`
	Options Options `yaml:"options,omitempty" json:"options,omitempty"`
}

// handler bundles the per-type normalization, display, and conversion
// functions. Adding a field type is one registration in the table below.
type handler struct {
	normalize func(f Field, v any) string
	format    func(f Field, v any) string
	convert   func(f Field, s string) (any, error)
}

var handlers = map[Type]handler{
	TypeCheckbox: {
		normalize: normalizeCheckbox,
		format:    formatCheckbox,
		convert:   convertCheckbox,
	},
	TypePhoneNumber: {
		normalize: normalizePhone,
		format:    formatPhone,
		convert:   convertString,
	},
	TypeNumber: {
		normalize: normalizeNumber,
		format:    formatNumber,
		convert:   convertNumber,
	},
	TypeMultipleSelects: {
		normalize: normalizeSelects,
		format:    normalizeSelects,
		convert:   convertSelects,
	},
	TypeSingleLineText: {
		normalize: normalizeText,
		format:    formatText,
		convert:   convertString,
	},
	TypeMultilineText: {
		normalize: normalizeText,
		format:    formatText,
		convert:   convertString,
	},
}

// defaultHandler handles untyped fields: raw trimmed equality, raw display.
var defaultHandler = handler{
	normalize: func(_ Field, v any) string { return Stringify(v) },
	format:    func(_ Field, v any) string { return Stringify(v) },
	convert:   convertString,
}

func handlerFor(t Type) handler {
	if h, ok := handlers[t]; ok {
		return h
	}
	return defaultHandler
}

// Equal reports whether an existing stored value and a proposed value are
// equivalent for this field, after type-aware normalization and a final
// trimmed string comparison. It is symmetric but depends on the field's
// type and options, so the field must travel with every call.
func Equal(f Field, existing, updated any) bool {
	h := handlerFor(f.Type)
	return strings.TrimSpace(h.normalize(f, existing)) == strings.TrimSpace(h.normalize(f, updated))
}

// Normalize returns the comparison form of a value for this field.
// Normalize(Normalize(x)) == Normalize(x) for every field type.
func Normalize(f Field, v any) string {
	return handlerFor(f.Type).normalize(f, v)
}

// Format renders a value for display to a reviewer.
func Format(f Field, v any) string {
	return handlerFor(f.Type).format(f, v)
}

// Convert coerces a proposed string value to the field's native storage
// shape. Callers wrap failures with the offending field and value; this is
// only invoked at apply time, never during the read-only diff pass.
func Convert(f Field, s string) (any, error) {
	return handlerFor(f.Type).convert(f, s)
}

// Canonical renders a proposed value as the string recorded on a change and
// later fed back through Convert on approval. Checkbox values collapse to
// "checked"/"unchecked" and multi-selects to their sorted ", " join; other
// types keep the raw submitted text so nothing is lost before apply time.
func Canonical(f Field, v any) string {
	switch f.Type {
	case TypeCheckbox:
		return normalizeCheckbox(f, v)
	case TypeMultipleSelects:
		return normalizeSelects(f, v)
	default:
		return Stringify(v)
	}
}

// Index builds a name-keyed lookup over a field list.
func Index(fields []Field) map[string]Field {
	m := make(map[string]Field, len(fields))
	for _, f := range fields {
		m[f.Name] = f
	}
	return m
}

// Stringify renders a raw submitted value as a string. Submitted values
// decode from JSON as string, float64, bool, or []any.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = Stringify(item)
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

// Truthy reports whether a submitted value counts as set. The falsy values
// are nil, the empty string, zero, false, and empty collections.
func Truthy(v any) bool {
	return !IsEmptyValue(v)
}

// IsEmptyValue reports whether a value is considered empty: empty strings,
// zero numbers, false, nil, empty lists, and records whose values are all
// themselves empty.
func IsEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	case float64:
		return val == 0
	case int:
		return val == 0
	case []any:
		for _, item := range val {
			if !IsEmptyValue(item) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, item := range val {
			if !IsEmptyValue(item) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// checkbox

func normalizeCheckbox(_ Field, v any) string {
	if s, ok := v.(string); ok && (s == "checked" || s == "unchecked") {
		return s
	}
	if Truthy(v) {
		return "checked"
	}
	return "unchecked"
}

func formatCheckbox(_ Field, v any) string {
	if s, ok := v.(string); ok {
		if s == "checked" {
			return "yes"
		}
		if s == "unchecked" {
			return "no"
		}
	}
	if Truthy(v) {
		return "yes"
	}
	return "no"
}

func convertCheckbox(_ Field, s string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "no", "false", "unchecked", "0":
		return false, nil
	default:
		return true, nil
	}
}

// phoneNumber

func normalizePhone(_ Field, v any) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '-', '(', ')':
			return -1
		}
		return r
	}, Stringify(v))
}

func formatPhone(_ Field, v any) string {
	raw := Stringify(v)
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) != 10 {
		return raw
	}
	return "(" + d[0:3] + ") " + d[3:6] + "-" + d[6:10]
}

// number

func normalizeNumber(f Field, v any) string {
	parsed, err := parseNumber(v)
	if err != nil {
		// Unparsable values compare as the literal "NaN" so that two
		// non-numeric inputs are equal to each other. This matches the
		// historical comparison behavior behind existing reject keys.
		return "NaN"
	}
	return strconv.FormatFloat(parsed, 'f', f.Options.Precision, 64)
}

func formatNumber(f Field, v any) string {
	parsed, err := parseNumber(v)
	if err != nil {
		return Stringify(v)
	}
	return strconv.FormatFloat(parsed, 'f', f.Options.Precision, 64)
}

func convertNumber(_ Field, s string) (any, error) {
	// An empty proposal clears the field; only non-empty values can fail.
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, nil
	}
	return strconv.ParseFloat(trimmed, 64)
}

func parseNumber(v any) (float64, error) {
	if f, ok := v.(float64); ok {
		return f, nil
	}
	return strconv.ParseFloat(strings.TrimSpace(Stringify(v)), 64)
}

// multipleSelects

func normalizeSelects(_ Field, v any) string {
	var selected []string
	switch val := v.(type) {
	case []any:
		selected = make([]string, len(val))
		for i, item := range val {
			selected[i] = Stringify(item)
		}
	default:
		for _, part := range strings.Split(Stringify(v), ", ") {
			selected = append(selected, strings.TrimSpace(part))
		}
	}
	sort.Strings(selected)
	return strings.Join(selected, ", ")
}

func convertSelects(f Field, s string) (any, error) {
	normalized := normalizeSelects(f, s)
	if normalized == "" {
		return []string{}, nil
	}
	return strings.Split(normalized, ", "), nil
}

// singleLineText / multilineText

func normalizeText(_ Field, v any) string {
	return strings.Join(strings.Fields(Stringify(v)), " ")
}

func formatText(_ Field, v any) string {
	s := strings.ReplaceAll(Stringify(v), "\r", "")
	return strings.ReplaceAll(s, "\n", "<br/>")
}

func convertString(_ Field, s string) (any, error) {
	return s, nil
}
