package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqualCheckbox(t *testing.T) {
	f := Field{Name: "FURNISHED", Type: TypeCheckbox}

	assert.False(t, Equal(f, "", true), "unchecked vs checked should differ")
	assert.True(t, Equal(f, "checked", true))
	assert.True(t, Equal(f, "", false))
	assert.True(t, Equal(f, "unchecked", ""))
}

func TestEqualPhoneNumber(t *testing.T) {
	f := Field{Name: "PHONE", Type: TypePhoneNumber}

	assert.True(t, Equal(f, "(555) 123-4567", "555-123-4567"))
	assert.True(t, Equal(f, "555 123 4567", "5551234567"))
	assert.False(t, Equal(f, "(555) 123-4567", "555-123-4568"))
}

func TestFormatPhoneNumber(t *testing.T) {
	f := Field{Name: "PHONE", Type: TypePhoneNumber}

	assert.Equal(t, "(555) 123-4567", Format(f, "555-123-4567"))
	assert.Equal(t, "(555) 123-4567", Format(f, "(555) 123-4567"))
	// Not exactly ten digits: rendered raw
	assert.Equal(t, "+1 555 123 4567", Format(f, "+1 555 123 4567"))
	assert.Equal(t, "12345", Format(f, "12345"))
}

func TestEqualNumber(t *testing.T) {
	f := Field{Name: "RENT", Type: TypeNumber, Options: Options{Precision: 2}}

	assert.True(t, Equal(f, "1200.00", float64(1200)))
	assert.True(t, Equal(f, "1200", "1200.001"), "beyond declared precision")
	assert.False(t, Equal(f, "1200", "1300"))
	// Two unparsable values normalize identically
	assert.True(t, Equal(f, "n/a", "tbd"))
	assert.False(t, Equal(f, "n/a", "1200"))
}

func TestFormatNumber(t *testing.T) {
	f := Field{Name: "RENT", Type: TypeNumber, Options: Options{Precision: 2}}

	assert.Equal(t, "1200.00", Format(f, "1200"))
	assert.Equal(t, "1200.50", Format(f, float64(1200.5)))
	// Non-numeric input is left as-is for display
	assert.Equal(t, "call for pricing", Format(f, "call for pricing"))
}

func TestEqualMultipleSelects(t *testing.T) {
	f := Field{Name: "AMENITIES", Type: TypeMultipleSelects}

	assert.True(t, Equal(f, "B, A", []any{"A", "B"}))
	assert.True(t, Equal(f, "A, B", "B,  A"), "members trimmed before sorting")
	assert.False(t, Equal(f, "A, B", []any{"A", "C"}))
}

func TestEqualText(t *testing.T) {
	single := Field{Name: "APT_NAME", Type: TypeSingleLineText}
	multi := Field{Name: "NOTES", Type: TypeMultilineText}

	assert.True(t, Equal(single, "The  Oaks", "The Oaks"))
	assert.True(t, Equal(multi, "line one\nline two", "line one line two"))
	assert.False(t, Equal(single, "The Oaks", "The Elms"))
}

func TestFormatText(t *testing.T) {
	f := Field{Name: "NOTES", Type: TypeMultilineText}

	assert.Equal(t, "first<br/>second", Format(f, "first\r\nsecond"))
	assert.Equal(t, "kept  spacing", Format(f, "kept  spacing"))
}

func TestEqualUntypedFallback(t *testing.T) {
	f := Field{Name: "DISPLAY_ID"}

	assert.True(t, Equal(f, "abc", " abc "))
	assert.False(t, Equal(f, "abc", "abd"))
}

func TestNormalizeIdempotence(t *testing.T) {
	cases := []struct {
		name  string
		field Field
		value any
	}{
		{"checkbox true", Field{Type: TypeCheckbox}, true},
		{"checkbox empty", Field{Type: TypeCheckbox}, ""},
		{"phone", Field{Type: TypePhoneNumber}, "(555) 123-4567"},
		{"number", Field{Type: TypeNumber, Options: Options{Precision: 2}}, "1200.5"},
		{"number unparsable", Field{Type: TypeNumber}, "n/a"},
		{"selects string", Field{Type: TypeMultipleSelects}, "B, A"},
		{"selects list", Field{Type: TypeMultipleSelects}, []any{"B", "A"}},
		{"text", Field{Type: TypeMultilineText}, "a  b\nc"},
		{"untyped", Field{}, "raw value"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			once := Normalize(tc.field, tc.value)
			twice := Normalize(tc.field, once)
			assert.Equal(t, once, twice)
		})
	}
}

func TestConvert(t *testing.T) {
	t.Run("number", func(t *testing.T) {
		f := Field{Name: "RENT", Type: TypeNumber}
		v, err := Convert(f, "1200.50")
		require.NoError(t, err)
		assert.Equal(t, 1200.50, v)

		_, err = Convert(f, "twelve hundred")
		assert.Error(t, err)

		// Empty clears the field rather than failing to parse.
		v, err = Convert(f, "")
		require.NoError(t, err)
		assert.Nil(t, v)

		v, err = Convert(f, "  ")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("checkbox", func(t *testing.T) {
		f := Field{Name: "FURNISHED", Type: TypeCheckbox}
		v, err := Convert(f, "checked")
		require.NoError(t, err)
		assert.Equal(t, true, v)

		v, err = Convert(f, "unchecked")
		require.NoError(t, err)
		assert.Equal(t, false, v)
	})

	t.Run("selects", func(t *testing.T) {
		f := Field{Name: "AMENITIES", Type: TypeMultipleSelects}
		v, err := Convert(f, "B, A")
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, v)
	})

	t.Run("text passthrough", func(t *testing.T) {
		f := Field{Name: "NOTES", Type: TypeMultilineText}
		v, err := Convert(f, "as submitted\nwith newline")
		require.NoError(t, err)
		assert.Equal(t, "as submitted\nwith newline", v)
	})
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "checked", Canonical(Field{Type: TypeCheckbox}, true))
	assert.Equal(t, "unchecked", Canonical(Field{Type: TypeCheckbox}, ""))
	assert.Equal(t, "A, B", Canonical(Field{Type: TypeMultipleSelects}, []any{"B", "A"}))
	assert.Equal(t, "raw\ntext", Canonical(Field{Type: TypeMultilineText}, "raw\ntext"))
	assert.Equal(t, "1200", Canonical(Field{Type: TypeNumber}, float64(1200)))
}

func TestIsEmptyValue(t *testing.T) {
	assert.True(t, IsEmptyValue(nil))
	assert.True(t, IsEmptyValue(""))
	assert.True(t, IsEmptyValue(float64(0)))
	assert.True(t, IsEmptyValue(false))
	assert.True(t, IsEmptyValue([]any{}))
	assert.True(t, IsEmptyValue([]any{"", float64(0)}))
	assert.True(t, IsEmptyValue(map[string]any{"a": "", "b": []any{}}))

	assert.False(t, IsEmptyValue("x"))
	assert.False(t, IsEmptyValue(float64(1)))
	assert.False(t, IsEmptyValue(true))
	assert.False(t, IsEmptyValue(map[string]any{"a": "x"}))
}

func TestParseSchema(t *testing.T) {
	doc := []byte(`
apartment:
  - name: APT_NAME
    type: singleLineText
  - name: PHONE
    type: phoneNumber
unit:
  - name: RENT
    type: number
    options:
      precision: 2
`)
	s, err := ParseSchema(doc)
	require.NoError(t, err)
	assert.Len(t, s.Apartment, 2)
	assert.Len(t, s.Unit, 1)
	assert.Equal(t, 2, s.UnitIndex()["RENT"].Options.Precision)

	_, err = ParseSchema([]byte("apartment:\n  - type: number\n"))
	assert.Error(t, err, "field without a name should be rejected")
}
