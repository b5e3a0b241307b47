package forms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayloadPreservesOrder(t *testing.T) {
	raw := []byte(`{
		"ID": "apt1",
		"user_name": "Pat Doe",
		"userNotes": "second floor was renovated",
		"PHONE": "555-123-4567",
		"TYPE:1": "1 BR",
		"TYPE:0": "Studio",
		"RENT:1:0": 1800
	}`)

	p, err := DecodePayload(raw)
	require.NoError(t, err)

	assert.Equal(t, "apt1", p.ApartmentID)
	assert.Equal(t, "Pat Doe", p.UserName)
	assert.Equal(t, "second floor was renovated", p.UserNotes)

	// Reserved keys are lifted out; the rest keep document order.
	assert.Equal(t, []string{"PHONE", "TYPE:1", "TYPE:0", "RENT:1:0"}, p.Fields.Keys())

	rent, ok := p.Fields.Get("RENT:1:0")
	require.True(t, ok)
	assert.Equal(t, float64(1800), rent)
}

func TestDecodePayloadErrors(t *testing.T) {
	_, err := DecodePayload([]byte(`[1,2]`))
	assert.Error(t, err, "non-object payload")

	_, err = DecodePayload([]byte(`{"A": 1`))
	assert.Error(t, err, "truncated payload")

	_, err = DecodePayload([]byte(`not json`))
	assert.Error(t, err)
}

func decodeFields(t *testing.T, pairs ...[2]any) *Payload {
	t.Helper()
	p := &Payload{Fields: NewFieldMap()}
	for _, kv := range pairs {
		p.Fields.Set(kv[0].(string), kv[1])
	}
	return p
}

func TestUnflattenLevels(t *testing.T) {
	p := decodeFields(t,
		[2]any{"PHONE", "555-123-4567"},
		[2]any{"TYPE:0", "Studio"},
		[2]any{"RENT:0:0", float64(1200)},
		[2]any{"RENT:0:1", float64(1400)},
		[2]any{"TYPE:2", "2 BR"},
	)

	u := Unflatten(p)

	phone, ok := u.Apartment.Get("PHONE")
	require.True(t, ok)
	assert.Equal(t, "555-123-4567", phone)

	require.Len(t, u.Units, 2)
	assert.Equal(t, "0", u.Units[0].Index)
	assert.Equal(t, "2", u.Units[1].Index)
	require.Len(t, u.Units[0].Offerings, 2)
	assert.Equal(t, "0", u.Units[0].Offerings[0].Index)
	assert.Equal(t, "1", u.Units[0].Offerings[1].Index)
}

func TestUnflattenSlotEncounterOrder(t *testing.T) {
	// Slot order is first-reference order from the document, not numeric.
	p := decodeFields(t,
		[2]any{"TYPE:3", "Loft"},
		[2]any{"TYPE:1", "Studio"},
		[2]any{"RENT:3:0", float64(2000)},
	)

	u := Unflatten(p)
	require.Len(t, u.Units, 2)
	assert.Equal(t, "3", u.Units[0].Index)
	assert.Equal(t, "1", u.Units[1].Index)
}

func TestUnflattenMalformedKeysDropped(t *testing.T) {
	p := decodeFields(t,
		[2]any{"TYPE:x", "Studio"},
		[2]any{"RENT:0:y", float64(1)},
		[2]any{"RENT:-1", float64(1)},
		[2]any{"GOOD", "kept"},
	)

	u := Unflatten(p)
	assert.Empty(t, u.Units)
	assert.Equal(t, []string{"GOOD"}, u.Apartment.Keys())
}

func TestFlattenPrunesEmptySlots(t *testing.T) {
	p := decodeFields(t,
		[2]any{"TYPE:0", "Studio"},
		[2]any{"RENT:0:0", float64(1200)},
		[2]any{"RENT:0:1", ""}, // empty offering: pruned
		[2]any{"TYPE:1", ""},   // fully empty slot: pruned
		[2]any{"RENT:1:0", float64(0)},
	)

	flat := Unflatten(p).Flatten()
	require.Len(t, flat, 1)

	typ, _ := flat[0].Fields.Get("TYPE")
	rent, _ := flat[0].Fields.Get("RENT")
	assert.Equal(t, "Studio", typ)
	assert.Equal(t, float64(1200), rent)
}

func TestFlattenUnitWithoutOfferings(t *testing.T) {
	p := decodeFields(t,
		[2]any{"TYPE:0", "Studio"},
	)

	flat := Unflatten(p).Flatten()
	require.Len(t, flat, 1)
	assert.Equal(t, []string{"TYPE"}, flat[0].Fields.Keys())
}

func TestFlattenEmitsOneRecordPerOffering(t *testing.T) {
	p := decodeFields(t,
		[2]any{"TYPE:0", "Studio"},
		[2]any{"RENT:0:0", float64(1200)},
		[2]any{"RENT:0:1", float64(1400)},
	)

	flat := Unflatten(p).Flatten()
	require.Len(t, flat, 2)

	r0, _ := flat[0].Fields.Get("RENT")
	r1, _ := flat[1].Fields.Get("RENT")
	assert.Equal(t, float64(1200), r0)
	assert.Equal(t, float64(1400), r1)

	// Unit-level fields are merged into every record.
	t0, _ := flat[0].Fields.Get("TYPE")
	t1, _ := flat[1].Fields.Get("TYPE")
	assert.Equal(t, "Studio", t0)
	assert.Equal(t, "Studio", t1)
}

func TestFlattenOfferingFieldWinsCollision(t *testing.T) {
	p := decodeFields(t,
		[2]any{"RENT:0", float64(999)},
		[2]any{"RENT:0:0", float64(1200)},
	)

	flat := Unflatten(p).Flatten()
	require.Len(t, flat, 1)
	rent, _ := flat[0].Fields.Get("RENT")
	assert.Equal(t, float64(1200), rent)
}

func TestFlatUnitID(t *testing.T) {
	p := decodeFields(t,
		[2]any{"ID:0", "U17"},
		[2]any{"TYPE:0", "Studio"},
		[2]any{"TYPE:1", "Loft"},
	)

	flat := Unflatten(p).Flatten()
	require.Len(t, flat, 2)
	assert.Equal(t, "U17", flat[0].ID())
	assert.Equal(t, "", flat[1].ID())
}

func TestFieldMapSetKeepsPosition(t *testing.T) {
	m := NewFieldMap()
	m.Set("A", 1)
	m.Set("B", 2)
	m.Set("A", 3)

	assert.Equal(t, []string{"A", "B"}, m.Keys())
	v, _ := m.Get("A")
	assert.Equal(t, 3, v)
}
