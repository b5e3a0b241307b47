package forms

import (
	"strconv"
	"strings"

	"github.com/havenly/unitwise/pkg/fields"
)

// UnitSlot is one repeated unit block within a single submission. It exists
// only between unflattening and flattening.
type UnitSlot struct {
	// Index is the unit index as written in the encoded keys.
	Index string

	// Fields holds the slot's unit-level proposals.
	Fields *FieldMap

	// Offerings holds the slot's offering blocks in encounter order.
	Offerings []*OfferingSlot
}

// OfferingSlot is one rent-tier block nested inside a unit slot.
type OfferingSlot struct {
	Index  string
	Fields *FieldMap
}

// Unflattened is a payload sorted into apartment-, unit-, and
// offering-level proposals.
type Unflattened struct {
	// Apartment holds the apartment-level proposals.
	Apartment *FieldMap

	// Units holds unit slots in index-encounter order.
	Units []*UnitSlot
}

// FlatUnit is one rentable unit's complete proposed field set: unit-level
// fields merged with one offering's fields.
type FlatUnit struct {
	// Fields is the merged proposal (offering fields win collisions).
	Fields *FieldMap
}

// ID returns the explicit unit identifier carried by the proposal, or ""
// for a new unit.
func (u *FlatUnit) ID() string {
	v, ok := u.Fields.Get("ID")
	if !ok {
		return ""
	}
	return fields.Stringify(v)
}

// Unflatten sorts a payload's flat encoded keys into the nested
// apartment/unit/offering structure. Slots are created lazily in the order
// their index first appears. Keys that fail to parse (a non-numeric index
// part) are dropped; a malformed entry never aborts the submission.
func Unflatten(p *Payload) *Unflattened {
	out := &Unflattened{Apartment: NewFieldMap()}

	for _, key := range p.Fields.Keys() {
		value, _ := p.Fields.Get(key)
		name, unitIdx, offeringIdx, ok := splitKey(key)
		if !ok {
			continue
		}

		switch {
		case unitIdx == "":
			out.Apartment.Set(name, value)
		case offeringIdx == "":
			out.unitSlot(unitIdx).Fields.Set(name, value)
		default:
			out.unitSlot(unitIdx).offeringSlot(offeringIdx).Fields.Set(name, value)
		}
	}

	return out
}

// splitKey parses an encoded field name into up to three parts. The second
// and third parts, when present, must be non-negative integers.
func splitKey(key string) (name, unitIdx, offeringIdx string, ok bool) {
	parts := strings.SplitN(key, ":", 3)
	name = parts[0]
	if len(parts) > 1 {
		unitIdx = parts[1]
		if !validIndex(unitIdx) {
			return "", "", "", false
		}
	}
	if len(parts) > 2 {
		offeringIdx = parts[2]
		if !validIndex(offeringIdx) {
			return "", "", "", false
		}
	}
	return name, unitIdx, offeringIdx, true
}

func validIndex(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n >= 0
}

// unitSlot returns the slot for an index, creating it on first reference.
func (u *Unflattened) unitSlot(idx string) *UnitSlot {
	for _, slot := range u.Units {
		if slot.Index == idx {
			return slot
		}
	}
	slot := &UnitSlot{Index: idx, Fields: NewFieldMap()}
	u.Units = append(u.Units, slot)
	return slot
}

// offeringSlot returns the offering slot for an index, creating it on first
// reference.
func (s *UnitSlot) offeringSlot(idx string) *OfferingSlot {
	for _, o := range s.Offerings {
		if o.Index == idx {
			return o
		}
	}
	o := &OfferingSlot{Index: idx, Fields: NewFieldMap()}
	s.Offerings = append(s.Offerings, o)
	return o
}

// isEmptyMap reports whether every value in the map is empty per the
// recursive emptiness predicate.
func isEmptyMap(m *FieldMap) bool {
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		if !fields.IsEmptyValue(v) {
			return false
		}
	}
	return true
}

// Flatten prunes empty slots and flattens the survivors into one FlatUnit
// per (unit x offering) combination.
//
// Offering slots are pruned first; a unit slot is then pruned only if it has
// no non-empty unit-level field and no surviving offering. A unit slot with
// unit-level data but zero surviving offerings emits exactly one FlatUnit.
// Offering fields take precedence over unit fields on key collision. Output
// order follows slot and offering encounter order.
func (u *Unflattened) Flatten() []*FlatUnit {
	var flat []*FlatUnit

	for _, slot := range u.Units {
		var offerings []*OfferingSlot
		for _, o := range slot.Offerings {
			if !isEmptyMap(o.Fields) {
				offerings = append(offerings, o)
			}
		}

		if len(offerings) == 0 {
			if isEmptyMap(slot.Fields) {
				continue
			}
			flat = append(flat, &FlatUnit{Fields: slot.Fields.Clone()})
			continue
		}

		for _, o := range offerings {
			merged := slot.Fields.Clone()
			for _, k := range o.Fields.Keys() {
				v, _ := o.Fields.Get(k)
				merged.Set(k, v)
			}
			flat = append(flat, &FlatUnit{Fields: merged})
		}
	}

	return flat
}
