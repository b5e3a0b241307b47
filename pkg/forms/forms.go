// Package forms models housing-update form submissions and turns their flat
// encoded key/value payloads into the nested apartment/unit/offering shape
// the reconciliation pipeline diffs. A payload key has up to three
// colon-separated parts: `FIELD`, `FIELD:unitIdx`, or
// `FIELD:unitIdx:offeringIdx`; the indexes scope repeated unit and offering
// slots within one submission.
package forms

import (
	"time"
)

// Reserved payload keys that carry submission metadata rather than field
// proposals.
const (
	keyApartmentID = "ID"
	keyUserName    = "user_name"
	keyUserNotes   = "userNotes"

	// NotesFieldName is the pseudo field name used to build the reject key
	// for reviewer notes, which travel outside the field schema.
	NotesFieldName = keyUserNotes
)

// Submission is one raw form response: immutable once received. Submissions
// are processed oldest to newest so later ones supersede earlier ones for
// the same apartment.
type Submission struct {
	// ResponseID identifies the stored response record; it seeds every
	// change key derived from this submission.
	ResponseID string

	// Campaign is the opaque campaign identifier the response belongs to.
	Campaign string

	// SubmittedAt is the submission timestamp.
	SubmittedAt time.Time

	// Payload is the decoded form body.
	Payload *Payload
}

// Payload is the decoded form body: apartment identity, reviewer metadata,
// and the flat encoded field mapping in document order.
type Payload struct {
	// ApartmentID names the apartment this submission updates. It may
	// denote an apartment that does not exist in the store yet.
	ApartmentID string

	// UserName is the submitter's free-text name, if provided.
	UserName string

	// UserNotes is the submitter's free-text note to the reviewer.
	UserNotes string

	// Fields holds every non-reserved payload entry in encounter order.
	// Keys are still encoded (may carry unit/offering indexes).
	Fields *FieldMap
}

// FieldMap is an insertion-ordered string-keyed map. Key order is
// load-bearing: unit and offering slots are emitted in the order their
// indexes were first referenced by the payload.
type FieldMap struct {
	keys   []string
	values map[string]any
}

// NewFieldMap returns an empty ordered field map.
func NewFieldMap() *FieldMap {
	return &FieldMap{values: make(map[string]any)}
}

// Set stores a value. A repeated key keeps its original position and takes
// the latest value.
func (m *FieldMap) Set(key string, value any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for a key and whether it is present.
func (m *FieldMap) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether the key is present.
func (m *FieldMap) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// Keys returns the keys in insertion order.
func (m *FieldMap) Keys() []string {
	return m.keys
}

// Len returns the number of entries.
func (m *FieldMap) Len() int {
	return len(m.keys)
}

// Clone returns a copy sharing no state with the receiver.
func (m *FieldMap) Clone() *FieldMap {
	out := NewFieldMap()
	for _, k := range m.keys {
		out.Set(k, m.values[k])
	}
	return out
}
