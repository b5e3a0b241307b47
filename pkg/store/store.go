// Package store defines the storage collaborator consumed by the
// reconciliation engine: typed record access over the housing database
// (apartments and their rentable units), the form-response history, and the
// persisted reject list. Implementations live under internal/store.
package store

import (
	"context"

	"github.com/havenly/unitwise/pkg/fields"
	"github.com/havenly/unitwise/pkg/forms"
)

// Well-known field names with structural meaning to the engine.
const (
	// FieldUnits is the apartment field linking to the apartment's units.
	// Its raw value is a list of unit IDs; a nil value means no links.
	FieldUnits = "UNITS"

	// FieldTempID is the unit field carrying the deterministic slot key a
	// newly created unit was stamped with, so later submissions can target
	// it before its real ID is known to the submitter.
	FieldTempID = "TEMP_ID"

	// FieldID is the domain identifier field present on both tables.
	FieldID = "ID"
)

// Record is one stored entity with typed field access.
type Record interface {
	// ID returns the record's domain identifier.
	ID() string

	// GetString returns a field's canonical string form. Unknown fields
	// return "".
	GetString(field string) string

	// Get returns a field's raw value, which may be structured (e.g. the
	// linked unit-ID list). Unknown fields return nil.
	Get(field string) any
}

// Store is the full storage interface. Every operation is an independent
// round trip: no batching, no transactions across calls.
type Store interface {
	Reader
	Writer
}

// Reader provides the read surface the reconciliation pipeline needs.
type Reader interface {
	// Apartment returns an apartment record by domain identifier.
	Apartment(ctx context.Context, id string) (Record, bool, error)

	// Unit returns a unit record by domain identifier.
	Unit(ctx context.Context, id string) (Record, bool, error)

	// UnitByTempID returns the unit stamped with the given temp-id marker.
	UnitByTempID(ctx context.Context, tempID string) (Record, bool, error)

	// Units returns all unit records.
	Units(ctx context.Context) ([]Record, error)

	// ApartmentFields returns the apartment table's field metadata.
	ApartmentFields(ctx context.Context) ([]fields.Field, error)

	// UnitFields returns the units table's field metadata.
	UnitFields(ctx context.Context) ([]fields.Field, error)

	// Submissions returns a campaign's form responses sorted ascending by
	// submission time.
	Submissions(ctx context.Context, campaign string) ([]forms.Submission, error)

	// RejectMarkers returns every persisted reject marker.
	RejectMarkers(ctx context.Context) ([]string, error)
}

// Writer provides the mutation surface used when a reviewer approves or
// rejects changes. Success or failure is reported per call.
type Writer interface {
	// UpdateApartment updates named fields on an existing apartment.
	UpdateApartment(ctx context.Context, id string, values map[string]any) error

	// UpdateUnit updates named fields on an existing unit.
	UpdateUnit(ctx context.Context, id string, values map[string]any) error

	// CreateUnit creates a unit with the given field values and returns its
	// new domain identifier.
	CreateUnit(ctx context.Context, values map[string]any) (string, error)

	// DeleteUnit deletes a unit record.
	DeleteUnit(ctx context.Context, id string) error

	// AddRejectMarker appends one marker to the reject list. Markers are
	// never removed by the engine.
	AddRejectMarker(ctx context.Context, key string) error
}
