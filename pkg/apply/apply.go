// Package apply executes review decisions against the housing store:
// approving a field change writes the converted value, approving a deletion
// removes the unit, and rejecting either persists its key on the durable
// reject list so the proposal never resurfaces.
package apply

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/havenly/unitwise/pkg/errors"
	"github.com/havenly/unitwise/pkg/fields"
	"github.com/havenly/unitwise/pkg/forms"
	"github.com/havenly/unitwise/pkg/logging"
	"github.com/havenly/unitwise/pkg/reconcile"
	"github.com/havenly/unitwise/pkg/store"
)

// Applier executes review decisions.
type Applier interface {
	// ApproveApartmentField writes one approved apartment field change.
	ApproveApartmentField(ctx context.Context, cs *reconcile.ApartmentChangeset, field string) error

	// ApproveUnitField writes one approved unit field change, creating the
	// unit first when the changeset targets a new one. It returns the unit's
	// identifier, freshly minted for a created unit.
	ApproveUnitField(ctx context.Context, cs *reconcile.ApartmentChangeset, uc *reconcile.UnitChangeset, field string) (string, error)

	// ApproveDeletion deletes the unit a pending deletion names.
	ApproveDeletion(ctx context.Context, d reconcile.Deletion) error

	// Reject persists a field change's key on the reject list.
	Reject(ctx context.Context, ch reconcile.FieldChange) error

	// RejectDeletion persists a deletion's reject marker.
	RejectDeletion(ctx context.Context, d reconcile.Deletion) error

	// RejectNotes persists the reject marker for a changeset's reviewer
	// notes.
	RejectNotes(ctx context.Context, cs *reconcile.ApartmentChangeset) error
}

type applier struct {
	store  store.Store
	logger *zerolog.Logger
}

// Option configures an Applier.
type Option func(*applier)

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *applier) {
		a.logger = logger
	}
}

// New creates an Applier backed by the given store.
func New(st store.Store, opts ...Option) Applier {
	a := &applier{
		store:  st,
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *applier) ApproveApartmentField(ctx context.Context, cs *reconcile.ApartmentChangeset, field string) error {
	ch, ok := cs.Changes[field]
	if !ok {
		return errors.NewNotFoundError("change", field)
	}

	f, err := a.apartmentField(ctx, field)
	if err != nil {
		return err
	}
	value, err := fields.Convert(f, ch.Updated)
	if err != nil {
		return errors.NewConvertError(field, ch.Updated, err)
	}

	if err := a.store.UpdateApartment(ctx, cs.ApartmentID, map[string]any{field: value}); err != nil {
		return errors.WrapStore("update", "apartment", cs.ApartmentID, err)
	}

	a.logger.Info().
		Str("apartment", cs.ApartmentID).
		Str("field", field).
		Str("key", ch.Key).
		Msg("Approved apartment field change")
	return nil
}

func (a *applier) ApproveUnitField(ctx context.Context, cs *reconcile.ApartmentChangeset, uc *reconcile.UnitChangeset, field string) (string, error) {
	ch, ok := uc.Changes[field]
	if !ok {
		return "", errors.NewNotFoundError("change", field)
	}

	f, err := a.unitField(ctx, field)
	if err != nil {
		return "", err
	}
	value, err := fields.Convert(f, ch.Updated)
	if err != nil {
		return "", errors.NewConvertError(field, ch.Updated, err)
	}

	if uc.IsNew() {
		// First approval creates the unit, stamped with the slot's temp-id
		// marker so re-running the campaign resolves back to it.
		id, err := a.store.CreateUnit(ctx, map[string]any{
			field:             value,
			store.FieldTempID: uc.SlotKey,
		})
		if err != nil {
			return "", errors.WrapStore("create", "unit", uc.SlotKey, err)
		}
		uc.UnitID = id
		a.logger.Info().
			Str("apartment", cs.ApartmentID).
			Str("unit", id).
			Str("slot", uc.SlotKey).
			Str("field", field).
			Msg("Created unit from approved field change")
		return id, nil
	}

	if err := a.store.UpdateUnit(ctx, uc.UnitID, map[string]any{field: value}); err != nil {
		return "", errors.WrapStore("update", "unit", uc.UnitID, err)
	}

	a.logger.Info().
		Str("apartment", cs.ApartmentID).
		Str("unit", uc.UnitID).
		Str("field", field).
		Str("key", ch.Key).
		Msg("Approved unit field change")
	return uc.UnitID, nil
}

func (a *applier) ApproveDeletion(ctx context.Context, d reconcile.Deletion) error {
	if err := a.store.DeleteUnit(ctx, d.UnitID); err != nil {
		return errors.WrapStore("delete", "unit", d.UnitID, err)
	}
	a.logger.Info().Str("unit", d.UnitID).Str("key", d.Key).Msg("Approved unit deletion")
	return nil
}

func (a *applier) Reject(ctx context.Context, ch reconcile.FieldChange) error {
	if ch.Key == "" {
		return errors.NewValidationError("key", ch, "change has no key")
	}
	if err := a.store.AddRejectMarker(ctx, ch.Key); err != nil {
		return errors.WrapStore("reject", "change", ch.Key, err)
	}
	a.logger.Info().Str("key", ch.Key).Msg("Rejected field change")
	return nil
}

func (a *applier) RejectDeletion(ctx context.Context, d reconcile.Deletion) error {
	key := d.Key + reconcile.DeletionRejectSuffix
	if err := a.store.AddRejectMarker(ctx, key); err != nil {
		return errors.WrapStore("reject", "deletion", key, err)
	}
	a.logger.Info().Str("key", key).Msg("Rejected unit deletion")
	return nil
}

func (a *applier) RejectNotes(ctx context.Context, cs *reconcile.ApartmentChangeset) error {
	key := reconcile.ChangeKey(cs.ResponseID, cs.ApartmentID, reconcile.ApartmentSlot, forms.NotesFieldName)
	if err := a.store.AddRejectMarker(ctx, key); err != nil {
		return errors.WrapStore("reject", "notes", key, err)
	}
	a.logger.Info().Str("key", key).Msg("Rejected reviewer notes")
	return nil
}

// apartmentField resolves one apartment field's metadata.
func (a *applier) apartmentField(ctx context.Context, name string) (fields.Field, error) {
	all, err := a.store.ApartmentFields(ctx)
	if err != nil {
		return fields.Field{}, err
	}
	return lookupField(all, name, "apartment field")
}

// unitField resolves one unit field's metadata.
func (a *applier) unitField(ctx context.Context, name string) (fields.Field, error) {
	all, err := a.store.UnitFields(ctx)
	if err != nil {
		return fields.Field{}, err
	}
	return lookupField(all, name, "unit field")
}

func lookupField(all []fields.Field, name, resource string) (fields.Field, error) {
	for _, f := range all {
		if f.Name == name {
			return f, nil
		}
	}
	return fields.Field{}, errors.NewNotFoundError(resource, name)
}
