package reconcile

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/havenly/unitwise/pkg/fields"
	"github.com/havenly/unitwise/pkg/forms"
	"github.com/havenly/unitwise/pkg/logging"
	"github.com/havenly/unitwise/pkg/store"
)

// Reconciler replays a campaign's submission history against stored data
// and produces the ordered, non-empty apartment changesets.
type Reconciler interface {
	// Reconcile runs the full pipeline for one campaign.
	Reconcile(ctx context.Context, campaign string) ([]*ApartmentChangeset, error)
}

// reconciler is the default implementation of Reconciler.
type reconciler struct {
	reader store.Reader
	logger *zerolog.Logger
}

// Option is a functional option for configuring a Reconciler.
type Option func(*reconciler)

// WithLogger sets the logger used by the pipeline.
func WithLogger(logger *zerolog.Logger) Option {
	return func(r *reconciler) {
		r.logger = logger
	}
}

// New creates a Reconciler over the given store reader.
func New(reader store.Reader, opts ...Option) Reconciler {
	r := &reconciler{
		reader: reader,
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile loads a snapshot and runs the pure pipeline over it.
func (r *reconciler) Reconcile(ctx context.Context, campaign string) ([]*ApartmentChangeset, error) {
	snap, err := LoadSnapshot(ctx, r.reader, campaign)
	if err != nil {
		return nil, err
	}

	r.logger.Debug().
		Str("campaign", campaign).
		Int("submissions", len(snap.Submissions)).
		Int("rejects", len(snap.Rejects)).
		Msg("Loaded reconciliation snapshot")

	changesets := Run(snap)

	r.logger.Debug().
		Str("campaign", campaign).
		Int("changesets", len(changesets)).
		Msg("Reconciliation complete")

	return changesets, nil
}

// Run executes the pipeline over a snapshot: unflatten each submission,
// prune and flatten its unit slots, resolve unit identity, diff every
// recognized field, filter rejected changes, detect pending deletions, and
// assemble per-apartment changesets.
//
// Submissions are processed oldest first; a later submission for the same
// apartment replaces the earlier one's proposal wholesale, with no
// field-level merge across submissions. Empty changesets are dropped and
// the survivors are ordered by submission timestamp ascending.
func Run(snap *Snapshot) []*ApartmentChangeset {
	byApartment := make(map[string]*ApartmentChangeset)

	for _, sub := range snap.Submissions {
		// A submission without a payload or apartment identity cannot be
		// attributed; it is skipped, never fatal.
		if sub.Payload == nil || sub.Payload.ApartmentID == "" {
			continue
		}
		byApartment[sub.Payload.ApartmentID] = buildChangeset(snap, sub)
	}

	out := make([]*ApartmentChangeset, 0, len(byApartment))
	for _, cs := range byApartment {
		if cs.IsEmpty() {
			continue
		}
		out = append(out, cs)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ApartmentID < out[j].ApartmentID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})

	return out
}

// buildChangeset reconciles one submission against stored state.
func buildChangeset(snap *Snapshot, sub forms.Submission) *ApartmentChangeset {
	p := sub.Payload
	unflattened := forms.Unflatten(p)
	flat := unflattened.Flatten()

	apartment, exists := snap.Apartments[p.ApartmentID]

	cs := &ApartmentChangeset{
		ApartmentID: p.ApartmentID,
		ResponseID:  sub.ResponseID,
		Exists:      exists,
		SubmittedAt: sub.SubmittedAt,
		UserName:    p.UserName,
		Notes:       p.UserNotes,
		Changes:     make(map[string]FieldChange),
	}
	if exists {
		cs.ApartmentName = apartment.GetString("APT_NAME")
		cs.DisplayID = apartment.GetString("DISPLAY_ID")
	}

	// Reviewer notes travel outside the field schema but are still
	// individually rejectable.
	if snap.Rejected(ChangeKey(sub.ResponseID, p.ApartmentID, ApartmentSlot, forms.NotesFieldName)) {
		cs.Notes = ""
	}

	diffApartment(snap, cs, apartment, unflattened.Apartment)

	for i, fu := range flat {
		cs.Units = append(cs.Units, diffUnit(snap, cs, fu, i))
	}

	detectDeletions(snap, cs, apartment)

	return cs
}

// diffApartment diffs the apartment-level proposals against the stored
// apartment record (or against empty values when the apartment is new).
func diffApartment(snap *Snapshot, cs *ApartmentChangeset, apartment store.Record, proposed *forms.FieldMap) {
	for _, f := range snap.ApartmentFields {
		// Identity and linkage fields are structural, not reviewable.
		if f.Name == store.FieldID || f.Name == store.FieldUnits {
			continue
		}
		// "Field not submitted" produces no change consideration at all,
		// unlike "field submitted as empty".
		value, ok := proposed.Get(f.Name)
		if !ok {
			continue
		}

		existing := ""
		if apartment != nil {
			existing = apartment.GetString(f.Name)
		}

		key := ChangeKey(cs.ResponseID, cs.ApartmentID, ApartmentSlot, f.Name)
		compared := value
		if snap.Rejected(key) {
			compared = existing
		}
		if fields.Equal(f, existing, compared) {
			continue
		}
		cs.Changes[f.Name] = FieldChange{
			Field:    f.Name,
			Existing: existing,
			Updated:  fields.Canonical(f, value),
			Key:      key,
		}
	}
}

// diffUnit resolves one flattened unit's identity and diffs its proposals.
func diffUnit(snap *Snapshot, cs *ApartmentChangeset, fu *forms.FlatUnit, index int) *UnitChangeset {
	slotKey := SlotKey(cs.ResponseID, cs.ApartmentID, index)

	// Identity resolution: explicit ID, then temp-id adoption for units
	// created by an earlier, still-partially-approved submission. The
	// earlier submission stamped the unit with ITS slot key, so the same
	// slot index is tried under every prior response for this apartment.
	unitID := fu.ID()
	if unitID == "" {
		if rec, ok := snap.UnitsByTempID[slotKey]; ok {
			unitID = rec.ID()
		} else {
			for _, sub := range snap.Submissions {
				if sub.ResponseID == cs.ResponseID {
					continue
				}
				if sub.Payload == nil || sub.Payload.ApartmentID != cs.ApartmentID {
					continue
				}
				prior := SlotKey(sub.ResponseID, cs.ApartmentID, index)
				if rec, ok := snap.UnitsByTempID[prior]; ok {
					unitID = rec.ID()
					break
				}
			}
		}
	}

	var unit store.Record
	if unitID != "" {
		rec, ok := snap.Units[unitID]
		if ok {
			unit = rec
		} else {
			// Dangling reference: the unit was deleted out-of-band.
			// Reclassify as a new-unit proposal rather than erroring.
			unitID = ""
		}
	}

	uc := &UnitChangeset{
		UnitID:    unitID,
		SlotIndex: index,
		SlotKey:   slotKey,
		Changes:   make(map[string]FieldChange),
		Proposed:  fu,
	}

	for _, f := range snap.UnitFields {
		if f.Name == store.FieldID || f.Name == store.FieldTempID {
			continue
		}
		value, ok := fu.Fields.Get(f.Name)
		if !ok {
			continue
		}

		existing := ""
		if unit != nil {
			existing = unit.GetString(f.Name)
		}

		key := ChangeKey(cs.ResponseID, cs.ApartmentID, SlotID(index), f.Name)
		compared := value
		if snap.Rejected(key) {
			compared = existing
		}
		if fields.Equal(f, existing, compared) {
			continue
		}
		uc.Changes[f.Name] = FieldChange{
			Field:    f.Name,
			Existing: existing,
			Updated:  fields.Canonical(f, value),
			Key:      key,
		}
	}

	return uc
}

// detectDeletions computes which stored units linked to the apartment are
// absent from the proposed set. A known limitation carried over from the
// source system: a deletion proposal can coincide with field edits to the
// same unit, and rejecting the deletion does not resurrect those edits.
func detectDeletions(snap *Snapshot, cs *ApartmentChangeset, apartment store.Record) {
	if apartment == nil {
		return
	}

	// The store may represent "no links" as nil rather than an empty list.
	stored := linkedUnitIDs(apartment.Get(store.FieldUnits))
	if len(stored) == 0 {
		return
	}

	proposed := make(map[string]struct{})
	for _, u := range cs.Units {
		if u.UnitID != "" {
			proposed[u.UnitID] = struct{}{}
		}
	}

	for _, id := range stored {
		if _, ok := proposed[id]; ok {
			continue
		}
		key := DeletionKey(cs.ResponseID, cs.ApartmentID, id)
		if snap.Rejected(key + DeletionRejectSuffix) {
			continue
		}
		cs.PendingDeletions = append(cs.PendingDeletions, Deletion{UnitID: id, Key: key})
	}
}

// linkedUnitIDs renders a linked-record field value as a list of unit IDs.
func linkedUnitIDs(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
