package reconcile

import (
	"context"
	"sort"

	"github.com/havenly/unitwise/pkg/fields"
	"github.com/havenly/unitwise/pkg/forms"
	"github.com/havenly/unitwise/pkg/store"
)

// Snapshot is an immutable picture of everything one reconciliation run
// reads: the campaign's submission history, the stored records it may
// touch, both tables' field metadata, and the reject list. The pipeline is
// a pure function of a snapshot, so there are no ambient lookups and no
// caches to invalidate across runs.
type Snapshot struct {
	// Campaign is the campaign being reconciled.
	Campaign string

	// Submissions is the campaign's history, ascending by submission time.
	Submissions []forms.Submission

	// Apartments holds stored apartment records keyed by domain ID.
	Apartments map[string]store.Record

	// Units holds stored unit records keyed by domain ID.
	Units map[string]store.Record

	// UnitsByTempID holds stored unit records keyed by temp-id marker.
	UnitsByTempID map[string]store.Record

	// ApartmentFields and UnitFields are the recognized field sets.
	ApartmentFields []fields.Field
	UnitFields      []fields.Field

	// Rejects is the persisted reject list as a set.
	Rejects map[string]struct{}
}

// Rejected reports whether a change key has been dismissed by a reviewer.
func (s *Snapshot) Rejected(key string) bool {
	_, ok := s.Rejects[key]
	return ok
}

// LoadSnapshot reads a campaign's reconciliation inputs from the store.
// Submissions are re-sorted even though stores return them ordered;
// processing order decides which submission supersedes which.
func LoadSnapshot(ctx context.Context, reader store.Reader, campaign string) (*Snapshot, error) {
	subs, err := reader.Submissions(ctx, campaign)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].SubmittedAt.Before(subs[j].SubmittedAt)
	})

	apartmentFields, err := reader.ApartmentFields(ctx)
	if err != nil {
		return nil, err
	}
	unitFields, err := reader.UnitFields(ctx)
	if err != nil {
		return nil, err
	}

	units, err := reader.Units(ctx)
	if err != nil {
		return nil, err
	}
	unitsByID := make(map[string]store.Record, len(units))
	unitsByTempID := make(map[string]store.Record)
	for _, u := range units {
		unitsByID[u.ID()] = u
		if tempID := u.GetString(store.FieldTempID); tempID != "" {
			unitsByTempID[tempID] = u
		}
	}

	apartments := make(map[string]store.Record)
	for _, sub := range subs {
		if sub.Payload == nil || sub.Payload.ApartmentID == "" {
			continue
		}
		id := sub.Payload.ApartmentID
		if _, seen := apartments[id]; seen {
			continue
		}
		rec, ok, err := reader.Apartment(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			apartments[id] = rec
		}
	}

	markers, err := reader.RejectMarkers(ctx)
	if err != nil {
		return nil, err
	}
	rejects := make(map[string]struct{}, len(markers))
	for _, m := range markers {
		rejects[m] = struct{}{}
	}

	return &Snapshot{
		Campaign:        campaign,
		Submissions:     subs,
		Apartments:      apartments,
		Units:           unitsByID,
		UnitsByTempID:   unitsByTempID,
		ApartmentFields: apartmentFields,
		UnitFields:      unitFields,
		Rejects:         rejects,
	}, nil
}
