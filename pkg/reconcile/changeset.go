// Package reconcile implements the housing-update reconciliation pipeline:
// it replays a campaign's form submissions against the current state of the
// housing database, diffs every recognized field with type-aware equality,
// suppresses previously rejected changes, detects pending unit deletions,
// and assembles one changeset per apartment for human review.
//
// The pipeline is a pure function of (submission history, stored records,
// reject list); re-running it on identical inputs yields identical output.
package reconcile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/havenly/unitwise/pkg/forms"
)

// ApartmentSlot is the slot sentinel used in change keys for
// apartment-level fields.
const ApartmentSlot = "-"

// DeletionRejectSuffix is appended to a deletion key when recording a
// rejection of the deletion itself.
const DeletionRejectSuffix = ":DELETE"

// ChangeKey composes binary-stable identity for one proposed edit:
// {responseID}:{apartmentID}:{slotID}:{fieldName}. The slot ID is "-" for
// apartment-level fields and "idxN" for unit-level fields. This format is
// the durable contract with the persisted reject list; identical logical
// edits must always produce identical keys.
func ChangeKey(responseID, apartmentID, slotID, field string) string {
	return responseID + ":" + apartmentID + ":" + slotID + ":" + field
}

// SlotID renders a flattened unit position as a slot identifier.
func SlotID(index int) string {
	return "idx" + strconv.Itoa(index)
}

// SlotKey composes the deterministic temp-id marker for a unit slot:
// {responseID}:{apartmentID}:idxN. A unit created from a slot proposal is
// stamped with this key so later submissions resolve to the same record.
func SlotKey(responseID, apartmentID string, index int) string {
	return responseID + ":" + apartmentID + ":" + SlotID(index)
}

// DeletionKey composes the identity of one proposed unit deletion:
// {responseID}:{apartmentID}:{unitID}.
func DeletionKey(responseID, apartmentID, unitID string) string {
	return responseID + ":" + apartmentID + ":" + unitID
}

// FieldChange is the atomic unit of the diff: one field whose proposed
// value differs from its stored value after normalization and
// reject-suppression.
type FieldChange struct {
	// Field is the field name.
	Field string `json:"field"`

	// Existing is the stored value's canonical string form; "" when the
	// target entity does not exist yet.
	Existing string `json:"existing"`

	// Updated is the proposed value.
	Updated string `json:"updated"`

	// Key is the change's deterministic identity.
	Key string `json:"key"`
}

// Deletion is one pending unit deletion.
type Deletion struct {
	// UnitID is the stored unit proposed for deletion.
	UnitID string `json:"unitId"`

	// Key is the deletion's deterministic identity. Rejecting the deletion
	// persists Key + ":DELETE".
	Key string `json:"key"`
}

// UnitChangeset is one flattened unit proposal with its field changes.
type UnitChangeset struct {
	// UnitID is the resolved stored unit identifier; "" denotes a new unit
	// to be created on first approval.
	UnitID string `json:"unitId,omitempty"`

	// SlotIndex is the unit's position in the apartment's flattened unit
	// list; it feeds both the change keys and the temp-id slot key.
	SlotIndex int `json:"slotIndex"`

	// SlotKey is the temp-id marker a new unit will be stamped with.
	SlotKey string `json:"slotKey"`

	// Changes maps field name to its change.
	Changes map[string]FieldChange `json:"changes"`

	// Proposed is the unit's complete proposed field set.
	Proposed *forms.FlatUnit `json:"-"`
}

// IsNew reports whether this proposal targets a not-yet-created unit.
func (u *UnitChangeset) IsNew() bool {
	return u.UnitID == ""
}

// HasChanges reports whether any field change survived.
func (u *UnitChangeset) HasChanges() bool {
	return len(u.Changes) > 0
}

// ApartmentChangeset is one apartment's aggregate reconciliation result.
type ApartmentChangeset struct {
	// ApartmentID is the apartment's domain identifier.
	ApartmentID string `json:"apartmentId"`

	// ResponseID identifies the form response the proposals came from.
	ResponseID string `json:"responseId"`

	// Exists reports whether the apartment is present in the store.
	Exists bool `json:"exists"`

	// ApartmentName and DisplayID are presentation passthroughs from the
	// stored apartment; empty for a new apartment.
	ApartmentName string `json:"apartmentName,omitempty"`
	DisplayID     string `json:"displayId,omitempty"`

	// SubmittedAt is the source submission's timestamp.
	SubmittedAt time.Time `json:"submittedAt"`

	// UserName is the submitter's name, if provided.
	UserName string `json:"userName,omitempty"`

	// Notes is the submitter's note to the reviewer, after
	// reject-suppression.
	Notes string `json:"notes,omitempty"`

	// Changes maps apartment field name to its change.
	Changes map[string]FieldChange `json:"changes"`

	// Units holds the flattened unit proposals in slot order.
	Units []*UnitChangeset `json:"units"`

	// PendingDeletions lists stored units absent from the proposed set.
	PendingDeletions []Deletion `json:"pendingDeletions"`
}

// IsEmpty reports whether the changeset carries nothing reviewable: no
// apartment field changes, no non-empty unit changesets, no pending
// deletions, and no notes. Empty changesets are suppressed from output.
func (c *ApartmentChangeset) IsEmpty() bool {
	if len(c.Changes) > 0 || len(c.PendingDeletions) > 0 || c.Notes != "" {
		return false
	}
	for _, u := range c.Units {
		if u.HasChanges() {
			return false
		}
	}
	return true
}

// ChangedUnits returns the unit changesets that carry at least one change.
func (c *ApartmentChangeset) ChangedUnits() []*UnitChangeset {
	var out []*UnitChangeset
	for _, u := range c.Units {
		if u.HasChanges() {
			out = append(out, u)
		}
	}
	return out
}

// String returns a one-line summary of the changeset.
func (c *ApartmentChangeset) String() string {
	name := c.ApartmentName
	if name == "" {
		name = c.ApartmentID
	}
	return fmt.Sprintf("%s: %d apartment change(s), %d changed unit(s), %d pending deletion(s)",
		name, len(c.Changes), len(c.ChangedUnits()), len(c.PendingDeletions))
}

// Print outputs a detailed, human-readable view of the changeset.
func (c *ApartmentChangeset) Print() {
	fmt.Println(c.String())
	fmt.Println(strings.Repeat("─", 72))
	if c.UserName != "" {
		fmt.Printf("Submitted by %s\n", c.UserName)
	}
	if c.Notes != "" {
		fmt.Printf("Notes to reviewer: %q\n", c.Notes)
	}

	for _, name := range sortedChangeFields(c.Changes) {
		ch := c.Changes[name]
		fmt.Printf("  %s: %s → %s\n", name, ch.Existing, ch.Updated)
	}

	for _, u := range c.Units {
		if !u.HasChanges() {
			continue
		}
		if u.IsNew() {
			fmt.Println("  [new unit]")
		} else {
			fmt.Printf("  [unit %s]\n", u.UnitID)
		}
		for _, name := range sortedChangeFields(u.Changes) {
			ch := u.Changes[name]
			fmt.Printf("    %s: %s → %s\n", name, ch.Existing, ch.Updated)
		}
	}

	for _, d := range c.PendingDeletions {
		fmt.Printf("  [deleted unit %s]\n", d.UnitID)
	}
}

// sortedChangeFields returns a change map's field names sorted for stable
// output.
func sortedChangeFields(changes map[string]FieldChange) []string {
	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
