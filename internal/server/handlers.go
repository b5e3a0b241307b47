package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/havenly/unitwise/pkg/errors"
	"github.com/havenly/unitwise/pkg/forms"
	"github.com/havenly/unitwise/pkg/logging"
	"github.com/havenly/unitwise/pkg/reconcile"
)

// changeRequest identifies one field change inside a campaign's
// reconciled output. Slot is "-" for apartment-level fields and "idxN"
// for unit-level fields.
type changeRequest struct {
	Campaign    string `json:"campaign"`
	ApartmentID string `json:"apartmentId"`
	Slot        string `json:"slot"`
	Field       string `json:"field"`
}

// deletionRequest identifies one pending unit deletion.
type deletionRequest struct {
	Campaign    string `json:"campaign"`
	ApartmentID string `json:"apartmentId"`
	UnitID      string `json:"unitId"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleChangesets(w http.ResponseWriter, r *http.Request) {
	campaign := chi.URLParam(r, "campaign")
	rec := reconcile.New(s.store, reconcile.WithLogger(logging.Ctx(r.Context())))
	out, err := rec.Reconcile(r.Context(), campaign)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleApproveChange(w http.ResponseWriter, r *http.Request) {
	var req changeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	cs, err := s.findChangeset(r.Context(), req.Campaign, req.ApartmentID)
	if err != nil {
		writeError(w, err)
		return
	}

	if req.Slot == reconcile.ApartmentSlot {
		if err := s.applier.ApproveApartmentField(r.Context(), cs, req.Field); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"apartmentId": cs.ApartmentID})
		return
	}

	uc, err := findUnitSlot(cs, req.Slot)
	if err != nil {
		writeError(w, err)
		return
	}
	unitID, err := s.applier.ApproveUnitField(r.Context(), cs, uc, req.Field)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"unitId": unitID})
}

func (s *Server) handleRejectChange(w http.ResponseWriter, r *http.Request) {
	var req changeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	cs, err := s.findChangeset(r.Context(), req.Campaign, req.ApartmentID)
	if err != nil {
		writeError(w, err)
		return
	}

	if req.Slot == reconcile.ApartmentSlot {
		// Reviewer notes ride outside the field schema but reject the
		// same way as any field.
		if req.Field == forms.NotesFieldName {
			if err := s.applier.RejectNotes(r.Context(), cs); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"apartmentId": cs.ApartmentID})
			return
		}
		ch, ok := cs.Changes[req.Field]
		if !ok {
			writeError(w, errors.NewNotFoundError("change", req.Field))
			return
		}
		if err := s.applier.Reject(r.Context(), ch); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"key": ch.Key})
		return
	}

	uc, err := findUnitSlot(cs, req.Slot)
	if err != nil {
		writeError(w, err)
		return
	}
	ch, ok := uc.Changes[req.Field]
	if !ok {
		writeError(w, errors.NewNotFoundError("change", req.Field))
		return
	}
	if err := s.applier.Reject(r.Context(), ch); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": ch.Key})
}

func (s *Server) handleApproveDeletion(w http.ResponseWriter, r *http.Request) {
	d, err := s.findDeletion(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.applier.ApproveDeletion(r.Context(), d); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"unitId": d.UnitID})
}

func (s *Server) handleRejectDeletion(w http.ResponseWriter, r *http.Request) {
	d, err := s.findDeletion(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.applier.RejectDeletion(r.Context(), d); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": d.Key + reconcile.DeletionRejectSuffix})
}

// findChangeset reconciles the campaign and returns the apartment's
// changeset.
func (s *Server) findChangeset(ctx context.Context, campaign, apartmentID string) (*reconcile.ApartmentChangeset, error) {
	if campaign == "" || apartmentID == "" {
		return nil, errors.NewValidationError("request", nil, "campaign and apartmentId are required")
	}
	rec := reconcile.New(s.store, reconcile.WithLogger(logging.Ctx(ctx)))
	out, err := rec.Reconcile(ctx, campaign)
	if err != nil {
		return nil, err
	}
	for _, cs := range out {
		if cs.ApartmentID == apartmentID {
			return cs, nil
		}
	}
	return nil, errors.NewNotFoundError("changeset", apartmentID)
}

// findDeletion resolves a deletion request against the campaign's
// reconciled output.
func (s *Server) findDeletion(r *http.Request) (reconcile.Deletion, error) {
	var req deletionRequest
	if err := decodeBody(r, &req); err != nil {
		return reconcile.Deletion{}, err
	}
	cs, err := s.findChangeset(r.Context(), req.Campaign, req.ApartmentID)
	if err != nil {
		return reconcile.Deletion{}, err
	}
	for _, d := range cs.PendingDeletions {
		if d.UnitID == req.UnitID {
			return d, nil
		}
	}
	return reconcile.Deletion{}, errors.NewNotFoundError("deletion", req.UnitID)
}

// findUnitSlot resolves a slot identifier ("idxN") to its unit changeset.
func findUnitSlot(cs *reconcile.ApartmentChangeset, slot string) (*reconcile.UnitChangeset, error) {
	for _, uc := range cs.Units {
		if reconcile.SlotID(uc.SlotIndex) == slot {
			return uc, nil
		}
	}
	return nil, errors.NewNotFoundError("unit slot", slot)
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.NewValidationError("body", nil, "request body must be valid JSON")
	}
	return nil
}
