package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/havenly/unitwise/internal/config"
	"github.com/havenly/unitwise/pkg/apply"
	"github.com/havenly/unitwise/pkg/errors"
	"github.com/havenly/unitwise/pkg/forms"
	"github.com/havenly/unitwise/pkg/reconcile"
	"github.com/havenly/unitwise/pkg/store"
)

// reviewTarget names one reviewable item inside a campaign.
type reviewTarget struct {
	campaign  string
	apartment string
	slot      string
	field     string
	unit      string
}

func addReviewFlags(cmd *cobra.Command, t *reviewTarget) {
	cmd.Flags().StringVar(&t.apartment, "apartment", "", "apartment identifier")
	cmd.Flags().StringVar(&t.slot, "slot", reconcile.ApartmentSlot, `slot: "-" for apartment fields, "idxN" for unit fields`)
	cmd.Flags().StringVar(&t.field, "field", "", "field name")
	cmd.Flags().StringVar(&t.unit, "unit", "", "unit identifier, for deletion decisions")
	_ = cmd.MarkFlagRequired("apartment")
}

// resolve reconciles the campaign and locates the target changeset.
func (t *reviewTarget) resolve(ctx context.Context, st store.Store) (*reconcile.ApartmentChangeset, error) {
	out, err := reconcile.New(st).Reconcile(ctx, t.campaign)
	if err != nil {
		return nil, err
	}
	for _, cs := range out {
		if cs.ApartmentID == t.apartment {
			return cs, nil
		}
	}
	return nil, errors.NewNotFoundError("changeset", t.apartment)
}

func (t *reviewTarget) unitSlot(cs *reconcile.ApartmentChangeset) (*reconcile.UnitChangeset, error) {
	for _, uc := range cs.Units {
		if reconcile.SlotID(uc.SlotIndex) == t.slot {
			return uc, nil
		}
	}
	return nil, errors.NewNotFoundError("unit slot", t.slot)
}

func (t *reviewTarget) deletion(cs *reconcile.ApartmentChangeset) (reconcile.Deletion, error) {
	for _, d := range cs.PendingDeletions {
		if d.UnitID == t.unit {
			return d, nil
		}
	}
	return reconcile.Deletion{}, errors.NewNotFoundError("deletion", t.unit)
}

func newApproveCmd() *cobra.Command {
	var target reviewTarget

	cmd := &cobra.Command{
		Use:   "approve <campaign>",
		Short: "Approve one field change or unit deletion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target.campaign = args[0]
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			cs, err := target.resolve(cmd.Context(), st)
			if err != nil {
				return err
			}
			a := apply.New(st)

			if target.unit != "" {
				d, err := target.deletion(cs)
				if err != nil {
					return err
				}
				if err := a.ApproveDeletion(cmd.Context(), d); err != nil {
					return err
				}
				fmt.Printf("Deleted unit %s\n", d.UnitID)
				return nil
			}

			if target.field == "" {
				return errors.NewValidationError("field", nil, "either --field or --unit is required")
			}

			if target.slot == reconcile.ApartmentSlot {
				if err := a.ApproveApartmentField(cmd.Context(), cs, target.field); err != nil {
					return err
				}
				fmt.Printf("Updated %s on apartment %s\n", target.field, cs.ApartmentID)
				return nil
			}

			uc, err := target.unitSlot(cs)
			if err != nil {
				return err
			}
			unitID, err := a.ApproveUnitField(cmd.Context(), cs, uc, target.field)
			if err != nil {
				return err
			}
			fmt.Printf("Updated %s on unit %s\n", target.field, unitID)
			return nil
		},
	}

	addReviewFlags(cmd, &target)
	return cmd
}

func newRejectCmd() *cobra.Command {
	var target reviewTarget

	cmd := &cobra.Command{
		Use:   "reject <campaign>",
		Short: "Reject one field change, reviewer note, or unit deletion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target.campaign = args[0]
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			cs, err := target.resolve(cmd.Context(), st)
			if err != nil {
				return err
			}
			a := apply.New(st)

			if target.unit != "" {
				d, err := target.deletion(cs)
				if err != nil {
					return err
				}
				if err := a.RejectDeletion(cmd.Context(), d); err != nil {
					return err
				}
				fmt.Printf("Rejected deletion of unit %s\n", d.UnitID)
				return nil
			}

			if target.field == "" {
				return errors.NewValidationError("field", nil, "either --field or --unit is required")
			}

			if target.slot == reconcile.ApartmentSlot && target.field == forms.NotesFieldName {
				if err := a.RejectNotes(cmd.Context(), cs); err != nil {
					return err
				}
				fmt.Printf("Rejected reviewer notes on apartment %s\n", cs.ApartmentID)
				return nil
			}

			var ch reconcile.FieldChange
			var ok bool
			if target.slot == reconcile.ApartmentSlot {
				ch, ok = cs.Changes[target.field]
			} else {
				uc, err := target.unitSlot(cs)
				if err != nil {
					return err
				}
				ch, ok = uc.Changes[target.field]
			}
			if !ok {
				return errors.NewNotFoundError("change", target.field)
			}
			if err := a.Reject(cmd.Context(), ch); err != nil {
				return err
			}
			fmt.Printf("Rejected %s\n", ch.Key)
			return nil
		},
	}

	addReviewFlags(cmd, &target)
	return cmd
}
