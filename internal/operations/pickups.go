package operations

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/db"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/model"
)

// notApplied marks batch items that were valid but rolled back with the rest.
const notApplied = "not_applied"

// EligibleForPickup reports whether a cycle may be queued for a driver:
// dirty, or on test past the warning threshold without a contract.
func (p Policy) EligibleForPickup(cycle model.Cycle, now time.Time) bool {
	switch cycle.Status {
	case model.CycleDirty:
		return true
	case model.CycleOnTest:
		return p.ClassifyLongTest(cycle, now) != LongTestNone
	}
	return false
}

// CreatePickup queues cycles for one driver pickup and moves them to
// waiting_driver. Either every cycle is queued or none is.
func (s *Service) CreatePickup(ctx context.Context, cycleIDs []string, notes string) (model.DriverPickup, error) {
	ids, err := parseCycleIDs(cycleIDs)
	if err != nil {
		return model.DriverPickup{}, err
	}
	var pickup model.DriverPickup
	err = s.store.WithTx(ctx, func(q *db.Queries) error {
		now := s.clock()
		cycles, items, ok, err := loadBatch(ctx, q, ids, func(cycle model.CycleDetail) string {
			if s.policy.EligibleForPickup(cycle.Cycle, now) {
				return ""
			}
			return ErrNotEligible
		})
		if err != nil {
			return err
		}
		if !ok {
			return &Error{Kind: KindInvalidTransition, Code: ErrNotEligible, Items: items}
		}

		waiting := model.CycleWaitingDriver
		codeIDs := make([]string, 0, len(cycles))
		for _, cycle := range cycles {
			err := q.UpdateCycle(ctx, cycle.ID, []model.CycleStatus{cycle.Status}, db.CyclePatch{
				Status:            &waiting,
				PickupRequestedAt: &now,
				UpdatedAt:         now,
			})
			if err != nil {
				if errors.Is(err, db.ErrStaleState) {
					return invalidTransition(ErrWrongState, "cycle %s changed concurrently", cycle.ID)
				}
				return serverError(err)
			}
			codeIDs = append(codeIDs, cycle.QRCodeID)
		}
		if err := q.UpdateCodeStatus(ctx, codeIDs, model.CodePending, nil); err != nil {
			return serverError(err)
		}

		batch := model.DriverPickup{ID: uuid.NewString(), Status: model.PickupPending, CreatedAt: now}
		if trimmed := strings.TrimSpace(notes); trimmed != "" {
			batch.Notes = &trimmed
		}
		pickup, err = q.CreatePickupBatch(ctx, batch, ids)
		if err != nil {
			return serverError(err)
		}
		return nil
	})
	if err != nil {
		return model.DriverPickup{}, storeError(err, ErrCycleNotFound)
	}
	cycleTransitions.WithLabelValues(string(model.CycleWaitingDriver)).Add(float64(len(ids)))
	return pickup, nil
}

type PickupCompletion struct {
	Items            []ItemResult
	CompletedPickups []string
}

// CompletePickup confirms that the driver collected the cycles: each one is
// completed and its code freed. The batch commits as a unit; when any cycle
// cannot be completed nothing is applied and the error lists every item.
func (s *Service) CompletePickup(ctx context.Context, cycleIDs []string) (PickupCompletion, error) {
	ids, err := parseCycleIDs(cycleIDs)
	if err != nil {
		return PickupCompletion{}, err
	}
	var result PickupCompletion
	err = s.store.WithTx(ctx, func(q *db.Queries) error {
		now := s.clock()
		cycles, items, ok, err := loadBatch(ctx, q, ids, func(cycle model.CycleDetail) string {
			if cycle.Status == model.CycleWaitingDriver {
				return ""
			}
			return ErrWrongState
		})
		if err != nil {
			return err
		}
		if !ok {
			return &Error{
				Kind:    KindPartialBatch,
				Code:    ErrPickupBatchFailed,
				Message: "no cycle in the batch was completed",
				Items:   items,
			}
		}

		completed := model.CycleCompleted
		codeIDs := make([]string, 0, len(cycles))
		for _, cycle := range cycles {
			err := q.UpdateCycle(ctx, cycle.ID, []model.CycleStatus{model.CycleWaitingDriver}, db.CyclePatch{
				Status:         &completed,
				DriverPickupAt: &now,
				CompletedAt:    &now,
				UpdatedAt:      now,
			})
			if err != nil {
				if errors.Is(err, db.ErrStaleState) {
					return invalidTransition(ErrWrongState, "cycle %s changed concurrently", cycle.ID)
				}
				return serverError(err)
			}
			codeIDs = append(codeIDs, cycle.QRCodeID)
		}
		if err := q.UpdateCodeStatus(ctx, codeIDs, model.CodeAvailable, &now); err != nil {
			return serverError(err)
		}
		pickupIDs, err := q.MarkPickedUp(ctx, ids, now)
		if err != nil {
			return serverError(err)
		}
		for _, pickupID := range pickupIDs {
			done, err := q.CompletePickupIfDone(ctx, pickupID, now)
			if err != nil {
				return serverError(err)
			}
			if done {
				result.CompletedPickups = append(result.CompletedPickups, pickupID)
			}
		}
		result.Items = items
		return nil
	})
	if err != nil {
		return PickupCompletion{}, storeError(err, ErrCycleNotFound)
	}
	cycleTransitions.WithLabelValues(string(model.CycleCompleted)).Add(float64(len(ids)))
	return result, nil
}

// CompletePickupBatch completes every cycle of a pickup that is not picked
// up yet.
func (s *Service) CompletePickupBatch(ctx context.Context, pickupID string) (PickupCompletion, error) {
	pickupID, err := parseID(pickupID, ErrInvalidPickupID)
	if err != nil {
		return PickupCompletion{}, err
	}
	pickup, err := s.store.Queries().GetPickup(ctx, pickupID)
	if err != nil {
		return PickupCompletion{}, storeError(err, ErrPickupNotFound)
	}
	var open []string
	for _, item := range pickup.Items {
		if !item.PickedUp {
			open = append(open, item.CycleID)
		}
	}
	if len(open) == 0 {
		return PickupCompletion{}, invalidTransition(ErrWrongState, "pickup is %s", pickup.Status)
	}
	return s.CompletePickup(ctx, open)
}

func (s *Service) GetPickup(ctx context.Context, pickupID string) (model.DriverPickup, error) {
	pickupID, err := parseID(pickupID, ErrInvalidPickupID)
	if err != nil {
		return model.DriverPickup{}, err
	}
	pickup, err := s.store.Queries().GetPickup(ctx, pickupID)
	if err != nil {
		return model.DriverPickup{}, storeError(err, ErrPickupNotFound)
	}
	return pickup, nil
}

func (s *Service) ListPickups(ctx context.Context, status model.PickupStatus) ([]model.DriverPickup, error) {
	switch status {
	case "", model.PickupPending, model.PickupCompleted:
	default:
		return nil, validation(ErrInvalidStatus)
	}
	pickups, err := s.store.Queries().ListPickups(ctx, status)
	if err != nil {
		return nil, serverError(err)
	}
	return pickups, nil
}

func parseCycleIDs(cycleIDs []string) ([]string, error) {
	if len(cycleIDs) == 0 {
		return nil, validation(ErrMissingCycleIDs)
	}
	seen := make(map[string]struct{}, len(cycleIDs))
	ids := make([]string, 0, len(cycleIDs))
	for _, raw := range cycleIDs {
		id, err := parseID(raw, ErrInvalidCycleID)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			return nil, &Error{Kind: KindValidation, Code: ErrDuplicateCycleID, Message: id}
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// loadBatch reads every cycle of a batch and checks it with check, which
// returns an error code for cycles that cannot take part. ok is false when
// any cycle failed; items then carries the outcome of each.
func loadBatch(ctx context.Context, q *db.Queries, ids []string, check func(model.CycleDetail) string) ([]model.CycleDetail, []ItemResult, bool, error) {
	cycles := make([]model.CycleDetail, 0, len(ids))
	items := make([]ItemResult, 0, len(ids))
	ok := true
	for _, id := range ids {
		cycle, err := q.GetCycle(ctx, id)
		if err != nil {
			if !errors.Is(err, db.ErrNotFound) {
				return nil, nil, false, serverError(err)
			}
			items = append(items, ItemResult{CycleID: id, Error: ErrCycleNotFound})
			ok = false
			continue
		}
		if code := check(cycle); code != "" {
			items = append(items, ItemResult{CycleID: id, Code: cycle.Code, Error: code})
			ok = false
			continue
		}
		cycles = append(cycles, cycle)
		items = append(items, ItemResult{CycleID: id, Code: cycle.Code, OK: true})
	}
	if !ok {
		for i := range items {
			if items[i].OK {
				items[i].OK = false
				items[i].Error = notApplied
			}
		}
	}
	return cycles, items, ok, nil
}
