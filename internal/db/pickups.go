package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/model"
)

// CreatePickupBatch writes the pickup and one pending item per cycle.
func (q *Queries) CreatePickupBatch(ctx context.Context, pickup model.DriverPickup, cycleIDs []string) (model.DriverPickup, error) {
	_, err := q.exec(ctx, `
		INSERT INTO driver_pickups (id, status, notes, created_at, completed_at)
		VALUES (?, ?, ?, ?, NULL)
	`, pickup.ID, string(pickup.Status), nullString(pickup.Notes), pickup.CreatedAt.UTC())
	if err != nil {
		return model.DriverPickup{}, fmt.Errorf("insert pickup: %w", err)
	}
	pickup.Items = make([]model.DriverPickupItem, 0, len(cycleIDs))
	for _, cycleID := range cycleIDs {
		if _, err := q.exec(ctx, `
			INSERT INTO driver_pickup_items (pickup_id, cycle_id, picked_up, picked_up_at)
			VALUES (?, ?, ?, NULL)
		`, pickup.ID, cycleID, false); err != nil {
			return model.DriverPickup{}, fmt.Errorf("insert pickup item %s: %w", cycleID, err)
		}
		pickup.Items = append(pickup.Items, model.DriverPickupItem{PickupID: pickup.ID, CycleID: cycleID})
	}
	return pickup, nil
}

func scanPickup(row scanner) (model.DriverPickup, error) {
	var (
		pickup      model.DriverPickup
		status      string
		notes       sql.NullString
		completedAt sql.NullTime
	)
	if err := row.Scan(&pickup.ID, &status, &notes, &pickup.CreatedAt, &completedAt); err != nil {
		return model.DriverPickup{}, mapError(err)
	}
	pickup.Status = model.PickupStatus(status)
	pickup.Notes = stringPtr(notes)
	pickup.CreatedAt = pickup.CreatedAt.UTC()
	pickup.CompletedAt = timePtr(completedAt)
	return pickup, nil
}

func (q *Queries) GetPickup(ctx context.Context, id string) (model.DriverPickup, error) {
	pickup, err := scanPickup(q.queryRow(ctx, `SELECT id, status, notes, created_at, completed_at FROM driver_pickups WHERE id = ?`, id))
	if err != nil {
		return model.DriverPickup{}, fmt.Errorf("get pickup %s: %w", id, err)
	}
	items, err := q.listPickupItems(ctx, id)
	if err != nil {
		return model.DriverPickup{}, err
	}
	pickup.Items = items
	return pickup, nil
}

func (q *Queries) ListPickups(ctx context.Context, status model.PickupStatus) ([]model.DriverPickup, error) {
	query := `SELECT id, status, notes, created_at, completed_at FROM driver_pickups`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pickups: %w", err)
	}
	var pickups []model.DriverPickup
	for rows.Next() {
		pickup, err := scanPickup(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		pickups = append(pickups, pickup)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for i := range pickups {
		items, err := q.listPickupItems(ctx, pickups[i].ID)
		if err != nil {
			return nil, err
		}
		pickups[i].Items = items
	}
	return pickups, nil
}

func (q *Queries) listPickupItems(ctx context.Context, pickupID string) ([]model.DriverPickupItem, error) {
	rows, err := q.query(ctx, `
		SELECT pickup_id, cycle_id, picked_up, picked_up_at
		FROM driver_pickup_items
		WHERE pickup_id = ?
		ORDER BY cycle_id
	`, pickupID)
	if err != nil {
		return nil, fmt.Errorf("list pickup items: %w", err)
	}
	defer rows.Close()
	var items []model.DriverPickupItem
	for rows.Next() {
		var (
			item       model.DriverPickupItem
			pickedUpAt sql.NullTime
		)
		if err := rows.Scan(&item.PickupID, &item.CycleID, &item.PickedUp, &pickedUpAt); err != nil {
			return nil, mapError(err)
		}
		item.PickedUpAt = timePtr(pickedUpAt)
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkPickedUp flags the open pickup items of the cycles and returns the
// pickups they belong to.
func (q *Queries) MarkPickedUp(ctx context.Context, cycleIDs []string, at time.Time) ([]string, error) {
	if len(cycleIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(cycleIDs))
	for _, id := range cycleIDs {
		args = append(args, id)
	}
	rows, err := q.query(ctx, `
		SELECT DISTINCT pickup_id FROM driver_pickup_items
		WHERE picked_up = ? AND cycle_id IN (`+placeholders(len(cycleIDs))+`)
		ORDER BY pickup_id
	`, append([]any{false}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("find pickup items: %w", err)
	}
	var pickupIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		pickupIDs = append(pickupIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if _, err := q.exec(ctx, `
		UPDATE driver_pickup_items SET picked_up = ?, picked_up_at = ?
		WHERE picked_up = ? AND cycle_id IN (`+placeholders(len(cycleIDs))+`)
	`, append([]any{true, at.UTC(), false}, args...)...); err != nil {
		return nil, fmt.Errorf("mark pickup items: %w", err)
	}
	return pickupIDs, nil
}

// CompletePickupIfDone closes the pickup once none of its items is open.
func (q *Queries) CompletePickupIfDone(ctx context.Context, pickupID string, at time.Time) (bool, error) {
	affected, err := q.exec(ctx, `
		UPDATE driver_pickups SET status = 'completed', completed_at = ?
		WHERE id = ? AND status = 'pending'
		AND NOT EXISTS (
			SELECT 1 FROM driver_pickup_items
			WHERE driver_pickup_items.pickup_id = driver_pickups.id AND picked_up = ?
		)
	`, at.UTC(), pickupID, false)
	if err != nil {
		return false, fmt.Errorf("complete pickup %s: %w", pickupID, err)
	}
	return affected > 0, nil
}
