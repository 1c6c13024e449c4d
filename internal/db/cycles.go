package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/model"
)

const cycleColumns = `c.id, c.qr_code_id, c.mat_type, c.status, c.salesperson_id, c.company_id, c.contact_id,
	c.test_start_date, c.pickup_requested_at, c.driver_pickup_at, c.completed_at, c.contract_signed, c.notes,
	c.created_at, c.updated_at`

func scanCycleInto(row scanner, extra ...any) (model.Cycle, error) {
	var (
		cycle             model.Cycle
		status            string
		companyID         sql.NullString
		contactID         sql.NullString
		pickupRequestedAt sql.NullTime
		driverPickupAt    sql.NullTime
		completedAt       sql.NullTime
		notes             sql.NullString
	)
	dest := []any{
		&cycle.ID, &cycle.QRCodeID, &cycle.MatType, &status, &cycle.SalespersonID, &companyID, &contactID,
		&cycle.TestStartDate, &pickupRequestedAt, &driverPickupAt, &completedAt, &cycle.ContractSigned, &notes,
		&cycle.CreatedAt, &cycle.UpdatedAt,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return model.Cycle{}, mapError(err)
	}
	cycle.Status = model.CycleStatus(status)
	cycle.CompanyID = stringPtr(companyID)
	cycle.ContactID = stringPtr(contactID)
	cycle.TestStartDate = cycle.TestStartDate.UTC()
	cycle.PickupRequestedAt = timePtr(pickupRequestedAt)
	cycle.DriverPickupAt = timePtr(driverPickupAt)
	cycle.CompletedAt = timePtr(completedAt)
	cycle.Notes = stringPtr(notes)
	cycle.CreatedAt = cycle.CreatedAt.UTC()
	cycle.UpdatedAt = cycle.UpdatedAt.UTC()
	return cycle, nil
}

func scanCycleDetails(rows *sql.Rows) ([]model.CycleDetail, error) {
	defer rows.Close()
	var out []model.CycleDetail
	for rows.Next() {
		var detail model.CycleDetail
		cycle, err := scanCycleInto(rows, &detail.Code, &detail.OwnerID)
		if err != nil {
			return nil, err
		}
		detail.Cycle = cycle
		out = append(out, detail)
	}
	return out, rows.Err()
}

func (q *Queries) InsertCycle(ctx context.Context, cycle model.Cycle) error {
	_, err := q.exec(ctx, `
		INSERT INTO cycles (id, qr_code_id, mat_type, status, salesperson_id, company_id, contact_id,
			test_start_date, pickup_requested_at, driver_pickup_at, completed_at, contract_signed, notes,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cycle.ID, cycle.QRCodeID, cycle.MatType, string(cycle.Status), cycle.SalespersonID,
		nullString(cycle.CompanyID), nullString(cycle.ContactID), cycle.TestStartDate.UTC(),
		nullTime(cycle.PickupRequestedAt), nullTime(cycle.DriverPickupAt), nullTime(cycle.CompletedAt),
		cycle.ContractSigned, nullString(cycle.Notes), cycle.CreatedAt.UTC(), cycle.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	return nil
}

func (q *Queries) GetCycle(ctx context.Context, id string) (model.CycleDetail, error) {
	rows, err := q.query(ctx, `SELECT `+cycleColumns+`, q.code, q.owner_id
		FROM cycles c JOIN qr_codes q ON q.id = c.qr_code_id
		WHERE c.id = ?`, id)
	if err != nil {
		return model.CycleDetail{}, fmt.Errorf("get cycle %s: %w", id, err)
	}
	details, err := scanCycleDetails(rows)
	if err != nil {
		return model.CycleDetail{}, fmt.Errorf("get cycle %s: %w", id, err)
	}
	if len(details) == 0 {
		return model.CycleDetail{}, fmt.Errorf("get cycle %s: %w", id, ErrNotFound)
	}
	return details[0], nil
}

// GetActiveCycle returns the non-completed cycle on the code, or nil.
func (q *Queries) GetActiveCycle(ctx context.Context, qrCodeID string) (*model.Cycle, error) {
	cycle, err := scanCycleInto(q.queryRow(ctx, `SELECT `+cycleColumns+`
		FROM cycles c
		WHERE c.qr_code_id = ? AND c.status <> 'completed'`, qrCodeID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active cycle: %w", err)
	}
	return &cycle, nil
}

type CycleFilter struct {
	SellerID string
	Statuses []model.CycleStatus
	Limit    int
}

func (q *Queries) ListCycles(ctx context.Context, filter CycleFilter) ([]model.CycleDetail, error) {
	var (
		where []string
		args  []any
	)
	if filter.SellerID != "" {
		where = append(where, `q.owner_id = ?`)
		args = append(args, filter.SellerID)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, `c.status IN (`+placeholders(len(filter.Statuses))+`)`)
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	query := `SELECT ` + cycleColumns + `, q.code, q.owner_id FROM cycles c JOIN qr_codes q ON q.id = c.qr_code_id`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY c.test_start_date, c.id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	return scanCycleDetails(rows)
}

// ListUnsignedOnTest returns on_test cycles without a signed contract.
// Elapsed time is judged by the caller.
func (q *Queries) ListUnsignedOnTest(ctx context.Context, sellerID string) ([]model.CycleDetail, error) {
	query := `SELECT ` + cycleColumns + `, q.code, q.owner_id
		FROM cycles c JOIN qr_codes q ON q.id = c.qr_code_id
		WHERE c.status = 'on_test' AND c.contract_signed = ?`
	args := []any{false}
	if sellerID != "" {
		query += ` AND q.owner_id = ?`
		args = append(args, sellerID)
	}
	query += ` ORDER BY c.test_start_date, c.id`
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list unsigned on-test cycles: %w", err)
	}
	return scanCycleDetails(rows)
}

// CyclePatch lists the columns a transition writes; nil fields are left alone.
type CyclePatch struct {
	Status            *model.CycleStatus
	TestStartDate     *time.Time
	PickupRequestedAt *time.Time
	DriverPickupAt    *time.Time
	CompletedAt       *time.Time
	ContractSigned    *bool
	Notes             *string
	UpdatedAt         time.Time
}

// UpdateCycle applies patch only while the cycle is in one of from.
// ErrStaleState means it was not.
func (q *Queries) UpdateCycle(ctx context.Context, id string, from []model.CycleStatus, patch CyclePatch) error {
	if len(from) == 0 {
		return fmt.Errorf("update cycle %s: no source state", id)
	}
	sets := []string{`updated_at = ?`}
	args := []any{patch.UpdatedAt.UTC()}
	if patch.Status != nil {
		sets = append(sets, `status = ?`)
		args = append(args, string(*patch.Status))
	}
	if patch.TestStartDate != nil {
		sets = append(sets, `test_start_date = ?`)
		args = append(args, patch.TestStartDate.UTC())
	}
	if patch.PickupRequestedAt != nil {
		sets = append(sets, `pickup_requested_at = ?`)
		args = append(args, patch.PickupRequestedAt.UTC())
	}
	if patch.DriverPickupAt != nil {
		sets = append(sets, `driver_pickup_at = ?`)
		args = append(args, patch.DriverPickupAt.UTC())
	}
	if patch.CompletedAt != nil {
		sets = append(sets, `completed_at = ?`)
		args = append(args, patch.CompletedAt.UTC())
	}
	if patch.ContractSigned != nil {
		sets = append(sets, `contract_signed = ?`)
		args = append(args, *patch.ContractSigned)
	}
	if patch.Notes != nil {
		sets = append(sets, `notes = ?`)
		args = append(args, *patch.Notes)
	}
	args = append(args, id)
	for _, status := range from {
		args = append(args, string(status))
	}
	query := `UPDATE cycles SET ` + strings.Join(sets, `, `) + ` WHERE id = ? AND status IN (` + placeholders(len(from)) + `)`
	affected, err := q.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update cycle %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("update cycle %s: %w", id, ErrStaleState)
	}
	return nil
}
