package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/model"
)

const codeColumns = `id, code, prefix, number, owner_id, status, request_id, last_reset_at, created_at`

func scanCode(row scanner) (model.QRCode, error) {
	var (
		code        model.QRCode
		prefix      sql.NullString
		number      sql.NullInt64
		status      string
		requestID   sql.NullString
		lastResetAt sql.NullTime
	)
	if err := row.Scan(&code.ID, &code.Code, &prefix, &number, &code.OwnerID, &status, &requestID, &lastResetAt, &code.CreatedAt); err != nil {
		return model.QRCode{}, mapError(err)
	}
	code.Prefix = prefix.String
	code.Number = intPtr(number)
	code.Status = model.CodeStatus(status)
	code.RequestID = stringPtr(requestID)
	code.LastResetAt = timePtr(lastResetAt)
	code.CreatedAt = code.CreatedAt.UTC()
	return code, nil
}

func scanCodes(rows *sql.Rows) ([]model.QRCode, error) {
	defer rows.Close()
	var out []model.QRCode
	for rows.Next() {
		code, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

// ListCodes returns the owner's codes whose string starts with prefix-. An
// empty prefix lists every code of the owner.
func (q *Queries) ListCodes(ctx context.Context, ownerID, prefix string) ([]model.QRCode, error) {
	query := `SELECT ` + codeColumns + ` FROM qr_codes WHERE owner_id = ?`
	args := []any{ownerID}
	if prefix != "" {
		query += ` AND code LIKE ?`
		args = append(args, prefix+"-%")
	}
	query += ` ORDER BY code`
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list codes: %w", err)
	}
	return scanCodes(rows)
}

// ListReservedCodes returns the generated code list of every shipment request
// of the seller that has one.
func (q *Queries) ListReservedCodes(ctx context.Context, ownerID string) ([][]string, error) {
	rows, err := q.query(ctx, `
		SELECT generated_qr_codes
		FROM shipment_requests
		WHERE seller_id = ? AND generated_qr_codes IS NOT NULL
		ORDER BY created_at
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list reserved codes: %w", err)
	}
	defer rows.Close()
	var out [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var list []string
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, fmt.Errorf("decode generated codes: %w", err)
		}
		out = append(out, list)
	}
	return out, rows.Err()
}

// InsertCodes writes all rows or fails with ErrConflict when a code string or
// a (prefix, number) pair already exists.
func (q *Queries) InsertCodes(ctx context.Context, rows []model.QRCode) ([]model.QRCode, error) {
	inserted := make([]model.QRCode, 0, len(rows))
	for _, row := range rows {
		var prefix any
		if row.Prefix != "" {
			prefix = row.Prefix
		}
		_, err := q.exec(ctx, `
			INSERT INTO qr_codes (id, code, prefix, number, owner_id, status, request_id, last_reset_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, row.ID, row.Code, prefix, nullInt(row.Number), row.OwnerID, string(row.Status), nullString(row.RequestID), nullTime(row.LastResetAt), row.CreatedAt.UTC())
		if err != nil {
			return nil, fmt.Errorf("insert code %s: %w", row.Code, err)
		}
		inserted = append(inserted, row)
	}
	return inserted, nil
}

func (q *Queries) GetCode(ctx context.Context, id string) (model.QRCode, error) {
	code, err := scanCode(q.queryRow(ctx, `SELECT `+codeColumns+` FROM qr_codes WHERE id = ?`, id))
	if err != nil {
		return model.QRCode{}, fmt.Errorf("get code %s: %w", id, err)
	}
	return code, nil
}

func (q *Queries) GetCodeByValue(ctx context.Context, value string) (model.QRCode, error) {
	code, err := scanCode(q.queryRow(ctx, `SELECT `+codeColumns+` FROM qr_codes WHERE code = ?`, value))
	if err != nil {
		return model.QRCode{}, fmt.Errorf("get code %s: %w", value, err)
	}
	return code, nil
}

// UpdateCodeStatus sets the status of every listed code. lastResetAt is only
// written when non-nil.
func (q *Queries) UpdateCodeStatus(ctx context.Context, ids []string, status model.CodeStatus, lastResetAt *time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE qr_codes SET status = ?`
	args := []any{string(status)}
	if lastResetAt != nil {
		query += `, last_reset_at = ?`
		args = append(args, lastResetAt.UTC())
	}
	query += ` WHERE id IN (` + placeholders(len(ids)) + `)`
	for _, id := range ids {
		args = append(args, id)
	}
	affected, err := q.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update code status: %w", err)
	}
	if int(affected) != len(ids) {
		return fmt.Errorf("update code status: %d of %d codes: %w", affected, len(ids), ErrNotFound)
	}
	return nil
}

// DeleteCode removes a code that is available and has never carried a cycle.
// ErrStaleState reports that the precondition did not hold.
func (q *Queries) DeleteCode(ctx context.Context, id string) error {
	affected, err := q.exec(ctx, `
		DELETE FROM qr_codes
		WHERE id = ? AND status = 'available'
		AND NOT EXISTS (SELECT 1 FROM cycles WHERE cycles.qr_code_id = qr_codes.id)
	`, id)
	if err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete code %s: %w", id, ErrStaleState)
	}
	return nil
}

func (q *Queries) CodeHasCycles(ctx context.Context, id string) (bool, error) {
	var count int
	if err := q.queryRow(ctx, `SELECT COUNT(*) FROM cycles WHERE qr_code_id = ?`, id).Scan(&count); err != nil {
		return false, fmt.Errorf("count cycles: %w", mapError(err))
	}
	return count > 0, nil
}

// FindReservation looks up the approved shipment request whose generated
// list contains value. Used for codes reserved before rows were created at
// approval time.
func (q *Queries) FindReservation(ctx context.Context, value string) (model.ShipmentRequest, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return model.ShipmentRequest{}, err
	}
	rows, err := q.query(ctx, `SELECT `+requestColumns+` FROM shipment_requests
		WHERE status = 'approved' AND CAST(generated_qr_codes AS TEXT) LIKE ?
		ORDER BY created_at`, "%"+string(encoded)+"%")
	if err != nil {
		return model.ShipmentRequest{}, fmt.Errorf("find reservation: %w", err)
	}
	requests, err := scanRequests(rows)
	if err != nil {
		return model.ShipmentRequest{}, err
	}
	for _, req := range requests {
		for _, code := range req.GeneratedQRCodes {
			if code == value {
				return req, nil
			}
		}
	}
	return model.ShipmentRequest{}, fmt.Errorf("find reservation %s: %w", value, ErrNotFound)
}
