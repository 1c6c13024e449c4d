package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/model"
)

const requestColumns = `id, seller_id, status, quantities, generated_qr_codes, created_by, created_at, approved_at, approved_by`

func scanRequest(row scanner) (model.ShipmentRequest, error) {
	var (
		req        model.ShipmentRequest
		status     string
		quantities string
		generated  sql.NullString
		approvedAt sql.NullTime
		approvedBy sql.NullString
	)
	if err := row.Scan(&req.ID, &req.SellerID, &status, &quantities, &generated, &req.CreatedBy, &req.CreatedAt, &approvedAt, &approvedBy); err != nil {
		return model.ShipmentRequest{}, mapError(err)
	}
	req.Status = model.RequestStatus(status)
	if err := json.Unmarshal([]byte(quantities), &req.Quantities); err != nil {
		return model.ShipmentRequest{}, fmt.Errorf("decode quantities: %w", err)
	}
	if generated.Valid && generated.String != "" {
		if err := json.Unmarshal([]byte(generated.String), &req.GeneratedQRCodes); err != nil {
			return model.ShipmentRequest{}, fmt.Errorf("decode generated codes: %w", err)
		}
	}
	req.CreatedAt = req.CreatedAt.UTC()
	req.ApprovedAt = timePtr(approvedAt)
	req.ApprovedBy = stringPtr(approvedBy)
	return req, nil
}

func scanRequests(rows *sql.Rows) ([]model.ShipmentRequest, error) {
	defer rows.Close()
	var out []model.ShipmentRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (q *Queries) InsertShipmentRequest(ctx context.Context, req model.ShipmentRequest) error {
	quantities, err := json.Marshal(req.Quantities)
	if err != nil {
		return fmt.Errorf("encode quantities: %w", err)
	}
	_, err = q.exec(ctx, `
		INSERT INTO shipment_requests (id, seller_id, status, quantities, generated_qr_codes, created_by, created_at, approved_at, approved_by)
		VALUES (?, ?, ?, ?, NULL, ?, ?, NULL, NULL)
	`, req.ID, req.SellerID, string(req.Status), string(quantities), req.CreatedBy, req.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert shipment request: %w", err)
	}
	return nil
}

func (q *Queries) GetShipmentRequest(ctx context.Context, id string) (model.ShipmentRequest, error) {
	req, err := scanRequest(q.queryRow(ctx, `SELECT `+requestColumns+` FROM shipment_requests WHERE id = ?`, id))
	if err != nil {
		return model.ShipmentRequest{}, fmt.Errorf("get shipment request %s: %w", id, err)
	}
	return req, nil
}

// ListShipmentRequests lists a seller's requests, optionally by status.
// ListShipmentRequests lists requests oldest first. Empty sellerID or status
// leaves that filter off.
func (q *Queries) ListShipmentRequests(ctx context.Context, sellerID string, status model.RequestStatus) ([]model.ShipmentRequest, error) {
	var where []string
	var args []any
	if sellerID != "" {
		where = append(where, `seller_id = ?`)
		args = append(args, sellerID)
	}
	if status != "" {
		where = append(where, `status = ?`)
		args = append(args, string(status))
	}
	query := `SELECT ` + requestColumns + ` FROM shipment_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY created_at, id`
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list shipment requests: %w", err)
	}
	return scanRequests(rows)
}

// ApproveShipmentRequest flips a pending request to approved with its code
// list. ErrStaleState means the request was no longer pending.
func (q *Queries) ApproveShipmentRequest(ctx context.Context, id string, generated []string, approvedBy string, approvedAt time.Time) error {
	encoded, err := json.Marshal(generated)
	if err != nil {
		return fmt.Errorf("encode generated codes: %w", err)
	}
	affected, err := q.exec(ctx, `
		UPDATE shipment_requests
		SET status = 'approved', generated_qr_codes = ?, approved_at = ?, approved_by = ?
		WHERE id = ? AND status = 'pending'
	`, string(encoded), approvedAt.UTC(), approvedBy, id)
	if err != nil {
		return fmt.Errorf("approve shipment request: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("approve shipment request %s: %w", id, ErrStaleState)
	}
	return nil
}
