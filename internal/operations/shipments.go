package operations

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/codes"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/db"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/model"
)

// CreateRequest records a pending shipment request. A pending request does
// not reserve numbers; they are taken when it is approved.
func (s *Service) CreateRequest(ctx context.Context, sellerID string, quantities map[string]int, actor string) (model.ShipmentRequest, error) {
	sellerID, err := parseID(sellerID, ErrInvalidSellerID)
	if err != nil {
		return model.ShipmentRequest{}, err
	}
	cleaned, err := s.validateQuantities(quantities)
	if err != nil {
		return model.ShipmentRequest{}, err
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return model.ShipmentRequest{}, validation(ErrMissingActor)
	}

	if _, err := s.store.Queries().GetSeller(ctx, sellerID); err != nil {
		return model.ShipmentRequest{}, storeError(err, ErrSellerNotFound)
	}
	req := model.ShipmentRequest{
		ID:         uuid.NewString(),
		SellerID:   sellerID,
		Status:     model.RequestPending,
		Quantities: cleaned,
		CreatedBy:  actor,
		CreatedAt:  s.clock(),
	}
	if err := s.store.Queries().InsertShipmentRequest(ctx, req); err != nil {
		return model.ShipmentRequest{}, serverError(err)
	}
	return req, nil
}

func (s *Service) validateQuantities(quantities map[string]int) (map[string]int, error) {
	if len(quantities) == 0 {
		return nil, validation(ErrEmptyQuantities)
	}
	cleaned := make(map[string]int, len(quantities))
	total := 0
	for matType, qty := range quantities {
		matType = strings.TrimSpace(matType)
		if matType == "" || qty <= 0 {
			return nil, validation(ErrInvalidQuantity)
		}
		if !s.knownMatType(matType) {
			return nil, &Error{Kind: KindValidation, Code: ErrUnknownMatType, Message: matType}
		}
		cleaned[matType] += qty
		total += qty
	}
	if total > MaxBatch {
		return nil, validation(ErrInvalidQuantity)
	}
	return cleaned, nil
}

// ApproveRequest reserves codes for a pending request. The taken numbers
// are re-read inside the approving transaction under the seller lock, and a
// lost race on the unique constraints is retried from a fresh read.
func (s *Service) ApproveRequest(ctx context.Context, requestID, actor string) (model.ShipmentRequest, error) {
	requestID, err := parseID(requestID, ErrInvalidRequestID)
	if err != nil {
		return model.ShipmentRequest{}, err
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return model.ShipmentRequest{}, validation(ErrMissingActor)
	}
	req, err := s.store.Queries().GetShipmentRequest(ctx, requestID)
	if err != nil {
		return model.ShipmentRequest{}, storeError(err, ErrRequestNotFound)
	}
	if req.Status != model.RequestPending {
		return model.ShipmentRequest{}, invalidTransition(ErrRequestNotPending, "request is %s", req.Status)
	}

	unlock, err := s.lockSeller(ctx, req.SellerID)
	if err != nil {
		return model.ShipmentRequest{}, err
	}
	defer unlock()

	var approved model.ShipmentRequest
	err = s.retryAllocation(ctx, func() error {
		return s.store.WithTx(ctx, func(q *db.Queries) error {
			seller, err := sellerWithPrefix(ctx, q, req.SellerID)
			if err != nil {
				return err
			}
			current, err := q.GetShipmentRequest(ctx, requestID)
			if err != nil {
				return storeError(err, ErrRequestNotFound)
			}
			used, err := takenNumbers(ctx, q, seller)
			if err != nil {
				return err
			}
			generated := codes.Allocate(seller.Prefix, used, current.Total())
			approved, err = s.commitApproval(ctx, q, seller, current, generated, actor, s.clock())
			return err
		})
	})
	if err != nil {
		return model.ShipmentRequest{}, storeError(err, ErrRequestNotFound)
	}
	codesAllocated.WithLabelValues("shipment").Add(float64(len(approved.GeneratedQRCodes)))
	return approved, nil
}

// commitApproval writes an approval computed from a previously read set of
// taken numbers. A concurrent writer that already took any of them makes it
// fail with an allocation conflict.
func (s *Service) commitApproval(ctx context.Context, q *db.Queries, seller model.Seller, req model.ShipmentRequest, generated []string, actor string, now time.Time) (model.ShipmentRequest, error) {
	if len(generated) != req.Total() {
		return model.ShipmentRequest{}, serverError(errors.New("generated code count does not match quantities"))
	}
	if err := q.ApproveShipmentRequest(ctx, req.ID, generated, actor, now); err != nil {
		if errors.Is(err, db.ErrStaleState) {
			return model.ShipmentRequest{}, invalidTransition(ErrRequestNotPending, "request was approved concurrently")
		}
		return model.ShipmentRequest{}, serverError(err)
	}
	requestID := req.ID
	if _, err := q.InsertCodes(ctx, codeRows(seller, generated, model.CodeReserved, &requestID, now)); err != nil {
		return model.ShipmentRequest{}, allocationError(err)
	}
	if err := extendRange(ctx, q, seller, generated); err != nil {
		return model.ShipmentRequest{}, err
	}
	req.Status = model.RequestApproved
	req.GeneratedQRCodes = generated
	req.ApprovedAt = &now
	req.ApprovedBy = &actor
	return req, nil
}

func (s *Service) GetRequest(ctx context.Context, requestID string) (model.ShipmentRequest, error) {
	requestID, err := parseID(requestID, ErrInvalidRequestID)
	if err != nil {
		return model.ShipmentRequest{}, err
	}
	req, err := s.store.Queries().GetShipmentRequest(ctx, requestID)
	if err != nil {
		return model.ShipmentRequest{}, storeError(err, ErrRequestNotFound)
	}
	return req, nil
}

// ListRequests lists shipment requests, optionally narrowed to one status.
// An empty sellerID covers every seller.
func (s *Service) ListRequests(ctx context.Context, sellerID string, status model.RequestStatus) ([]model.ShipmentRequest, error) {
	if sellerID != "" {
		parsed, err := parseID(sellerID, ErrInvalidSellerID)
		if err != nil {
			return nil, err
		}
		sellerID = parsed
	}
	switch status {
	case "", model.RequestPending, model.RequestApproved:
	default:
		return nil, validation(ErrInvalidStatus)
	}
	requests, err := s.store.Queries().ListShipmentRequests(ctx, sellerID, status)
	if err != nil {
		return nil, serverError(err)
	}
	return requests, nil
}
