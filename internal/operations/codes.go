package operations

import (
	"context"
	"errors"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/db"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/model"
)

// DeleteCode removes a code that was generated but never used: it must be
// available and no cycle may ever have referenced it.
func (s *Service) DeleteCode(ctx context.Context, codeID string) error {
	codeID, err := parseID(codeID, ErrInvalidCodeID)
	if err != nil {
		return err
	}
	err = s.store.WithTx(ctx, func(q *db.Queries) error {
		code, err := q.GetCode(ctx, codeID)
		if err != nil {
			return storeError(err, ErrCodeNotFound)
		}
		if code.Status != model.CodeAvailable {
			return &Error{Kind: KindPreconditionFailed, Code: ErrCodeInUse, Message: "code is " + string(code.Status)}
		}
		used, err := q.CodeHasCycles(ctx, codeID)
		if err != nil {
			return serverError(err)
		}
		if used {
			return &Error{Kind: KindPreconditionFailed, Code: ErrCodeInUse, Message: "code has cycle history"}
		}
		if err := q.DeleteCode(ctx, codeID); err != nil {
			if errors.Is(err, db.ErrStaleState) {
				return newError(KindPreconditionFailed, ErrCodeInUse)
			}
			return serverError(err)
		}
		return nil
	})
	return storeError(err, ErrCodeNotFound)
}

func (s *Service) GetCode(ctx context.Context, codeID string) (model.QRCode, error) {
	codeID, err := parseID(codeID, ErrInvalidCodeID)
	if err != nil {
		return model.QRCode{}, err
	}
	code, err := s.store.Queries().GetCode(ctx, codeID)
	if err != nil {
		return model.QRCode{}, storeError(err, ErrCodeNotFound)
	}
	return code, nil
}

// ListSellerCodes lists every code row owned by the seller, optionally
// narrowed to one status.
func (s *Service) ListSellerCodes(ctx context.Context, sellerID string, status model.CodeStatus) ([]model.QRCode, error) {
	sellerID, err := parseID(sellerID, ErrInvalidSellerID)
	if err != nil {
		return nil, err
	}
	switch status {
	case "", model.CodeReserved, model.CodeAvailable, model.CodePending, model.CodeActive:
	default:
		return nil, validation(ErrInvalidStatus)
	}
	if _, err := s.store.Queries().GetSeller(ctx, sellerID); err != nil {
		return nil, storeError(err, ErrSellerNotFound)
	}
	rows, err := s.store.Queries().ListCodes(ctx, sellerID, "")
	if err != nil {
		return nil, serverError(err)
	}
	if status == "" {
		return rows, nil
	}
	filtered := rows[:0]
	for _, row := range rows {
		if row.Status == status {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}
