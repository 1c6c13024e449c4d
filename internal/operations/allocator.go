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

// MaxBatch caps how many numbers one generation or approval may issue.
const MaxBatch = 1000

func (s *Service) RegisterSeller(ctx context.Context, name, prefix string) (model.Seller, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Seller{}, validation(ErrMissingName)
	}
	if strings.TrimSpace(prefix) != "" {
		normalized, err := codes.NormalizePrefix(prefix)
		if err != nil {
			return model.Seller{}, validation(ErrInvalidPrefix)
		}
		prefix = normalized
	} else {
		prefix = ""
	}
	seller := model.Seller{
		ID:        uuid.NewString(),
		Name:      name,
		Prefix:    prefix,
		CreatedAt: s.clock(),
	}
	if err := s.store.Queries().InsertSeller(ctx, seller); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return model.Seller{}, newError(KindPreconditionFailed, ErrPrefixTaken)
		}
		return model.Seller{}, serverError(err)
	}
	return seller, nil
}

// AssignPrefix gives a seller registered without a prefix its numbering
// namespace. A prefix, once set, never changes.
func (s *Service) AssignPrefix(ctx context.Context, sellerID, prefix string) (model.Seller, error) {
	sellerID, err := parseID(sellerID, ErrInvalidSellerID)
	if err != nil {
		return model.Seller{}, err
	}
	normalized, err := codes.NormalizePrefix(prefix)
	if err != nil {
		return model.Seller{}, validation(ErrInvalidPrefix)
	}
	var seller model.Seller
	err = s.store.WithTx(ctx, func(q *db.Queries) error {
		if _, err := q.LockSeller(ctx, sellerID); err != nil {
			return storeError(err, ErrSellerNotFound)
		}
		if err := q.SetSellerPrefix(ctx, sellerID, normalized); err != nil {
			switch {
			case errors.Is(err, db.ErrStaleState):
				return newError(KindPreconditionFailed, ErrPrefixAlreadySet)
			case errors.Is(err, db.ErrConflict):
				return newError(KindPreconditionFailed, ErrPrefixTaken)
			}
			return serverError(err)
		}
		seller, err = q.GetSeller(ctx, sellerID)
		return storeError(err, ErrSellerNotFound)
	})
	if err != nil {
		return model.Seller{}, storeError(err, ErrSellerNotFound)
	}
	return seller, nil
}

func (s *Service) GetSeller(ctx context.Context, sellerID string) (model.Seller, error) {
	sellerID, err := parseID(sellerID, ErrInvalidSellerID)
	if err != nil {
		return model.Seller{}, err
	}
	seller, err := s.store.Queries().GetSeller(ctx, sellerID)
	if err != nil {
		return model.Seller{}, storeError(err, ErrSellerNotFound)
	}
	return seller, nil
}

func (s *Service) ListSellers(ctx context.Context) ([]model.Seller, error) {
	sellers, err := s.store.Queries().ListSellers(ctx)
	if err != nil {
		return nil, serverError(err)
	}
	return sellers, nil
}

// SyncSellerRange recomputes the cached range of a seller from its code rows
// and reserved numbers. The range end never moves down, so numbers of deleted
// codes stay retired.
func (s *Service) SyncSellerRange(ctx context.Context, sellerID string) (model.Seller, error) {
	sellerID, err := parseID(sellerID, ErrInvalidSellerID)
	if err != nil {
		return model.Seller{}, err
	}
	unlock, err := s.lockSeller(ctx, sellerID)
	if err != nil {
		return model.Seller{}, err
	}
	defer unlock()

	var seller model.Seller
	err = s.store.WithTx(ctx, func(q *db.Queries) error {
		seller, err = sellerWithPrefix(ctx, q, sellerID)
		if err != nil {
			return err
		}
		used, err := collectUsed(ctx, q, seller)
		if err != nil {
			return err
		}
		r := syncedRange(seller, used)
		if err := q.UpdateSellerRange(ctx, seller.ID, r); err != nil {
			return serverError(err)
		}
		seller.RangeStart, seller.RangeEnd = rangeBounds(r)
		return nil
	})
	if err != nil {
		return model.Seller{}, storeError(err, ErrSellerNotFound)
	}
	return seller, nil
}

// AllocateNumbers previews the next n codes of a seller without reserving
// them. The result is stale as soon as another writer commits.
func (s *Service) AllocateNumbers(ctx context.Context, sellerID string, n int) ([]string, error) {
	sellerID, err := parseID(sellerID, ErrInvalidSellerID)
	if err != nil {
		return nil, err
	}
	if n < 1 || n > MaxBatch {
		return nil, validation(ErrInvalidCount)
	}
	q := s.store.Queries()
	seller, err := sellerWithPrefix(ctx, q, sellerID)
	if err != nil {
		return nil, err
	}
	used, err := takenNumbers(ctx, q, seller)
	if err != nil {
		return nil, err
	}
	return codes.Allocate(seller.Prefix, used, n), nil
}

// GenerateCodes issues n new available codes to a seller directly, without a
// shipment request.
func (s *Service) GenerateCodes(ctx context.Context, sellerID string, n int) ([]model.QRCode, error) {
	sellerID, err := parseID(sellerID, ErrInvalidSellerID)
	if err != nil {
		return nil, err
	}
	if n < 1 || n > MaxBatch {
		return nil, validation(ErrInvalidCount)
	}
	unlock, err := s.lockSeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var inserted []model.QRCode
	err = s.retryAllocation(ctx, func() error {
		return s.store.WithTx(ctx, func(q *db.Queries) error {
			seller, err := sellerWithPrefix(ctx, q, sellerID)
			if err != nil {
				return err
			}
			used, err := takenNumbers(ctx, q, seller)
			if err != nil {
				return err
			}
			list := codes.Allocate(seller.Prefix, used, n)
			rows := codeRows(seller, list, model.CodeAvailable, nil, s.clock())
			inserted, err = q.InsertCodes(ctx, rows)
			if err != nil {
				return allocationError(err)
			}
			return extendRange(ctx, q, seller, list)
		})
	})
	if err != nil {
		return nil, storeError(err, ErrSellerNotFound)
	}
	codesAllocated.WithLabelValues("generate").Add(float64(len(inserted)))
	return inserted, nil
}

func sellerWithPrefix(ctx context.Context, q *db.Queries, sellerID string) (model.Seller, error) {
	seller, err := q.LockSeller(ctx, sellerID)
	if err != nil {
		return model.Seller{}, storeError(err, ErrSellerNotFound)
	}
	if seller.Prefix == "" {
		return model.Seller{}, validation(ErrMissingPrefix)
	}
	return seller, nil
}

// collectUsed builds the set of numbers taken under the seller's prefix:
// existing code rows plus every generated list of its shipment requests.
func collectUsed(ctx context.Context, q *db.Queries, seller model.Seller) (codes.Used, error) {
	rows, err := q.ListCodes(ctx, seller.ID, seller.Prefix)
	if err != nil {
		return nil, serverError(err)
	}
	reserved, err := q.ListReservedCodes(ctx, seller.ID)
	if err != nil {
		return nil, serverError(err)
	}
	existing := make([]string, 0, len(rows))
	for _, row := range rows {
		existing = append(existing, row.Code)
	}
	return codes.Collect(seller.Prefix, append(reserved, existing)...), nil
}

// takenNumbers is collectUsed plus the cached range end, so numbers of
// deleted unused codes are not issued again.
func takenNumbers(ctx context.Context, q *db.Queries, seller model.Seller) (codes.Used, error) {
	used, err := collectUsed(ctx, q, seller)
	if err != nil {
		return nil, err
	}
	if seller.RangeEnd != nil {
		used.Add(*seller.RangeEnd)
	}
	return used, nil
}

func codeRows(seller model.Seller, list []string, status model.CodeStatus, requestID *string, now time.Time) []model.QRCode {
	rows := make([]model.QRCode, 0, len(list))
	for _, value := range list {
		row := model.QRCode{
			ID:        uuid.NewString(),
			Code:      value,
			OwnerID:   seller.ID,
			Status:    status,
			RequestID: requestID,
			CreatedAt: now,
		}
		if n, ok := codes.ParseCode(seller.Prefix, value); ok {
			number := n
			row.Prefix = seller.Prefix
			row.Number = &number
		}
		rows = append(rows, row)
	}
	return rows
}

func extendRange(ctx context.Context, q *db.Queries, seller model.Seller, list []string) error {
	var current *codes.Range
	if seller.RangeStart != nil && seller.RangeEnd != nil {
		current = &codes.Range{Start: *seller.RangeStart, End: *seller.RangeEnd}
	}
	if err := q.UpdateSellerRange(ctx, seller.ID, codes.Extend(current, seller.Prefix, list)); err != nil {
		return serverError(err)
	}
	return nil
}

// syncedRange spans the numbers in used, keeping the stored range end as a
// high-water mark.
func syncedRange(seller model.Seller, used codes.Used) *codes.Range {
	span, ok := codes.RangeOf(used)
	if !ok {
		if seller.RangeStart == nil || seller.RangeEnd == nil {
			return nil
		}
		return &codes.Range{Start: *seller.RangeStart, End: *seller.RangeEnd}
	}
	if seller.RangeEnd != nil && *seller.RangeEnd > span.End {
		span.End = *seller.RangeEnd
	}
	return &span
}

func rangeBounds(r *codes.Range) (*int, *int) {
	if r == nil {
		return nil, nil
	}
	start, end := r.Start, r.End
	return &start, &end
}

// allocationError reports a unique violation on insert as a lost race.
func allocationError(err error) error {
	if errors.Is(err, db.ErrConflict) {
		return &Error{Kind: KindAllocationConflict, Code: ErrAllocationConflict, Err: err}
	}
	return serverError(err)
}
