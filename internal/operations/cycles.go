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

type ScanInput struct {
	Code          string
	MatType       string
	SellerID      string
	SalespersonID string
	CompanyID     *string
	ContactID     *string
	Notes         *string
}

// StartCycle puts the mat behind a scanned code on test. The code must be
// issuable: a reserved or available row, or a number reserved by an
// approved request that has no row yet, which is materialized here.
func (s *Service) StartCycle(ctx context.Context, in ScanInput) (model.CycleDetail, error) {
	value := strings.TrimSpace(in.Code)
	if value == "" {
		return model.CycleDetail{}, validation(ErrMissingCode)
	}
	salesperson := strings.TrimSpace(in.SalespersonID)
	if salesperson == "" {
		return model.CycleDetail{}, validation(ErrMissingSalesperson)
	}
	sellerID := ""
	if in.SellerID != "" {
		parsed, err := parseID(in.SellerID, ErrInvalidSellerID)
		if err != nil {
			return model.CycleDetail{}, err
		}
		sellerID = parsed
	}
	matType := strings.TrimSpace(in.MatType)
	if matType != "" && !s.knownMatType(matType) {
		return model.CycleDetail{}, &Error{Kind: KindValidation, Code: ErrUnknownMatType, Message: matType}
	}

	var detail model.CycleDetail
	err := s.store.WithTx(ctx, func(q *db.Queries) error {
		now := s.clock()
		code, err := s.issuableCode(ctx, q, value, now)
		if err != nil {
			return err
		}
		if sellerID != "" && code.OwnerID != sellerID {
			return newError(KindPreconditionFailed, ErrCodeNotOwned)
		}
		if matType == "" {
			matType, err = reservedMatType(ctx, q, code)
			if err != nil {
				return err
			}
		}
		if err := q.UpdateCodeStatus(ctx, []string{code.ID}, model.CodeActive, nil); err != nil {
			return serverError(err)
		}
		cycle := model.Cycle{
			ID:            uuid.NewString(),
			QRCodeID:      code.ID,
			MatType:       matType,
			Status:        model.CycleOnTest,
			SalespersonID: salesperson,
			CompanyID:     in.CompanyID,
			ContactID:     in.ContactID,
			TestStartDate: now,
			Notes:         in.Notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := q.InsertCycle(ctx, cycle); err != nil {
			if errors.Is(err, db.ErrConflict) {
				return invalidTransition(ErrCycleAlreadyActive, "code %s already has an active cycle", code.Code)
			}
			return serverError(err)
		}
		detail = model.CycleDetail{Cycle: cycle, Code: code.Code, OwnerID: code.OwnerID}
		return nil
	})
	if err != nil {
		return model.CycleDetail{}, storeError(err, ErrCodeNotFound)
	}
	cycleTransitions.WithLabelValues(string(model.CycleOnTest)).Inc()
	return detail, nil
}

func (s *Service) issuableCode(ctx context.Context, q *db.Queries, value string, now time.Time) (model.QRCode, error) {
	code, err := q.GetCodeByValue(ctx, value)
	if errors.Is(err, db.ErrNotFound) {
		return s.materializeReservation(ctx, q, value, now)
	}
	if err != nil {
		return model.QRCode{}, serverError(err)
	}
	active, err := q.GetActiveCycle(ctx, code.ID)
	if err != nil {
		return model.QRCode{}, serverError(err)
	}
	if active != nil {
		return model.QRCode{}, invalidTransition(ErrCycleAlreadyActive, "code %s is %s", code.Code, active.Status)
	}
	if code.Status != model.CodeAvailable && code.Status != model.CodeReserved {
		return model.QRCode{}, invalidTransition(ErrCodeNotIssuable, "code %s is %s", code.Code, code.Status)
	}
	return code, nil
}

// materializeReservation creates the row of a code that an approved request
// reserved without writing code rows.
func (s *Service) materializeReservation(ctx context.Context, q *db.Queries, value string, now time.Time) (model.QRCode, error) {
	req, err := q.FindReservation(ctx, value)
	if err != nil {
		return model.QRCode{}, storeError(err, ErrCodeNotFound)
	}
	seller, err := q.GetSeller(ctx, req.SellerID)
	if err != nil {
		return model.QRCode{}, storeError(err, ErrSellerNotFound)
	}
	requestID := req.ID
	row := model.QRCode{
		ID:        uuid.NewString(),
		Code:      value,
		OwnerID:   seller.ID,
		Status:    model.CodeReserved,
		RequestID: &requestID,
		CreatedAt: now,
	}
	if prefix, n, ok := codes.SplitCode(value); ok && prefix == seller.Prefix {
		number := n
		row.Prefix = prefix
		row.Number = &number
	}
	if _, err := q.InsertCodes(ctx, []model.QRCode{row}); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return model.QRCode{}, invalidTransition(ErrCycleAlreadyActive, "code %s was scanned concurrently", value)
		}
		return model.QRCode{}, serverError(err)
	}
	return row, nil
}

func reservedMatType(ctx context.Context, q *db.Queries, code model.QRCode) (string, error) {
	if code.RequestID == nil {
		return "", validation(ErrMissingMatType)
	}
	req, err := q.GetShipmentRequest(ctx, *code.RequestID)
	if err != nil {
		return "", storeError(err, ErrMissingMatType)
	}
	matType, ok := req.MatTypeFor(code.Code)
	if !ok {
		return "", validation(ErrMissingMatType)
	}
	return matType, nil
}

// ExtendTest moves the test start forward by the configured extension. The
// status stays on_test.
func (s *Service) ExtendTest(ctx context.Context, cycleID string) (model.CycleDetail, error) {
	return s.transition(ctx, cycleID, cycleTransition{
		from: []model.CycleStatus{model.CycleOnTest},
		to:   model.CycleOnTest,
		patch: func(cycle model.CycleDetail, _ time.Time) db.CyclePatch {
			start := cycle.TestStartDate.Add(s.policy.TestExtension)
			return db.CyclePatch{TestStartDate: &start}
		},
	})
}

func (s *Service) MarkDirty(ctx context.Context, cycleID string) (model.CycleDetail, error) {
	return s.transition(ctx, cycleID, cycleTransition{
		from: []model.CycleStatus{model.CycleOnTest},
		to:   model.CycleDirty,
	})
}

// SignContract flags the cycle as under contract, which removes it from the
// long test lists.
func (s *Service) SignContract(ctx context.Context, cycleID string) (model.CycleDetail, error) {
	return s.transition(ctx, cycleID, cycleTransition{
		from: []model.CycleStatus{model.CycleOnTest},
		to:   model.CycleOnTest,
		patch: func(model.CycleDetail, time.Time) db.CyclePatch {
			signed := true
			return db.CyclePatch{ContractSigned: &signed}
		},
	})
}

// SelfDeliver completes a cycle returned by the seller directly and frees
// its code without a driver pickup.
func (s *Service) SelfDeliver(ctx context.Context, cycleID string) (model.CycleDetail, error) {
	return s.transition(ctx, cycleID, cycleTransition{
		from: []model.CycleStatus{model.CycleOnTest, model.CycleDirty},
		to:   model.CycleCompleted,
		patch: func(_ model.CycleDetail, now time.Time) db.CyclePatch {
			return db.CyclePatch{CompletedAt: &now}
		},
		freeCode: true,
	})
}

type cycleTransition struct {
	from     []model.CycleStatus
	to       model.CycleStatus
	patch    func(cycle model.CycleDetail, now time.Time) db.CyclePatch
	freeCode bool
}

func (s *Service) transition(ctx context.Context, cycleID string, t cycleTransition) (model.CycleDetail, error) {
	cycleID, err := parseID(cycleID, ErrInvalidCycleID)
	if err != nil {
		return model.CycleDetail{}, err
	}
	var detail model.CycleDetail
	err = s.store.WithTx(ctx, func(q *db.Queries) error {
		now := s.clock()
		cycle, err := q.GetCycle(ctx, cycleID)
		if err != nil {
			return storeError(err, ErrCycleNotFound)
		}
		if !statusIn(cycle.Status, t.from) {
			return invalidTransition(ErrWrongState, "cycle is %s, expected %s", cycle.Status, joinStatuses(t.from))
		}
		patch := db.CyclePatch{}
		if t.patch != nil {
			patch = t.patch(cycle, now)
		}
		if t.to != cycle.Status {
			to := t.to
			patch.Status = &to
		}
		patch.UpdatedAt = now
		if err := q.UpdateCycle(ctx, cycleID, t.from, patch); err != nil {
			if errors.Is(err, db.ErrStaleState) {
				return invalidTransition(ErrWrongState, "cycle changed concurrently")
			}
			return serverError(err)
		}
		if t.freeCode {
			if err := q.UpdateCodeStatus(ctx, []string{cycle.QRCodeID}, model.CodeAvailable, &now); err != nil {
				return serverError(err)
			}
		}
		detail, err = q.GetCycle(ctx, cycleID)
		return storeError(err, ErrCycleNotFound)
	})
	if err != nil {
		return model.CycleDetail{}, storeError(err, ErrCycleNotFound)
	}
	cycleTransitions.WithLabelValues(string(t.to)).Inc()
	return detail, nil
}

func (s *Service) GetCycle(ctx context.Context, cycleID string) (model.CycleDetail, error) {
	cycleID, err := parseID(cycleID, ErrInvalidCycleID)
	if err != nil {
		return model.CycleDetail{}, err
	}
	cycle, err := s.store.Queries().GetCycle(ctx, cycleID)
	if err != nil {
		return model.CycleDetail{}, storeError(err, ErrCycleNotFound)
	}
	return cycle, nil
}

type CycleQuery struct {
	SellerID string
	Statuses []model.CycleStatus
	Limit    int
}

func (s *Service) ListCycles(ctx context.Context, query CycleQuery) ([]model.CycleDetail, error) {
	filter := db.CycleFilter{Statuses: query.Statuses, Limit: query.Limit}
	if query.SellerID != "" {
		sellerID, err := parseID(query.SellerID, ErrInvalidSellerID)
		if err != nil {
			return nil, err
		}
		filter.SellerID = sellerID
	}
	for _, status := range query.Statuses {
		switch status {
		case model.CycleOnTest, model.CycleDirty, model.CycleWaitingDriver, model.CycleCompleted:
		default:
			return nil, validation(ErrInvalidStatus)
		}
	}
	cycles, err := s.store.Queries().ListCycles(ctx, filter)
	if err != nil {
		return nil, serverError(err)
	}
	return cycles, nil
}

type LongTestLevel string

const (
	LongTestNone     LongTestLevel = ""
	LongTestWarning  LongTestLevel = "warning"
	LongTestCritical LongTestLevel = "critical"
)

// ClassifyLongTest flags an unsigned on_test cycle by how many whole days it
// has been on test. It is computed at read time and never stored.
func (p Policy) ClassifyLongTest(cycle model.Cycle, now time.Time) LongTestLevel {
	if cycle.Status != model.CycleOnTest || cycle.ContractSigned {
		return LongTestNone
	}
	days := DaysOnTest(cycle, now)
	switch {
	case days >= p.LongTestAlertDays:
		return LongTestCritical
	case days >= p.LongTestWarnDays:
		return LongTestWarning
	}
	return LongTestNone
}

// ClassifyLongTest classifies the cycle against the service clock.
func (s *Service) ClassifyLongTest(cycle model.Cycle) LongTestLevel {
	return s.policy.ClassifyLongTest(cycle, s.clock())
}

func DaysOnTest(cycle model.Cycle, now time.Time) int {
	elapsed := now.Sub(cycle.TestStartDate)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / (24 * time.Hour))
}

type LongTestEntry struct {
	Cycle model.CycleDetail
	Level LongTestLevel
	Days  int
}

// ListLongTest returns the unsigned on_test cycles at or past the warning
// threshold. An empty sellerID covers every seller.
func (s *Service) ListLongTest(ctx context.Context, sellerID string) ([]LongTestEntry, error) {
	if sellerID != "" {
		parsed, err := parseID(sellerID, ErrInvalidSellerID)
		if err != nil {
			return nil, err
		}
		sellerID = parsed
	}
	cycles, err := s.store.Queries().ListUnsignedOnTest(ctx, sellerID)
	if err != nil {
		return nil, serverError(err)
	}
	now := s.clock()
	var entries []LongTestEntry
	for _, cycle := range cycles {
		level := s.policy.ClassifyLongTest(cycle.Cycle, now)
		if level == LongTestNone {
			continue
		}
		entries = append(entries, LongTestEntry{Cycle: cycle, Level: level, Days: DaysOnTest(cycle.Cycle, now)})
	}
	return entries, nil
}

func statusIn(status model.CycleStatus, set []model.CycleStatus) bool {
	for _, candidate := range set {
		if status == candidate {
			return true
		}
	}
	return false
}

func joinStatuses(set []model.CycleStatus) string {
	parts := make([]string, 0, len(set))
	for _, status := range set {
		parts = append(parts, string(status))
	}
	return strings.Join(parts, " or ")
}
