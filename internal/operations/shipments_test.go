package operations

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/codes"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/db"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/model"
)

func TestApproveRequestExtendsExistingRange(t *testing.T) {
	forEachFixture(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		seller := f.seller(t, "RIS")
		if _, err := f.svc.GenerateCodes(ctx, seller.ID, 10); err != nil {
			t.Fatalf("generate: %v", err)
		}

		req, err := f.svc.CreateRequest(ctx, seller.ID, map[string]int{"MBW2": 3}, "operator-1")
		if err != nil {
			t.Fatalf("create request: %v", err)
		}
		if req.Status != model.RequestPending || len(req.GeneratedQRCodes) != 0 {
			t.Fatalf("unexpected new request %+v", req)
		}

		approved, err := f.svc.ApproveRequest(ctx, req.ID, "admin-1")
		if err != nil {
			t.Fatalf("approve: %v", err)
		}
		want := []string{"RIS-011", "RIS-012", "RIS-013"}
		if fmt.Sprint(approved.GeneratedQRCodes) != fmt.Sprint(want) {
			t.Fatalf("expected %v, got %v", want, approved.GeneratedQRCodes)
		}
		if approved.Status != model.RequestApproved || approved.ApprovedBy == nil || *approved.ApprovedBy != "admin-1" {
			t.Fatalf("unexpected approval %+v", approved)
		}
		if approved.ApprovedAt == nil || !approved.ApprovedAt.Equal(baseTime) {
			t.Fatalf("unexpected approvedAt %v", approved.ApprovedAt)
		}

		stored, err := f.svc.GetRequest(ctx, req.ID)
		if err != nil {
			t.Fatalf("get request: %v", err)
		}
		if fmt.Sprint(stored.GeneratedQRCodes) != fmt.Sprint(want) || stored.Status != model.RequestApproved {
			t.Fatalf("approval not persisted: %+v", stored)
		}

		got, err := f.svc.GetSeller(ctx, seller.ID)
		if err != nil {
			t.Fatalf("get seller: %v", err)
		}
		if *got.RangeStart != 1 || *got.RangeEnd != 13 {
			t.Fatalf("expected range [1,13], got [%d,%d]", *got.RangeStart, *got.RangeEnd)
		}

		code := f.code(t, "RIS-012")
		if code.Status != model.CodeReserved || code.RequestID == nil || *code.RequestID != req.ID {
			t.Fatalf("expected reserved row for RIS-012, got %+v", code)
		}
	})
}

func TestCreateRequestValidation(t *testing.T) {
	f := newFixture(t, WithMatTypes(matTypeSet{"MBW2": true, "MBW4": true}))
	ctx := context.Background()
	seller := f.seller(t, "RIS")

	cases := map[string]struct {
		quantities map[string]int
		code       string
	}{
		"empty":        {quantities: map[string]int{}, code: ErrEmptyQuantities},
		"nil":          {quantities: nil, code: ErrEmptyQuantities},
		"zero":         {quantities: map[string]int{"MBW2": 0}, code: ErrInvalidQuantity},
		"negative":     {quantities: map[string]int{"MBW2": -2}, code: ErrInvalidQuantity},
		"blank type":   {quantities: map[string]int{" ": 1}, code: ErrInvalidQuantity},
		"unknown type": {quantities: map[string]int{"XXL": 1}, code: ErrUnknownMatType},
		"too many":     {quantities: map[string]int{"MBW2": MaxBatch, "MBW4": 1}, code: ErrInvalidQuantity},
	}
	for name, tc := range cases {
		_, err := f.svc.CreateRequest(ctx, seller.ID, tc.quantities, "operator-1")
		if !IsKind(err, KindValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
		requireKind(t, err, KindValidation, tc.code)
	}

	_, err := f.svc.CreateRequest(ctx, seller.ID, map[string]int{"MBW2": 1}, "")
	requireKind(t, err, KindValidation, ErrMissingActor)
	_, err = f.svc.CreateRequest(ctx, uuid.NewString(), map[string]int{"MBW2": 1}, "operator-1")
	requireKind(t, err, KindNotFound, ErrSellerNotFound)

	requests, err := f.svc.ListRequests(ctx, seller.ID, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(requests) != 0 {
		t.Fatalf("expected no persisted requests, got %d", len(requests))
	}
}

func TestApproveRequestRequiresPrefix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller, err := f.svc.RegisterSeller(ctx, "Prefixless", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	req, err := f.svc.CreateRequest(ctx, seller.ID, map[string]int{"MBW2": 1}, "operator-1")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	_, err = f.svc.ApproveRequest(ctx, req.ID, "admin-1")
	requireKind(t, err, KindValidation, ErrMissingPrefix)

	stored, err := f.svc.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if stored.Status != model.RequestPending {
		t.Fatalf("failed approval must leave request pending, got %s", stored.Status)
	}
}

func TestApproveRequestIsIrreversible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.seller(t, "RIS")
	approved := f.approvedRequest(t, seller, map[string]int{"MBW2": 2})

	_, err := f.svc.ApproveRequest(ctx, approved.ID, "admin-2")
	requireKind(t, err, KindInvalidTransition, ErrRequestNotPending)

	_, err = f.svc.ApproveRequest(ctx, uuid.NewString(), "admin-1")
	requireKind(t, err, KindNotFound, ErrRequestNotFound)
	_, err = f.svc.ApproveRequest(ctx, approved.ID, " ")
	requireKind(t, err, KindValidation, ErrMissingActor)
}

func TestPendingRequestsDoNotReserve(t *testing.T) {
	forEachFixture(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		seller := f.seller(t, "RIS")

		older, err := f.svc.CreateRequest(ctx, seller.ID, map[string]int{"MBW2": 2}, "operator-1")
		if err != nil {
			t.Fatalf("create older: %v", err)
		}
		newer, err := f.svc.CreateRequest(ctx, seller.ID, map[string]int{"MBW4": 3}, "operator-1")
		if err != nil {
			t.Fatalf("create newer: %v", err)
		}
		preview, err := f.svc.AllocateNumbers(ctx, seller.ID, 1)
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		if preview[0] != "RIS-001" {
			t.Fatalf("pending requests must not reserve numbers, got %v", preview)
		}

		// Approving out of creation order still yields disjoint numbers.
		second, err := f.svc.ApproveRequest(ctx, newer.ID, "admin-1")
		if err != nil {
			t.Fatalf("approve newer: %v", err)
		}
		first, err := f.svc.ApproveRequest(ctx, older.ID, "admin-1")
		if err != nil {
			t.Fatalf("approve older: %v", err)
		}
		if second.GeneratedQRCodes[0] != "RIS-001" || first.GeneratedQRCodes[0] != "RIS-004" {
			t.Fatalf("unexpected numbering %v then %v", second.GeneratedQRCodes, first.GeneratedQRCodes)
		}
	})
}

func TestApprovalsFromSharedReadConflict(t *testing.T) {
	forEachFixture(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		seller := f.seller(t, "RIS")
		a, err := f.svc.CreateRequest(ctx, seller.ID, map[string]int{"MBW2": 2}, "operator-1")
		if err != nil {
			t.Fatalf("create a: %v", err)
		}
		b, err := f.svc.CreateRequest(ctx, seller.ID, map[string]int{"MBW2": 2}, "operator-2")
		if err != nil {
			t.Fatalf("create b: %v", err)
		}

		// Both approvals compute their numbers from the same read.
		used, err := collectUsed(ctx, f.store.Queries(), seller)
		if err != nil {
			t.Fatalf("collect: %v", err)
		}
		generated := codes.Allocate(seller.Prefix, used, 2)

		commit := func(req model.ShipmentRequest) error {
			return f.store.WithTx(ctx, func(q *db.Queries) error {
				current, err := q.LockSeller(ctx, seller.ID)
				if err != nil {
					return err
				}
				_, err = f.svc.commitApproval(ctx, q, current, req, generated, "admin-1", baseTime)
				return err
			})
		}
		if err := commit(a); err != nil {
			t.Fatalf("first commit: %v", err)
		}
		err = commit(b)
		requireKind(t, err, KindAllocationConflict, ErrAllocationConflict)

		stored, err := f.svc.GetRequest(ctx, b.ID)
		if err != nil {
			t.Fatalf("get b: %v", err)
		}
		if stored.Status != model.RequestPending || len(stored.GeneratedQRCodes) != 0 {
			t.Fatalf("conflicting approval must roll back, got %+v", stored)
		}

		// A fresh read-allocate-write succeeds with the next numbers.
		approved, err := f.svc.ApproveRequest(ctx, b.ID, "admin-1")
		if err != nil {
			t.Fatalf("retry approve: %v", err)
		}
		if approved.GeneratedQRCodes[0] != "RIS-003" {
			t.Fatalf("expected retry to start after RIS-002, got %v", approved.GeneratedQRCodes)
		}
	})
}

func TestConcurrentApprovalsNeverOverlap(t *testing.T) {
	forEachFixture(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		seller := f.seller(t, "RIS")

		const workers = 8
		requests := make([]model.ShipmentRequest, 0, workers)
		for i := 0; i < workers; i++ {
			req, err := f.svc.CreateRequest(ctx, seller.ID, map[string]int{"MBW2": 2, "MBW4": 1}, "operator-1")
			if err != nil {
				t.Fatalf("create request: %v", err)
			}
			requests = append(requests, req)
		}

		var wg sync.WaitGroup
		results := make([]model.ShipmentRequest, workers)
		errs := make([]error, workers)
		for i, req := range requests {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				results[i], errs[i] = f.svc.ApproveRequest(ctx, id, "admin-1")
			}(i, req.ID)
		}
		wg.Wait()

		seen := map[string]string{}
		for i, approved := range results {
			if errs[i] != nil {
				t.Fatalf("approval %d failed: %v", i, errs[i])
			}
			if len(approved.GeneratedQRCodes) != 3 {
				t.Fatalf("approval %d issued %d codes", i, len(approved.GeneratedQRCodes))
			}
			for _, code := range approved.GeneratedQRCodes {
				if other, dup := seen[code]; dup {
					t.Fatalf("code %s issued to %s and %s", code, other, approved.ID)
				}
				seen[code] = approved.ID
			}
		}
		got, err := f.svc.GetSeller(ctx, seller.ID)
		if err != nil {
			t.Fatalf("get seller: %v", err)
		}
		if *got.RangeStart != 1 || *got.RangeEnd != workers*3 {
			t.Fatalf("unexpected range [%d,%d]", *got.RangeStart, *got.RangeEnd)
		}
	})
}
