package operations

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/model"
)

func TestRegisterSellerValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterSeller(ctx, "  ", "RIS")
	requireKind(t, err, KindValidation, ErrMissingName)
	_, err = f.svc.RegisterSeller(ctx, "Bad", "R1")
	requireKind(t, err, KindValidation, ErrInvalidPrefix)

	seller, err := f.svc.RegisterSeller(ctx, "Ris", "ris")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if seller.Prefix != "RIS" {
		t.Fatalf("expected normalized prefix, got %q", seller.Prefix)
	}
	_, err = f.svc.RegisterSeller(ctx, "Other", "RIS")
	requireKind(t, err, KindPreconditionFailed, ErrPrefixTaken)
}

func TestAssignPrefixOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller, err := f.svc.RegisterSeller(ctx, "No prefix yet", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err = f.svc.AllocateNumbers(ctx, seller.ID, 1)
	requireKind(t, err, KindValidation, ErrMissingPrefix)

	updated, err := f.svc.AssignPrefix(ctx, seller.ID, "mbt")
	if err != nil {
		t.Fatalf("assign prefix: %v", err)
	}
	if updated.Prefix != "MBT" {
		t.Fatalf("unexpected prefix %q", updated.Prefix)
	}
	_, err = f.svc.AssignPrefix(ctx, seller.ID, "XYZ")
	requireKind(t, err, KindPreconditionFailed, ErrPrefixAlreadySet)

	_, err = f.svc.AssignPrefix(ctx, uuid.NewString(), "XYZ")
	requireKind(t, err, KindNotFound, ErrSellerNotFound)
}

func TestAllocationStartsAtOneAndIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.seller(t, "RIS")

	preview, err := f.svc.AllocateNumbers(ctx, seller.ID, 2)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if preview[0] != "RIS-001" || preview[1] != "RIS-002" {
		t.Fatalf("unexpected first allocation %v", preview)
	}

	first, err := f.svc.GenerateCodes(ctx, seller.ID, 3)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := f.svc.GenerateCodes(ctx, seller.ID, 2)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if *second[0].Number <= *first[len(first)-1].Number {
		t.Fatalf("expected second batch above first: %s then %s", first[len(first)-1].Code, second[0].Code)
	}
	if second[1].Code != "RIS-005" || second[1].Status != model.CodeAvailable {
		t.Fatalf("unexpected generated code %+v", second[1])
	}

	got, err := f.svc.GetSeller(ctx, seller.ID)
	if err != nil {
		t.Fatalf("get seller: %v", err)
	}
	if got.RangeStart == nil || *got.RangeStart != 1 || *got.RangeEnd != 5 {
		t.Fatalf("unexpected range %v-%v", got.RangeStart, got.RangeEnd)
	}
}

func TestAllocationHonorsRowlessReservations(t *testing.T) {
	forEachFixture(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		seller := f.seller(t, "RIS")
		q := f.store.Queries()

		legacy := model.ShipmentRequest{
			ID:         uuid.NewString(),
			SellerID:   seller.ID,
			Status:     model.RequestPending,
			Quantities: map[string]int{"MBW2": 3},
			CreatedBy:  "legacy",
			CreatedAt:  baseTime,
		}
		if err := q.InsertShipmentRequest(ctx, legacy); err != nil {
			t.Fatalf("insert request: %v", err)
		}
		if err := q.ApproveShipmentRequest(ctx, legacy.ID, []string{"RIS-040", "ris-900", "RIS-9x"}, "legacy", baseTime); err != nil {
			t.Fatalf("approve legacy request: %v", err)
		}

		next, err := f.svc.AllocateNumbers(ctx, seller.ID, 1)
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		if next[0] != "RIS-041" {
			t.Fatalf("expected reservation to be honored, got %v", next)
		}

		synced, err := f.svc.SyncSellerRange(ctx, seller.ID)
		if err != nil {
			t.Fatalf("sync range: %v", err)
		}
		if *synced.RangeStart != 40 || *synced.RangeEnd != 40 {
			t.Fatalf("unexpected synced range %d-%d", *synced.RangeStart, *synced.RangeEnd)
		}
	})
}

func TestGenerateCodesValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.seller(t, "RIS")

	for _, n := range []int{0, -1, MaxBatch + 1} {
		_, err := f.svc.GenerateCodes(ctx, seller.ID, n)
		requireKind(t, err, KindValidation, ErrInvalidCount)
	}
	_, err := f.svc.GenerateCodes(ctx, "not-a-uuid", 1)
	requireKind(t, err, KindValidation, ErrInvalidSellerID)

	_, err = f.svc.GenerateCodes(ctx, uuid.NewString(), 1)
	requireKind(t, err, KindNotFound, ErrSellerNotFound)
}

func TestDeleteCodePreconditions(t *testing.T) {
	forEachFixture(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		seller := f.seller(t, "RIS")

		generated, err := f.svc.GenerateCodes(ctx, seller.ID, 1)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if err := f.svc.DeleteCode(ctx, generated[0].ID); err != nil {
			t.Fatalf("expected unused code to be deletable: %v", err)
		}
		_, err = f.svc.GetCode(ctx, generated[0].ID)
		requireKind(t, err, KindNotFound, ErrCodeNotFound)

		cycle := f.onTest(t, seller)
		if cycle.Code != "RIS-002" {
			t.Fatalf("expected deleted number to stay retired, got %s", cycle.Code)
		}
		err = f.svc.DeleteCode(ctx, cycle.QRCodeID)
		requireKind(t, err, KindPreconditionFailed, ErrCodeInUse)

		if _, err := f.svc.SelfDeliver(ctx, cycle.ID); err != nil {
			t.Fatalf("self deliver: %v", err)
		}
		err = f.svc.DeleteCode(ctx, cycle.QRCodeID)
		requireKind(t, err, KindPreconditionFailed, ErrCodeInUse)

		err = f.svc.DeleteCode(ctx, uuid.NewString())
		requireKind(t, err, KindNotFound, ErrCodeNotFound)
	})
}

func TestSyncRangeKeepsDeletedNumbersRetired(t *testing.T) {
	forEachFixture(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		seller := f.seller(t, "RIS")

		generated, err := f.svc.GenerateCodes(ctx, seller.ID, 3)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if err := f.svc.DeleteCode(ctx, generated[2].ID); err != nil {
			t.Fatalf("delete %s: %v", generated[2].Code, err)
		}
		synced, err := f.svc.SyncSellerRange(ctx, seller.ID)
		if err != nil {
			t.Fatalf("sync: %v", err)
		}
		if synced.RangeStart == nil || synced.RangeEnd == nil || *synced.RangeStart != 1 || *synced.RangeEnd != 3 {
			t.Fatalf("expected range 1-3 after sync, got %v-%v", synced.RangeStart, synced.RangeEnd)
		}

		next, err := f.svc.GenerateCodes(ctx, seller.ID, 1)
		if err != nil {
			t.Fatalf("generate after sync: %v", err)
		}
		if next[0].Code != "RIS-004" {
			t.Fatalf("expected RIS-004 after deleting RIS-003, got %s", next[0].Code)
		}

		for _, code := range generated[:2] {
			if err := f.svc.DeleteCode(ctx, code.ID); err != nil {
				t.Fatalf("delete %s: %v", code.Code, err)
			}
		}
		if err := f.svc.DeleteCode(ctx, next[0].ID); err != nil {
			t.Fatalf("delete %s: %v", next[0].Code, err)
		}
		if _, err := f.svc.SyncSellerRange(ctx, seller.ID); err != nil {
			t.Fatalf("sync empty: %v", err)
		}
		preview, err := f.svc.AllocateNumbers(ctx, seller.ID, 1)
		if err != nil {
			t.Fatalf("preview: %v", err)
		}
		if preview[0] != "RIS-005" {
			t.Fatalf("expected RIS-005 once every code is deleted, got %s", preview[0])
		}
	})
}

func TestListSellerCodesByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.seller(t, "RIS")
	if _, err := f.svc.GenerateCodes(ctx, seller.ID, 2); err != nil {
		t.Fatalf("generate: %v", err)
	}
	f.approvedRequest(t, seller, map[string]int{"MBW2": 3})

	all, err := f.svc.ListSellerCodes(ctx, seller.ID, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 codes, got %d", len(all))
	}
	reserved, err := f.svc.ListSellerCodes(ctx, seller.ID, model.CodeReserved)
	if err != nil {
		t.Fatalf("list reserved: %v", err)
	}
	if len(reserved) != 3 || reserved[0].Code != "RIS-003" {
		t.Fatalf("unexpected reserved codes %+v", reserved)
	}
	_, err = f.svc.ListSellerCodes(ctx, seller.ID, "bogus")
	requireKind(t, err, KindValidation, ErrInvalidStatus)
}
