package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/codes"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/db"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/db/dbtest"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/model"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// forEachStore runs fn against SQLite and, with INTEGRATION_TESTS=1, against
// Postgres.
func forEachStore(t *testing.T, fn func(t *testing.T, store *db.Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, dbtest.Open(t)) })
	t.Run("postgres", func(t *testing.T) { fn(t, dbtest.OpenPostgres(t)) })
}

func seedSeller(t *testing.T, store *db.Store, prefix string) model.Seller {
	t.Helper()
	seller := model.Seller{ID: uuid.NewString(), Name: prefix + " seller", Prefix: prefix, CreatedAt: testNow}
	if err := store.Queries().InsertSeller(context.Background(), seller); err != nil {
		t.Fatalf("insert seller: %v", err)
	}
	return seller
}

func codeRow(seller model.Seller, n int, status model.CodeStatus) model.QRCode {
	number := n
	return model.QRCode{
		ID:        uuid.NewString(),
		Code:      codes.FormatCode(seller.Prefix, n),
		Prefix:    seller.Prefix,
		Number:    &number,
		OwnerID:   seller.ID,
		Status:    status,
		CreatedAt: testNow,
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, store *db.Store) {
		if err := store.Migrate(context.Background()); err != nil {
			t.Fatalf("second migrate failed: %v", err)
		}
	})
}

func TestSellerRoundTripAndRange(t *testing.T) {
	forEachStore(t, func(t *testing.T, store *db.Store) {
		ctx := context.Background()
		seller := seedSeller(t, store, "RIS")

		got, err := store.Queries().GetSeller(ctx, seller.ID)
		if err != nil {
			t.Fatalf("get seller: %v", err)
		}
		if got.Prefix != "RIS" || got.RangeStart != nil || !got.CreatedAt.Equal(testNow) {
			t.Fatalf("unexpected seller %+v", got)
		}
		if err := store.Queries().UpdateSellerRange(ctx, seller.ID, &codes.Range{Start: 1, End: 13}); err != nil {
			t.Fatalf("update range: %v", err)
		}
		got, _ = store.Queries().GetSeller(ctx, seller.ID)
		if got.RangeStart == nil || *got.RangeStart != 1 || *got.RangeEnd != 13 {
			t.Fatalf("unexpected range %v-%v", got.RangeStart, got.RangeEnd)
		}
		if _, err := store.Queries().GetSeller(ctx, "missing"); !errors.Is(err, db.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		dup := model.Seller{ID: uuid.NewString(), Prefix: "RIS", CreatedAt: testNow}
		if err := store.Queries().InsertSeller(ctx, dup); !errors.Is(err, db.ErrConflict) {
			t.Fatalf("expected duplicate prefix to conflict, got %v", err)
		}
	})
}

func TestInsertCodesConflicts(t *testing.T) {
	forEachStore(t, func(t *testing.T, store *db.Store) {
		ctx := context.Background()
		seller := seedSeller(t, store, "RIS")

		if _, err := store.Queries().InsertCodes(ctx, []model.QRCode{codeRow(seller, 1, model.CodeAvailable)}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if _, err := store.Queries().InsertCodes(ctx, []model.QRCode{codeRow(seller, 1, model.CodeAvailable)}); !errors.Is(err, db.ErrConflict) {
			t.Fatalf("expected duplicate code to conflict, got %v", err)
		}

		// Same number written with a different padding still collides on (prefix, number).
		wide := codeRow(seller, 1, model.CodeAvailable)
		wide.Code = "RIS-0001"
		if _, err := store.Queries().InsertCodes(ctx, []model.QRCode{wide}); !errors.Is(err, db.ErrConflict) {
			t.Fatalf("expected duplicate number to conflict, got %v", err)
		}
	})
}

func TestInsertCodesRollsBackInTx(t *testing.T) {
	forEachStore(t, func(t *testing.T, store *db.Store) {
		ctx := context.Background()
		seller := seedSeller(t, store, "RIS")
		if _, err := store.Queries().InsertCodes(ctx, []model.QRCode{codeRow(seller, 2, model.CodeAvailable)}); err != nil {
			t.Fatalf("insert: %v", err)
		}

		err := store.WithTx(ctx, func(q *db.Queries) error {
			_, err := q.InsertCodes(ctx, []model.QRCode{codeRow(seller, 1, model.CodeAvailable), codeRow(seller, 2, model.CodeAvailable)})
			return err
		})
		if !errors.Is(err, db.ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		rows, err := store.Queries().ListCodes(ctx, seller.ID, "RIS")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(rows) != 1 || rows[0].Code != "RIS-002" {
			t.Fatalf("expected only RIS-002 after rollback, got %+v", rows)
		}
	})
}

func TestListCodesByPrefix(t *testing.T) {
	forEachStore(t, func(t *testing.T, store *db.Store) {
		ctx := context.Background()
		seller := seedSeller(t, store, "RIS")
		legacy := codeRow(seller, 0, model.CodeAvailable)
		legacy.Code = "OLD-77"
		legacy.Prefix = ""
		legacy.Number = nil
		if _, err := store.Queries().InsertCodes(ctx, []model.QRCode{codeRow(seller, 1, model.CodeAvailable), legacy}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		prefixed, err := store.Queries().ListCodes(ctx, seller.ID, "RIS")
		if err != nil || len(prefixed) != 1 {
			t.Fatalf("expected one RIS code, got %d (%v)", len(prefixed), err)
		}
		all, err := store.Queries().ListCodes(ctx, seller.ID, "")
		if err != nil || len(all) != 2 {
			t.Fatalf("expected two codes, got %d (%v)", len(all), err)
		}
	})
}

func TestShipmentRequestApproveOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, store *db.Store) {
		ctx := context.Background()
		seller := seedSeller(t, store, "RIS")
		req := model.ShipmentRequest{
			ID:         uuid.NewString(),
			SellerID:   seller.ID,
			Status:     model.RequestPending,
			Quantities: map[string]int{"MBW2": 3},
			CreatedBy:  "operator",
			CreatedAt:  testNow,
		}
		if err := store.Queries().InsertShipmentRequest(ctx, req); err != nil {
			t.Fatalf("insert request: %v", err)
		}
		generated := []string{"RIS-011", "RIS-012", "RIS-013"}
		if err := store.Queries().ApproveShipmentRequest(ctx, req.ID, generated, "admin-1", testNow); err != nil {
			t.Fatalf("approve: %v", err)
		}
		if err := store.Queries().ApproveShipmentRequest(ctx, req.ID, generated, "admin-1", testNow); !errors.Is(err, db.ErrStaleState) {
			t.Fatalf("expected second approval to be stale, got %v", err)
		}

		got, err := store.Queries().GetShipmentRequest(ctx, req.ID)
		if err != nil {
			t.Fatalf("get request: %v", err)
		}
		if got.Status != model.RequestApproved || len(got.GeneratedQRCodes) != 3 || got.Quantities["MBW2"] != 3 {
			t.Fatalf("unexpected request %+v", got)
		}
		if got.ApprovedBy == nil || *got.ApprovedBy != "admin-1" {
			t.Fatalf("expected approved_by admin-1, got %v", got.ApprovedBy)
		}

		reserved, err := store.Queries().ListReservedCodes(ctx, seller.ID)
		if err != nil || len(reserved) != 1 || reserved[0][2] != "RIS-013" {
			t.Fatalf("unexpected reserved codes %v (%v)", reserved, err)
		}
		found, err := store.Queries().FindReservation(ctx, "RIS-012")
		if err != nil || found.ID != req.ID {
			t.Fatalf("expected reservation lookup to find request, got %+v (%v)", found, err)
		}
		if _, err := store.Queries().FindReservation(ctx, "RIS-014"); !errors.Is(err, db.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for unreserved code, got %v", err)
		}
	})
}

func TestCycleGuards(t *testing.T) {
	forEachStore(t, func(t *testing.T, store *db.Store) {
		ctx := context.Background()
		seller := seedSeller(t, store, "RIS")
		code := codeRow(seller, 1, model.CodeActive)
		if _, err := store.Queries().InsertCodes(ctx, []model.QRCode{code}); err != nil {
			t.Fatalf("insert code: %v", err)
		}
		cycle := model.Cycle{
			ID:            uuid.NewString(),
			QRCodeID:      code.ID,
			MatType:       "MBW2",
			Status:        model.CycleOnTest,
			SalespersonID: "sp-1",
			TestStartDate: testNow,
			CreatedAt:     testNow,
			UpdatedAt:     testNow,
		}
		if err := store.Queries().InsertCycle(ctx, cycle); err != nil {
			t.Fatalf("insert cycle: %v", err)
		}
		second := cycle
		second.ID = uuid.NewString()
		if err := store.Queries().InsertCycle(ctx, second); !errors.Is(err, db.ErrConflict) {
			t.Fatalf("expected second active cycle to conflict, got %v", err)
		}

		active, err := store.Queries().GetActiveCycle(ctx, code.ID)
		if err != nil || active == nil || active.ID != cycle.ID {
			t.Fatalf("expected active cycle, got %+v (%v)", active, err)
		}

		dirty := model.CycleDirty
		if err := store.Queries().UpdateCycle(ctx, cycle.ID, []model.CycleStatus{model.CycleWaitingDriver}, db.CyclePatch{Status: &dirty, UpdatedAt: testNow}); !errors.Is(err, db.ErrStaleState) {
			t.Fatalf("expected stale state from wrong source, got %v", err)
		}
		if err := store.Queries().UpdateCycle(ctx, cycle.ID, []model.CycleStatus{model.CycleOnTest}, db.CyclePatch{Status: &dirty, UpdatedAt: testNow}); err != nil {
			t.Fatalf("update cycle: %v", err)
		}
		detail, err := store.Queries().GetCycle(ctx, cycle.ID)
		if err != nil {
			t.Fatalf("get cycle: %v", err)
		}
		if detail.Status != model.CycleDirty || detail.Code != "RIS-001" || detail.OwnerID != seller.ID {
			t.Fatalf("unexpected cycle detail %+v", detail)
		}
		if !detail.TestStartDate.Equal(testNow) {
			t.Fatalf("expected test start %s, got %s", testNow, detail.TestStartDate)
		}

		completed := model.CycleCompleted
		if err := store.Queries().UpdateCycle(ctx, cycle.ID, []model.CycleStatus{model.CycleDirty}, db.CyclePatch{Status: &completed, CompletedAt: &testNow, UpdatedAt: testNow}); err != nil {
			t.Fatalf("complete cycle: %v", err)
		}
		if active, err := store.Queries().GetActiveCycle(ctx, code.ID); err != nil || active != nil {
			t.Fatalf("expected no active cycle after completion, got %+v (%v)", active, err)
		}
		// A completed cycle no longer blocks a new one on the same code.
		if err := store.Queries().InsertCycle(ctx, second); err != nil {
			t.Fatalf("expected new cycle after completion, got %v", err)
		}
	})
}

func TestDeleteCodePrecondition(t *testing.T) {
	forEachStore(t, func(t *testing.T, store *db.Store) {
		ctx := context.Background()
		seller := seedSeller(t, store, "RIS")
		unused := codeRow(seller, 1, model.CodeAvailable)
		used := codeRow(seller, 2, model.CodeActive)
		if _, err := store.Queries().InsertCodes(ctx, []model.QRCode{unused, used}); err != nil {
			t.Fatalf("insert codes: %v", err)
		}
		if err := store.Queries().InsertCycle(ctx, model.Cycle{
			ID: uuid.NewString(), QRCodeID: used.ID, MatType: "MBW2", Status: model.CycleOnTest,
			SalespersonID: "sp-1", TestStartDate: testNow, CreatedAt: testNow, UpdatedAt: testNow,
		}); err != nil {
			t.Fatalf("insert cycle: %v", err)
		}
		if err := store.Queries().DeleteCode(ctx, used.ID); !errors.Is(err, db.ErrStaleState) {
			t.Fatalf("expected used code delete to fail, got %v", err)
		}
		if err := store.Queries().DeleteCode(ctx, unused.ID); err != nil {
			t.Fatalf("delete unused: %v", err)
		}
		if _, err := store.Queries().GetCode(ctx, unused.ID); !errors.Is(err, db.ErrNotFound) {
			t.Fatalf("expected deleted code to be gone, got %v", err)
		}
	})
}

func TestPickupBatchLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, store *db.Store) {
		ctx := context.Background()
		seller := seedSeller(t, store, "RIS")
		var cycleIDs []string
		for n := 1; n <= 2; n++ {
			code := codeRow(seller, n, model.CodePending)
			if _, err := store.Queries().InsertCodes(ctx, []model.QRCode{code}); err != nil {
				t.Fatalf("insert code: %v", err)
			}
			cycle := model.Cycle{
				ID: uuid.NewString(), QRCodeID: code.ID, MatType: "MBW2", Status: model.CycleWaitingDriver,
				SalespersonID: "sp-1", TestStartDate: testNow, CreatedAt: testNow, UpdatedAt: testNow,
			}
			if err := store.Queries().InsertCycle(ctx, cycle); err != nil {
				t.Fatalf("insert cycle: %v", err)
			}
			cycleIDs = append(cycleIDs, cycle.ID)
		}
		notes := "north route"
		pickup, err := store.Queries().CreatePickupBatch(ctx, model.DriverPickup{
			ID: uuid.NewString(), Status: model.PickupPending, Notes: &notes, CreatedAt: testNow,
		}, cycleIDs)
		if err != nil {
			t.Fatalf("create pickup: %v", err)
		}

		pickupIDs, err := store.Queries().MarkPickedUp(ctx, cycleIDs[:1], testNow)
		if err != nil || len(pickupIDs) != 1 || pickupIDs[0] != pickup.ID {
			t.Fatalf("unexpected marked pickups %v (%v)", pickupIDs, err)
		}
		done, err := store.Queries().CompletePickupIfDone(ctx, pickup.ID, testNow)
		if err != nil || done {
			t.Fatalf("pickup must stay open with an item left, done=%v err=%v", done, err)
		}
		if _, err := store.Queries().MarkPickedUp(ctx, cycleIDs[1:], testNow); err != nil {
			t.Fatalf("mark second: %v", err)
		}
		done, err = store.Queries().CompletePickupIfDone(ctx, pickup.ID, testNow)
		if err != nil || !done {
			t.Fatalf("expected pickup completion, done=%v err=%v", done, err)
		}

		got, err := store.Queries().GetPickup(ctx, pickup.ID)
		if err != nil {
			t.Fatalf("get pickup: %v", err)
		}
		if got.Status != model.PickupCompleted || len(got.Items) != 2 || !got.Items[0].PickedUp || !got.Items[1].PickedUp {
			t.Fatalf("unexpected pickup %+v", got)
		}
		listed, err := store.Queries().ListPickups(ctx, model.PickupCompleted)
		if err != nil || len(listed) != 1 || len(listed[0].Items) != 2 {
			t.Fatalf("unexpected pickup list %+v (%v)", listed, err)
		}
	})
}
