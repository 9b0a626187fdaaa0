package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/tapcard/internal/apperror"
	"github.com/sakif/tapcard/internal/model"
	"github.com/sakif/tapcard/internal/repository"
)

// =========================================================================
// INSERT / GET TESTS
// =========================================================================

func TestInsertCodes_SetsDefaults(t *testing.T) {
	db := newTestDB(t)
	admin := createTestUser(t, db, "admin@example.com")

	codes := createTestCodes(t, db, admin.ID, "K1", "K2")

	for _, c := range codes {
		if c.ID == 0 {
			t.Errorf("code %s: ID not set", c.Code)
		}
		if c.Status != model.StatusUnassigned {
			t.Errorf("code %s: Status = %q, want unassigned", c.Code, c.Status)
		}
		if c.Type != model.DefaultCodeType {
			t.Errorf("code %s: Type = %q, want %q", c.Code, c.Type, model.DefaultCodeType)
		}
	}
}

func TestInsertCodes_DuplicateValue(t *testing.T) {
	db := newTestDB(t)
	admin := createTestUser(t, db, "admin@example.com")
	createTestCodes(t, db, admin.ID, "K1")

	err := db.InsertCodes(context.Background(), []model.ResolveCode{{Code: "K1", CreatedBy: admin.ID}})
	if !errors.Is(err, apperror.ErrDuplicateCode) {
		t.Fatalf("InsertCodes() error = %v, want ErrDuplicateCode", err)
	}
}

func TestGetCodeByValue(t *testing.T) {
	db := newTestDB(t)
	admin := createTestUser(t, db, "admin@example.com")
	created := createTestCodes(t, db, admin.ID, "K1")[0]

	got, err := db.GetCodeByValue(context.Background(), "K1")
	if err != nil {
		t.Fatalf("GetCodeByValue() error = %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ID = %d, want %d", got.ID, created.ID)
	}
	if got.Assignment != nil {
		t.Errorf("fresh code has Assignment %+v", got.Assignment)
	}
	if !got.Claimable() {
		t.Error("fresh code should be claimable")
	}
}

func TestGetCodeByValue_SoftDeletedIsNotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	admin := createTestUser(t, db, "admin@example.com")
	c := createTestCodes(t, db, admin.ID, "K1")[0]

	if _, err := db.SoftDeleteCodes(ctx, []int64{c.ID}); err != nil {
		t.Fatalf("SoftDeleteCodes() error = %v", err)
	}

	_, err := db.GetCodeByValue(ctx, "K1")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("GetCodeByValue() error = %v, want ErrNotFound", err)
	}

	// By ID the row is still reachable.
	got, err := db.GetCodeByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCodeByID() error = %v", err)
	}
	if got.DeletedAt == nil {
		t.Error("DeletedAt not set on soft-deleted code")
	}
}

// =========================================================================
// STATE TRANSITION TESTS
// =========================================================================

func TestAssignCode_OnlyFromClaimable(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	admin := createTestUser(t, db, "admin@example.com")
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	c := createTestCodes(t, db, admin.ID, "K1")[0]

	now := time.Now().UTC()
	ok, err := db.AssignCode(ctx, c.ID, alice.ID, now)
	if err != nil || !ok {
		t.Fatalf("first AssignCode() = %v, %v; want true, nil", ok, err)
	}

	ok, err = db.AssignCode(ctx, c.ID, bob.ID, now)
	if err != nil {
		t.Fatalf("second AssignCode() error = %v", err)
	}
	if ok {
		t.Fatal("second AssignCode() moved an already assigned code")
	}

	got, _ := db.GetCodeByID(ctx, c.ID)
	if !got.AssignedTo(alice.ID) {
		t.Errorf("code assigned to %+v, want user %d", got.Assignment, alice.ID)
	}
	if got.Assignment.Since.IsZero() {
		t.Error("Assignment.Since not set")
	}
}

func TestResetCode(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	admin := createTestUser(t, db, "admin@example.com")
	alice := createTestUser(t, db, "alice@example.com")
	c := createTestCodes(t, db, admin.ID, "K1")[0]
	db.AssignCode(ctx, c.ID, alice.ID, time.Now().UTC())

	if err := db.ResetCode(ctx, c.ID); err != nil {
		t.Fatalf("ResetCode() error = %v", err)
	}

	got, _ := db.GetCodeByID(ctx, c.ID)
	if got.Status != model.StatusAvailable {
		t.Errorf("Status = %q, want available", got.Status)
	}
	if got.Assignment != nil {
		t.Errorf("Assignment = %+v, want nil", got.Assignment)
	}

	if err := db.ResetCode(ctx, 9999); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("ResetCode(missing) error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// ADMIN OPERATION TESTS
// =========================================================================

func TestExistingCodeValues_IncludesSoftDeleted(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	admin := createTestUser(t, db, "admin@example.com")
	codes := createTestCodes(t, db, admin.ID, "K1", "K2")
	db.SoftDeleteCodes(ctx, []int64{codes[1].ID})

	got, err := db.ExistingCodeValues(ctx, []string{"K1", "K2", "K3"})
	if err != nil {
		t.Fatalf("ExistingCodeValues() error = %v", err)
	}
	if len(got) != 2 || got[0] != "K1" || got[1] != "K2" {
		t.Errorf("ExistingCodeValues() = %v, want [K1 K2]", got)
	}
}

func TestListCodes_Filters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	admin := createTestUser(t, db, "admin@example.com")
	alice := createTestUser(t, db, "alice@example.com")
	codes := createTestCodes(t, db, admin.ID, "K1", "K2", "K3", "K4")

	db.AssignCode(ctx, codes[0].ID, alice.ID, time.Now().UTC())
	db.ResetCode(ctx, codes[1].ID) // available
	db.SoftDeleteCodes(ctx, []int64{codes[3].ID})

	tests := []struct {
		name   string
		filter repository.CodeFilter
		want   int
	}{
		{"all live codes", repository.CodeFilter{}, 3},
		{"assigned", repository.CodeFilter{Status: model.StatusAssigned}, 1},
		{"unassigned means any claimable", repository.CodeFilter{Status: model.StatusUnassigned}, 2},
		{"limit", repository.CodeFilter{ListOptions: repository.ListOptions{Limit: 1}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.ListCodes(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListCodes() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("ListCodes() returned %d codes, want %d", len(got), tt.want)
			}
		})
	}
}

func TestSoftDeleteCodes_CountsOnlyLiveRows(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	admin := createTestUser(t, db, "admin@example.com")
	codes := createTestCodes(t, db, admin.ID, "K1", "K2")

	n, err := db.SoftDeleteCodes(ctx, []int64{codes[0].ID, codes[1].ID, 9999})
	if err != nil {
		t.Fatalf("SoftDeleteCodes() error = %v", err)
	}
	if n != 2 {
		t.Errorf("affected = %d, want 2", n)
	}

	n, _ = db.SoftDeleteCodes(ctx, []int64{codes[0].ID})
	if n != 0 {
		t.Errorf("second delete affected = %d, want 0", n)
	}
}

func TestMarkCodesCopied(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	admin := createTestUser(t, db, "admin@example.com")
	codes := createTestCodes(t, db, admin.ID, "K1", "K2")

	n, err := db.MarkCodesCopied(ctx, []int64{codes[0].ID}, time.Now().UTC())
	if err != nil {
		t.Fatalf("MarkCodesCopied() error = %v", err)
	}
	if n != 1 {
		t.Errorf("affected = %d, want 1", n)
	}

	got, _ := db.GetCodeByID(ctx, codes[0].ID)
	if got.CopiedAt == nil {
		t.Error("CopiedAt not set")
	}
	other, _ := db.GetCodeByID(ctx, codes[1].ID)
	if other.CopiedAt != nil {
		t.Error("CopiedAt set on a code that was not copied")
	}
}

// =========================================================================
// ORPHAN SCAN TESTS
// =========================================================================

func TestFindOrphanedCodes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	admin := createTestUser(t, db, "admin@example.com")
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	codes := createTestCodes(t, db, admin.ID, "K1", "K2", "K3", "K4")
	now := time.Now().UTC()

	// K1: assigned with profile (healthy)
	db.AssignCode(ctx, codes[0].ID, alice.ID, now)
	createTestProfile(t, db, alice.ID, codes[0].ID, "ada-1")
	// K2: assigned to alice, no profile (orphan)
	db.AssignCode(ctx, codes[1].ID, alice.ID, now)
	// K3: assigned to bob, no profile (orphan)
	db.AssignCode(ctx, codes[2].ID, bob.ID, now)
	// K4: untouched

	all, err := db.FindOrphanedCodes(ctx, repository.Scope{})
	if err != nil {
		t.Fatalf("FindOrphanedCodes() error = %v", err)
	}
	if len(all) != 2 || all[0] != codes[1].ID || all[1] != codes[2].ID {
		t.Errorf("FindOrphanedCodes(all) = %v, want [%d %d]", all, codes[1].ID, codes[2].ID)
	}

	mine, err := db.FindOrphanedCodes(ctx, repository.Scope{UserID: &alice.ID})
	if err != nil {
		t.Fatalf("FindOrphanedCodes(user) error = %v", err)
	}
	if len(mine) != 1 || mine[0] != codes[1].ID {
		t.Errorf("FindOrphanedCodes(alice) = %v, want [%d]", mine, codes[1].ID)
	}
}

func TestFindOrphanedCodes_StrayHolderOnClaimableRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	admin := createTestUser(t, db, "admin@example.com")
	alice := createTestUser(t, db, "alice@example.com")
	c := createTestCodes(t, db, admin.ID, "K1")[0]

	// Drift: status says available but the holder columns were left behind.
	_, err := db.conn.Exec(`UPDATE resolve_codes SET status = 'available', user_id = ?, assigned_at = ? WHERE id = ?`,
		alice.ID, time.Now().UTC(), c.ID)
	if err != nil {
		t.Fatalf("seeding drift: %v", err)
	}

	got, err := db.FindOrphanedCodes(ctx, repository.Scope{})
	if err != nil {
		t.Fatalf("FindOrphanedCodes() error = %v", err)
	}
	if len(got) != 1 || got[0] != c.ID {
		t.Errorf("FindOrphanedCodes() = %v, want [%d]", got, c.ID)
	}
}

func TestAssignCode_SameHolderIsRestamped(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	admin := createTestUser(t, db, "admin@example.com")
	alice := createTestUser(t, db, "alice@example.com")
	c := createTestCodes(t, db, admin.ID, "K1")[0]

	first := time.Now().UTC().Add(-time.Hour)
	db.AssignCode(ctx, c.ID, alice.ID, first)

	ok, err := db.AssignCode(ctx, c.ID, alice.ID, time.Now().UTC())
	if err != nil || !ok {
		t.Fatalf("re-assign to holder = %v, %v; want true, nil", ok, err)
	}
	got, _ := db.GetCodeByID(ctx, c.ID)
	if !got.Assignment.Since.After(first) {
		t.Errorf("Since = %v, want later than %v", got.Assignment.Since, first)
	}
}

func TestDeleteCodes_LeavesProfilesBehind(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	admin := createTestUser(t, db, "admin@example.com")
	codes := createTestCodes(t, db, admin.ID, "K1", "K2")
	db.AssignCode(ctx, codes[0].ID, admin.ID, time.Now().UTC())
	p := createTestProfile(t, db, admin.ID, codes[0].ID, "left-behind")

	n, err := db.DeleteCodes(ctx, []int64{codes[0].ID, codes[1].ID})
	if err != nil {
		t.Fatalf("DeleteCodes() error = %v", err)
	}
	if n != 2 {
		t.Errorf("affected = %d, want 2", n)
	}
	if _, err := db.GetCodeByID(ctx, codes[0].ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetCodeByID() after hard delete error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetProfileByID(ctx, p.ID); err != nil {
		t.Errorf("profile should survive a raw code delete, got %v", err)
	}
}
