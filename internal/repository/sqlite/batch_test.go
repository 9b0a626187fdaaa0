package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/tapcard/internal/apperror"
	"github.com/sakif/tapcard/internal/model"
	"github.com/sakif/tapcard/internal/repository"
)

func TestCreateBatch_AndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	admin := createTestUser(t, db, "admin@example.com")

	b := &model.Batch{Name: "Spring run", Prefix: "SPR", Count: 2, CreatedBy: admin.ID}
	if err := db.CreateBatch(ctx, b); err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	got, err := db.GetBatch(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBatch() error = %v", err)
	}
	if got.Name != "Spring run" || got.Prefix != "SPR" || got.Count != 2 {
		t.Errorf("GetBatch() = %+v", got)
	}

	noPrefix := &model.Batch{Name: "plain", CreatedBy: admin.ID}
	db.CreateBatch(ctx, noPrefix)
	got, _ = db.GetBatch(ctx, noPrefix.ID)
	if got.Prefix != "" {
		t.Errorf("Prefix = %q, want empty", got.Prefix)
	}

	list, err := db.ListBatches(ctx)
	if err != nil {
		t.Fatalf("ListBatches() error = %v", err)
	}
	if len(list) != 2 {
		t.Errorf("ListBatches() returned %d, want 2", len(list))
	}
}

// Deleting a batch must leave its codes in place with batch_id cleared.
func TestDeleteBatch_DetachesCodes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	admin := createTestUser(t, db, "admin@example.com")

	b := &model.Batch{Name: "to delete", Count: 2, CreatedBy: admin.ID}
	db.CreateBatch(ctx, b)
	codes := []model.ResolveCode{
		{Code: "B1", CreatedBy: admin.ID, BatchID: &b.ID},
		{Code: "B2", CreatedBy: admin.ID, BatchID: &b.ID},
	}
	if err := db.InsertCodes(ctx, codes); err != nil {
		t.Fatalf("InsertCodes() error = %v", err)
	}

	inBatch, _ := db.ListCodes(ctx, repository.CodeFilter{BatchID: &b.ID})
	if len(inBatch) != 2 {
		t.Fatalf("codes in batch = %d, want 2", len(inBatch))
	}

	if err := db.DeleteBatch(ctx, b.ID); err != nil {
		t.Fatalf("DeleteBatch() error = %v", err)
	}

	for _, c := range codes {
		got, err := db.GetCodeByID(ctx, c.ID)
		if err != nil {
			t.Fatalf("code %s vanished with its batch: %v", c.Code, err)
		}
		if got.BatchID != nil {
			t.Errorf("code %s BatchID = %d, want nil", c.Code, *got.BatchID)
		}
		if got.Status != model.StatusUnassigned {
			t.Errorf("code %s Status = %q, want unchanged", c.Code, got.Status)
		}
	}

	if err := db.DeleteBatch(ctx, b.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second DeleteBatch() error = %v, want ErrNotFound", err)
	}
}
