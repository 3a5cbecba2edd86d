package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/congo-pay/accounts/internal/docstore"
)

func TestSaveAssignsIDAndFindOne(t *testing.T) {
	s := New()
	ctx := context.Background()

	ack, err := s.Save(ctx, "users", docstore.Document{"name": "alice"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if ack.ID == "" || !ack.Inserted {
		t.Fatalf("expected inserted ack with id, got %+v", ack)
	}

	doc, err := s.FindOne(ctx, "users", docstore.By("name", "alice"))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if doc.ID() != ack.ID {
		t.Fatalf("expected id %s got %s", ack.ID, doc.ID())
	}

	// returned documents are copies
	doc["name"] = "mallory"
	if _, err := s.FindOne(ctx, "users", docstore.By("name", "alice")); err != nil {
		t.Fatalf("stored document mutated through returned copy: %v", err)
	}
}

func TestFindOneMissing(t *testing.T) {
	s := New()
	if _, err := s.FindOne(context.Background(), "users", docstore.By("name", "ghost")); !errors.Is(err, docstore.ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
}

func TestUniqueIndexRejectsDuplicates(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.CreateIndex(ctx, "users", docstore.Index{Field: "email", Unique: true}); err != nil {
		t.Fatalf("create index: %v", err)
	}

	first, err := s.Save(ctx, "users", docstore.Document{"email": "a@x.com", "name": "a"})
	if err != nil {
		t.Fatalf("save first: %v", err)
	}
	_, err = s.Save(ctx, "users", docstore.Document{"email": "a@x.com", "name": "b"})
	var dup *docstore.DuplicateKeyError
	if !errors.As(err, &dup) || dup.Field != "email" {
		t.Fatalf("expected duplicate email error, got %v", err)
	}

	// re-saving the owner of the value is not a conflict
	if _, err := s.Save(ctx, "users", docstore.Document{"_id": first.ID, "email": "a@x.com", "name": "a2"}); err != nil {
		t.Fatalf("resave owner: %v", err)
	}

	doc, err := s.FindOne(ctx, "users", docstore.By("email", "a@x.com"))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if doc["name"] != "a2" {
		t.Fatalf("expected replaced document, got %v", doc)
	}
}

func TestCreateIndexDetectsExistingDuplicates(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Save(ctx, "users", docstore.Document{"name": "dup"})
	s.Save(ctx, "users", docstore.Document{"name": "dup"})

	if err := s.CreateIndex(ctx, "users", docstore.Index{Field: "name", Unique: true}); !errors.Is(err, docstore.ErrDuplicateKey) {
		t.Fatalf("expected duplicate key, got %v", err)
	}
	if err := s.CreateIndex(ctx, "users", docstore.Index{Field: "name"}); err != nil {
		t.Fatalf("non-unique index: %v", err)
	}
}

func TestSaveMustExist(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Save(ctx, "users", docstore.Document{"_id": "nope"}, docstore.MustExist()); !errors.Is(err, docstore.ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
	if _, err := s.Save(ctx, "users", docstore.Document{"name": "x"}, docstore.MustExist()); !errors.Is(err, docstore.ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument for missing id, got %v", err)
	}
}

func TestIndexFollowsUpdatesAndRemoval(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.CreateIndex(ctx, "users", docstore.Index{Field: "email", Unique: true})

	ack, _ := s.Save(ctx, "users", docstore.Document{"email": "old@x.com"})
	if _, err := s.Save(ctx, "users", docstore.Document{"_id": ack.ID, "email": "new@x.com"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	// old value is free again
	if _, err := s.Save(ctx, "users", docstore.Document{"email": "old@x.com"}); err != nil {
		t.Fatalf("reuse old email: %v", err)
	}

	n, err := s.Remove(ctx, "users", docstore.By("email", "new@x.com"))
	if err != nil || n != 1 {
		t.Fatalf("remove: n=%d err=%v", n, err)
	}
	if _, err := s.Save(ctx, "users", docstore.Document{"email": "new@x.com"}); err != nil {
		t.Fatalf("reuse removed email: %v", err)
	}
}

func TestRemoveNothing(t *testing.T) {
	s := New()
	n, err := s.Remove(context.Background(), "users", docstore.By("name", "ghost"))
	if err != nil || n != 0 {
		t.Fatalf("expected 0 removed, got n=%d err=%v", n, err)
	}
}

func TestClosedStore(t *testing.T) {
	s := New()
	s.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error after close")
	}
	if _, err := s.Save(context.Background(), "users", docstore.Document{}); err == nil {
		t.Fatalf("expected save error after close")
	}
}
