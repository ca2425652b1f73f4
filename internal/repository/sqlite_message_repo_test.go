package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"ai-chatroom/internal/domain"
)

func newTestSQLiteRepo(t *testing.T) *SQLiteMessageRepository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewSQLiteMessageRepository(db)
	if err := repo.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}
	// Idempotente: se llama en cada arranque.
	if err := repo.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("ensure indexes twice: %v", err)
	}
	return repo
}

func TestSQLiteMessageRepository_ListRecentByRoom(t *testing.T) {
	repo := newTestSQLiteRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		msg := domain.Message{
			ID:        fmt.Sprintf("r1-%d", i),
			Room:      "r1",
			User:      "alice",
			Text:      fmt.Sprintf("m%d", i),
			Role:      domain.RoleUser,
			Timestamp: base.Add(time.Duration(i) * time.Microsecond),
		}
		if err := repo.Create(ctx, msg); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := repo.Create(ctx, domain.Message{ID: "r2-0", Room: "r2", User: "bob", Text: "x", Role: domain.RoleUser, Timestamp: base}); err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := repo.ListRecentByRoom(ctx, "r1", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out))
	}
	want := []string{"m2", "m3", "m4"}
	for i, msg := range out {
		if msg.Text != want[i] {
			t.Fatalf("position %d: expected %q, got %q", i, want[i], msg.Text)
		}
		if msg.Room != "r1" || msg.Role != domain.RoleUser {
			t.Fatalf("unexpected record %+v", msg)
		}
		if i > 0 && msg.Timestamp.Before(out[i-1].Timestamp) {
			t.Fatalf("expected ascending timestamps")
		}
	}
	if !out[0].Timestamp.Equal(base.Add(2 * time.Microsecond)) {
		t.Fatalf("expected timestamp round-trip, got %v", out[0].Timestamp)
	}
}

func TestSQLiteMessageRepository_EmptyRoom(t *testing.T) {
	repo := newTestSQLiteRepo(t)
	out, err := repo.ListRecentByRoom(context.Background(), "nobody", 200)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty non-nil slice, got %+v", out)
	}
}

func TestSQLiteMessageRepository_ClosedDatabase(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo := NewSQLiteMessageRepository(db)
	_ = db.Close()

	ctx := context.Background()
	if err := repo.Create(ctx, domain.Message{ID: "m1", Room: "r1"}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on create, got %v", err)
	}
	if _, err := repo.ListRecentByRoom(ctx, "r1", 10); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on list, got %v", err)
	}
	if err := repo.EnsureIndexes(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on ensure, got %v", err)
	}
}
