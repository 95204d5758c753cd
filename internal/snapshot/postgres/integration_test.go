//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/analystproxy/analystproxy/internal/conversation"
	"github.com/analystproxy/analystproxy/internal/migrations"
)

func TestSnapshotRoundTripAgainstPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("ANALYST_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("ANALYST_TEST_POSTGRES_DSN is not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if _, err := migrations.NewRunner().Up(ctx, db, 0); err != nil {
		t.Fatalf("runner.Up() error = %v", err)
	}

	store := conversation.NewMemoryStore()
	id, _, err := store.AppendUserMessage("", "Show total revenue by region")
	if err != nil {
		t.Fatalf("AppendUserMessage() error = %v", err)
	}
	if _, err := store.AppendAssistantMessage(id, "North leads.", nil, map[string]any{"generated_sql": "SELECT 1"}); err != nil {
		t.Fatalf("AppendAssistantMessage() error = %v", err)
	}

	snapshotter := New(db)
	if err := snapshotter.Check(ctx); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if _, err := store.SaveTo(ctx, snapshotter); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	restored := conversation.NewMemoryStore()
	count, err := restored.LoadFrom(ctx, snapshotter)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("LoadFrom() count = %d", count)
	}
	item, err := restored.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(item.Messages) != 2 || item.Messages[1].Metadata["generated_sql"] != "SELECT 1" {
		t.Fatalf("unexpected restored conversation: %+v", item)
	}
}
