package snapshot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/analystproxy/analystproxy/internal/config"
)

func TestOpenNoneIsDisabled(t *testing.T) {
	backend, err := Open(context.Background(), config.Config{Snapshot: config.SnapshotConfig{Backend: config.SnapshotNone}})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if backend.Enabled() {
		t.Fatal("expected disabled backend")
	}
	if err := backend.Check(context.Background()); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestOpenFileBackend(t *testing.T) {
	cfg := config.Config{Snapshot: config.SnapshotConfig{
		Backend:  config.SnapshotFile,
		FilePath: filepath.Join(t.TempDir(), "conversations.json"),
	}}
	backend, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !backend.Enabled() || backend.Name != config.SnapshotFile {
		t.Fatalf("backend = %+v", backend)
	}
	if err := backend.Check(context.Background()); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
}

func TestOpenRedisBackendDoesNotDialEagerly(t *testing.T) {
	cfg := config.Config{
		Snapshot: config.SnapshotConfig{Backend: config.SnapshotRedis, RedisKey: "analyst:test"},
		Redis:    config.RedisConfig{Addr: "127.0.0.1:1"},
	}
	backend, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = backend.Close() }()
	if backend.Name != config.SnapshotRedis {
		t.Fatalf("Name = %q", backend.Name)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), config.Config{Snapshot: config.SnapshotConfig{Backend: "tape"}}); err == nil {
		t.Fatal("expected error")
	}
}
