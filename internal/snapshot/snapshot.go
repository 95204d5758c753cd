package snapshot

import (
	"context"
	"fmt"

	"github.com/analystproxy/analystproxy/internal/config"
	"github.com/analystproxy/analystproxy/internal/conversation"
	"github.com/analystproxy/analystproxy/internal/snapshot/file"
	"github.com/analystproxy/analystproxy/internal/snapshot/objectstore"
	"github.com/analystproxy/analystproxy/internal/snapshot/postgres"
	"github.com/analystproxy/analystproxy/internal/snapshot/redis"
	"github.com/analystproxy/analystproxy/internal/sqldb"
	s3store "github.com/analystproxy/analystproxy/internal/storage/s3"
)

// Backend is a configured snapshot sink. Snapshotter is nil when snapshots
// are disabled.
type Backend struct {
	Name        string
	Snapshotter conversation.Snapshotter
	close       func() error
}

func (b Backend) Enabled() bool {
	return b.Snapshotter != nil
}

// Check reports whether the sink is reachable. Sinks without a check and
// disabled backends always pass.
func (b Backend) Check(ctx context.Context) error {
	checker, ok := b.Snapshotter.(interface{ Check(context.Context) error })
	if !ok {
		return nil
	}
	return checker.Check(ctx)
}

func (b Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

func Open(ctx context.Context, cfg config.Config) (Backend, error) {
	switch cfg.Snapshot.Backend {
	case config.SnapshotNone, "":
		return Backend{Name: config.SnapshotNone}, nil
	case config.SnapshotFile:
		s, err := file.New(cfg.Snapshot.FilePath)
		if err != nil {
			return Backend{}, err
		}
		return Backend{Name: config.SnapshotFile, Snapshotter: s}, nil
	case config.SnapshotPostgres:
		db, err := sqldb.Open(ctx, sqldb.DBConfig{Driver: "pgx", DSN: cfg.Snapshot.DSN})
		if err != nil {
			return Backend{}, fmt.Errorf("open snapshot db: %w", err)
		}
		return Backend{Name: config.SnapshotPostgres, Snapshotter: postgres.New(db), close: db.Close}, nil
	case config.SnapshotS3:
		store, err := s3store.New(ctx, cfg.ObjectStore)
		if err != nil {
			return Backend{}, fmt.Errorf("open snapshot object store: %w", err)
		}
		s, err := objectstore.New(store, cfg.Snapshot.ObjectKey)
		if err != nil {
			return Backend{}, err
		}
		return Backend{Name: config.SnapshotS3, Snapshotter: s}, nil
	case config.SnapshotRedis:
		client := redis.NewClient(cfg.Redis)
		s, err := redis.New(client, cfg.Snapshot.RedisKey)
		if err != nil {
			_ = client.Close()
			return Backend{}, err
		}
		return Backend{Name: config.SnapshotRedis, Snapshotter: s, close: client.Close}, nil
	default:
		return Backend{}, fmt.Errorf("unknown snapshot backend %q", cfg.Snapshot.Backend)
	}
}
