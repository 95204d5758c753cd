package warehouse

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/analystproxy/analystproxy/internal/config"
	"github.com/analystproxy/analystproxy/internal/sqldb"
)

// Open opens the warehouse database handle and resolves the connection kind.
// A readable token file yields a *Session; otherwise the configured token is
// used for a *DirectConnection.
func Open(ctx context.Context, cfg config.WarehouseConfig) (Connection, error) {
	db, err := sqldb.Open(ctx, sqldb.DBConfig{
		Driver:          cfg.Driver,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}

	token, err := ReadTokenFile(cfg.TokenFile)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if token != "" {
		return &Session{Handle: db, Host: cfg.Host, Scheme: cfg.Scheme, Token: token}, nil
	}
	return &DirectConnection{
		Handle:    db,
		Host:      cfg.Host,
		Scheme:    cfg.Scheme,
		Token:     cfg.Token,
		TokenType: cfg.TokenType,
	}, nil
}

// ReadTokenFile returns the trimmed token stored at path, or "" when the file
// does not exist.
func ReadTokenFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read warehouse token file %q: %w", path, err)
	}
	return strings.TrimSpace(string(raw)), nil
}
