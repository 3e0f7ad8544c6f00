package storage

import (
	"context"
	"fmt"
	"strings"

	logx "isthisai/pkg/logx"
)

// Store is the persistence contract the dispatch engine depends on.
// Implementations must be safe for concurrent callers and provide
// read-your-writes consistency within the process.
type Store interface {
	// Cursor returns the persisted feed position, or "" when none is set.
	Cursor(ctx context.Context) (string, error)
	// SetCursor advances the persisted feed position to fullname.
	SetCursor(ctx context.Context, fullname string) error
	// HasProcessed reports whether id is already in the reply ledger.
	HasProcessed(ctx context.Context, id string) (bool, error)
	// MarkProcessed adds id to the reply ledger. Marking an id twice is a no-op.
	MarkProcessed(ctx context.Context, id string) error
	Close() error
}

// Open initializes the configured store. Storage is mandatory: the bot
// cannot honor its only-reply-once contract without a ledger.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "file":
		return openFile(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}
}
