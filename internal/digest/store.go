package digest

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

// Open builds the store for backend. target is a file path, a DSN, or a
// redis URL depending on the backend.
func Open(ctx context.Context, backend, target string) (Store, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(target), nil
	case BackendPostgres:
		return NewSQLStore(ctx, "postgres", target)
	case BackendSQLite:
		return NewSQLStore(ctx, "sqlite3", target)
	case BackendRedis:
		return NewRedisStore(ctx, target)
	}
	return nil, fmt.Errorf("unknown digest store %q", backend)
}
