package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frobware/go-teamsync/config"
	"github.com/frobware/go-teamsync/store"
	"github.com/frobware/go-teamsync/store/memory"
	"github.com/frobware/go-teamsync/store/redis"
	"github.com/frobware/go-teamsync/store/sqlite"
)

// OpenStore opens the backend named in cfg. A SQLite store without a
// configured path lives in the runtime database directory.
func OpenStore(ctx context.Context, cfg config.StoreConfig, dirs config.RuntimeDirs, logger *slog.Logger) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite, "":
		path := cfg.Path
		if path == "" {
			path = dirs.DBPath()
		}
		return sqlite.New(ctx, path, logger)
	case config.BackendRedis:
		return redis.New(cfg.RedisAddress, cfg.RedisDB, logger)
	case config.BackendMemory:
		logger.Warn("using in-memory store, state is lost on exit")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
