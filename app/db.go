package app

import (
	"context"
	"fmt"

	"github.com/sethmwebi/medrin-jobs-backend/app/config"
	"github.com/sethmwebi/medrin-jobs-backend/app/store"

	"github.com/rs/zerolog"
)

// OpenStore connects the configured store. DB_DRIVER=memory keeps
// everything in process for local runs; the default is Postgres, migrated
// on start. The returned func closes the connection.
func OpenStore(ctx context.Context, cfg config.PostgresConfig, log zerolog.Logger) (store.Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		log.Warn().Msg("using in-memory store; data is lost on exit")
		return store.NewMemory(), func() {}, nil
	case "", "postgres":
	default:
		return nil, nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.Driver)
	}

	db, err := store.Open(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, err
	}
	pg := store.NewPostgres(db)
	if err := pg.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info().Str("host", cfg.URL).Str("db", cfg.Name).Msg("connected to Postgres")
	return pg, func() { db.Close() }, nil
}
