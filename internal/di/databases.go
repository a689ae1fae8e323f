package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/algo-dude/wheeler/internal/config"
	"github.com/algo-dude/wheeler/internal/database"
)

// InitializeDatabases opens the shared Wheeler database and applies the schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath,
		Profile: database.ProfileShared,
		Name:    "wheeler",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize wheeler database: %w", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply wheeler schema: %w", err)
	}

	log.Info().Str("path", db.Path()).Msg("Database initialized")

	return &Container{DB: db}, nil
}
