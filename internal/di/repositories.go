package di

import (
	"github.com/rs/zerolog"

	"github.com/algo-dude/wheeler/internal/modules/positions"
	"github.com/algo-dude/wheeler/internal/modules/reconciliation"
)

// InitializeRepositories creates all repositories and stores them in the container
func InitializeRepositories(container *Container, log zerolog.Logger) {
	container.PositionRepo = positions.NewRepository(container.DB.Conn(), log)
	container.HistoryRepo = reconciliation.NewHistoryRepository(container.DB.Conn(), log)
}
