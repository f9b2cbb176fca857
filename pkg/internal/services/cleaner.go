package services

import (
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/database"
	"github.com/rs/zerolog/log"
)

const DefaultCleanupRetention = 24 * time.Hour

// CleanupRetention is how long soft deleted rows are kept before purging.
var CleanupRetention = DefaultCleanupRetention

func DoAutoDatabaseCleanup() {
	if database.C == nil {
		return
	}

	deadline := time.Now().Add(-CleanupRetention)
	log.Debug().Time("deadline", deadline).Msg("Now cleaning up entire database...")

	count, err := database.PurgeDeleted(database.C, deadline)
	if err != nil {
		log.Error().Err(err).Msg("An error occurred when running database cleanup...")
	}

	log.Debug().Int64("affected", count).Msg("Clean up entire database accomplished.")
}
