package services

import (
	"context"
	"testing"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/database"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoAutoDatabaseCleanup(t *testing.T) {
	db, err := database.Open("sqlite", "file:cleanup_test?mode=memory&cache=shared", "", false)
	require.NoError(t, err)
	raw, err := db.DB()
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)
	require.NoError(t, database.RunMigration(db))

	previous, retention := database.C, CleanupRetention
	database.C, CleanupRetention = db, -time.Hour
	t.Cleanup(func() {
		database.C, CleanupRetention = previous, retention
		_ = raw.Close()
	})

	repo := database.NewRepository(db, nil, "")
	ctx := context.Background()
	kept := models.Message{SessionID: "s1", AuthorID: "u1", Content: "kept"}
	gone := models.Message{SessionID: "s1", AuthorID: "u1", Content: "gone"}
	require.NoError(t, repo.CreateMessage(ctx, &kept))
	require.NoError(t, repo.CreateMessage(ctx, &gone))
	require.NoError(t, repo.DeleteMessage(ctx, gone.ID))

	DoAutoDatabaseCleanup()

	var count int64
	require.NoError(t, db.Unscoped().Model(&models.Message{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
