package database

import (
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"gorm.io/gorm"
)

// PurgeDeleted hard deletes rows soft deleted before the deadline,
// including attachments whose message is already gone.
func PurgeDeleted(source *gorm.DB, deadline time.Time) (int64, error) {
	var count int64
	err := source.Transaction(func(tx *gorm.DB) error {
		orphans := tx.Unscoped().Model(&models.Message{}).
			Select("id").
			Where("deleted_at IS NOT NULL AND deleted_at < ?", deadline)
		result := tx.Unscoped().
			Where("message_id IN (?) OR (deleted_at IS NOT NULL AND deleted_at < ?)", orphans, deadline).
			Delete(&models.Attachment{})
		if result.Error != nil {
			return result.Error
		}
		count += result.RowsAffected

		result = tx.Unscoped().
			Where("deleted_at IS NOT NULL AND deleted_at < ?", deadline).
			Delete(&models.Message{})
		if result.Error != nil {
			return result.Error
		}
		count += result.RowsAffected
		return nil
	})
	return count, err
}
