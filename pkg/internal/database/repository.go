package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// NotificationPublisher receives the insert / delete notifications of written rows.
type NotificationPublisher interface {
	Publish(ctx context.Context, topic string, notification models.RawNotification) error
}

// Repository is the gorm backed persistence service.
type Repository struct {
	db          *gorm.DB
	publisher   NotificationPublisher
	topicPrefix string
	now         func() time.Time
}

func NewRepository(db *gorm.DB, publisher NotificationPublisher, topicPrefix string) *Repository {
	return &Repository{
		db:          db,
		publisher:   publisher,
		topicPrefix: topicPrefix,
		now:         func() time.Time { return time.Now().UTC().Round(time.Microsecond) },
	}
}

func (v *Repository) publish(ctx context.Context, sessionID string, notification models.RawNotification) {
	if v.publisher == nil {
		return
	}
	if err := v.publisher.Publish(ctx, models.SessionTopic(v.topicPrefix, sessionID), notification); err != nil {
		log.Warn().Err(err).
			Str("session", sessionID).
			Str("operation", notification.Operation).
			Msg("An error occurred when publishing message notification...")
	}
}

func (v *Repository) CreateMessage(ctx context.Context, message *models.Message) error {
	message.ID = uuid.NewString()
	message.CreatedAt = v.now()
	message.DeletedAt = gorm.DeletedAt{}

	attachments := message.Attachments
	message.Attachments = nil
	err := v.db.WithContext(ctx).Create(message).Error
	message.Attachments = attachments
	return err
}

// AnnounceMessage publishes the insert notification of a created message.
// Senders call it once the attachments are linked, so subscribers fetch the complete row.
func (v *Repository) AnnounceMessage(ctx context.Context, message models.Message) {
	v.publish(ctx, message.SessionID, models.RawNotification{
		Operation: models.NotificationOperationInsert,
		RowID:     message.ID,
		SessionID: message.SessionID,
		Payload: map[string]any{
			"id":         message.ID,
			"session_id": message.SessionID,
			"author_id":  message.AuthorID,
			"created_at": message.CreatedAt,
		},
	})
}

func (v *Repository) CreateAttachment(ctx context.Context, attachment *models.Attachment) error {
	var count int64
	if err := v.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", attachment.MessageID).
		Count(&count).Error; err != nil {
		return err
	} else if count == 0 {
		return fmt.Errorf("%w: %s", models.ErrMessageNotFound, attachment.MessageID)
	}

	attachment.ID = uuid.NewString()
	attachment.CreatedAt = v.now()
	return v.db.WithContext(ctx).Create(attachment).Error
}

func (v *Repository) preloaded(ctx context.Context) *gorm.DB {
	return v.db.WithContext(ctx).Preload("Attachments", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	})
}

func (v *Repository) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var message models.Message
	if err := v.preloaded(ctx).Where("id = ?", id).First(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrMessageNotFound, id)
		}
		return nil, err
	}
	return &message, nil
}

func (v *Repository) ListMessages(ctx context.Context, sessionID string, take int) ([]models.Message, error) {
	if take <= 0 {
		take = 100
	}

	var messages []models.Message
	if err := v.preloaded(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(take).
		Find(&messages).Error; err != nil {
		return messages, err
	}

	return lo.Reverse(messages), nil
}

func (v *Repository) ListMessagesByID(ctx context.Context, ids []string) ([]models.Message, error) {
	var messages []models.Message
	if len(ids) == 0 {
		return messages, nil
	}
	if err := v.db.WithContext(ctx).
		Where("id IN ?", lo.Uniq(ids)).
		Find(&messages).Error; err != nil {
		return messages, err
	}
	return messages, nil
}

// DeleteMessage soft deletes the message and its attachments together.
func (v *Repository) DeleteMessage(ctx context.Context, id string) error {
	var message models.Message
	err := v.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&message).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", models.ErrMessageNotFound, id)
			}
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&message).Error
	})
	if err != nil {
		return err
	}

	v.publish(ctx, message.SessionID, models.RawNotification{
		Operation: models.NotificationOperationDelete,
		RowID:     message.ID,
		SessionID: message.SessionID,
	})
	return nil
}
