package services

import (
	"context"
	"io"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
)

// Persistence is the durable message store. Implementations assign ids and
// creation timestamps, publish deletes on their own, and return models.ErrMessageNotFound for missing rows.
type Persistence interface {
	CreateMessage(ctx context.Context, message *models.Message) error
	// AnnounceMessage publishes the insert of a message whose attachments are all linked.
	AnnounceMessage(ctx context.Context, message models.Message)
	CreateAttachment(ctx context.Context, attachment *models.Attachment) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	// ListMessages returns the most recent take messages of a session, oldest first.
	ListMessages(ctx context.Context, sessionID string, take int) ([]models.Message, error)
	ListMessagesByID(ctx context.Context, ids []string) ([]models.Message, error)
	DeleteMessage(ctx context.Context, id string) error
}

// Transport is the subscribing side of the session scoped pub/sub channel.
type Transport interface {
	Subscribe(ctx context.Context, topic string) (TransportSubscription, error)
}

// TransportSubscription closes its Notifications channel when the
// connection is lost or Close is called; Err tells the two apart.
type TransportSubscription interface {
	Notifications() <-chan models.RawNotification
	Err() error
	Close() error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, notification models.RawNotification) error
}

type BlobStorage interface {
	Upload(ctx context.Context, name string, contentType string, data io.Reader) (string, error)
}

type Translator interface {
	Translate(ctx context.Context, text string, targetLang string) (string, error)
}
