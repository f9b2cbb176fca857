package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrMessageNotFound = errors.New("message not found")

type Message struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	SessionID string    `json:"session_id" gorm:"size:64;not null;index:idx_messages_session,priority:1"`
	AuthorID  string    `json:"author_id" gorm:"size:64;not null"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_messages_session,priority:2"`

	ReplyToMessageID *string       `json:"reply_to_message_id,omitempty" gorm:"size:36;index"`
	ReplyTo          *ReplySummary `json:"reply_to,omitempty" gorm:"-"`

	// TranslatedContent only lives on the client side
	TranslatedContent *string `json:"translated_content,omitempty" gorm:"-"`

	Attachments []Attachment   `json:"attachments" gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// ReplySummary is the part of a parent message needed to render a thread quote.
type ReplySummary struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (v Message) Summary() ReplySummary {
	return ReplySummary{
		ID:        v.ID,
		Content:   v.Content,
		AuthorID:  v.AuthorID,
		CreatedAt: v.CreatedAt,
	}
}

// IsDanglingReply reports a reply whose parent could not be resolved,
// usually because it was deleted after the reply was written.
func (v Message) IsDanglingReply() bool {
	return v.ReplyToMessageID != nil && v.ReplyTo == nil
}

// Clone copies the message deep enough that callers can not mutate
// the attachments or pointers held by a store.
func (v Message) Clone() Message {
	out := v
	if v.ReplyToMessageID != nil {
		id := *v.ReplyToMessageID
		out.ReplyToMessageID = &id
	}
	if v.ReplyTo != nil {
		summary := *v.ReplyTo
		out.ReplyTo = &summary
	}
	if v.TranslatedContent != nil {
		text := *v.TranslatedContent
		out.TranslatedContent = &text
	}
	if v.Attachments != nil {
		out.Attachments = append([]Attachment(nil), v.Attachments...)
	}
	return out
}
