package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const DefaultAttachmentPlaceholder = "Sent an attachment"

// StagedFile is a file picked locally and not uploaded yet.
type StagedFile struct {
	Name        string `validate:"required"`
	ContentType string
	Data        []byte
}

type SendRequest struct {
	SessionID        string       `validate:"required"`
	AuthorID         string       `validate:"required"`
	Text             string       `validate:"required_without=Files"`
	Files            []StagedFile `validate:"omitempty,dive"`
	ReplyToMessageID *string
}

type AttachmentLinker struct {
	persist     Persistence
	blobs       BlobStorage
	validate    *validator.Validate
	placeholder string
}

func NewAttachmentLinker(persist Persistence, blobs BlobStorage, placeholder string) *AttachmentLinker {
	if len(strings.TrimSpace(placeholder)) == 0 {
		placeholder = DefaultAttachmentPlaceholder
	}
	return &AttachmentLinker{
		persist:     persist,
		blobs:       blobs,
		validate:    validator.New(),
		placeholder: placeholder,
	}
}

func (v *AttachmentLinker) normalize(req SendRequest) (SendRequest, error) {
	// Text is stored as written, blank text counts as none
	if len(strings.TrimSpace(req.Text)) == 0 {
		req.Text = ""
	}
	if len(req.Files) == 0 {
		req.Files = nil
	}
	if req.ReplyToMessageID != nil && len(strings.TrimSpace(*req.ReplyToMessageID)) == 0 {
		req.ReplyToMessageID = nil
	}
	if err := v.validate.Struct(req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidSendRequest, err)
	}
	return req, nil
}

// checkReply refuses reply targets that are gone or live in another session.
func (v *AttachmentLinker) checkReply(ctx context.Context, req SendRequest) error {
	if req.ReplyToMessageID == nil {
		return nil
	}
	parent, err := v.persist.GetMessage(ctx, *req.ReplyToMessageID)
	if errors.Is(err, models.ErrMessageNotFound) {
		return fmt.Errorf("%w: reply target %s does not exist", ErrInvalidSendRequest, *req.ReplyToMessageID)
	} else if err != nil {
		return fmt.Errorf("unable to check reply target: %w", err)
	}
	if parent.SessionID != req.SessionID {
		return fmt.Errorf("%w: reply target %s belongs to another session", ErrInvalidSendRequest, parent.ID)
	}
	return nil
}

// Send persists the message row first and then one attachment row per file.
// Attachment failures do not roll the message back, they come back as a
// *PartialAttachmentFailure together with the created message. The insert is
// announced to subscribers only after every attachment was tried.
func (v *AttachmentLinker) Send(ctx context.Context, req SendRequest) (*models.Message, error) {
	req, err := v.normalize(req)
	if err != nil {
		return nil, err
	}
	if err := v.checkReply(ctx, req); err != nil {
		return nil, err
	}

	message := models.Message{
		SessionID:        req.SessionID,
		AuthorID:         req.AuthorID,
		Content:          lo.Ternary(len(req.Text) > 0, req.Text, v.placeholder),
		ReplyToMessageID: req.ReplyToMessageID,
	}
	if err := v.persist.CreateMessage(ctx, &message); err != nil {
		return nil, fmt.Errorf("unable to create message: %w", err)
	}

	var failed []AttachmentFailure
	for _, file := range req.Files {
		attachment, err := v.link(ctx, message, file)
		if err != nil {
			failed = append(failed, AttachmentFailure{FileName: file.Name, Err: err})
			continue
		}
		message.Attachments = append(message.Attachments, attachment)
	}

	v.persist.AnnounceMessage(context.WithoutCancel(ctx), message)

	if len(failed) > 0 {
		log.Warn().
			Str("message", message.ID).
			Int("failed", len(failed)).
			Int("total", len(req.Files)).
			Msg("Message was sent with part of its attachments...")
		return &message, &PartialAttachmentFailure{MessageID: message.ID, Failed: failed}
	}

	return &message, nil
}

func (v *AttachmentLinker) link(ctx context.Context, message models.Message, file StagedFile) (models.Attachment, error) {
	fileType := strings.TrimSpace(file.ContentType)
	if len(fileType) == 0 {
		fileType = mimetype.Detect(file.Data).String()
	}

	if v.blobs == nil {
		return models.Attachment{}, fmt.Errorf("no blob storage configured")
	}
	url, err := v.blobs.Upload(ctx, file.Name, fileType, bytes.NewReader(file.Data))
	if err != nil {
		return models.Attachment{}, fmt.Errorf("unable to upload file: %w", err)
	}

	attachment := models.Attachment{
		MessageID:  message.ID,
		FileURL:    url,
		FileName:   file.Name,
		FileType:   fileType,
		IsImage:    models.IsImageType(fileType),
		UploadedBy: message.AuthorID,
	}
	if err := v.persist.CreateAttachment(ctx, &attachment); err != nil {
		return attachment, fmt.Errorf("unable to create attachment: %w", err)
	}

	return attachment, nil
}
