package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSendRequest = errors.New("invalid send request")
	ErrTransportDegraded  = errors.New("realtime transport degraded")
	ErrSessionNotOpen     = errors.New("conversation session is not open")
)

type AttachmentFailure struct {
	FileName string
	Err      error
}

// PartialAttachmentFailure means the message row was persisted but some
// of its attachments were not. The message is kept.
type PartialAttachmentFailure struct {
	MessageID string
	Failed    []AttachmentFailure
}

func (v *PartialAttachmentFailure) Error() string {
	names := make([]string, 0, len(v.Failed))
	for _, item := range v.Failed {
		names = append(names, fmt.Sprintf("%s (%v)", item.FileName, item.Err))
	}
	return fmt.Sprintf("message %s sent with %d failed attachment(s): %s", v.MessageID, len(v.Failed), strings.Join(names, ", "))
}

func (v *PartialAttachmentFailure) Unwrap() []error {
	out := make([]error, 0, len(v.Failed))
	for _, item := range v.Failed {
		out = append(out, item.Err)
	}
	return out
}
