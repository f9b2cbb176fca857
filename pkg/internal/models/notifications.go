package models

import (
	"fmt"
	"strings"
)

const (
	NotificationOperationInsert = "insert"
	NotificationOperationDelete = "delete"
)

// RawNotification is what a transport hands over, the payload is a
// partial row and carries whatever columns the publisher decided to include.
type RawNotification struct {
	Operation string         `json:"operation"`
	RowID     string         `json:"row_id"`
	SessionID string         `json:"session_id"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type NotificationKind = uint8

const (
	NotificationInsert = NotificationKind(iota + 1)
	NotificationDelete
)

// Notification is a validated RawNotification.
// Row is only set for inserts and may be partial.
type Notification struct {
	Kind      NotificationKind
	ID        string
	SessionID string
	Row       *Message
}

func ParseNotification(raw RawNotification) (Notification, error) {
	var out Notification

	var row Message
	if len(raw.Payload) > 0 {
		FitStruct(raw.Payload, &row)
	}

	out.ID = strings.TrimSpace(raw.RowID)
	if len(out.ID) == 0 {
		out.ID = row.ID
	}
	if len(out.ID) == 0 {
		return out, fmt.Errorf("notification has no row id")
	}

	out.SessionID = strings.TrimSpace(raw.SessionID)
	if len(out.SessionID) == 0 {
		out.SessionID = row.SessionID
	}
	if len(out.SessionID) == 0 {
		return out, fmt.Errorf("notification %s has no session id", out.ID)
	}

	switch strings.ToLower(raw.Operation) {
	case NotificationOperationInsert:
		out.Kind = NotificationInsert
		row.ID = out.ID
		row.SessionID = out.SessionID
		out.Row = &row
	case NotificationOperationDelete:
		out.Kind = NotificationDelete
	default:
		return out, fmt.Errorf("unknown notification operation %q", raw.Operation)
	}

	return out, nil
}

func SessionTopic(prefix string, sessionID string) string {
	return fmt.Sprintf("%ssession:%s", prefix, sessionID)
}
