package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type Attachment struct {
	ID         string         `json:"id" gorm:"primaryKey;size:36"`
	MessageID  string         `json:"message_id" gorm:"size:36;not null;index"`
	FileURL    string         `json:"file_url"`
	FileName   string         `json:"file_name"`
	FileType   string         `json:"file_type"`
	IsImage    bool           `json:"is_image"`
	UploadedBy string         `json:"uploaded_by" gorm:"size:64"`
	CreatedAt  time.Time      `json:"created_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

func IsImageType(fileType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(fileType)), "image/")
}
