package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// FsStorage keeps uploaded files in a local directory served under PublicURL.
type FsStorage struct {
	Root      string
	PublicURL string
}

func NewFsStorage() *FsStorage {
	return &FsStorage{
		Root:      viper.GetString("blob.root"),
		PublicURL: viper.GetString("blob.public_url"),
	}
}

func (v *FsStorage) Upload(ctx context.Context, name string, contentType string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(v.Root, 0o755); err != nil {
		return "", fmt.Errorf("unable to prepare blob root: %w", err)
	}

	key := uuid.NewString() + extension(name, contentType)
	dst, err := os.Create(filepath.Join(v.Root, key))
	if err != nil {
		return "", fmt.Errorf("unable to create blob %s: %w", name, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, data); err != nil {
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("unable to write blob %s: %w", name, err)
	}

	return strings.TrimSuffix(v.PublicURL, "/") + "/" + key, nil
}

func extension(name string, contentType string) string {
	if ext := filepath.Ext(name); len(ext) > 0 {
		return strings.ToLower(ext)
	}
	if mime := mimetype.Lookup(contentType); mime != nil {
		return mime.Extension()
	}
	return ""
}
