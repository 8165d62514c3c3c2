package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Префиксы ключей в бакете.
const (
	ProofPrefix = "achievement-proofs"
	PhotoPrefix = "event-photos"
)

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// FileUploader is the object store: Upload returns the storage key that gets persisted on the record.
type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)

	Delete(ctx context.Context, key string) error

	GetPublicURL(key string) string
}

// ObjectKey builds "<prefix>/<owner>/<random uuid><ext>".
func ObjectKey(prefix string, owner uuid.UUID, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join(prefix, owner.String(), uuid.NewString()+strings.ToLower(ext))
}

// PublicURL joins a key onto a base URL whose path ends with "/".
func PublicURL(base *url.URL, key string) string {
	if base == nil || key == "" {
		return ""
	}
	ref, err := url.Parse(strings.TrimPrefix(key, "/"))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

var allowedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".pdf": true,
}

// ExtensionFor returns a file extension for an upload, preferring the original file name.
func ExtensionFor(filename, contentType string) (string, error) {
	if ext := strings.ToLower(path.Ext(filename)); allowedExtensions[ext] {
		return ext, nil
	}
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	case "application/pdf":
		return ".pdf", nil
	default:
		return "", fmt.Errorf("could not determine file extension from content type: '%s'", contentType)
	}
}
