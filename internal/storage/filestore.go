package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/Ign14/PYMERP-sub000/internal/model"
)

// FileRef identifies one artifact of a document.
type FileRef struct {
	DocumentID  string
	Kind        model.FileKind
	Version     model.FileVersion
	FileID      string
	ContentType string
}

// StoredObject is the result of saving an artifact.
type StoredObject struct {
	Key      string
	Checksum string
	Size     int64
}

// FileStore archives rendered and official artifacts, returning a stable key and a SHA-256 checksum.
type FileStore struct {
	store Storage
}

func NewFileStore(store Storage) *FileStore {
	return &FileStore{store: store}
}

// ObjectKey lays artifacts out as billing/<kind>/<document>/<version>/<file>.<ext>.
// The file id keeps keys unique per (document, kind, version, sequence).
func ObjectKey(ref FileRef) string {
	return fmt.Sprintf("billing/%s/%s/%s/%s.%s",
		strings.ToLower(string(ref.Kind)),
		ref.DocumentID,
		strings.ToLower(string(ref.Version)),
		ref.FileID,
		Extension(ref.ContentType),
	)
}

// Extension maps a content type to the file extension used in keys and download names.
func Extension(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "pdf"):
		return "pdf"
	case strings.Contains(ct, "xml"):
		return "xml"
	case strings.Contains(ct, "html"):
		return "html"
	default:
		return "bin"
	}
}

// Checksum is the hex SHA-256 of content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func (f *FileStore) Save(ctx context.Context, ref FileRef, content []byte) (StoredObject, error) {
	if len(content) == 0 {
		return StoredObject{}, fmt.Errorf("empty artifact for document %s", ref.DocumentID)
	}
	key := ObjectKey(ref)
	checksum := Checksum(content)
	info, err := f.store.Put(ctx, key, bytes.NewReader(content), PutObjectOptions{
		Size:        int64(len(content)),
		ContentType: ref.ContentType,
		Metadata: map[string]string{
			"document-id": ref.DocumentID,
			"version":     string(ref.Version),
			"sha256":      checksum,
		},
	})
	if err != nil {
		return StoredObject{}, fmt.Errorf("put %s: %w", key, err)
	}
	return StoredObject{Key: key, Checksum: checksum, Size: info.Size}, nil
}

func (f *FileStore) Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	return f.store.Get(ctx, key)
}

func (f *FileStore) Remove(ctx context.Context, key string) error {
	return f.store.Delete(ctx, key)
}
