package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileKind tells which document table a file belongs to.
type FileKind string

const (
	FileKindFiscal    FileKind = "FISCAL"
	FileKindNonFiscal FileKind = "NON_FISCAL"
)

// FileVersion separates the locally rendered artifact from the provider's official one.
type FileVersion string

const (
	FileVersionLocal    FileVersion = "LOCAL"
	FileVersionOfficial FileVersion = "OFFICIAL"
)

// ParseFileVersion normalizes raw input. The second value is false for unknown versions.
func ParseFileVersion(s string) (FileVersion, bool) {
	v := FileVersion(strings.ToUpper(strings.TrimSpace(s)))
	return v, v == FileVersionLocal || v == FileVersionOfficial
}

const (
	ContentTypePDF = "application/pdf"
	ContentTypeXML = "application/xml"
)

// DocumentFile is the metadata row of an archived artifact.
// OFFICIAL files point at the LOCAL file they supersede through PreviousFileID.
type DocumentFile struct {
	ID             string      `json:"id"`
	DocumentID     string      `json:"document_id"`
	Kind           FileKind    `json:"kind"`
	Version        FileVersion `json:"version"`
	ContentType    string      `json:"content_type"`
	StorageKey     string      `json:"storage_key"`
	Checksum       string      `json:"checksum"`
	PreviousFileID *string     `json:"previous_file_id,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

func NewDocumentFile(documentID string, kind FileKind, version FileVersion, contentType string, now time.Time) *DocumentFile {
	return &DocumentFile{
		ID:          uuid.NewString(),
		DocumentID:  documentID,
		Kind:        kind,
		Version:     version,
		ContentType: contentType,
		CreatedAt:   now.UTC(),
	}
}

// IsPDF reports whether the file holds a PDF rendition.
func (f *DocumentFile) IsPDF() bool {
	return strings.Contains(strings.ToLower(f.ContentType), "pdf")
}

func (f *DocumentFile) IsXML() bool {
	return strings.Contains(strings.ToLower(f.ContentType), "xml")
}

// LatestFile returns the most recently created file of version, or nil.
func LatestFile(files []DocumentFile, version FileVersion) *DocumentFile {
	var latest *DocumentFile
	for i := range files {
		f := &files[i]
		if f.Version != version {
			continue
		}
		if latest == nil || !f.CreatedAt.Before(latest.CreatedAt) {
			latest = f
		}
	}
	return latest
}
