package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Ign14/PYMERP-sub000/internal/logging"
	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/provider"
	"github.com/Ign14/PYMERP-sub000/internal/render"
	"github.com/Ign14/PYMERP-sub000/internal/repository"
	"github.com/Ign14/PYMERP-sub000/internal/storage"
)

// storeLocal archives a rendered artifact as the LOCAL file of a document.
// The blob is removed again when the metadata row cannot be written.
func storeLocal(ctx context.Context, deps Dependencies, documentID string, kind model.FileKind, rendered *render.Rendered) (*model.DocumentFile, error) {
	f := model.NewDocumentFile(documentID, kind, model.FileVersionLocal, rendered.ContentType, deps.now())
	return saveFile(ctx, deps, f, rendered.Content)
}

func saveFile(ctx context.Context, deps Dependencies, f *model.DocumentFile, content []byte) (*model.DocumentFile, error) {
	stored, err := deps.FileStore.Save(ctx, storage.FileRef{
		DocumentID:  f.DocumentID,
		Kind:        f.Kind,
		Version:     f.Version,
		FileID:      f.ID,
		ContentType: f.ContentType,
	}, content)
	if err != nil {
		return nil, err
	}
	f.StorageKey = stored.Key
	f.Checksum = stored.Checksum

	if err := deps.Files.Create(ctx, f); err != nil {
		if delErr := deps.FileStore.Remove(ctx, stored.Key); delErr != nil {
			return nil, fmt.Errorf("db save failed: %w; rollback delete failed: %v", err, delErr)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}
	return f, nil
}

// FileOutcome reports what happened to one official artifact.
type FileOutcome struct {
	ContentType string `json:"contentType"`
	Source      string `json:"source,omitempty"`
	FileID      string `json:"fileId,omitempty"`
	Duplicate   bool   `json:"duplicate,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Failed reports whether the artifact could not be stored.
func (o FileOutcome) Failed() bool { return o.Error != "" }

// OfficialArchiver stores provider artifacts as OFFICIAL files. Identical bytes already
// archived for the same content type are not stored twice.
type OfficialArchiver struct {
	deps Dependencies
	log  *logrus.Entry
}

func NewOfficialArchiver(deps Dependencies) *OfficialArchiver {
	return &OfficialArchiver{deps: deps, log: deps.Logger.WithField("module", "official-archiver")}
}

// Attach archives content for documentID. The new file references the newest LOCAL file.
func (a *OfficialArchiver) Attach(ctx context.Context, documentID, contentType string, content []byte) (FileOutcome, error) {
	out := FileOutcome{ContentType: contentType}
	files, err := a.deps.Files.ListByDocument(ctx, documentID)
	if err != nil {
		return out, fmt.Errorf("list document files: %w", err)
	}

	checksum := storage.Checksum(content)
	if existing := matchOfficial(files, contentType, checksum); existing != nil {
		out.FileID = existing.ID
		out.Duplicate = true
		return out, nil
	}

	f := model.NewDocumentFile(documentID, model.FileKindFiscal, model.FileVersionOfficial, canonicalContentType(contentType), a.deps.now())
	if local := model.LatestFile(files, model.FileVersionLocal); local != nil {
		id := local.ID
		f.PreviousFileID = &id
	}
	if _, err := saveFile(ctx, a.deps, f, content); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			// A concurrent delivery archived the same bytes first.
			if winner := a.reloadOfficial(ctx, documentID, contentType, checksum); winner != nil {
				out.FileID = winner.ID
				out.Duplicate = true
				return out, nil
			}
		}
		return out, fmt.Errorf("store official artifact: %w", err)
	}
	out.FileID = f.ID
	return out, nil
}

func (a *OfficialArchiver) reloadOfficial(ctx context.Context, documentID, contentType, checksum string) *model.DocumentFile {
	files, err := a.deps.Files.ListByDocument(ctx, documentID)
	if err != nil {
		logging.LogError(a.deps.Logger, "official-archiver", "reloadOfficial", "list document files", map[string]any{"document_id": documentID}, err)
		return nil
	}
	return matchOfficial(files, contentType, checksum)
}

func matchOfficial(files []model.DocumentFile, contentType, checksum string) *model.DocumentFile {
	ext := storage.Extension(contentType)
	for i := range files {
		f := &files[i]
		if f.Version == model.FileVersionOfficial && storage.Extension(f.ContentType) == ext && f.Checksum == checksum {
			return f
		}
	}
	return nil
}

// canonicalContentType stores PDF and XML artifacts under one content type each,
// so the same bytes delivered as text/xml and application/xml collide.
func canonicalContentType(contentType string) string {
	switch storage.Extension(contentType) {
	case "pdf":
		return model.ContentTypePDF
	case "xml":
		return model.ContentTypeXML
	default:
		return contentType
	}
}

// Fetch downloads url and archives it under contentType. Failures are reported in the outcome.
func (a *OfficialArchiver) Fetch(ctx context.Context, documentID, contentType, url string) FileOutcome {
	dl, err := a.deps.Downloader.Download(ctx, url)
	if err != nil {
		logging.LogError(a.deps.Logger, "official-archiver", "Fetch", "download official artifact", map[string]any{"document_id": documentID, "url": url}, err)
		return FileOutcome{ContentType: contentType, Source: url, Error: "download failed"}
	}
	out, err := a.Attach(ctx, documentID, contentType, dl.Content)
	out.Source = url
	if err != nil {
		logging.LogError(a.deps.Logger, "official-archiver", "Fetch", "store official artifact", map[string]any{"document_id": documentID}, err)
		out.Error = "storage failed"
	}
	return out
}

// AttachIssued archives the artifacts returned with a provider acknowledgement,
// inline content first and download URLs otherwise. Failures are logged, never returned:
// the acknowledgement itself is already committed.
func (a *OfficialArchiver) AttachIssued(ctx context.Context, documentID string, officials []provider.OfficialDocument) []FileOutcome {
	outcomes := make([]FileOutcome, 0, len(officials))
	for _, o := range officials {
		contentType := o.ContentType
		if contentType == "" {
			contentType = model.ContentTypePDF
		}
		switch {
		case len(o.Content) > 0:
			out, err := a.Attach(ctx, documentID, contentType, o.Content)
			if err != nil {
				logging.LogError(a.deps.Logger, "official-archiver", "AttachIssued", "store inline artifact", map[string]any{"document_id": documentID}, err)
				out.Error = "storage failed"
			}
			outcomes = append(outcomes, out)
		case o.DownloadURL != "" && a.deps.Downloader != nil:
			outcomes = append(outcomes, a.Fetch(ctx, documentID, contentType, o.DownloadURL))
		}
	}
	for _, o := range outcomes {
		if !o.Failed() {
			a.log.WithFields(logrus.Fields{
				"document_id":  documentID,
				"file_id":      o.FileID,
				"content_type": o.ContentType,
				"duplicate":    o.Duplicate,
			}).Info("official artifact archived")
		}
	}
	return outcomes
}
