package model

import (
	"fmt"
	"time"
)

// DocumentLinks lists the storage keys of the current artifacts of a document
// together with the API paths that stream them.
type DocumentLinks struct {
	LocalPDF         string `json:"localPdf,omitempty"`
	OfficialPDF      string `json:"officialPdf,omitempty"`
	OfficialXML      string `json:"officialXml,omitempty"`
	LocalDownload    string `json:"localDownload,omitempty"`
	OfficialDownload string `json:"officialDownload,omitempty"`
}

// DocumentFileView is the API shape of a DocumentFile.
type DocumentFileView struct {
	ID             string      `json:"id"`
	Version        FileVersion `json:"version"`
	ContentType    string      `json:"contentType"`
	StorageKey     string      `json:"storageKey"`
	Checksum       string      `json:"checksum"`
	PreviousFileID *string     `json:"previousFileId,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// DocumentView is the unified API view of a fiscal or non-fiscal document.
// Category tags which of the variant fields are meaningful.
type DocumentView struct {
	Category          DocumentCategory   `json:"category"`
	ID                string             `json:"id"`
	TenantID          string             `json:"tenantId"`
	SaleID            string             `json:"saleId"`
	DocumentType      string             `json:"documentType"`
	Status            string             `json:"status"`
	TaxMode           TaxMode            `json:"taxMode,omitempty"`
	Number            string             `json:"number,omitempty"`
	ProvisionalNumber string             `json:"provisionalNumber,omitempty"`
	Provider          string             `json:"provider,omitempty"`
	TrackID           string             `json:"trackId,omitempty"`
	Offline           bool               `json:"offline"`
	ErrorDetail       string             `json:"errorDetail,omitempty"`
	SyncAttempts      int                `json:"syncAttempts,omitempty"`
	LastSyncAt        *time.Time         `json:"lastSyncAt,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
	Links             DocumentLinks      `json:"links"`
	Files             []DocumentFileView `json:"files"`
}

func NewFiscalView(doc *FiscalDocument, files []DocumentFile) *DocumentView {
	return &DocumentView{
		Category:          CategoryFiscal,
		ID:                doc.ID,
		TenantID:          doc.TenantID,
		SaleID:            doc.SaleID,
		DocumentType:      string(doc.DocumentType),
		Status:            string(doc.Status),
		TaxMode:           doc.TaxMode,
		Number:            doc.Number,
		ProvisionalNumber: doc.ProvisionalNumber,
		Provider:          doc.Provider,
		TrackID:           doc.TrackID,
		Offline:           doc.Offline,
		ErrorDetail:       doc.ErrorDetail,
		SyncAttempts:      doc.SyncAttempts,
		LastSyncAt:        doc.LastSyncAt,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
		Links:             BuildLinks(doc.ID, files),
		Files:             fileViews(files),
	}
}

func NewNonFiscalView(doc *NonFiscalDocument, files []DocumentFile) *DocumentView {
	return &DocumentView{
		Category:     CategoryNonFiscal,
		ID:           doc.ID,
		TenantID:     doc.TenantID,
		SaleID:       doc.SaleID,
		DocumentType: string(doc.DocumentType),
		Status:       string(doc.Status),
		Number:       doc.Number,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
		Links:        BuildLinks(doc.ID, files),
		Files:        fileViews(files),
	}
}

// DownloadPath is the API path streaming the given version of a document artifact.
func DownloadPath(documentID string, version FileVersion) string {
	return fmt.Sprintf("/billing/documents/%s/files/%s", documentID, version)
}

// BuildLinks derives the current LOCAL/OFFICIAL artifacts from a document's files.
// The newest file wins when several share a version and content type.
func BuildLinks(documentID string, files []DocumentFile) DocumentLinks {
	var links DocumentLinks
	var localPDF, officialPDF, officialXML *DocumentFile
	for i := range files {
		f := &files[i]
		switch {
		case f.Version == FileVersionLocal && f.IsPDF():
			localPDF = newest(localPDF, f)
		case f.Version == FileVersionOfficial && f.IsPDF():
			officialPDF = newest(officialPDF, f)
		case f.Version == FileVersionOfficial && f.IsXML():
			officialXML = newest(officialXML, f)
		}
	}
	if localPDF != nil {
		links.LocalPDF = localPDF.StorageKey
		links.LocalDownload = DownloadPath(documentID, FileVersionLocal)
	}
	if officialPDF != nil {
		links.OfficialPDF = officialPDF.StorageKey
	}
	if officialXML != nil {
		links.OfficialXML = officialXML.StorageKey
	}
	if officialPDF != nil || officialXML != nil {
		links.OfficialDownload = DownloadPath(documentID, FileVersionOfficial)
	}
	return links
}

func newest(cur, candidate *DocumentFile) *DocumentFile {
	if cur == nil || !candidate.CreatedAt.Before(cur.CreatedAt) {
		return candidate
	}
	return cur
}

func fileViews(files []DocumentFile) []DocumentFileView {
	out := make([]DocumentFileView, 0, len(files))
	for _, f := range files {
		out = append(out, DocumentFileView{
			ID:             f.ID,
			Version:        f.Version,
			ContentType:    f.ContentType,
			StorageKey:     f.StorageKey,
			Checksum:       f.Checksum,
			PreviousFileID: f.PreviousFileID,
			CreatedAt:      f.CreatedAt,
		})
	}
	return out
}
