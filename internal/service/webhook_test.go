package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/provider"
)

func issueSent(t *testing.T, h *harness, key string) *model.DocumentView {
	t.Helper()
	view, err := h.service().IssueFiscal(context.Background(), tenantA, invoice(key))
	require.NoError(t, err)
	require.Equal(t, string(model.FiscalSent), view.Status)
	return view
}

func withOfficialLinks(h *harness) *WebhookLinks {
	h.downloader.files["https://provider.test/doc.pdf"] = &provider.Download{Content: []byte("%PDF-official"), ContentType: "application/pdf"}
	h.downloader.files["https://provider.test/doc.xml"] = &provider.Download{Content: []byte("<DTE/>"), ContentType: "application/xml"}
	return &WebhookLinks{PDF: "https://provider.test/doc.pdf", XML: "https://provider.test/doc.xml"}
}

func TestHandleWebhook_AcceptedAttachesOfficialFiles(t *testing.T) {
	h := newHarness(t)
	doc := issueSent(t, h, "inv-1")
	ctx := context.Background()

	res, err := h.reconciler().HandleWebhook(ctx, WebhookRequest{
		DocumentID: doc.ID,
		Status:     "accepted",
		Provider:   "sii-gateway",
		TrackID:    "T-77",
		ExternalID: "EXT-9",
		Links:      withOfficialLinks(h),
	})
	require.NoError(t, err)
	assert.Equal(t, model.FiscalAccepted, res.Status)
	assert.Equal(t, "EXT-9", res.Number)
	assert.False(t, res.HasFileFailures())
	require.Len(t, res.Files, 2)

	stored, err := h.deps.Fiscal.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FiscalAccepted, stored.Status)
	assert.Equal(t, "EXT-9", stored.Number)
	assert.Equal(t, "CTG-2026-00001", stored.ProvisionalNumber)
	assert.Equal(t, "sii-gateway", stored.Provider)
	assert.Equal(t, "T-77", stored.TrackID)
	assert.Zero(t, stored.SyncAttempts)
	assert.NotNil(t, stored.LastSyncAt)
	assert.Empty(t, stored.ErrorDetail)

	files := h.files(t, doc.ID)
	local := filesOf(files, model.FileVersionLocal)
	official := filesOf(files, model.FileVersionOfficial)
	require.Len(t, local, 1)
	require.Len(t, official, 2)
	for _, f := range official {
		require.NotNil(t, f.PreviousFileID)
		assert.Equal(t, local[0].ID, *f.PreviousFileID)
	}

	require.Len(t, h.publisher.accepted, 1)
	ev := h.publisher.accepted[0]
	assert.Equal(t, doc.ID, ev.DocumentID)
	assert.Equal(t, tenantA, ev.TenantID)
	assert.Equal(t, "EXT-9", ev.ExternalID)
	assert.Equal(t, "EXT-9", ev.Number)
	assert.Equal(t, "T-77", ev.TrackID)

	view, err := h.service().GetDocument(ctx, tenantA, doc.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, view.Links.OfficialPDF)
	assert.NotEmpty(t, view.Links.OfficialXML)
}

func TestHandleWebhook_NumberTakesPrecedence(t *testing.T) {
	h := newHarness(t)
	doc := issueSent(t, h, "inv-1")

	res, err := h.reconciler().HandleWebhook(context.Background(), WebhookRequest{
		DocumentID: doc.ID,
		Status:     "ACCEPTED",
		Number:     "F-555",
		ExternalID: "EXT-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "F-555", res.Number)
	assert.Empty(t, res.Files)
}

func TestHandleWebhook_AcceptedTwiceIsIdempotent(t *testing.T) {
	h := newHarness(t)
	doc := issueSent(t, h, "inv-1")
	rec := h.reconciler()
	req := WebhookRequest{DocumentID: doc.ID, Status: "ACCEPTED", Number: "F-9", Links: withOfficialLinks(h)}

	_, err := rec.HandleWebhook(context.Background(), req)
	require.NoError(t, err)
	second, err := rec.HandleWebhook(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, model.FiscalAccepted, second.Status)
	assert.Equal(t, "F-9", second.Number)
	for _, f := range second.Files {
		assert.True(t, f.Duplicate)
	}

	files := h.files(t, doc.ID)
	local := filesOf(files, model.FileVersionLocal)
	official := filesOf(files, model.FileVersionOfficial)
	require.Len(t, official, 2)
	for _, f := range official {
		assert.Equal(t, local[0].ID, *f.PreviousFileID)
	}
	assert.Len(t, h.publisher.accepted, 2)
}

func TestHandleWebhook_RejectedCapturesAllErrors(t *testing.T) {
	h := newHarness(t)
	doc := issueSent(t, h, "inv-1")

	res, err := h.reconciler().HandleWebhook(context.Background(), WebhookRequest{
		DocumentID: doc.ID,
		Status:     "REJECTED",
		Errors:     []string{"A", "B"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.FiscalRejected, res.Status)

	stored, err := h.deps.Fiscal.FindByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FiscalRejected, stored.Status)
	assert.Equal(t, "A; B", stored.ErrorDetail)

	require.Len(t, h.publisher.rejected, 1)
	assert.Equal(t, []string{"A", "B"}, h.publisher.rejected[0].Errors)
}

func TestHandleWebhook_RejectedWithoutErrorsClearsDetail(t *testing.T) {
	h := newHarness(t)
	req := invoice("inv-1")
	req.ForceOffline = true
	view, err := h.service().IssueFiscal(context.Background(), tenantA, req)
	require.NoError(t, err)
	_, err = h.deps.Fiscal.Update(context.Background(), view.ID, func(d *model.FiscalDocument) error {
		d.ErrorDetail = "connection reset"
		return nil
	})
	require.NoError(t, err)

	_, err = h.reconciler().HandleWebhook(context.Background(), WebhookRequest{DocumentID: view.ID, Status: "REJECTED"})
	require.NoError(t, err)

	stored, err := h.deps.Fiscal.FindByID(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FiscalRejected, stored.Status)
	assert.Empty(t, stored.ErrorDetail)
	assert.Equal(t, []string{}, h.publisher.rejected[0].Errors)
}

func TestHandleWebhook_FailedDocumentIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.gateway.issue = func(context.Context, provider.IssueRequest) (*provider.IssueResult, error) {
		return nil, errors.New("connection reset")
	}
	view, err := h.service().IssueFiscal(context.Background(), tenantA, invoice("inv-1"))
	require.Error(t, err)
	require.Equal(t, string(model.FiscalFailed), view.Status)

	for _, status := range []string{"ACCEPTED", "REJECTED"} {
		t.Run(status, func(t *testing.T) {
			_, err := h.reconciler().HandleWebhook(context.Background(), WebhookRequest{DocumentID: view.ID, Status: status, Number: "F-9"})
			var terr *model.TransitionError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, model.FiscalFailed, terr.From)
			assert.Equal(t, model.FiscalStatus(status), terr.To)
		})
	}

	stored, err := h.deps.Fiscal.FindByID(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FiscalFailed, stored.Status)
	assert.Empty(t, stored.Number)
	assert.Equal(t, "provider unavailable", stored.ErrorDetail)
	assert.Empty(t, h.publisher.accepted)
	assert.Empty(t, h.publisher.rejected)
}

func TestHandleWebhook_SettlesOfflineDocument(t *testing.T) {
	h := newHarness(t)
	req := invoice("inv-offline")
	req.ForceOffline = true
	view, err := h.service().IssueFiscal(context.Background(), tenantA, req)
	require.NoError(t, err)

	_, err = h.reconciler().HandleWebhook(context.Background(), WebhookRequest{DocumentID: view.ID, Status: "ACCEPTED", Number: "F-1"})
	require.NoError(t, err)

	stored, err := h.deps.Fiscal.FindByID(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FiscalAccepted, stored.Status)
	assert.False(t, stored.Offline)
}

func TestHandleWebhook_Errors(t *testing.T) {
	h := newHarness(t)
	doc := issueSent(t, h, "inv-1")
	rec := h.reconciler()
	ctx := context.Background()

	tests := []struct {
		name     string
		req      WebhookRequest
		wantCode string
		wantErr  error
	}{
		{name: "missing document", req: WebhookRequest{Status: "ACCEPTED"}, wantCode: "DOCUMENT_ID_REQUIRED", wantErr: ErrDocumentIDRequired},
		{name: "missing status", req: WebhookRequest{DocumentID: doc.ID}, wantCode: "STATUS_REQUIRED", wantErr: ErrStatusRequired},
		{name: "unsupported status", req: WebhookRequest{DocumentID: doc.ID, Status: "PROCESSING"}, wantCode: "UNSUPPORTED_STATUS", wantErr: ErrUnsupportedStatus},
		{name: "unknown document", req: WebhookRequest{DocumentID: "missing", Status: "ACCEPTED"}, wantErr: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rec.HandleWebhook(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantCode != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.wantCode, verr.Code)
			}
		})
	}

	stored, err := h.deps.Fiscal.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FiscalSent, stored.Status)
	assert.Empty(t, h.publisher.accepted)
}

func TestHandleWebhook_TransitionConflict(t *testing.T) {
	h := newHarness(t)
	doc := issueSent(t, h, "inv-1")
	rec := h.reconciler()

	_, err := rec.HandleWebhook(context.Background(), WebhookRequest{DocumentID: doc.ID, Status: "ACCEPTED", Number: "F-1"})
	require.NoError(t, err)

	_, err = rec.HandleWebhook(context.Background(), WebhookRequest{DocumentID: doc.ID, Status: "REJECTED", Errors: []string{"late"}})
	var terr *model.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, model.FiscalAccepted, terr.From)

	stored, err := h.deps.Fiscal.FindByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FiscalAccepted, stored.Status)
	assert.Equal(t, "F-1", stored.Number)
	assert.Empty(t, stored.ErrorDetail)
}

func TestHandleWebhook_PartialDownloadFailure(t *testing.T) {
	h := newHarness(t)
	doc := issueSent(t, h, "inv-1")
	h.downloader.files["https://provider.test/doc.pdf"] = &provider.Download{Content: []byte("%PDF-official")}

	res, err := h.reconciler().HandleWebhook(context.Background(), WebhookRequest{
		DocumentID: doc.ID,
		Status:     "ACCEPTED",
		Number:     "F-1",
		Links:      &WebhookLinks{PDF: "https://provider.test/doc.pdf", XML: "https://provider.test/missing.xml"},
	})
	require.NoError(t, err)
	assert.True(t, res.HasFileFailures())
	require.Len(t, res.Files, 2)
	assert.False(t, res.Files[0].Failed())
	assert.Equal(t, model.ContentTypePDF, res.Files[0].ContentType)
	assert.True(t, res.Files[1].Failed())
	assert.Equal(t, "https://provider.test/missing.xml", res.Files[1].Source)

	official := filesOf(h.files(t, doc.ID), model.FileVersionOfficial)
	require.Len(t, official, 1)
	assert.Equal(t, model.ContentTypePDF, official[0].ContentType)
	assert.Equal(t, model.FiscalAccepted, res.Status)
}

func TestHandleWebhook_PublisherFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	doc := issueSent(t, h, "inv-1")
	h.publisher.err = errors.New("pubsub down")

	res, err := h.reconciler().HandleWebhook(context.Background(), WebhookRequest{DocumentID: doc.ID, Status: "ACCEPTED", Number: "F-1"})
	require.NoError(t, err)
	assert.Equal(t, model.FiscalAccepted, res.Status)
}
