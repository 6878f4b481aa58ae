package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Ign14/PYMERP-sub000/internal/events"
	"github.com/Ign14/PYMERP-sub000/internal/idempotency"
	"github.com/Ign14/PYMERP-sub000/internal/logging"
	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/provider"
	"github.com/Ign14/PYMERP-sub000/internal/render"
	"github.com/Ign14/PYMERP-sub000/internal/repository/memory"
	"github.com/Ign14/PYMERP-sub000/internal/storage"
)

const (
	tenantA = "tenant-a"
	tenantB = "tenant-b"
)

var fixedNow = time.Date(2026, 3, 10, 15, 4, 5, 0, time.UTC)

type fakeGateway struct {
	mu    sync.Mutex
	calls []provider.IssueRequest
	issue func(ctx context.Context, req provider.IssueRequest) (*provider.IssueResult, error)
}

func (g *fakeGateway) Issue(ctx context.Context, req provider.IssueRequest) (*provider.IssueResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	issue := g.issue
	g.mu.Unlock()
	if issue != nil {
		return issue(ctx, req)
	}
	return &provider.IssueResult{TrackID: "T-1", Number: "F-100"}, nil
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *fakeGateway) LastCall() provider.IssueRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[len(g.calls)-1]
}

type fakeDownloader struct {
	mu    sync.Mutex
	files map[string]*provider.Download
	calls int
}

func (d *fakeDownloader) Download(_ context.Context, url string) (*provider.Download, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	dl, ok := d.files[url]
	if !ok {
		return nil, errors.New("unexpected status 404")
	}
	return dl, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	accepted []events.DocumentAccepted
	rejected []events.DocumentRejected
	err      error
}

func (p *recordingPublisher) PublishAccepted(_ context.Context, ev events.DocumentAccepted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accepted = append(p.accepted, ev)
	return p.err
}

func (p *recordingPublisher) PublishRejected(_ context.Context, ev events.DocumentRejected) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejected = append(p.rejected, ev)
	return p.err
}

type failingRenderer struct{}

func (failingRenderer) RenderFiscal(context.Context, *model.FiscalDocument, *model.Sale) (*render.Rendered, error) {
	return nil, errors.New("template missing")
}

func (failingRenderer) RenderNonFiscal(context.Context, *model.NonFiscalDocument, *model.Sale) (*render.Rendered, error) {
	return nil, errors.New("template missing")
}

type harness struct {
	store      *memory.Store
	blobs      *storage.MemoryStorage
	keys       *idempotency.MemoryStore
	gateway    *fakeGateway
	downloader *fakeDownloader
	publisher  *recordingPublisher
	deps       Dependencies
	opts       Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	for _, sale := range []model.Sale{
		{ID: "sale-1", TenantID: tenantA, CustomerName: "Ferreteria Sur", Net: decimal.NewFromInt(1000), Tax: decimal.NewFromInt(190), Total: decimal.NewFromInt(1190)},
		{ID: "sale-2", TenantID: tenantA, CustomerName: "Panaderia Norte", Net: decimal.NewFromInt(500), Tax: decimal.NewFromInt(95), Total: decimal.NewFromInt(595)},
		{ID: "sale-b", TenantID: tenantB, CustomerName: "Otra Empresa", Net: decimal.NewFromInt(10), Tax: decimal.Zero, Total: decimal.NewFromInt(10)},
	} {
		store.PutSale(sale)
	}

	h := &harness{
		store:      store,
		blobs:      storage.NewMemory(),
		keys:       idempotency.NewMemoryStore(idempotency.Options{PollInterval: 5 * time.Millisecond}),
		gateway:    &fakeGateway{},
		downloader: &fakeDownloader{files: map[string]*provider.Download{}},
		publisher:  &recordingPublisher{},
		opts:       Options{AwaitTimeout: 2 * time.Second, ProviderTimeout: time.Second},
	}
	h.deps = Dependencies{
		Fiscal:       store.Fiscal(),
		NonFiscal:    store.NonFiscal(),
		Files:        store.Files(),
		Queue:        store.Queue(),
		Sales:        store.Sales(),
		Keys:         h.keys,
		FileStore:    storage.NewFileStore(h.blobs),
		Renderer:     render.NewPDFRenderer("PYMERP"),
		Gateway:      h.gateway,
		Downloader:   h.downloader,
		Publisher:    h.publisher,
		Logger:       logging.Discard(),
		ProviderName: "acme",
		Now:          func() time.Time { return fixedNow },
	}
	return h
}

func (h *harness) service() BillingService {
	return NewBillingService(h.deps, h.opts)
}

func (h *harness) reconciler() WebhookReconciler {
	return NewWebhookReconciler(h.deps)
}

func (h *harness) files(t *testing.T, documentID string) []model.DocumentFile {
	t.Helper()
	files, err := h.deps.Files.ListByDocument(context.Background(), documentID)
	if err != nil {
		t.Fatalf("list files: %v", err)
	}
	return files
}

func invoice(key string) IssueFiscalRequest {
	return IssueFiscalRequest{
		IdempotencyKey: key,
		SaleID:         "sale-1",
		DocumentType:   "factura",
	}
}

func filesOf(files []model.DocumentFile, version model.FileVersion) []model.DocumentFile {
	var out []model.DocumentFile
	for _, f := range files {
		if f.Version == version {
			out = append(out, f)
		}
	}
	return out
}
