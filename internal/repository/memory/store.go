// Package memory provides in-process repositories sharing one lock, so the
// multi-row operations of the queue repository stay atomic like their SQL counterparts.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/repository"
)

type Store struct {
	mu        sync.Mutex
	fiscal    map[string]model.FiscalDocument
	nonFiscal map[string]model.NonFiscalDocument
	files     []model.DocumentFile
	queue     map[string]model.ContingencyQueueItem
	sales     map[string]model.Sale
	now       func() time.Time
}

func NewStore() *Store {
	return &Store{
		fiscal:    make(map[string]model.FiscalDocument),
		nonFiscal: make(map[string]model.NonFiscalDocument),
		queue:     make(map[string]model.ContingencyQueueItem),
		sales:     make(map[string]model.Sale),
		now:       time.Now,
	}
}

func (s *Store) Fiscal() repository.FiscalDocumentRepository       { return fiscalRepo{s} }
func (s *Store) NonFiscal() repository.NonFiscalDocumentRepository { return nonFiscalRepo{s} }
func (s *Store) Files() repository.DocumentFileRepository          { return fileRepo{s} }
func (s *Store) Queue() repository.ContingencyQueueRepository      { return queueRepo{s} }
func (s *Store) Sales() repository.SaleRepository                  { return saleRepo{s} }

// PutSale seeds a sale. Sales are owned by another subsystem.
func (s *Store) PutSale(sale model.Sale) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales[sale.ID] = sale
}

// QueueItems returns a snapshot of every queue item, including dead-lettered ones.
func (s *Store) QueueItems() []model.ContingencyQueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ContingencyQueueItem, 0, len(s.queue))
	for _, it := range s.queue {
		out = append(out, cloneItem(it))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type fiscalRepo struct{ s *Store }

func (r fiscalRepo) Create(_ context.Context, doc *model.FiscalDocument, numberPrefix string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	last := ""
	for _, d := range r.s.fiscal {
		if d.TenantID != doc.TenantID {
			continue
		}
		if d.IdempotencyKey == doc.IdempotencyKey {
			return repository.ErrDuplicateKey
		}
		if strings.HasPrefix(d.ProvisionalNumber, numberPrefix) && numberAfter(d.ProvisionalNumber, last) {
			last = d.ProvisionalNumber
		}
	}
	doc.ProvisionalNumber = model.NextNumber(numberPrefix, last)
	r.s.fiscal[doc.ID] = *doc
	return nil
}

func (r fiscalRepo) FindByID(_ context.Context, id string) (*model.FiscalDocument, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.fiscal[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (r fiscalRepo) FindByIdempotencyKey(_ context.Context, tenantID, key string) (*model.FiscalDocument, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.s.fiscal {
		if d.TenantID == tenantID && d.IdempotencyKey == key {
			return &d, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r fiscalRepo) Update(_ context.Context, id string, mutate repository.FiscalMutation) (*model.FiscalDocument, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.updateFiscalLocked(id, mutate)
}

func (r fiscalRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.fiscal, id)
	return nil
}

// updateFiscalLocked mutates a copy and stores it only when mutate succeeds.
func (s *Store) updateFiscalLocked(id string, mutate repository.FiscalMutation) (*model.FiscalDocument, error) {
	d, ok := s.fiscal[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if d.LastSyncAt != nil {
		t := *d.LastSyncAt
		d.LastSyncAt = &t
	}
	if err := mutate(&d); err != nil {
		return nil, err
	}
	d.UpdatedAt = s.now().UTC()
	s.fiscal[id] = d
	out := d
	return &out, nil
}

type nonFiscalRepo struct{ s *Store }

func (r nonFiscalRepo) Create(_ context.Context, doc *model.NonFiscalDocument, numberPrefix string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	last := ""
	for _, d := range r.s.nonFiscal {
		if d.TenantID == doc.TenantID && strings.HasPrefix(d.Number, numberPrefix) && numberAfter(d.Number, last) {
			last = d.Number
		}
	}
	doc.Number = model.NextNumber(numberPrefix, last)
	r.s.nonFiscal[doc.ID] = *doc
	return nil
}

func (r nonFiscalRepo) FindByID(_ context.Context, id string) (*model.NonFiscalDocument, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.nonFiscal[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (r nonFiscalRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.nonFiscal, id)
	return nil
}

type fileRepo struct{ s *Store }

func (r fileRepo) Create(_ context.Context, f *model.DocumentFile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.files {
		if existing.StorageKey == f.StorageKey {
			return repository.ErrDuplicateKey
		}
		if f.Version == model.FileVersionOfficial && existing.Version == f.Version &&
			existing.DocumentID == f.DocumentID && existing.ContentType == f.ContentType && existing.Checksum == f.Checksum {
			return repository.ErrDuplicateKey
		}
	}
	r.s.files = append(r.s.files, cloneFile(*f))
	return nil
}

func (r fileRepo) ListByDocument(_ context.Context, documentID string) ([]model.DocumentFile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.DocumentFile, 0)
	for _, f := range r.s.files {
		if f.DocumentID == documentID {
			out = append(out, cloneFile(f))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type queueRepo struct{ s *Store }

func (r queueRepo) Enqueue(_ context.Context, item *model.ContingencyQueueItem, mutate repository.FiscalMutation) (*model.FiscalDocument, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, it := range r.s.queue {
		if it.DocumentID == item.DocumentID {
			return nil, repository.ErrDuplicateKey
		}
	}
	doc, err := r.s.updateFiscalLocked(item.DocumentID, mutate)
	if err != nil {
		return nil, err
	}
	r.s.queue[item.ID] = cloneItem(*item)
	return doc, nil
}

func (r queueRepo) Claim(_ context.Context, q repository.ClaimQuery) ([]model.ContingencyQueueItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ready := make([]model.ContingencyQueueItem, 0)
	for _, it := range r.s.queue {
		switch {
		case it.Status == model.QueueOfflinePending && (it.NextAttemptAt == nil || !it.NextAttemptAt.After(q.Now)):
			ready = append(ready, it)
		case it.Status == model.QueueSyncing && it.LockedAt != nil && !it.LockedAt.After(q.StaleBefore):
			ready = append(ready, it)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].CreatedAt.Before(ready[j].CreatedAt) })
	if q.Limit > 0 && len(ready) > q.Limit {
		ready = ready[:q.Limit]
	}

	lockedAt := q.Now.UTC()
	out := make([]model.ContingencyQueueItem, 0, len(ready))
	for _, it := range ready {
		it.Status = model.QueueSyncing
		it.LockedAt = &lockedAt
		it.LockedBy = q.WorkerID
		it.UpdatedAt = lockedAt
		r.s.queue[it.ID] = it
		out = append(out, cloneItem(it))
	}
	return out, nil
}

func (r queueRepo) Complete(_ context.Context, item *model.ContingencyQueueItem, mutate repository.FiscalMutation) (*model.FiscalDocument, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	doc, err := r.s.updateFiscalLocked(item.DocumentID, mutate)
	if err != nil {
		return nil, err
	}
	delete(r.s.queue, item.ID)
	return doc, nil
}

func (r queueRepo) RecordFailure(_ context.Context, item *model.ContingencyQueueItem, mutate repository.FiscalMutation) (*model.FiscalDocument, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.queue[item.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	doc, err := r.s.updateFiscalLocked(item.DocumentID, mutate)
	if err != nil {
		return nil, err
	}
	stored.Status = item.Status
	stored.SyncAttempts = item.SyncAttempts
	stored.LastError = item.LastError
	stored.LastSyncAt = item.LastSyncAt
	stored.NextAttemptAt = item.NextAttemptAt
	stored.LockedAt = nil
	stored.LockedBy = ""
	stored.UpdatedAt = r.s.now().UTC()
	r.s.queue[item.ID] = cloneItem(stored)

	item.LockedAt = nil
	item.LockedBy = ""
	return doc, nil
}

func (r queueRepo) FindByDocumentID(_ context.Context, documentID string) (*model.ContingencyQueueItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, it := range r.s.queue {
		if it.DocumentID == documentID {
			out := cloneItem(it)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r queueRepo) CountByStatus(_ context.Context, status model.QueueStatus) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, it := range r.s.queue {
		if it.Status == status {
			n++
		}
	}
	return n, nil
}

type saleRepo struct{ s *Store }

func (r saleRepo) FindByID(_ context.Context, tenantID, saleID string) (*model.Sale, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sale, ok := r.s.sales[saleID]
	if !ok || sale.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return &sale, nil
}

// numberAfter compares sequence numbers sharing a prefix, longer meaning larger.
func numberAfter(candidate, current string) bool {
	if len(candidate) != len(current) {
		return len(candidate) > len(current)
	}
	return candidate > current
}

func cloneFile(f model.DocumentFile) model.DocumentFile {
	if f.PreviousFileID != nil {
		id := *f.PreviousFileID
		f.PreviousFileID = &id
	}
	return f
}

func cloneItem(it model.ContingencyQueueItem) model.ContingencyQueueItem {
	it.ProviderPayload = append([]byte(nil), it.ProviderPayload...)
	for _, p := range []**time.Time{&it.LastSyncAt, &it.NextAttemptAt, &it.LockedAt} {
		if *p != nil {
			t := **p
			*p = &t
		}
	}
	return it
}
