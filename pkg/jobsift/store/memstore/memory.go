package memstore

import (
	"context"
	"crypto/rand"
	"io"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/jobsift/jobsift/pkg/jobsift/extract"
	"github.com/jobsift/jobsift/pkg/jobsift/reconcile"
	"github.com/jobsift/jobsift/pkg/jobsift/store"
)

// Store is an in-memory implementation of store.Store, used by tests
// and as a scratch backend.
type Store struct {
	mu       sync.RWMutex
	records  map[string]reconcile.Record // dedup key → record
	messages map[string]string           // message id → record id
	entropy  *ulid.MonotonicEntropy
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		records:  make(map[string]reconcile.Record),
		messages: make(map[string]string),
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// Upsert creates or mutates the record the extraction belongs to. The
// single store lock serializes writers; per-key granularity matters for
// the SQLite backend, not here.
func (s *Store) Upsert(ctx context.Context, ext extract.Extraction) (reconcile.Record, bool, error) {
	key, err := reconcile.DedupKey(ext)
	if err != nil {
		return reconcile.Record{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	owner, bound := s.messages[ext.MessageID]

	matchKey, found := s.resolveKey(key, ext)
	if found {
		rec := s.records[matchKey]
		reconcile.Apply(&rec, ext)
		// A message id belongs to exactly one record. If another record
		// already claimed it, keep the status update but not the
		// membership.
		if bound && owner != rec.ID {
			rec.MessageIDs = dropID(rec.MessageIDs, ext.MessageID)
		} else {
			s.messages[ext.MessageID] = rec.ID
		}
		s.records[matchKey] = copyRecord(rec)
		return rec, false, nil
	}

	rec, err := reconcile.NewRecord(ulid.MustNew(ulid.Now(), s.entropy).String(), ext)
	if err != nil {
		return reconcile.Record{}, false, err
	}
	if bound {
		rec.MessageIDs = nil
	} else {
		s.messages[ext.MessageID] = rec.ID
	}
	s.records[key] = copyRecord(rec)
	return rec, true, nil
}

func dropID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// resolveKey finds the stored key an extraction matches: exact dedup
// key, or the same company's most recent record when the extraction
// carries neither job id nor title.
func (s *Store) resolveKey(key string, ext extract.Extraction) (string, bool) {
	if _, ok := s.records[key]; ok {
		return key, true
	}
	if ext.JobID != "" || ext.Title != "" {
		return "", false
	}

	companyKey := reconcile.CompanyKey(ext)
	var (
		bestKey string
		found   bool
	)
	for k, rec := range s.records {
		if reconcile.CompanyKey(extract.Extraction{Company: rec.Company}) != companyKey {
			continue
		}
		if !found || rec.LastUpdated.After(s.records[bestKey].LastUpdated) {
			bestKey, found = k, true
		}
	}
	return bestKey, found
}

// HasMessage reports whether a message id already belongs to a record.
func (s *Store) HasMessage(ctx context.Context, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.messages[messageID]
	return ok, nil
}

// ListAll returns every record, most recently updated first.
func (s *Store) ListAll(ctx context.Context) ([]reconcile.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]reconcile.Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, copyRecord(rec))
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].LastUpdated.Equal(records[j].LastUpdated) {
			return records[i].LastUpdated.After(records[j].LastUpdated)
		}
		return records[i].ID > records[j].ID
	})
	return records, nil
}

// ExportCSV writes all records as a flat table with a header row.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer) error {
	records, err := s.ListAll(ctx)
	if err != nil {
		return err
	}
	return store.WriteCSV(w, records)
}

func copyRecord(rec reconcile.Record) reconcile.Record {
	out := rec
	out.MessageIDs = append([]string(nil), rec.MessageIDs...)
	return out
}
