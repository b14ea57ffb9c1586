package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/jobsift/jobsift/pkg/jobsift/extract"
	"github.com/jobsift/jobsift/pkg/jobsift/internalerr"
	"github.com/jobsift/jobsift/pkg/jobsift/reconcile"
	"github.com/jobsift/jobsift/pkg/jobsift/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db      *sql.DB
	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Open opens a SQLite database with WAL mode enabled and initializes
// the schema.
func Open(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{
		db:      db,
		locks:   make(map[string]*sync.Mutex),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS applications (
	id TEXT PRIMARY KEY,
	dedup_key TEXT UNIQUE NOT NULL,
	company_key TEXT NOT NULL,
	company TEXT NOT NULL,
	title TEXT,
	job_id TEXT,
	status TEXT NOT NULL,
	applied_at TEXT NOT NULL,
	last_updated TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_applications_company ON applications(company_key);

CREATE TABLE IF NOT EXISTS application_messages (
	message_id TEXT PRIMARY KEY,
	record_id TEXT NOT NULL,
	FOREIGN KEY(record_id) REFERENCES applications(id) ON DELETE CASCADE
);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// Upsert looks up by dedup key, creates or mutates per the
// reconciliation rules, and returns the resulting record. Writers on
// the same company serialize; a lost race inside the transaction is
// retried under the same lock.
func (s *sqliteStore) Upsert(ctx context.Context, ext extract.Extraction) (reconcile.Record, bool, error) {
	key, err := reconcile.DedupKey(ext)
	if err != nil {
		return reconcile.Record{}, false, err
	}
	companyKey := reconcile.CompanyKey(ext)

	lock := s.keyLock(companyKey)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 0; attempt < 3; attempt++ {
		rec, created, err := s.tryUpsert(ctx, key, companyKey, ext)
		if errors.Is(err, internalerr.ErrConflict) {
			continue
		}
		return rec, created, err
	}
	return reconcile.Record{}, false, internalerr.ErrConflict
}

func (s *sqliteStore) tryUpsert(ctx context.Context, key, companyKey string, ext extract.Extraction) (reconcile.Record, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return reconcile.Record{}, false, err
	}
	defer tx.Rollback()

	rec, found, err := s.findForUpdate(ctx, tx, key, companyKey, ext)
	if err != nil {
		return reconcile.Record{}, false, err
	}

	created := false
	if found {
		reconcile.Apply(&rec, ext)
		if err := updateRecord(ctx, tx, rec); err != nil {
			return reconcile.Record{}, false, err
		}
	} else {
		rec, err = reconcile.NewRecord(s.newID(), ext)
		if err != nil {
			return reconcile.Record{}, false, err
		}
		if err := insertRecord(ctx, tx, rec); err != nil {
			// Unique collision on dedup_key means a writer slipped in;
			// the caller retries under the key lock.
			return reconcile.Record{}, false, fmt.Errorf("%w: %v", internalerr.ErrConflict, err)
		}
		created = true
	}

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO application_messages (message_id, record_id) VALUES (?, ?)`,
		ext.MessageID, rec.ID)
	if err != nil {
		return reconcile.Record{}, false, err
	}
	// Ignored insert: the id already has an owner. When that owner is
	// another record, the membership must not appear on this one.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var owner string
		if err := tx.QueryRowContext(ctx,
			`SELECT record_id FROM application_messages WHERE message_id = ?`,
			ext.MessageID).Scan(&owner); err != nil {
			return reconcile.Record{}, false, err
		}
		if owner != rec.ID {
			rec.MessageIDs = dropID(rec.MessageIDs, ext.MessageID)
		}
	}

	if err := tx.Commit(); err != nil {
		return reconcile.Record{}, false, err
	}
	return rec, created, nil
}

// findForUpdate resolves the record an extraction belongs to: exact
// dedup key first; for extractions carrying neither job id nor title,
// the most recently updated record of the same company.
func (s *sqliteStore) findForUpdate(ctx context.Context, tx *sql.Tx, key, companyKey string, ext extract.Extraction) (reconcile.Record, bool, error) {
	rec, found, err := scanRecord(ctx, tx, `
SELECT id, dedup_key, company_key, company, title, job_id, status, applied_at, last_updated
FROM applications
WHERE dedup_key = ?;
`, key)
	if err != nil || found {
		return rec, found, err
	}

	if ext.JobID != "" || ext.Title != "" {
		return reconcile.Record{}, false, nil
	}

	return scanRecord(ctx, tx, `
SELECT id, dedup_key, company_key, company, title, job_id, status, applied_at, last_updated
FROM applications
WHERE company_key = ?
ORDER BY last_updated DESC, id DESC
LIMIT 1;
`, companyKey)
}

func scanRecord(ctx context.Context, tx *sql.Tx, query string, arg string) (reconcile.Record, bool, error) {
	var (
		rec         reconcile.Record
		companyKey  string
		appliedAt   string
		lastUpdated string
	)
	err := tx.QueryRowContext(ctx, query, arg).Scan(
		&rec.ID, &rec.DedupKey, &companyKey, &rec.Company, &rec.Title,
		&rec.JobID, &rec.Status, &appliedAt, &lastUpdated,
	)
	if err == sql.ErrNoRows {
		return reconcile.Record{}, false, nil
	}
	if err != nil {
		return reconcile.Record{}, false, err
	}

	rec.AppliedAt = parseTime(appliedAt)
	rec.LastUpdated = parseTime(lastUpdated)

	rows, err := tx.QueryContext(ctx,
		`SELECT message_id FROM application_messages WHERE record_id = ? ORDER BY message_id`, rec.ID)
	if err != nil {
		return reconcile.Record{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return reconcile.Record{}, false, err
		}
		rec.MessageIDs = append(rec.MessageIDs, id)
	}
	return rec, true, rows.Err()
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec reconcile.Record) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO applications (id, dedup_key, company_key, company, title, job_id, status, applied_at, last_updated)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		rec.ID, rec.DedupKey, companyKeyOf(rec), rec.Company, rec.Title, rec.JobID,
		string(rec.Status), formatTime(rec.AppliedAt), formatTime(rec.LastUpdated),
	)
	return err
}

func updateRecord(ctx context.Context, tx *sql.Tx, rec reconcile.Record) error {
	_, err := tx.ExecContext(ctx, `
UPDATE applications
SET title = ?, job_id = ?, status = ?, applied_at = ?, last_updated = ?
WHERE id = ?;
`,
		rec.Title, rec.JobID, string(rec.Status),
		formatTime(rec.AppliedAt), formatTime(rec.LastUpdated), rec.ID,
	)
	return err
}

// HasMessage reports whether a message id already belongs to a record.
func (s *sqliteStore) HasMessage(ctx context.Context, messageID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM application_messages WHERE message_id = ?`, messageID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListAll returns every record, most recently updated first.
func (s *sqliteStore) ListAll(ctx context.Context) ([]reconcile.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, dedup_key, company_key, company, title, job_id, status, applied_at, last_updated
FROM applications
ORDER BY last_updated DESC, id DESC;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []reconcile.Record
	for rows.Next() {
		var (
			rec         reconcile.Record
			companyKey  string
			appliedAt   string
			lastUpdated string
		)
		if err := rows.Scan(&rec.ID, &rec.DedupKey, &companyKey, &rec.Company, &rec.Title,
			&rec.JobID, &rec.Status, &appliedAt, &lastUpdated); err != nil {
			return nil, err
		}
		rec.AppliedAt = parseTime(appliedAt)
		rec.LastUpdated = parseTime(lastUpdated)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		ids, err := s.loadMessageIDs(ctx, records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].MessageIDs = ids
	}
	return records, nil
}

// ExportCSV writes all records as a flat table with a header row.
func (s *sqliteStore) ExportCSV(ctx context.Context, w io.Writer) error {
	records, err := s.ListAll(ctx)
	if err != nil {
		return err
	}
	return store.WriteCSV(w, records)
}

func (s *sqliteStore) loadMessageIDs(ctx context.Context, recordID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id FROM application_messages WHERE record_id = ? ORDER BY message_id`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqliteStore) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[key] = l
	return l
}

func (s *sqliteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Now(), s.entropy).String()
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

func companyKeyOf(rec reconcile.Record) string {
	return reconcile.CompanyKey(extract.Extraction{Company: rec.Company})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}
