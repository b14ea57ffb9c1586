package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jobsift/jobsift/pkg/jobsift/extract"
	"github.com/jobsift/jobsift/pkg/jobsift/reconcile"
)

// Store is the durable keyed storage for application records. Upsert is
// atomic per dedup key: concurrent upserts on the same key serialize,
// different keys may proceed concurrently.
type Store interface {
	Close() error

	// Upsert matches the extraction against existing records, creates
	// or mutates one per the reconciliation rules, and reports whether
	// the record was newly created.
	Upsert(ctx context.Context, ext extract.Extraction) (reconcile.Record, bool, error)

	// HasMessage reports whether a message id already belongs to a
	// record; used for idempotence checks before calling Upsert.
	HasMessage(ctx context.Context, messageID string) (bool, error)

	// ListAll returns every record, most recently updated first.
	ListAll(ctx context.Context) ([]reconcile.Record, error)

	// ExportCSV writes all records as a flat table with a header row.
	ExportCSV(ctx context.Context, w io.Writer) error
}

var exportHeader = []string{
	"record_id", "company", "title", "job_id", "status",
	"application_date", "last_updated", "source_message_ids",
}

// WriteCSV flattens records into the export table. Shared by store
// implementations so both produce identical output.
func WriteCSV(w io.Writer, records []reconcile.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.ID,
			r.Company,
			r.Title,
			r.JobID,
			string(r.Status),
			r.AppliedAt.UTC().Format(time.RFC3339),
			r.LastUpdated.UTC().Format(time.RFC3339),
			strings.Join(r.MessageIDs, " "),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write CSV record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
