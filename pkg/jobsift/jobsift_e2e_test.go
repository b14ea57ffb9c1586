package jobsift

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jobsift/jobsift/pkg/jobsift/classify"
	"github.com/jobsift/jobsift/pkg/jobsift/extract"
	"github.com/jobsift/jobsift/pkg/jobsift/internalerr"
	"github.com/jobsift/jobsift/pkg/jobsift/reconcile"
	"github.com/jobsift/jobsift/pkg/jobsift/store/memstore"
)

var day0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// testModel builds a small classifier model. Messages mentioning
// application vocabulary score high, the webinar term lands in the
// review band, newsletter chatter scores low.
func testModel() classify.Model {
	return classify.Model{
		Version:  1,
		NGramMax: 1,
		Vocabulary: map[string]classify.Term{
			"application": {Index: 0, IDF: 1},
			"applying":    {Index: 1, IDF: 1},
			"interview":   {Index: 2, IDF: 1},
			"req":         {Index: 3, IDF: 1},
			"thank":       {Index: 4, IDF: 1},
			"newsletter":  {Index: 5, IDF: 1},
			"webinar":     {Index: 6, IDF: 1},
		},
		Weights:   []float64{3, 3, 3, 3, 3, -3, 1.2},
		Bias:      -1,
		Threshold: 0.6,
	}
}

func newTestTracker(t *testing.T) (*Tracker, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	// One worker keeps delivery order, and so the report counts,
	// deterministic.
	tr := New(Options{
		Store:      st,
		Classifier: classify.New(testModel(), 0, 0.1),
		Extractor:  extract.New(extract.DefaultRules()),
		Workers:    1,
	})
	return tr, st
}

func sampleBatch() []RawMessage {
	return []RawMessage{
		{
			ID:         "m1",
			From:       "no-reply@greenhouse.io",
			Subject:    "Thank you for applying to Acme Corp — Req #1234",
			Body:       "Thank you for applying to Acme Corp. Your application for Req #1234 has been received.",
			ReceivedAt: day0,
		},
		{
			ID:         "spam1",
			From:       "digest@technews.example",
			Subject:    "Your weekly newsletter",
			Body:       "This week in the newsletter: ten gadgets you did not ask for.",
			ReceivedAt: day0.Add(time.Hour),
		},
		{
			ID:         "m2",
			From:       "no-reply@greenhouse.io",
			Subject:    "Update on Acme Corp Req #1234: Interview scheduled",
			Body:       "We would like to schedule an interview for Req #1234.",
			ReceivedAt: day0.Add(24 * time.Hour),
		},
		{
			ID:         "m3",
			From:       "no-reply@greenhouse.io",
			Subject:    "Acme Corp application — not moving forward",
			Body:       "After careful consideration we are not moving forward with your application.",
			ReceivedAt: day0.Add(48 * time.Hour),
		},
		{
			ID:         "edge1",
			From:       "events@vendor.example",
			Subject:    "Join our webinar",
			Body:       "A webinar you might like.",
			ReceivedAt: day0.Add(2 * time.Hour),
		},
	}
}

// TestEndToEnd runs the complete pipeline: a batch of mixed mail is
// classified, extracted and reconciled into a single application record
// whose lifecycle moves applied -> interview -> rejected.
func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker(t)
	defer tr.Close()

	report, err := tr.Run(ctx, sampleBatch())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Processed != 5 {
		t.Errorf("processed = %d, want 5", report.Processed)
	}
	if report.Created != 1 {
		t.Errorf("created = %d, want 1", report.Created)
	}
	if report.Updated != 2 {
		t.Errorf("updated = %d, want 2", report.Updated)
	}
	if report.SkippedIrrelevant != 1 {
		t.Errorf("skipped_irrelevant = %d, want 1", report.SkippedIrrelevant)
	}
	if report.FlaggedForReview != 1 {
		t.Errorf("flagged_for_review = %d, want 1", report.FlaggedForReview)
	}
	if len(report.Failed) != 0 {
		t.Errorf("failed = %v", report.Failed)
	}

	records, err := tr.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected a single record, got %d", len(records))
	}

	rec := records[0]
	if rec.Company != "Acme Corp" {
		t.Errorf("company = %q", rec.Company)
	}
	if rec.JobID != "1234" {
		t.Errorf("job id = %q", rec.JobID)
	}
	if rec.Status != reconcile.StatusRejected {
		t.Errorf("status = %s, want rejected", rec.Status)
	}
	if !rec.AppliedAt.Equal(day0) {
		t.Errorf("applied_at = %v, want %v", rec.AppliedAt, day0)
	}
	if len(rec.MessageIDs) != 3 {
		t.Errorf("message ids = %v", rec.MessageIDs)
	}
}

// TestEndToEndIdempotent reruns the same batch and verifies nothing
// changes: stored messages are skipped as duplicates and the record set
// is byte for byte the same.
func TestEndToEndIdempotent(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker(t)
	defer tr.Close()

	if _, err := tr.Run(ctx, sampleBatch()); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	var before bytes.Buffer
	if err := tr.Export(ctx, &before); err != nil {
		t.Fatalf("Export: %v", err)
	}

	report, err := tr.Run(ctx, sampleBatch())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if report.Created != 0 || report.Updated != 0 {
		t.Errorf("rerun should not touch the store: created=%d updated=%d", report.Created, report.Updated)
	}
	if report.SkippedDuplicate != 3 {
		t.Errorf("skipped_duplicate = %d, want 3", report.SkippedDuplicate)
	}
	// Unstored messages classify the same way every run.
	if report.SkippedIrrelevant != 1 || report.FlaggedForReview != 1 {
		t.Errorf("irrelevant=%d review=%d", report.SkippedIrrelevant, report.FlaggedForReview)
	}

	var after bytes.Buffer
	if err := tr.Export(ctx, &after); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if before.String() != after.String() {
		t.Error("rerun changed the exported records")
	}
}

// TestEndToEndOutOfOrder delivers the rejection before the original
// application confirmation. The terminal status sticks and the
// application date backfills to the earliest message.
func TestEndToEndOutOfOrder(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker(t)
	defer tr.Close()

	batch := sampleBatch()
	msgs := []RawMessage{batch[2], batch[3], batch[0]}

	if _, err := tr.Run(ctx, msgs); err != nil {
		t.Fatalf("Run: %v", err)
	}

	records, err := tr.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected a single record, got %d", len(records))
	}
	if records[0].Status != reconcile.StatusRejected {
		t.Errorf("status = %s, want rejected", records[0].Status)
	}
	if !records[0].AppliedAt.Equal(day0) {
		t.Errorf("applied_at = %v, want %v", records[0].AppliedAt, day0)
	}
}

func TestRunInBatchDuplicates(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker(t)
	defer tr.Close()

	batch := sampleBatch()
	msgs := []RawMessage{batch[0], batch[0]}

	report, err := tr.Run(ctx, msgs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Created != 1 {
		t.Errorf("created = %d, want 1", report.Created)
	}
	if report.SkippedDuplicate != 1 {
		t.Errorf("skipped_duplicate = %d, want 1", report.SkippedDuplicate)
	}
}

func TestRunMissingID(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker(t)
	defer tr.Close()

	report, err := tr.Run(ctx, []RawMessage{{
		From:       "no-reply@greenhouse.io",
		Subject:    "Thank you for applying to Acme Corp",
		Body:       "Thank you for applying.",
		ReceivedAt: day0,
	}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Failed) != 1 {
		t.Fatalf("failed = %v", report.Failed)
	}
	if !strings.Contains(report.Failed[0].Reason, "no id") {
		t.Errorf("reason = %q", report.Failed[0].Reason)
	}
}

func TestRunNoCompanyFails(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker(t)
	defer tr.Close()

	report, err := tr.Run(ctx, []RawMessage{{
		ID:         "m9",
		From:       "no-reply@greenhouse.io",
		Subject:    "your application",
		Body:       "thank you for the application interview req",
		ReceivedAt: day0,
	}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Failed) != 1 {
		t.Fatalf("expected one failure, got %v", report.Failed)
	}
	if report.Failed[0].MessageID != "m9" {
		t.Errorf("failed message = %q", report.Failed[0].MessageID)
	}
}

// TestRunRequiresClassifier verifies a store-only tracker, as the
// read-only commands build, refuses to run the pipeline instead of
// panicking.
func TestRunRequiresClassifier(t *testing.T) {
	tr := New(Options{Store: memstore.New()})
	defer tr.Close()

	_, err := tr.Run(context.Background(), sampleBatch())
	if !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	// List and Export still work without a classifier.
	if _, err := tr.List(context.Background()); err != nil {
		t.Errorf("List: %v", err)
	}
}

func TestRunCancelledContext(t *testing.T) {
	tr, _ := newTestTracker(t)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Run(ctx, sampleBatch())
	if err == nil {
		t.Error("expected context error")
	}
}

func TestRunEmptyBatch(t *testing.T) {
	tr, _ := newTestTracker(t)
	defer tr.Close()

	report, err := tr.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Processed != 0 {
		t.Errorf("processed = %d", report.Processed)
	}
}
