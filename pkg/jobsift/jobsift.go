// Package jobsift tracks job applications by reading application email.
// It classifies each message for relevance, extracts the company, title,
// job id and status signal, and reconciles the result into a store of
// application records.
package jobsift

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jobsift/jobsift/pkg/jobsift/classify"
	"github.com/jobsift/jobsift/pkg/jobsift/extract"
	"github.com/jobsift/jobsift/pkg/jobsift/internalerr"
	"github.com/jobsift/jobsift/pkg/jobsift/normalize"
	"github.com/jobsift/jobsift/pkg/jobsift/reconcile"
	"github.com/jobsift/jobsift/pkg/jobsift/store"
)

// Tracker is the main application tracking facade
type Tracker struct {
	store      store.Store
	classifier *classify.Classifier
	extractor  *extract.Extractor
	log        *zap.Logger
	workers    int
}

// Options configures a Tracker instance
type Options struct {
	Store      store.Store
	Classifier *classify.Classifier
	Extractor  *extract.Extractor
	Logger     *zap.Logger
	Workers    int
}

// New creates a Tracker instance with the given dependencies
func New(opts Options) *Tracker {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Tracker{
		store:      opts.Store,
		classifier: opts.Classifier,
		extractor:  opts.Extractor,
		log:        log,
		workers:    workers,
	}
}

// Close cleanly shuts down the Tracker instance
func (t *Tracker) Close() error {
	return t.store.Close()
}

// RawMessage is one email as handed to the pipeline.
type RawMessage struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// Failure records a message the batch could not process.
type Failure struct {
	MessageID string
	Reason    string
}

// Report summarizes one batch run. Every input message lands in exactly
// one bucket besides Processed.
type Report struct {
	Processed         int
	Created           int
	Updated           int
	SkippedIrrelevant int
	FlaggedForReview  int
	SkippedDuplicate  int
	Failed            []Failure
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeCreated
	outcomeUpdated
	outcomeIrrelevant
	outcomeReview
	outcomeDuplicate
	outcomeFailed
)

type result struct {
	outcome outcome
	reason  string
}

// Run processes a batch of messages. Messages are fanned out to a
// worker pool; the store serializes conflicting updates. The report
// counts every message exactly once, failures in input order. On
// context cancellation the report covers the messages processed so far
// and the context error is returned.
func (t *Tracker) Run(ctx context.Context, msgs []RawMessage) (Report, error) {
	// List and Export work on a store-only tracker; Run does not.
	if t.classifier == nil || t.extractor == nil {
		return Report{}, fmt.Errorf("%w: tracker built without a classifier and extractor", internalerr.ErrInvalidInput)
	}

	results := make([]result, len(msgs))

	// In-batch duplicates never reach the store: the first occurrence
	// of an id wins, the rest are counted up front.
	seen := make(map[string]int, len(msgs))
	jobs := make([]int, 0, len(msgs))
	for i, m := range msgs {
		if m.ID == "" {
			results[i] = result{outcome: outcomeFailed, reason: "message has no id"}
			continue
		}
		if _, dup := seen[m.ID]; dup {
			results[i] = result{outcome: outcomeDuplicate}
			continue
		}
		seen[m.ID] = i
		jobs = append(jobs, i)
	}

	ch := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < t.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range ch {
				results[i] = t.process(ctx, msgs[i])
			}
		}()
	}

	var runErr error
dispatch:
	for _, i := range jobs {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break dispatch
		case ch <- i:
		}
	}
	close(ch)
	wg.Wait()

	report := Report{}
	for i, r := range results {
		switch r.outcome {
		case outcomeNone:
			continue
		case outcomeCreated:
			report.Created++
		case outcomeUpdated:
			report.Updated++
		case outcomeIrrelevant:
			report.SkippedIrrelevant++
		case outcomeReview:
			report.FlaggedForReview++
		case outcomeDuplicate:
			report.SkippedDuplicate++
		case outcomeFailed:
			report.Failed = append(report.Failed, Failure{MessageID: msgs[i].ID, Reason: r.reason})
		}
		report.Processed++
	}

	t.log.Info("batch complete",
		zap.Int("processed", report.Processed),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("skipped_irrelevant", report.SkippedIrrelevant),
		zap.Int("flagged_for_review", report.FlaggedForReview),
		zap.Int("skipped_duplicate", report.SkippedDuplicate),
		zap.Int("failed", len(report.Failed)))

	return report, runErr
}

func (t *Tracker) process(ctx context.Context, m RawMessage) result {
	seen, err := t.store.HasMessage(ctx, m.ID)
	if err != nil {
		return result{outcome: outcomeFailed, reason: err.Error()}
	}
	if seen {
		t.log.Debug("message already ingested", zap.String("message_id", m.ID))
		return result{outcome: outcomeDuplicate}
	}

	text := normalize.Normalize(m.Subject, m.Body)

	score := t.classifier.Score(text.Folded)
	switch t.classifier.Decide(score) {
	case classify.Irrelevant:
		t.log.Debug("irrelevant message",
			zap.String("message_id", m.ID), zap.Float64("score", score))
		return result{outcome: outcomeIrrelevant}
	case classify.Review:
		t.log.Info("message flagged for review",
			zap.String("message_id", m.ID), zap.Float64("score", score))
		return result{outcome: outcomeReview}
	}

	ext := t.extractor.Extract(m.ID, m.From, text, m.ReceivedAt)

	rec, created, err := t.store.Upsert(ctx, ext)
	if err != nil {
		if errors.Is(err, internalerr.ErrDegenerateKey) {
			t.log.Warn("no company extracted",
				zap.String("message_id", m.ID), zap.String("subject", m.Subject))
		}
		return result{outcome: outcomeFailed, reason: err.Error()}
	}

	t.log.Debug("record reconciled",
		zap.String("message_id", m.ID),
		zap.String("record_id", rec.ID),
		zap.String("company", rec.Company),
		zap.String("status", string(rec.Status)),
		zap.Bool("created", created))

	if created {
		return result{outcome: outcomeCreated}
	}
	return result{outcome: outcomeUpdated}
}

// List returns all application records, most recently updated first.
func (t *Tracker) List(ctx context.Context) ([]reconcile.Record, error) {
	return t.store.ListAll(ctx)
}

// Export writes all application records as CSV.
func (t *Tracker) Export(ctx context.Context, w io.Writer) error {
	return t.store.ExportCSV(ctx, w)
}
