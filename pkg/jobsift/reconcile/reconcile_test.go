package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/jobsift/jobsift/pkg/jobsift/extract"
	"github.com/jobsift/jobsift/pkg/jobsift/internalerr"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func ext(id, company, jobID, title string, hint extract.StatusHint, at time.Time) extract.Extraction {
	return extract.Extraction{
		MessageID:  id,
		Company:    company,
		Title:      title,
		JobID:      jobID,
		Status:     hint,
		ObservedAt: at,
	}
}

func TestTransitionForwardOnly(t *testing.T) {
	for _, tc := range []struct {
		current, candidate, want Status
	}{
		{StatusApplied, StatusInterview, StatusInterview},
		{StatusInterview, StatusViewed, StatusInterview}, // never backward
		{StatusInterview, StatusInterview, StatusInterview},
		{StatusOffer, StatusApplied, StatusOffer},
		{StatusApplied, StatusOffer, StatusOffer},
		{StatusViewed, StatusAssessment, StatusAssessment},
	} {
		if got := Transition(tc.current, tc.candidate); got != tc.want {
			t.Errorf("Transition(%s, %s) = %s, want %s", tc.current, tc.candidate, got, tc.want)
		}
	}
}

func TestTerminalPreempts(t *testing.T) {
	for _, s := range []Status{StatusApplied, StatusViewed, StatusInterview, StatusAssessment, StatusOffer} {
		if got := Transition(s, StatusRejected); got != StatusRejected {
			t.Errorf("Transition(%s, rejected) = %s", s, got)
		}
		if got := Transition(s, StatusWithdrawn); got != StatusWithdrawn {
			t.Errorf("Transition(%s, withdrawn) = %s", s, got)
		}
	}
}

func TestTerminalSticky(t *testing.T) {
	for _, candidate := range []Status{StatusApplied, StatusInterview, StatusOffer, StatusWithdrawn} {
		if got := Transition(StatusRejected, candidate); got != StatusRejected {
			t.Errorf("Rejected must be sticky, Transition(rejected, %s) = %s", candidate, got)
		}
	}
}

func TestSameTimestampTieBreak(t *testing.T) {
	// Two same-timestamp messages reporting Interview and Viewed must
	// land on Interview in either application order.
	a := ext("m1", "Acme", "1", "", extract.HintInterview, t0)
	b := ext("m2", "Acme", "1", "", extract.HintViewed, t0)

	r1, err := NewRecord("r1", a)
	if err != nil {
		t.Fatal(err)
	}
	Apply(&r1, b)

	r2, err := NewRecord("r2", b)
	if err != nil {
		t.Fatal(err)
	}
	Apply(&r2, a)

	if r1.Status != StatusInterview || r2.Status != StatusInterview {
		t.Errorf("tie-break failed: %s / %s, want interview", r1.Status, r2.Status)
	}
}

func TestDedupKeyPrefersJobID(t *testing.T) {
	withID, err := DedupKey(ext("m", "Acme  Corp", "1234", "Engineer", extract.HintNone, t0))
	if err != nil {
		t.Fatal(err)
	}
	if withID != "acme corp|1234" {
		t.Errorf("key = %q, want acme corp|1234", withID)
	}

	withoutID, err := DedupKey(ext("m", "Acme Corp", "", "Staff Engineer", extract.HintNone, t0))
	if err != nil {
		t.Fatal(err)
	}
	if withoutID != "acme corp|staff engineer" {
		t.Errorf("key = %q, want acme corp|staff engineer", withoutID)
	}
}

func TestDedupKeyDegenerate(t *testing.T) {
	_, err := DedupKey(ext("m", "", "1234", "Engineer", extract.HintNone, t0))
	if !errors.Is(err, internalerr.ErrDegenerateKey) {
		t.Errorf("expected ErrDegenerateKey, got %v", err)
	}
}

func TestNewRecordDefaultsToApplied(t *testing.T) {
	r, err := NewRecord("r1", ext("m1", "Acme", "1", "", extract.HintNone, t0))
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != StatusApplied {
		t.Errorf("status = %s, want applied", r.Status)
	}
	if !r.AppliedAt.Equal(t0) || !r.LastUpdated.Equal(t0) {
		t.Error("timestamps should come from the first message")
	}
	if len(r.MessageIDs) != 1 || r.MessageIDs[0] != "m1" {
		t.Errorf("message ids = %v", r.MessageIDs)
	}
}

func TestNewRecordFirstMessageMayBeLate(t *testing.T) {
	// First observed message can already report a later stage.
	r, err := NewRecord("r1", ext("m1", "Acme", "1", "", extract.HintInterview, t0))
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != StatusInterview {
		t.Errorf("status = %s, want interview", r.Status)
	}
}

func TestApplyUpdatesMembershipWithoutKeyword(t *testing.T) {
	r, _ := NewRecord("r1", ext("m1", "Acme", "1", "", extract.HintApplied, t0))
	later := t0.Add(48 * time.Hour)
	Apply(&r, ext("m2", "Acme", "1", "", extract.HintNone, later))

	if r.Status != StatusApplied {
		t.Errorf("status moved without a keyword: %s", r.Status)
	}
	if !r.LastUpdated.Equal(later) {
		t.Error("last_updated should advance")
	}
	if len(r.MessageIDs) != 2 {
		t.Errorf("message ids = %v", r.MessageIDs)
	}
}

func TestApplyTerminalRecordsMembership(t *testing.T) {
	r, _ := NewRecord("r1", ext("m1", "Acme", "1", "", extract.HintRejected, t0))
	Apply(&r, ext("m2", "Acme", "1", "", extract.HintInterview, t0.Add(time.Hour)))

	if r.Status != StatusRejected {
		t.Errorf("terminal state must stick, got %s", r.Status)
	}
	if len(r.MessageIDs) != 2 {
		t.Error("message still joins a terminal record")
	}
}

func TestApplyIdempotentForSameMessage(t *testing.T) {
	r, _ := NewRecord("r1", ext("m1", "Acme", "1", "", extract.HintApplied, t0))
	before := len(r.MessageIDs)
	Apply(&r, ext("m1", "Acme", "1", "", extract.HintApplied, t0))
	if len(r.MessageIDs) != before {
		t.Errorf("duplicate message id appended: %v", r.MessageIDs)
	}
}

func TestApplyBackfillsFields(t *testing.T) {
	r, _ := NewRecord("r1", ext("m1", "Acme", "", "", extract.HintApplied, t0))
	Apply(&r, ext("m2", "Acme", "77", "Engineer", extract.HintNone, t0.Add(time.Hour)))

	if r.JobID != "77" || r.Title != "Engineer" {
		t.Errorf("missing fields should backfill: %+v", r)
	}
}

func TestApplyEarlyMessageMovesApplicationDate(t *testing.T) {
	r, _ := NewRecord("r1", ext("m2", "Acme", "1", "", extract.HintInterview, t0.Add(24*time.Hour)))
	Apply(&r, ext("m1", "Acme", "1", "", extract.HintApplied, t0))

	if !r.AppliedAt.Equal(t0) {
		t.Error("application date is the first matching message's date")
	}
	if r.Status != StatusInterview {
		t.Errorf("late-arriving earlier stage must not move status back: %s", r.Status)
	}
}

func TestMonotonicHappyPath(t *testing.T) {
	r, _ := NewRecord("r1", ext("m0", "Acme", "1", "", extract.HintApplied, t0))
	hints := []extract.StatusHint{
		extract.HintViewed, extract.HintApplied, extract.HintInterview,
		extract.HintViewed, extract.HintAssessment, extract.HintOffer,
	}
	prev := Rank(r.Status)
	for i, h := range hints {
		Apply(&r, ext(string(rune('a'+i)), "Acme", "1", "", h, t0.Add(time.Duration(i)*time.Hour)))
		if Rank(r.Status) < prev {
			t.Fatalf("rank regressed to %s after hint %s", r.Status, h)
		}
		prev = Rank(r.Status)
	}
	if r.Status != StatusOffer {
		t.Errorf("final status = %s, want offer", r.Status)
	}
}
