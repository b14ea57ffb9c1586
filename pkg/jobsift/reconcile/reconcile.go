package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/jobsift/jobsift/pkg/jobsift/extract"
	"github.com/jobsift/jobsift/pkg/jobsift/internalerr"
)

// Status is the lifecycle state of an application record.
type Status string

const (
	StatusApplied    Status = "applied"
	StatusViewed     Status = "viewed"
	StatusInterview  Status = "interview"
	StatusAssessment Status = "assessment"
	StatusOffer      Status = "offer"
	StatusRejected   Status = "rejected"
	StatusWithdrawn  Status = "withdrawn"
)

// happyPathRank orders the forward-only states. Terminal states carry
// no rank; they pre-empt the happy path instead.
var happyPathRank = map[Status]int{
	StatusApplied:    0,
	StatusViewed:     1,
	StatusInterview:  2,
	StatusAssessment: 3,
	StatusOffer:      4,
}

// Rank returns the happy-path position of a non-terminal status, or -1.
func Rank(s Status) int {
	if r, ok := happyPathRank[s]; ok {
		return r
	}
	return -1
}

// IsTerminal reports whether a status accepts no further transitions.
func IsTerminal(s Status) bool {
	return s == StatusRejected || s == StatusWithdrawn
}

// FromHint maps an extraction's keyword category to a candidate status.
func FromHint(h extract.StatusHint) (Status, bool) {
	switch h {
	case extract.HintApplied:
		return StatusApplied, true
	case extract.HintViewed:
		return StatusViewed, true
	case extract.HintInterview:
		return StatusInterview, true
	case extract.HintAssessment:
		return StatusAssessment, true
	case extract.HintOffer:
		return StatusOffer, true
	case extract.HintRejected:
		return StatusRejected, true
	case extract.HintWithdrawn:
		return StatusWithdrawn, true
	default:
		return "", false
	}
}

// Transition decides the next state for a record in state current when
// a message reports candidate:
//   - terminal states are sticky
//   - a terminal candidate pre-empts the happy path
//   - otherwise only forward progress moves the record; out-of-order or
//     duplicate emails reporting an earlier stage never move it back
//
// Rank-based rather than arrival-ordered, so two same-timestamp
// messages resolve to the higher-ranked candidate whichever lands
// first.
func Transition(current, candidate Status) Status {
	if IsTerminal(current) {
		return current
	}
	if IsTerminal(candidate) {
		return candidate
	}
	if Rank(candidate) > Rank(current) {
		return candidate
	}
	return current
}

// Record is the persisted application entity. One record per dedup key;
// MessageIDs grows monotonically and a message id belongs to exactly
// one record.
type Record struct {
	ID          string
	DedupKey    string
	Company     string
	Title       string
	JobID       string
	Status      Status
	AppliedAt   time.Time
	LastUpdated time.Time
	MessageIDs  []string
}

// DedupKey derives the identity key for an extraction: normalized
// company plus job id when present, else normalized company plus
// normalized title. An extraction with no company name has no usable
// key and is reported as a failure, never silently dropped.
func DedupKey(ext extract.Extraction) (string, error) {
	company := normalizeKeyPart(ext.Company)
	if company == "" {
		return "", fmt.Errorf("%w: message %s has no company name", internalerr.ErrDegenerateKey, ext.MessageID)
	}
	if ext.JobID != "" {
		return company + "|" + normalizeKeyPart(ext.JobID), nil
	}
	return company + "|" + normalizeKeyPart(ext.Title), nil
}

// CompanyKey returns just the normalized company part of the key, used
// by stores to fall back to company-wide matching for extractions that
// carry neither job id nor title.
func CompanyKey(ext extract.Extraction) string {
	return normalizeKeyPart(ext.Company)
}

func normalizeKeyPart(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NewRecord builds a fresh record from the first extraction for a key.
// Initial state is Applied unless the first message already reports a
// later (or terminal) state.
func NewRecord(id string, ext extract.Extraction) (Record, error) {
	key, err := DedupKey(ext)
	if err != nil {
		return Record{}, err
	}

	status := StatusApplied
	if candidate, ok := FromHint(ext.Status); ok {
		status = Transition(status, candidate)
	}

	return Record{
		ID:          id,
		DedupKey:    key,
		Company:     ext.Company,
		Title:       ext.Title,
		JobID:       ext.JobID,
		Status:      status,
		AppliedAt:   ext.ObservedAt,
		LastUpdated: ext.ObservedAt,
		MessageIDs:  []string{ext.MessageID},
	}, nil
}

// Apply folds a subsequent extraction into an existing record: the
// message joins the record, missing fields fill in, and the status
// moves per Transition. Idempotent for an already-recorded message id.
func Apply(rec *Record, ext extract.Extraction) {
	if !containsID(rec.MessageIDs, ext.MessageID) {
		rec.MessageIDs = append(rec.MessageIDs, ext.MessageID)
	}

	if ext.ObservedAt.After(rec.LastUpdated) {
		rec.LastUpdated = ext.ObservedAt
	}
	if ext.ObservedAt.Before(rec.AppliedAt) {
		// An earlier message about the same application surfaced late;
		// the application date is the first matching message's.
		rec.AppliedAt = ext.ObservedAt
	}

	if rec.Title == "" && ext.Title != "" {
		rec.Title = ext.Title
	}
	if rec.JobID == "" && ext.JobID != "" {
		rec.JobID = ext.JobID
	}

	if candidate, ok := FromHint(ext.Status); ok {
		rec.Status = Transition(rec.Status, candidate)
	}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
