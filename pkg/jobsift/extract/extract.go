package extract

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/jobsift/jobsift/pkg/jobsift/normalize"
)

// Extraction holds the best-effort structured fields pulled from one
// message. Any field may be absent; absence never aborts the pipeline.
type Extraction struct {
	MessageID  string
	Company    string
	Title      string
	JobID      string
	Status     StatusHint
	ObservedAt time.Time
}

// Ordered company patterns, most specific first. Matched against the
// original-case text so capitalized noun phrases survive.
var companyPhrasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)thank(?:s| you) for (?:applying to|your application to|submitting your application to)\s+([^.!,\n\r]+)`),
	regexp.MustCompile(`(?i)application received.{0,40}?(?:at|for|from)\s+([^.!,\n\r]+)`),
	regexp.MustCompile(`(?i)your application (?:at|to|with)\s+([^.!,\n\r]+?)(?:\s+has been received|\s+was received|\s+is being reviewed|$)`),
	regexp.MustCompile(`(?i)received your application.{0,40}?(?:at|for|with)\s+([^.!,\n\r]+)`),
}

var (
	// "Acme Corp application — not moving forward"
	companyLeadingPattern = regexp.MustCompile(`^((?:[A-Z][\w&'.-]*\s+){1,4})(?:job )?application\b`)

	// capitalized noun phrase after "at"/"with"/"on"
	companyNearbyPattern = regexp.MustCompile(`\b(?:at|with|on)\s+([A-Z][\w&'.-]*(?:\s+[A-Z][\w&'.-]*){0,3})`)

	// "Title - Company" / "Title | Company" / "Title: Company" subjects
	subjectSplitPattern = regexp.MustCompile(`^(.+?)\s*[-:|]\s+(.+)$`)

	// "Company: Acme Corp" labelled field in the body
	companyFieldPattern = regexp.MustCompile(`(?i)\bcompany\s*[:-]\s*([^\n\r.!,]+)`)
)

var titlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)application for (?:the\s+)?([^.!,\n\r|]+?)(?:\s+(?:position|role|at|with)\b|$)`),
	regexp.MustCompile(`(?i)for the\s+([^.!,\n\r|]+?)\s+(?:position|role)\b`),
	regexp.MustCompile(`(?i)(?:position|role)\s*(?:of|:)\s*([^.!,\n\r|]+)`),
}

var jobIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:requisition|req|job\s*req|job\s*id)\b\.?(?:\s*id)?\s*[:#]?\s*#?\s*([A-Za-z0-9][A-Za-z0-9/_-]*)`),
	regexp.MustCompile(`#([A-Za-z0-9][A-Za-z0-9/_-]+)`),
}

// Words that disqualify a company-name candidate. Status chatter and
// reply prefixes show up in subject-split captures all the time.
var implausibleCompanyWords = map[string]struct{}{
	"re": {}, "fw": {}, "fwd": {}, "update": {}, "updates": {},
	"thank": {}, "thanks": {}, "you": {}, "your": {}, "our": {},
	"application": {}, "applications": {}, "interview": {}, "interviews": {},
	"offer": {}, "position": {}, "role": {}, "scheduled": {}, "received": {},
	"status": {}, "reminder": {}, "next": {}, "steps": {}, "hello": {},
	"hi": {}, "dear": {}, "regarding": {}, "important": {},
}

var calendarWords = map[string]struct{}{
	"monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {}, "friday": {},
	"saturday": {}, "sunday": {}, "january": {}, "february": {}, "march": {},
	"april": {}, "may": {}, "june": {}, "july": {}, "august": {},
	"september": {}, "october": {}, "november": {}, "december": {},
}

// Extractor applies the ordered heuristic rules. Deterministic: same
// text and rules always produce the same Extraction.
type Extractor struct {
	rules          Rules
	genericDomains map[string]struct{}
}

// New creates an extractor for the given rule set.
func New(rules Rules) *Extractor {
	generic := make(map[string]struct{}, len(rules.GenericDomains))
	for _, d := range rules.GenericDomains {
		generic[strings.ToLower(d)] = struct{}{}
	}
	return &Extractor{rules: rules, genericDomains: generic}
}

// Extract pulls company, title, job id and status keyword from a
// normalized message. First match wins per field; every field is
// independently optional.
func (e *Extractor) Extract(messageID, sender string, text normalize.Text, receivedAt time.Time) Extraction {
	return Extraction{
		MessageID:  messageID,
		Company:    e.company(sender, text),
		Title:      e.title(text),
		JobID:      e.jobID(text.Original),
		Status:     e.status(text.Folded),
		ObservedAt: receivedAt,
	}
}

func (e *Extractor) company(sender string, text normalize.Text) string {
	if c := e.companyFromSender(sender); c != "" {
		return c
	}

	for _, pat := range companyPhrasePatterns {
		if m := pat.FindStringSubmatch(text.Original); m != nil {
			if c := e.cleanCompany(m[1]); c != "" {
				return c
			}
		}
	}

	if m := companyLeadingPattern.FindStringSubmatch(text.Original); m != nil {
		if c := e.cleanCompany(m[1]); c != "" {
			return c
		}
	}

	if m := companyNearbyPattern.FindStringSubmatch(text.Original); m != nil {
		if c := e.cleanCompany(m[1]); c != "" {
			return c
		}
	}

	if m := subjectSplitPattern.FindStringSubmatch(text.Subject); m != nil {
		if c := e.cleanCompany(m[2]); c != "" {
			return c
		}
	}

	if m := companyFieldPattern.FindStringSubmatch(text.Original); m != nil {
		if c := e.cleanCompany(m[1]); c != "" {
			return c
		}
	}

	// Last resort: "Acme: interview update" style subject prefix,
	// guarded against Re:/Fwd: noise by cleanCompany.
	if idx := strings.Index(text.Subject, ":"); idx > 0 {
		prefix := text.Subject[:idx]
		if len(strings.Fields(prefix)) <= 4 {
			if c := e.cleanCompany(prefix); c != "" {
				return c
			}
		}
	}

	return ""
}

// companyFromSender derives a display name from the sender domain when
// the domain is not a generic mail or applicant-tracking provider.
func (e *Extractor) companyFromSender(sender string) string {
	domain := senderDomain(sender)
	if domain == "" {
		return ""
	}
	if _, generic := e.genericDomains[domain]; generic {
		return ""
	}

	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return ""
	}
	name := labels[len(labels)-2]
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")
	return titleCase(name)
}

func senderDomain(sender string) string {
	addr := sender
	if parsed, err := mail.ParseAddress(sender); err == nil {
		addr = parsed.Address
	}
	at := strings.LastIndex(addr, "@")
	if at < 0 || at == len(addr)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimRight(addr[at+1:], ">"))
}

// cleanCompany normalizes a raw candidate and rejects implausible ones.
// Returns "" when nothing usable remains.
func (e *Extractor) cleanCompany(raw string) string {
	name := strings.TrimSpace(raw)

	// Cut at subject separators: "Acme Corp — Req #1234"
	for _, sep := range []string{"—", "–", " | ", " - "} {
		if idx := strings.Index(name, sep); idx >= 0 {
			name = name[:idx]
		}
	}

	// Drop trailing requisition chatter and "#1234" style tokens
	fields := strings.Fields(name)
	for len(fields) > 0 {
		last := strings.ToLower(strings.Trim(fields[len(fields)-1], ".,;:!?"))
		if last == "req" || last == "requisition" || last == "job" || last == "id" ||
			strings.HasPrefix(fields[len(fields)-1], "#") {
			fields = fields[:len(fields)-1]
			continue
		}
		break
	}
	name = strings.Join(fields, " ")
	name = strings.TrimRight(name, ".,;:!?|-– ")
	name = strings.TrimSpace(name)

	// Strip noise suffixes: "Acme Corp Recruiting" → "Acme Corp"
	lower := strings.ToLower(name)
	for _, suffix := range e.rules.NoiseSuffixes {
		if strings.HasSuffix(lower, " "+suffix) {
			name = strings.TrimSpace(name[:len(name)-len(suffix)-1])
			lower = strings.ToLower(name)
		}
	}

	if len(name) <= 2 {
		return ""
	}
	words := strings.Fields(strings.ToLower(name))
	for _, w := range words {
		if _, bad := implausibleCompanyWords[strings.Trim(w, ".,;:!?")]; bad {
			return ""
		}
	}
	if len(words) == 1 {
		if _, cal := calendarWords[words[0]]; cal {
			return ""
		}
	}

	return name
}

func (e *Extractor) title(text normalize.Text) string {
	for _, pat := range titlePatterns {
		if m := pat.FindStringSubmatch(text.Original); m != nil {
			if t := cleanTitle(m[1]); t != "" {
				return t
			}
		}
	}

	// "Software Engineer - Acme Corp" subjects carry the title up front
	if m := subjectSplitPattern.FindStringSubmatch(text.Subject); m != nil {
		if e.cleanCompany(m[2]) != "" {
			if t := cleanTitle(m[1]); t != "" {
				return t
			}
		}
	}

	return ""
}

func cleanTitle(raw string) string {
	t := strings.TrimSpace(raw)
	for _, prefix := range []string{"re:", "fwd:", "fw:"} {
		if strings.HasPrefix(strings.ToLower(t), prefix) {
			t = strings.TrimSpace(t[len(prefix):])
		}
	}
	t = strings.TrimRight(t, ".,;:!?|-– ")
	if len(t) <= 2 {
		return ""
	}
	lower := strings.ToLower(t)
	for _, junk := range []string{"your application", "application received", "thank you", "update on"} {
		if strings.Contains(lower, junk) {
			return ""
		}
	}
	return t
}

func (e *Extractor) jobID(text string) string {
	for _, pat := range jobIDPatterns {
		if m := pat.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// status returns the first matching hint in rule order. Rejection terms
// are listed before "received" terms in DefaultRules, so a rejection
// that quotes confirmation boilerplate still reads as a rejection.
func (e *Extractor) status(folded string) StatusHint {
	for _, group := range e.rules.StatusKeywords {
		for _, phrase := range group.Phrases {
			if strings.Contains(folded, phrase) {
				return group.Hint
			}
		}
	}
	return HintNone
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
