package extract

// StatusHint is the status keyword category matched in a message, or
// empty when no keyword matched.
type StatusHint string

const (
	HintNone       StatusHint = ""
	HintApplied    StatusHint = "applied"
	HintViewed     StatusHint = "viewed"
	HintInterview  StatusHint = "interview"
	HintAssessment StatusHint = "assessment"
	HintOffer      StatusHint = "offer"
	HintRejected   StatusHint = "rejected"
	HintWithdrawn  StatusHint = "withdrawn"
)

// StatusPhrases binds one hint to the phrases that signal it. Entries
// are evaluated in slice order, first phrase match wins.
type StatusPhrases struct {
	Hint    StatusHint `yaml:"hint"`
	Phrases []string   `yaml:"phrases"`
}

// Rules is the data driving extraction: which sender domains carry no
// company signal, which trailing words are noise on a company name, and
// the ordered status keyword lists.
type Rules struct {
	GenericDomains []string        `yaml:"generic_domains"`
	NoiseSuffixes  []string        `yaml:"company_noise"`
	StatusKeywords []StatusPhrases `yaml:"status_keywords"`
}

// DefaultRules returns the built-in rule set. Rejection phrases come
// before the generic "received" phrases: a rejection email often quotes
// the original "application received" boilerplate.
func DefaultRules() Rules {
	return Rules{
		GenericDomains: []string{
			// consumer mail providers
			"gmail.com", "googlemail.com", "yahoo.com", "outlook.com",
			"hotmail.com", "live.com", "msn.com", "aol.com", "icloud.com",
			"me.com", "proton.me", "protonmail.com", "gmx.com", "mail.com",
			// applicant-tracking and job-board senders; the company is in
			// the text, not the envelope
			"greenhouse.io", "greenhouse-mail.io", "lever.co", "hire.lever.co",
			"myworkday.com", "myworkdayjobs.com", "smartrecruiters.com",
			"icims.com", "jobvite.com", "ashbyhq.com", "bamboohr.com",
			"workablemail.com", "successfactors.com", "taleo.net",
			"linkedin.com", "indeed.com", "indeedemail.com", "ziprecruiter.com",
			"glassdoor.com", "hired.com",
		},
		NoiseSuffixes: []string{
			"team", "careers", "career", "recruiting", "recruitment",
			"talent acquisition", "talent", "hr", "hiring", "jobs",
			"people team", "staffing",
		},
		StatusKeywords: []StatusPhrases{
			{Hint: HintRejected, Phrases: []string{
				"not moving forward",
				"will not be moving forward",
				"decided not to move forward",
				"not to move forward",
				"regret to inform",
				"unfortunately",
				"not been selected",
				"not selected for",
				"pursue other candidates",
				"moving forward with other candidates",
				"no longer under consideration",
				"unable to offer you",
				"position has been filled",
			}},
			{Hint: HintWithdrawn, Phrases: []string{
				"withdrawn your application",
				"application has been withdrawn",
				"you have withdrawn",
				"withdrew your application",
				"cancelled your application",
				"canceled your application",
			}},
			{Hint: HintOffer, Phrases: []string{
				"pleased to offer",
				"excited to offer",
				"delighted to offer",
				"offer of employment",
				"offer letter",
				"extend an offer",
				"congratulations",
			}},
			{Hint: HintAssessment, Phrases: []string{
				"online assessment",
				"technical assessment",
				"coding challenge",
				"coding assessment",
				"take-home",
				"take home assignment",
				"hackerrank",
				"codility",
				"aptitude test",
			}},
			{Hint: HintInterview, Phrases: []string{
				"interview scheduled",
				"schedule an interview",
				"schedule your interview",
				"interview invitation",
				"invite you to interview",
				"invite you to an interview",
				"phone screen",
				"phone interview",
				"video interview",
				"onsite interview",
				"on-site interview",
			}},
			{Hint: HintViewed, Phrases: []string{
				"application was viewed",
				"viewed your application",
				"reviewed your application",
				"application is under review",
				"application is being reviewed",
				"under review",
			}},
			{Hint: HintApplied, Phrases: []string{
				"thank you for applying",
				"thanks for applying",
				"thank you for your application",
				"thank you for submitting",
				"we have received your application",
				"received your application",
				"application received",
				"application has been received",
				"your submission has been received",
				"application confirmation",
				"successfully submitted",
			}},
		},
	}
}
