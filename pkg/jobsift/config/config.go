// Package config loads extraction rule overrides from YAML files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jobsift/jobsift/pkg/jobsift/extract"
)

// LoadRules loads an extraction rule file and merges it over the
// built-in defaults. Sections absent from the file keep their default
// values; a section present in the file replaces the default wholesale.
func LoadRules(path string) (extract.Rules, error) {
	rules := extract.DefaultRules()

	data, err := os.ReadFile(path)
	if err != nil {
		return extract.Rules{}, err
	}

	var file extract.Rules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return extract.Rules{}, fmt.Errorf("parse rules %s: %w", path, err)
	}

	if len(file.GenericDomains) > 0 {
		rules.GenericDomains = file.GenericDomains
	}
	if len(file.NoiseSuffixes) > 0 {
		rules.NoiseSuffixes = file.NoiseSuffixes
	}
	if len(file.StatusKeywords) > 0 {
		if err := validateKeywords(file.StatusKeywords); err != nil {
			return extract.Rules{}, fmt.Errorf("rules %s: %w", path, err)
		}
		rules.StatusKeywords = file.StatusKeywords
	}

	return rules, nil
}

func validateKeywords(groups []extract.StatusPhrases) error {
	known := map[extract.StatusHint]bool{
		extract.HintApplied:    true,
		extract.HintViewed:     true,
		extract.HintInterview:  true,
		extract.HintAssessment: true,
		extract.HintOffer:      true,
		extract.HintRejected:   true,
		extract.HintWithdrawn:  true,
	}
	for _, g := range groups {
		if !known[g.Hint] {
			return fmt.Errorf("unknown status hint %q", g.Hint)
		}
		if len(g.Phrases) == 0 {
			return fmt.Errorf("status hint %q has no phrases", g.Hint)
		}
	}
	return nil
}
