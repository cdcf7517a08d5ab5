// Package classify decides whether a raw item is an official startup entity
// or noise such as news articles, blog posts, and podcast pages.
package classify

import (
	"strings"
	"unicode"

	"github.com/scoutlabs/scout/internal/discovery"
)

// Kind is the classification outcome.
type Kind int

// Classification outcomes.
const (
	Noise Kind = iota
	Entity
)

// Verdict carries the outcome plus the rule that produced it, for run
// reporting and rejected-item logs.
type Verdict struct {
	Kind   Kind
	Reason string
}

// Classifier applies the noise and entity rule tables. It is deterministic,
// side-effect-free, and performs no network access.
type Classifier struct{}

// New returns a Classifier.
func New() *Classifier {
	return &Classifier{}
}

// Classify applies the decision order: structural entity signal first, then
// noise patterns, then the minimum-field requirement.
func (c *Classifier) Classify(raw discovery.RawEntity) Verdict {
	// A registration identifier or registry flag proves entity-hood
	// regardless of how the listing is titled.
	if raw.RegistrationID != "" {
		return Verdict{Kind: Entity, Reason: "registration_id"}
	}
	if raw.RegistryRecord {
		return Verdict{Kind: Entity, Reason: "registry_record"}
	}

	if reason, ok := noiseURL(raw.SourceURL); ok {
		return Verdict{Kind: Noise, Reason: reason}
	}

	name := strings.TrimSpace(raw.Name)
	if len(name) < 2 {
		return Verdict{Kind: Noise, Reason: "empty_or_too_short_name"}
	}
	nameLower := strings.ToLower(name)
	descLower := strings.ToLower(raw.Description)

	if matchAny(articlePatterns, nameLower) {
		return Verdict{Kind: Noise, Reason: "article_title"}
	}
	if matchAny(fakePatterns, nameLower) {
		return Verdict{Kind: Noise, Reason: "fake_placeholder"}
	}
	if matchAny(governmentPatterns, nameLower) || matchAny(governmentPatterns, descLower) {
		return Verdict{Kind: Noise, Reason: "government_programme"}
	}

	if !c.hasMinimumFields(raw) {
		return Verdict{Kind: Noise, Reason: "missing_required_fields"}
	}

	// A long name with neither company indicators nor a recognizable suffix
	// is almost always an article headline the source mislabeled.
	if !matchAny(companyIndicators, descLower) &&
		!matchAny(companySuffixes, nameLower) &&
		!looksLikeCompanyName(name) {
		return Verdict{Kind: Noise, Reason: "no_company_indicators"}
	}

	return Verdict{Kind: Entity, Reason: "minimum_fields"}
}

// hasMinimumFields requires a name plus at least one of location, industry,
// or a founder.
func (c *Classifier) hasMinimumFields(raw discovery.RawEntity) bool {
	if strings.TrimSpace(raw.Name) == "" {
		return false
	}
	return strings.TrimSpace(raw.Location) != "" ||
		strings.TrimSpace(raw.Industry) != "" ||
		len(raw.Founders) > 0
}

// looksLikeCompanyName accepts short proper-noun names such as "Acme Labs".
func looksLikeCompanyName(name string) bool {
	if len(name) > 20 {
		return false
	}
	words := strings.Fields(name)
	if len(words) == 0 || len(words) > 4 {
		return false
	}
	for _, w := range words {
		r := []rune(w)[0]
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func noiseURL(sourceURL string) (string, bool) {
	lower := strings.ToLower(sourceURL)
	for _, seg := range noisePathSegments {
		if strings.Contains(lower, seg) {
			return "noise_url:" + strings.Trim(seg, "/"), true
		}
	}
	return "", false
}
