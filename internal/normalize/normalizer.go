// Package normalize maps source-specific raw items into the canonical record
// shape: text cleanup, location canonicalization, and industry mapping.
package normalize

import (
	"html"
	"regexp"
	"strings"

	"github.com/scoutlabs/scout/internal/discovery"
)

var (
	whitespaceRe   = regexp.MustCompile(`\s+`)
	nonPrintableRe = regexp.MustCompile(`[^\x20-\x7E]`)
)

// Normalizer produces exactly one canonical candidate per admitted raw item.
// It never merges; merging belongs to the resolver.
type Normalizer struct {
	tables *Tables
	clock  discovery.Clock
}

// New constructs a Normalizer with the supplied lookup tables.
func New(tables *Tables, clock discovery.Clock) *Normalizer {
	return &Normalizer{tables: tables, clock: clock}
}

// Normalize builds a CanonicalRecord candidate from a raw item. The candidate
// has no entity key; the resolver assigns one.
func (n *Normalizer) Normalize(raw discovery.RawEntity) discovery.CanonicalRecord {
	now := n.clock.Now()
	rec := discovery.CanonicalRecord{
		Name:           CleanText(raw.Name),
		RegistrationID: strings.TrimSpace(raw.RegistrationID),
		Website:        normalizeWebsite(raw.Website),
		Location:       n.normalizeLocation(raw.Location),
		IndustryTags:   n.normalizeIndustries(raw.Industry),
		Description:    CleanText(raw.Description),
		FundingStage:   strings.ToLower(strings.TrimSpace(raw.FundingStage)),
		Founders:       normalizeFounders(raw.Founders),
		Provenance: []discovery.Observation{{
			SourceID:   raw.SourceID,
			SourceURL:  raw.SourceURL,
			ObservedAt: raw.FetchedAt,
		}},
		FirstSeenAt:   now,
		LastUpdatedAt: now,
	}
	rec.Confidence = scoreConfidence(rec)
	return rec
}

// CleanText unescapes HTML entities, collapses whitespace, and strips
// non-printable characters.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = nonPrintableRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// MatchName lowercases and strips separators, producing the name half of the
// resolver's match key.
func MatchName(name string) string {
	name = strings.ToLower(CleanText(name))
	for _, cut := range []string{" ", ".", ",", "-", "'"} {
		name = strings.ReplaceAll(name, cut, "")
	}
	// Legal suffixes vary per source for the same entity.
	for _, suffix := range []string{"pvtltd", "privatelimited", "pvtlimited", "ltd", "llp", "inc"} {
		name = strings.TrimSuffix(name, suffix)
	}
	return name
}

func (n *Normalizer) normalizeLocation(raw string) discovery.Location {
	raw = CleanText(raw)
	if raw == "" {
		return discovery.Location{}
	}
	if place, ok := n.tables.LookupPlace(raw); ok {
		return discovery.Location{
			Country: place.Country,
			State:   place.State,
			City:    place.City,
		}
	}
	return discovery.Location{
		Raw:        strings.ToLower(raw),
		Unresolved: true,
	}
}

// normalizeIndustries maps terms through the taxonomy. Unmapped terms are
// kept as free-form tags, never dropped.
func (n *Normalizer) normalizeIndustries(raw string) []string {
	raw = CleanText(raw)
	if raw == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var tags []string
	for _, term := range strings.Split(raw, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		tag, ok := n.tables.LookupIndustry(term)
		if !ok {
			tag = strings.ToLower(term)
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

func normalizeFounders(names []string) []discovery.Founder {
	var out []discovery.Founder
	for _, name := range names {
		name = CleanText(name)
		if name == "" {
			continue
		}
		out = append(out, discovery.Founder{Name: name})
	}
	return out
}

func normalizeWebsite(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	return strings.TrimRight(raw, "/")
}

// scoreConfidence applies the hand-off confidence buckets: a record earns a
// point each for a non-government website, a substantive description, and a
// resolved location.
func scoreConfidence(rec discovery.CanonicalRecord) string {
	score := 0
	if rec.Website != "" && !strings.Contains(rec.Website, ".gov.in") {
		score++
	}
	if len(rec.Description) > 20 {
		score++
	}
	if rec.Location.City != "" || rec.Location.State != "" || rec.Location.Raw != "" {
		score++
	}
	switch {
	case score >= 3:
		return discovery.ConfidenceHigh
	case score >= 2:
		return discovery.ConfidenceMedium
	default:
		return discovery.ConfidenceLow
	}
}
