package resolve

import (
	"sort"
	"strings"

	"github.com/scoutlabs/scout/internal/discovery"
)

// Field markers recorded in CanonicalRecord.AuthoritativeFields. The
// registration id is excluded because it has its own authority rule in
// pickRegistrationID, and location because registry filings carry only
// state-level places that should not suppress a more specific directory
// city.
const (
	fieldName         = "name"
	fieldWebsite      = "website"
	fieldDescription  = "description"
	fieldFundingStage = "funding_stage"
)

// stampAuthoritative marks every filled rankable field on a registry
// candidate, so registry-observed values outrank directory values in merges
// even across runs.
func stampAuthoritative(rec *discovery.CanonicalRecord) {
	var fields []string
	if rec.Name != "" {
		fields = append(fields, fieldName)
	}
	if rec.Website != "" {
		fields = append(fields, fieldWebsite)
	}
	if rec.Description != "" {
		fields = append(fields, fieldDescription)
	}
	if rec.FundingStage != "" {
		fields = append(fields, fieldFundingStage)
	}
	sort.Strings(fields)
	rec.AuthoritativeFields = fields
}

func authoritySet(rec discovery.CanonicalRecord) map[string]bool {
	set := make(map[string]bool, len(rec.AuthoritativeFields))
	for _, f := range rec.AuthoritativeFields {
		set[f] = true
	}
	return set
}

// mergeRecords folds a candidate observation into an existing record. The
// field-wise selection below is a max under a total order, which makes the
// merge commutative and associative: any arrival order of the same
// observations yields the same record. Authority is tracked per field, not
// per record, because a record-level flag would let a directory value
// inherit authority from an unrelated registry field.
func mergeRecords(existing, cand discovery.CanonicalRecord, candAuthoritative bool) (discovery.CanonicalRecord, bool) {
	merged := existing
	exAuth, caAuth := authoritySet(existing), authoritySet(cand)

	var auth []string
	mark := func(field string, isAuth bool) {
		if isAuth {
			auth = append(auth, field)
		}
	}

	var nameAuth, siteAuth, descAuth, stageAuth bool
	merged.Name, nameAuth = pickText(existing.Name, exAuth[fieldName], cand.Name, caAuth[fieldName])
	merged.Website, siteAuth = pickText(existing.Website, exAuth[fieldWebsite], cand.Website, caAuth[fieldWebsite])
	merged.Description, descAuth = pickText(existing.Description, exAuth[fieldDescription], cand.Description, caAuth[fieldDescription])
	merged.FundingStage, stageAuth = pickText(existing.FundingStage, exAuth[fieldFundingStage], cand.FundingStage, caAuth[fieldFundingStage])
	merged.Location = pickLocation(existing.Location, cand.Location)
	mark(fieldName, nameAuth)
	mark(fieldWebsite, siteAuth)
	mark(fieldDescription, descAuth)
	mark(fieldFundingStage, stageAuth)
	sort.Strings(auth)
	merged.AuthoritativeFields = auth

	merged.RegistrationID = pickRegistrationID(existing.RegistrationID, cand.RegistrationID, candAuthoritative)
	merged.IndustryTags = unionTags(existing.IndustryTags, cand.IndustryTags)
	merged.Founders = unionFounders(existing.Founders, cand.Founders)
	merged.Provenance = unionProvenance(existing.Provenance, cand.Provenance)

	if cand.FirstSeenAt.Before(merged.FirstSeenAt) {
		merged.FirstSeenAt = cand.FirstSeenAt
	}
	merged.Confidence = pickConfidence(existing.Confidence, cand.Confidence)

	// A re-observation that adds nothing leaves the record untouched, so
	// re-running over identical responses emits nothing.
	if equalButTimestamps(existing, merged) {
		return existing, false
	}
	merged.LastUpdatedAt = existing.LastUpdatedAt
	if cand.LastUpdatedAt.After(merged.LastUpdatedAt) {
		merged.LastUpdatedAt = cand.LastUpdatedAt
	}
	return merged, true
}

// pickText ranks empty below non-empty, non-authoritative below
// authoritative, then prefers the longer value, then the lexicographically
// smaller. Longer display strings carry more signal ("Acme Labs Pvt Ltd"
// over "Acme Labs"), but a registry-observed value always outranks a longer
// directory one. Returns the winner and whether it is authoritative.
func pickText(a string, aAuth bool, b string, bAuth bool) (string, bool) {
	switch {
	case a == "":
		return b, bAuth && b != ""
	case b == "":
		return a, aAuth
	case aAuth != bAuth:
		if aAuth {
			return a, true
		}
		return b, true
	case len(a) != len(b):
		if len(a) > len(b) {
			return a, aAuth
		}
		return b, aAuth
	case a <= b:
		return a, aAuth
	default:
		return b, aAuth
	}
}

// pickString prefers non-empty, then the longer value, then the
// lexicographically smaller, for founder contact hints.
func pickString(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case len(a) != len(b):
		if len(a) > len(b) {
			return a
		}
		return b
	case a <= b:
		return a
	default:
		return b
	}
}

// pickRegistrationID applies the authority rule: a set identifier is never
// overwritten by a non-authoritative observation; between two set values the
// lexicographically smaller wins so conflicting registries resolve the same
// way in any order. Callers detect the conflict case separately for logging.
func pickRegistrationID(existing, cand string, candAuthoritative bool) string {
	switch {
	case existing == "":
		return cand
	case cand == "" || !candAuthoritative:
		return existing
	case cand < existing:
		return cand
	default:
		return existing
	}
}

// pickLocation prefers resolved entries over unresolved, then the more
// specific one (city beats state-only), then lexicographic order.
func pickLocation(a, b discovery.Location) discovery.Location {
	if locationEmpty(a) {
		return b
	}
	if locationEmpty(b) {
		return a
	}
	if a.Unresolved != b.Unresolved {
		if b.Unresolved {
			return a
		}
		return b
	}
	sa, sb := locationSpecificity(a), locationSpecificity(b)
	if sa != sb {
		if sa > sb {
			return a
		}
		return b
	}
	if locationKey(a) <= locationKey(b) {
		return a
	}
	return b
}

func locationEmpty(l discovery.Location) bool {
	return l.Country == "" && l.State == "" && l.City == "" && l.Raw == ""
}

func locationSpecificity(l discovery.Location) int {
	n := 0
	for _, part := range []string{l.Country, l.State, l.City} {
		if part != "" {
			n++
		}
	}
	return n
}

func locationKey(l discovery.Location) string {
	return strings.Join([]string{l.Country, l.State, l.City, l.Raw}, "|")
}

func unionTags(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, tag := range append(append([]string{}, a...), b...) {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func unionFounders(a, b []discovery.Founder) []discovery.Founder {
	byName := make(map[string]discovery.Founder, len(a)+len(b))
	for _, f := range append(append([]discovery.Founder{}, a...), b...) {
		key := strings.ToLower(f.Name)
		cur, ok := byName[key]
		if !ok {
			byName[key] = f
			continue
		}
		cur.Email = pickString(cur.Email, f.Email)
		cur.LinkedIn = pickString(cur.LinkedIn, f.LinkedIn)
		byName[key] = cur
	}
	out := make([]discovery.Founder, 0, len(byName))
	for _, f := range byName {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// unionProvenance appends new observations. One entry is kept per
// (source, url) pair, pinned to the earliest sighting, so reprocessing the
// same listing in a later run does not mutate the set.
func unionProvenance(a, b []discovery.Observation) []discovery.Observation {
	type obsKey struct {
		source, url string
	}
	earliest := make(map[obsKey]discovery.Observation, len(a)+len(b))
	for _, o := range append(append([]discovery.Observation{}, a...), b...) {
		k := obsKey{source: o.SourceID, url: o.SourceURL}
		if cur, ok := earliest[k]; !ok || o.ObservedAt.Before(cur.ObservedAt) {
			earliest[k] = o
		}
	}
	out := make([]discovery.Observation, 0, len(earliest))
	for _, o := range earliest {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].ObservedAt.Before(out[j].ObservedAt)
		}
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].SourceURL < out[j].SourceURL
	})
	return out
}

var confidenceRank = map[string]int{
	discovery.ConfidenceLow:    1,
	discovery.ConfidenceMedium: 2,
	discovery.ConfidenceHigh:   3,
}

func pickConfidence(a, b string) string {
	if confidenceRank[b] > confidenceRank[a] {
		return b
	}
	if a == "" {
		return b
	}
	return a
}

// equalButTimestamps reports whether two records carry the same content,
// ignoring LastUpdatedAt, so unchanged re-observations are not re-emitted.
// CanonicalRecord holds slices, so the comparison is spelled out field by
// field rather than with ==.
func equalButTimestamps(a, b discovery.CanonicalRecord) bool {
	if a.EntityKey != b.EntityKey ||
		a.Name != b.Name ||
		a.RegistrationID != b.RegistrationID ||
		a.Website != b.Website ||
		a.Location != b.Location ||
		a.Description != b.Description ||
		a.FundingStage != b.FundingStage ||
		a.Confidence != b.Confidence ||
		!a.FirstSeenAt.Equal(b.FirstSeenAt) {
		return false
	}
	if !equalStrings(a.IndustryTags, b.IndustryTags) ||
		!equalStrings(a.AuthoritativeFields, b.AuthoritativeFields) {
		return false
	}
	if len(a.Founders) != len(b.Founders) {
		return false
	}
	for i := range a.Founders {
		if a.Founders[i] != b.Founders[i] {
			return false
		}
	}
	if len(a.Provenance) != len(b.Provenance) {
		return false
	}
	for i := range a.Provenance {
		if a.Provenance[i].SourceID != b.Provenance[i].SourceID ||
			a.Provenance[i].SourceURL != b.Provenance[i].SourceURL ||
			!a.Provenance[i].ObservedAt.Equal(b.Provenance[i].ObservedAt) {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
