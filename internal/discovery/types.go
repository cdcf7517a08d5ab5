// Package discovery defines the core types and contracts shared by the
// discovery pipeline: raw source items, the canonical record schema,
// watermarks, and run reporting.
package discovery

import "time"

// RawEntity is one loosely-typed item as produced by a source adapter.
// It is transient: it exists only between fetch and normalization and is
// never persisted.
type RawEntity struct {
	SourceID  string
	SourceURL string
	FetchedAt time.Time

	// Best-effort extracted fields. Adapters fill what their source exposes;
	// everything else stays empty.
	Name           string
	Website        string
	Description    string
	Location       string
	Industry       string
	FundingStage   string
	RegistrationID string
	Founders       []string

	// RegistryRecord is set by adapters whose source is an official registry,
	// where every listed item is an incorporated entity by construction.
	RegistryRecord bool

	// Fields carries any remaining source-specific key/values that do not map
	// onto the typed fields above.
	Fields map[string]string
}

// Location is the canonicalized place a record belongs to.
type Location struct {
	Country string `json:"country,omitempty"`
	State   string `json:"state,omitempty"`
	City    string `json:"city,omitempty"`
	// Raw keeps the lowercase-trimmed input when the lookup table could not
	// resolve it; Unresolved marks that case.
	Raw        string `json:"raw,omitempty"`
	Unresolved bool   `json:"unresolved,omitempty"`
}

// Founder is one founder observation with whatever contact hints the source
// carried.
type Founder struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
}

// Observation records one source sighting that contributed to a record.
type Observation struct {
	SourceID   string    `json:"source_id"`
	SourceURL  string    `json:"source_url"`
	ObservedAt time.Time `json:"observed_at"`
}

// Confidence buckets mirror the scoring applied before hand-off.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// CanonicalRecord is the unit of truth emitted on the feed. One record per
// real-world entity; only the identity resolver mutates an existing record.
type CanonicalRecord struct {
	EntityKey      string        `json:"entity_key"`
	Name           string        `json:"name"`
	RegistrationID string        `json:"registration_id,omitempty"`
	Website        string        `json:"website,omitempty"`
	Location       Location      `json:"location"`
	IndustryTags   []string      `json:"industry_tags,omitempty"`
	Description    string        `json:"description,omitempty"`
	FundingStage   string        `json:"funding_stage,omitempty"`
	Founders       []Founder     `json:"founders,omitempty"`
	Confidence     string        `json:"confidence,omitempty"`
	Provenance     []Observation `json:"provenance"`
	FirstSeenAt    time.Time     `json:"first_seen_at"`
	LastUpdatedAt  time.Time     `json:"last_updated_at"`

	// AuthoritativeFields lists, sorted, the fields whose current values were
	// observed on a registry source. A registry-set value is only ever filled,
	// never replaced, by a directory observation.
	AuthoritativeFields []string `json:"authoritative_fields,omitempty"`
}

// Watermark marks how far a previous run progressed for one source. Since is
// the time floor for incremental sources; Cursor is an opaque pagination token
// for sources that resume mid-listing.
type Watermark struct {
	Since  time.Time `json:"since"`
	Cursor string    `json:"cursor,omitempty"`
}

// SourceStatus is the per-source outcome of one run.
type SourceStatus string

// Source outcomes surfaced in the run summary.
const (
	SourceOK          SourceStatus = "ok"
	SourceFailed      SourceStatus = "failed"
	SourceAuthExpired SourceStatus = "auth_expired"
	SourceCircuitOpen SourceStatus = "circuit_open"
)

// SourceReport aggregates counters for one source within a run.
type SourceReport struct {
	SourceID     string       `json:"source_id"`
	Status       SourceStatus `json:"status"`
	Fetched      int          `json:"fetched"`
	Admitted     int          `json:"admitted"`
	NoiseDropped int          `json:"noise_dropped"`
	Err          string       `json:"error,omitempty"`
}

// RunStatus is the overall outcome of a discovery run.
type RunStatus string

// Run outcomes. A run fails only on pipeline-level conditions; individual
// source failures yield RunPartial.
const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// RunSummary is the full report for one discovery run.
type RunSummary struct {
	RunID      string         `json:"run_id"`
	Status     RunStatus      `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Sources    []SourceReport `json:"sources"`
	Created    int            `json:"created"`
	Merged     int            `json:"merged"`
	Emitted    int            `json:"emitted"`
	Err        string         `json:"error,omitempty"`
}

// ExitCode maps the run status onto the documented CLI exit codes.
func (s RunStatus) ExitCode() int {
	switch s {
	case RunSuccess:
		return 0
	case RunPartial:
		return 1
	default:
		return 2
	}
}
