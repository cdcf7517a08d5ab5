// Package angellist fetches early-stage companies from the Wellfound
// (formerly AngelList) GraphQL search API, filtered to a configured location
// and funding stages.
package angellist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scoutlabs/scout/internal/clock/system"
	"github.com/scoutlabs/scout/internal/discovery"
	"github.com/scoutlabs/scout/internal/source"
)

const sourceID = "angellist"

// searchQuery pages company search results by cursor. The server applies the
// location and stage filters, so a page holds only relevant companies.
const searchQuery = `query SearchCompanies($first: Int!, $after: String, $filters: CompanySearchFilters!) {
  searchCompanies(first: $first, after: $after, filters: $filters) {
    edges {
      node { name slug websiteUrl oneLiner locations industries fundingStage employeeCount }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

// Config holds adapter settings. Clock defaults to the system clock.
type Config struct {
	GraphQLURL string
	Location   string
	Stages     []string
	PageSize   int
	MaxPages   int
	Timeout    time.Duration
	UserAgent  string
	RPS        float64
	Burst      int
	Clock      discovery.Clock
}

// Adapter implements discovery.SourceAdapter for Wellfound company search.
type Adapter struct {
	cfg    Config
	client *source.Client
	caller source.Caller
	logger *zap.Logger
}

// New constructs the adapter.
func New(cfg Config, caller source.Caller, logger *zap.Logger) *Adapter {
	if cfg.Location == "" {
		cfg.Location = "india"
	}
	if len(cfg.Stages) == 0 {
		cfg.Stages = []string{"seed", "series_a", "series_b", "early_stage"}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 15
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	return &Adapter{
		cfg:    cfg,
		client: source.NewClient(cfg.Timeout, cfg.UserAgent),
		caller: caller,
		logger: logger.With(zap.String("source_id", sourceID)),
	}
}

// SourceID implements discovery.SourceAdapter.
func (a *Adapter) SourceID() string { return sourceID }

// RateLimit implements discovery.SourceAdapter.
func (a *Adapter) RateLimit() discovery.Rate {
	return discovery.Rate{RequestsPerSecond: a.cfg.RPS, Burst: a.cfg.Burst}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type searchResponse struct {
	Data struct {
		SearchCompanies struct {
			Edges []struct {
				Node companyNode `json:"node"`
			} `json:"edges"`
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
		} `json:"searchCompanies"`
	} `json:"data"`
}

type companyNode struct {
	Name          string   `json:"name"`
	Slug          string   `json:"slug"`
	WebsiteURL    string   `json:"websiteUrl"`
	OneLiner      string   `json:"oneLiner"`
	Locations     []string `json:"locations"`
	Industries    []string `json:"industries"`
	FundingStage  string   `json:"fundingStage"`
	EmployeeCount int      `json:"employeeCount"`
}

// Fetch pages the search by opaque cursor, resuming from the watermark when a
// previous run stopped mid-listing.
func (a *Adapter) Fetch(ctx context.Context, wm discovery.Watermark, emit discovery.EmitFunc) (discovery.Watermark, error) {
	cursor := wm.Cursor

	for page := 0; page < a.cfg.MaxPages; page++ {
		var resp searchResponse
		err := a.caller.Do(ctx, sourceID, func(ctx context.Context) error {
			return a.client.PostJSON(ctx, a.cfg.GraphQLURL, nil, a.request(cursor), &resp)
		})
		if err != nil {
			return discovery.Watermark{Since: wm.Since, Cursor: cursor}, err
		}

		now := a.cfg.Clock.Now().UTC()
		for _, edge := range resp.Data.SearchCompanies.Edges {
			raw, perr := a.toRaw(edge.Node, now)
			if perr != nil {
				a.logger.Warn("skipping malformed company node", zap.Error(perr))
				continue
			}
			if err := emit(raw); err != nil {
				return wm, err
			}
		}

		info := resp.Data.SearchCompanies.PageInfo
		if !info.HasNextPage || info.EndCursor == "" {
			break
		}
		cursor = info.EndCursor
	}
	return discovery.Watermark{Since: a.cfg.Clock.Now().UTC()}, nil
}

func (a *Adapter) request(cursor string) graphQLRequest {
	vars := map[string]any{
		"first": a.cfg.PageSize,
		"filters": map[string]any{
			"locations":     []string{a.cfg.Location},
			"companyStages": a.cfg.Stages,
		},
	}
	if cursor != "" {
		vars["after"] = cursor
	}
	return graphQLRequest{Query: searchQuery, Variables: vars}
}

func (a *Adapter) toRaw(node companyNode, fetchedAt time.Time) (discovery.RawEntity, error) {
	if node.Name == "" {
		return discovery.RawEntity{}, &discovery.ParseError{
			SourceID: sourceID,
			Item:     node.Slug,
			Err:      fmt.Errorf("company node missing name"),
		}
	}

	website := node.WebsiteURL
	profileURL := "https://wellfound.com/company/" + node.Slug
	if website == "" {
		website = profileURL
	}

	raw := discovery.RawEntity{
		SourceID:     sourceID,
		SourceURL:    profileURL,
		FetchedAt:    fetchedAt,
		Name:         node.Name,
		Website:      website,
		Description:  node.OneLiner,
		Location:     pickLocation(node.Locations, a.cfg.Location),
		Industry:     strings.Join(node.Industries, ", "),
		FundingStage: strings.ToLower(node.FundingStage),
	}
	if node.EmployeeCount > 0 {
		raw.Fields = map[string]string{"employee_count": fmt.Sprintf("%d", node.EmployeeCount)}
	}
	return raw, nil
}

// pickLocation prefers the location matching the configured filter; the
// server already filtered, so anything else is a secondary office.
func pickLocation(locations []string, target string) string {
	for _, loc := range locations {
		if strings.Contains(strings.ToLower(loc), strings.ToLower(target)) {
			return loc
		}
	}
	if len(locations) > 0 {
		return locations[0]
	}
	return ""
}
