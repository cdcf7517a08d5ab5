// Package linkedin fetches company results from the LinkedIn voyager search
// API. Access rides on session cookies supplied by configuration; missing or
// stale cookies fail this source without touching the others.
package linkedin

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scoutlabs/scout/internal/clock/system"
	"github.com/scoutlabs/scout/internal/discovery"
	"github.com/scoutlabs/scout/internal/source"
)

const sourceID = "linkedin"

// Config holds adapter settings. LiAt and JSessionID are the session cookies
// the voyager API authenticates with; they come from the environment or
// config file, never hard-coded. Clock defaults to the system clock.
type Config struct {
	BaseURL    string
	Keywords   []string
	LiAt       string
	JSessionID string
	Country    string
	PageSize   int
	MaxPages   int
	Timeout    time.Duration
	UserAgent  string
	RPS        float64
	Burst      int
	Clock      discovery.Clock
}

// Adapter implements discovery.SourceAdapter for LinkedIn company search.
type Adapter struct {
	cfg    Config
	client *source.Client
	caller source.Caller
	logger *zap.Logger
}

// New constructs the adapter.
func New(cfg Config, caller source.Caller, logger *zap.Logger) *Adapter {
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = []string{
			"startup india", "fintech india", "saas india", "ai startup india",
		}
	}
	if cfg.Country == "" {
		cfg.Country = "india"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
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

type searchResponse struct {
	Elements []searchElement `json:"elements"`
}

type searchElement struct {
	Company companyResult `json:"company"`
}

type companyResult struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Industries  []string `json:"industries"`
	Locations   []string `json:"locations"`
	StaffCount  int      `json:"staffCount"`
	Websites    []struct {
		URL string `json:"url"`
	} `json:"websites"`
}

// Fetch walks each search keyword, paging by offset. Keywords re-surface
// mostly the same companies run over run; dedup downstream absorbs that. The
// cursor records the first unfinished keyword so a failed run resumes there.
func (a *Adapter) Fetch(ctx context.Context, wm discovery.Watermark, emit discovery.EmitFunc) (discovery.Watermark, error) {
	if a.cfg.LiAt == "" || a.cfg.JSessionID == "" {
		return wm, fmt.Errorf("%w: no linkedin session cookies configured", discovery.ErrAuthExpired)
	}

	start := 0
	for i, kw := range a.cfg.Keywords {
		if kw == wm.Cursor {
			start = i
			break
		}
	}

	headers := a.headers()
	for i := start; i < len(a.cfg.Keywords); i++ {
		keyword := a.cfg.Keywords[i]
		for page := 0; page < a.cfg.MaxPages; page++ {
			var resp searchResponse
			pageURL := a.pageURL(keyword, page*a.cfg.PageSize)
			err := a.caller.Do(ctx, sourceID, func(ctx context.Context) error {
				return a.client.GetJSON(ctx, pageURL, headers, &resp)
			})
			if err != nil {
				return discovery.Watermark{Since: wm.Since, Cursor: keyword}, err
			}
			if len(resp.Elements) == 0 {
				break
			}

			now := a.cfg.Clock.Now().UTC()
			for _, el := range resp.Elements {
				raw, perr := a.toRaw(el.Company, pageURL, now)
				if perr != nil {
					a.logger.Warn("skipping malformed search result", zap.Error(perr))
					continue
				}
				if raw.Name == "" {
					// Outside the configured country.
					continue
				}
				if err := emit(raw); err != nil {
					return wm, err
				}
			}
			if len(resp.Elements) < a.cfg.PageSize {
				break
			}
		}
	}
	return discovery.Watermark{Since: a.cfg.Clock.Now().UTC()}, nil
}

// headers carry the session cookies plus the protocol headers the voyager
// API rejects requests without.
func (a *Adapter) headers() map[string]string {
	return map[string]string{
		"Accept":                    "application/vnd.linkedin.normalized+json+2.1",
		"X-Restli-Protocol-Version": "2.0.0",
		"Csrf-Token":                a.cfg.JSessionID,
		"Cookie":                    fmt.Sprintf(`li_at=%s; JSESSIONID="%s"`, a.cfg.LiAt, a.cfg.JSessionID),
	}
}

func (a *Adapter) pageURL(keyword string, offset int) string {
	q := url.Values{}
	q.Set("keywords", keyword)
	q.Set("origin", "GLOBAL_SEARCH_HEADER")
	q.Set("start", strconv.Itoa(offset))
	q.Set("count", strconv.Itoa(a.cfg.PageSize))
	q.Set("filters", "List(resultType->COMPANIES)")
	return a.cfg.BaseURL + "?" + q.Encode()
}

func (a *Adapter) toRaw(c companyResult, pageURL string, fetchedAt time.Time) (discovery.RawEntity, error) {
	if c.Name == "" {
		return discovery.RawEntity{}, &discovery.ParseError{
			SourceID: sourceID,
			Item:     pageURL,
			Err:      fmt.Errorf("search result missing company name"),
		}
	}
	location := a.countryLocation(c.Locations)
	if location == "" {
		return discovery.RawEntity{Name: ""}, nil
	}

	var website string
	if len(c.Websites) > 0 {
		website = c.Websites[0].URL
	}
	raw := discovery.RawEntity{
		SourceID:    sourceID,
		SourceURL:   pageURL,
		FetchedAt:   fetchedAt,
		Name:        c.Name,
		Website:     website,
		Description: c.Description,
		Location:    location,
		Industry:    strings.Join(c.Industries, ", "),
	}
	if c.StaffCount > 0 {
		raw.Fields = map[string]string{"staff_count": strconv.Itoa(c.StaffCount)}
	}
	return raw, nil
}

func (a *Adapter) countryLocation(locations []string) string {
	target := strings.ToLower(a.cfg.Country)
	for _, loc := range locations {
		if strings.Contains(strings.ToLower(loc), target) {
			return loc
		}
	}
	return ""
}
