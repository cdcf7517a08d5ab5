package classify

import "regexp"

// URL path segments that mark editorial or media containers rather than
// entity listings.
var noisePathSegments = []string{
	"/blog/",
	"/news/",
	"/press/",
	"/podcast/",
	"/podcasts/",
	"/features/",
	"/stories/",
	"/newsletter/",
	"/feed/",
	"/rss/",
	"/datalabs/",
	"/webinar/",
	"/events/",
}

// articlePatterns catch headline-shaped names that sources sometimes list
// alongside companies.
var articlePatterns = compileAll(
	`the\s+\w+\s+reset`,
	`the\s+future\s+of`,
	`union\s+budget`,
	`budget\s+\d{4}`,
	`how\s+\w+\s+(is|are|will)`,
	`why\s+\w+\s+matters`,
	`^inside\s+`,
	`^beyond\s+`,
	`^meet\s+the`,
	`\d+\s+startups\s+to`,
	`what\s+(is|are)\s+\w+`,
	`when\s+\w+\s+(is|are)`,
	`where\s+\w+\s+(is|are)`,
	`who\s+\w+\s+(is|are)`,
	`guide\s+to`,
	`explained`,
	`analysis`,
	`report`,
	`study`,
	`trends?`,
)

// fakePatterns catch placeholders and unverifiable stealth entries.
var fakePatterns = compileAll(
	`^stealth\s+(mode\s+)?(startup|fintech|saas|ai|company|venture)`,
	`^stealth\s*$`,
	`^unknown\s+`,
	`^tbd$`,
	`^placeholder$`,
	`^test\s+`,
	`^sample\s+`,
)

// governmentPatterns catch state programmes and portals, which are not
// startups even when a directory lists them as such.
var governmentPatterns = compileAll(
	`bharat\s+vistaar`,
	`government\s+of`,
	`ministry\s+of`,
	`department\s+of`,
	`initiative`,
	`scheme`,
	`programme`,
	`portal`,
)

// companyIndicators are description phrases that only appear when the item
// describes an operating company.
var companyIndicators = compileAll(
	`founded\s+(in|by|on)`,
	`(ceo|founder|co-founder|cto|cfo|chief)\s*[:@]`,
	`headquartered\s+in`,
	`based\s+in`,
	`(raised|secured|closed)\s+\$?\d+`,
	`(seed|series\s+[a-d]|pre-seed|angel|venture)\s+(funding|round|investment)`,
	`(product|platform|app|solution|service|software)\s+(that|which|for|to|helps)`,
	`(customers?|clients?|users?|enterprises?)\s+`,
	`startup`,
	`headquarters`,
	`office\s+in`,
)

// companySuffixes are naming conventions strongly associated with
// incorporated entities.
var companySuffixes = compileAll(
	`\b(pvt|private)\s*(limited|ltd)`,
	`\b(technologies|tech|solutions|services|labs|ventures|innovations|systems|software|digital|data|ai|analytics|cloud|network|media|studios|group|holdings|enterprises|corp|corporation)\b`,
	`\.(ai|io|co|app|tech|dev|cloud)\b`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

func matchAny(rules []*regexp.Regexp, s string) bool {
	if s == "" {
		return false
	}
	for _, r := range rules {
		if r.MatchString(s) {
			return true
		}
	}
	return false
}
