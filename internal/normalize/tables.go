package normalize

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Place is one resolved location entry in the lookup table.
type Place struct {
	Country string `yaml:"country"`
	State   string `yaml:"state"`
	City    string `yaml:"city"`
}

// Tables holds the externally supplied lookup data: raw location string to
// canonical place, and raw industry term to canonical taxonomy term.
type Tables struct {
	Locations  map[string]Place  `yaml:"locations"`
	Industries map[string]string `yaml:"industries"`
}

// LoadTables reads and merges lookup tables from YAML files. Later files
// override earlier entries, so deployments can layer local additions over a
// base table.
func LoadTables(paths ...string) (*Tables, error) {
	merged := &Tables{
		Locations:  make(map[string]Place),
		Industries: make(map[string]string),
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read lookup table %s: %w", path, err)
		}
		var t Tables
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("parse lookup table %s: %w", path, err)
		}
		for k, v := range t.Locations {
			merged.Locations[tableKey(k)] = v
		}
		for k, v := range t.Industries {
			merged.Industries[tableKey(k)] = v
		}
	}
	return merged, nil
}

// LookupPlace resolves a raw location string, trying the full string first
// and then each comma-separated part, most specific first.
func (t *Tables) LookupPlace(raw string) (Place, bool) {
	if t == nil {
		return Place{}, false
	}
	if p, ok := t.Locations[tableKey(raw)]; ok {
		return p, true
	}
	for _, part := range strings.Split(raw, ",") {
		if p, ok := t.Locations[tableKey(part)]; ok {
			return p, true
		}
	}
	return Place{}, false
}

// LookupIndustry maps a raw industry term to its canonical taxonomy term.
func (t *Tables) LookupIndustry(raw string) (string, bool) {
	if t == nil {
		return "", false
	}
	term, ok := t.Industries[tableKey(raw)]
	return term, ok
}

func tableKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
