package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scoutlabs/scout/internal/discovery"
)

func TestClassifyRegistrationSignalsWinOverNoiseShape(t *testing.T) {
	t.Parallel()
	c := New()

	// A registry item keeps entity status even with a headline-shaped name.
	v := c.Classify(discovery.RawEntity{
		Name:           "How India Innovates Pvt Ltd",
		RegistrationID: "U72900KA2024PTC123456",
	})
	assert.Equal(t, Entity, v.Kind)
	assert.Equal(t, "registration_id", v.Reason)

	v = c.Classify(discovery.RawEntity{
		Name:           "Budget 2024 Analytics",
		RegistryRecord: true,
	})
	assert.Equal(t, Entity, v.Kind)
	assert.Equal(t, "registry_record", v.Reason)
}

func TestClassifyNoiseURL(t *testing.T) {
	t.Parallel()
	c := New()

	v := c.Classify(discovery.RawEntity{
		Name:      "Razorpay Technologies",
		SourceURL: "https://inc42.com/blog/fintech-weekly-roundup/",
		Location:  "Bengaluru",
	})
	assert.Equal(t, Noise, v.Kind)
	assert.Equal(t, "noise_url:blog", v.Reason)
}

func TestClassifyTable(t *testing.T) {
	t.Parallel()
	c := New()

	tests := []struct {
		name   string
		raw    discovery.RawEntity
		want   Kind
		reason string
	}{
		{
			name:   "empty name",
			raw:    discovery.RawEntity{Name: " "},
			want:   Noise,
			reason: "empty_or_too_short_name",
		},
		{
			name: "article headline",
			raw: discovery.RawEntity{
				Name:     "The Fintech Reset",
				Location: "Mumbai",
			},
			want:   Noise,
			reason: "article_title",
		},
		{
			name: "listicle headline",
			raw: discovery.RawEntity{
				Name:     "30 Startups To Watch In 2025",
				Location: "India",
			},
			want:   Noise,
			reason: "article_title",
		},
		{
			name: "stealth placeholder",
			raw: discovery.RawEntity{
				Name:     "Stealth Fintech Startup",
				Location: "Bengaluru",
			},
			want:   Noise,
			reason: "fake_placeholder",
		},
		{
			name: "government programme",
			raw: discovery.RawEntity{
				Name:     "Bharat Vistaar Initiative",
				Location: "New Delhi",
			},
			want:   Noise,
			reason: "government_programme",
		},
		{
			name: "missing every supporting field",
			raw: discovery.RawEntity{
				Name: "Somecompany",
			},
			want:   Noise,
			reason: "missing_required_fields",
		},
		{
			name: "long name without company signals",
			raw: discovery.RawEntity{
				Name:     "reflections on the bengaluru ecosystem this year",
				Location: "Bengaluru",
			},
			want:   Noise,
			reason: "no_company_indicators",
		},
		{
			name: "company suffix",
			raw: discovery.RawEntity{
				Name:     "Graphyne Technologies",
				Industry: "DeepTech",
			},
			want:   Entity,
			reason: "minimum_fields",
		},
		{
			name: "description indicators",
			raw: discovery.RawEntity{
				Name:        "Zephyr Mobility India",
				Description: "Founded in 2024, the startup raised $2M seed funding.",
				Location:    "Pune",
			},
			want:   Entity,
			reason: "minimum_fields",
		},
		{
			name: "short proper noun name",
			raw: discovery.RawEntity{
				Name:     "Acme Labs",
				Location: "Jaipur",
			},
			want:   Entity,
			reason: "minimum_fields",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v := c.Classify(tc.raw)
			assert.Equal(t, tc.want, v.Kind, "verdict kind")
			assert.Equal(t, tc.reason, v.Reason, "verdict reason")
		})
	}
}
