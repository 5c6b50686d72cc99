package guests

import (
	"maps"
	"slices"
	"time"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
)

// Updates maps a guest column to the value it should take on the master.
type Updates map[string]any

// Fields returns the updated column names in sorted order.
func (u Updates) Fields() []string {
	return slices.Sorted(maps.Keys(u))
}

type textField struct {
	column string
	ptr    func(g *database.Guest) *string
}

var textFields = []textField{
	{"full_name", func(g *database.Guest) *string { return &g.FullName }},
	{"first_name", func(g *database.Guest) *string { return &g.FirstName }},
	{"last_name", func(g *database.Guest) *string { return &g.LastName }},
	{"email", func(g *database.Guest) *string { return &g.Email }},
	{"phone", func(g *database.Guest) *string { return &g.Phone }},
	{"linkedin_url", func(g *database.Guest) *string { return &g.LinkedInURL }},
	{"twitter_handle", func(g *database.Guest) *string { return &g.TwitterHandle }},
	{"instagram_handle", func(g *database.Guest) *string { return &g.InstagramHandle }},
	{"youtube_channel", func(g *database.Guest) *string { return &g.YouTubeChannel }},
	{"website_url", func(g *database.Guest) *string { return &g.WebsiteURL }},
	{"headshot_url", func(g *database.Guest) *string { return &g.HeadshotURL }},
	{"current_company", func(g *database.Guest) *string { return &g.CurrentCompany }},
	{"current_role", func(g *database.Guest) *string { return &g.CurrentRole }},
	{"industry", func(g *database.Guest) *string { return &g.Industry }},
	{"bio", func(g *database.Guest) *string { return &g.Bio }},
	{"city", func(g *database.Guest) *string { return &g.City }},
	{"state_region", func(g *database.Guest) *string { return &g.StateRegion }},
	{"country", func(g *database.Guest) *string { return &g.Country }},
}

// hash columns follow the same fill-if-empty rule as text
var hashFields = []textField{
	{"email_hash", func(g *database.Guest) *string { return &g.EmailHash }},
	{"linkedin_url_hash", func(g *database.Guest) *string { return &g.LinkedInURLHash }},
}

type listField struct {
	column string
	ptr    func(g *database.Guest) *database.StringList
}

var listFields = []listField{
	{"expertise_areas", func(g *database.Guest) *database.StringList { return &g.ExpertiseAreas }},
	{"past_companies", func(g *database.Guest) *database.StringList { return &g.PastCompanies }},
	{"education", func(g *database.Guest) *database.StringList { return &g.Education }},
	{"achievements", func(g *database.Guest) *database.StringList { return &g.Achievements }},
}

type countField struct {
	column string
	ptr    func(g *database.Guest) *int64
}

var countFields = []countField{
	{"linkedin_connections", func(g *database.Guest) *int64 { return &g.LinkedInConnections }},
	{"twitter_followers", func(g *database.Guest) *int64 { return &g.TwitterFollowers }},
	{"instagram_followers", func(g *database.Guest) *int64 { return &g.InstagramFollowers }},
	{"youtube_subscribers", func(g *database.Guest) *int64 { return &g.YouTubeSubscribers }},
}

type scoreField struct {
	column string
	ptr    func(g *database.Guest) *int
}

var scoreFields = []scoreField{
	{"data_quality_score", func(g *database.Guest) *int { return &g.DataQualityScore }},
	{"verification_score", func(g *database.Guest) *int { return &g.VerificationScore }},
}

// SmartMerge computes what the master should gain from the duplicate. Neither
// argument is modified. Populated master values always win; lists are unioned;
// counts take the larger side; enrichment moves over only when the duplicate's
// is newer.
func SmartMerge(master, duplicate *database.Guest) Updates {
	u := Updates{}

	for _, f := range append(slices.Clone(textFields), hashFields...) {
		m, d := *f.ptr(master), *f.ptr(duplicate)
		if m == "" && d != "" {
			u[f.column] = d
		}
	}

	for _, f := range listFields {
		m, d := *f.ptr(master), *f.ptr(duplicate)
		switch {
		case len(d) == 0:
		case len(m) == 0:
			u[f.column] = slices.Clone(d)
		default:
			if merged := union(m, d); len(merged) > len(m) {
				u[f.column] = merged
			}
		}
	}

	for _, f := range countFields {
		if d := *f.ptr(duplicate); d > *f.ptr(master) {
			u[f.column] = d
		}
	}
	for _, f := range scoreFields {
		if d := *f.ptr(duplicate); d > *f.ptr(master) {
			u[f.column] = d
		}
	}

	if duplicate.IsVerified && !master.IsVerified {
		u["is_verified"] = true
	}

	if master.ClaimedByUserID == nil && duplicate.ClaimedByUserID != nil {
		u["claimed_by_user_id"] = *duplicate.ClaimedByUserID
	}

	if duplicate.EnrichedAt != nil && (master.EnrichedAt == nil || duplicate.EnrichedAt.After(*master.EnrichedAt)) {
		u["enriched_at"] = *duplicate.EnrichedAt
		u["enrichment_provider"] = duplicate.EnrichmentProvider
		u["enrichment_level"] = duplicate.EnrichmentLevel
	}

	return u
}

// Apply writes updates onto g.
func Apply(g *database.Guest, u Updates) {
	for _, f := range append(slices.Clone(textFields), hashFields...) {
		if v, ok := u[f.column].(string); ok {
			*f.ptr(g) = v
		}
	}
	for _, f := range listFields {
		if v, ok := u[f.column].(database.StringList); ok {
			*f.ptr(g) = v
		}
	}
	for _, f := range countFields {
		if v, ok := u[f.column].(int64); ok {
			*f.ptr(g) = v
		}
	}
	for _, f := range scoreFields {
		if v, ok := u[f.column].(int); ok {
			*f.ptr(g) = v
		}
	}
	if v, ok := u["is_verified"].(bool); ok {
		g.IsVerified = v
	}
	if v, ok := u["claimed_by_user_id"].(int64); ok {
		g.ClaimedByUserID = &v
	}
	if v, ok := u["enriched_at"].(time.Time); ok {
		g.EnrichedAt = &v
		g.EnrichmentProvider, _ = u["enrichment_provider"].(string)
		g.EnrichmentLevel, _ = u["enrichment_level"].(string)
	}
}

// union keeps a's order and appends values of b not already present.
func union(a, b database.StringList) database.StringList {
	out := slices.Clone(a)
	for _, v := range b {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
