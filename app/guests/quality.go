package guests

import (
	"github.com/lysyi3m/podcast-influence-tracker/app/database"
)

// Point table for CalculateQualityScore. Categories sum to 100.
//
//	identity      20  full name 8, email 8, phone 4
//	professional  25  company 7, role 7, industry 4, bio 4, headshot 3
//	social        20  linkedin 10, twitter 4, website 4, youtube 2
//	location      10  city 4, state/region 2, country 4
//	expertise     10  expertise areas 4, past companies 2, education 2, achievements 2
//	enrichment    10  enriched 6, linkedin connections 2, any follower count 2
//	verification   5  verified 5
const MaxQualityScore = 100

type scoreRule struct {
	points  int
	present func(g *database.Guest) bool
}

func has(s string) bool { return s != "" }

var qualityRules = []scoreRule{
	// identity
	{8, func(g *database.Guest) bool { return has(g.FullName) || (has(g.FirstName) && has(g.LastName)) }},
	{8, func(g *database.Guest) bool { return has(g.Email) || has(g.EmailHash) }},
	{4, func(g *database.Guest) bool { return has(g.Phone) }},
	// professional
	{7, func(g *database.Guest) bool { return has(g.CurrentCompany) }},
	{7, func(g *database.Guest) bool { return has(g.CurrentRole) }},
	{4, func(g *database.Guest) bool { return has(g.Industry) }},
	{4, func(g *database.Guest) bool { return has(g.Bio) }},
	{3, func(g *database.Guest) bool { return has(g.HeadshotURL) }},
	// social
	{10, func(g *database.Guest) bool { return has(g.LinkedInURL) || has(g.LinkedInURLHash) }},
	{4, func(g *database.Guest) bool { return has(g.TwitterHandle) }},
	{4, func(g *database.Guest) bool { return has(g.WebsiteURL) }},
	{2, func(g *database.Guest) bool { return has(g.YouTubeChannel) }},
	// location
	{4, func(g *database.Guest) bool { return has(g.City) }},
	{2, func(g *database.Guest) bool { return has(g.StateRegion) }},
	{4, func(g *database.Guest) bool { return has(g.Country) }},
	// expertise
	{4, func(g *database.Guest) bool { return len(g.ExpertiseAreas) > 0 }},
	{2, func(g *database.Guest) bool { return len(g.PastCompanies) > 0 }},
	{2, func(g *database.Guest) bool { return len(g.Education) > 0 }},
	{2, func(g *database.Guest) bool { return len(g.Achievements) > 0 }},
	// enrichment
	{6, func(g *database.Guest) bool { return g.EnrichedAt != nil }},
	{2, func(g *database.Guest) bool { return g.LinkedInConnections > 0 }},
	{2, func(g *database.Guest) bool {
		return g.TwitterFollowers > 0 || g.InstagramFollowers > 0 || g.YouTubeSubscribers > 0
	}},
	// verification
	{5, func(g *database.Guest) bool { return g.IsVerified }},
}

// CalculateQualityScore sums the point table over the guest's current field
// presence. It reads nothing but the row, so repeated calls agree.
func CalculateQualityScore(g *database.Guest) int {
	score := 0
	for _, r := range qualityRules {
		if r.present(g) {
			score += r.points
		}
	}
	return min(score, MaxQualityScore)
}
