package enrichment

import (
	"time"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
)

const day = 24 * time.Hour

// Tier is a follower bracket. Counts below Below fall into it; each bracket's
// lower bound belongs to it, so 1000 followers is already in the 60-day tier.
type Tier struct {
	Name     string
	Below    int64
	Interval time.Duration
}

var Tiers = []Tier{
	{Name: "micro", Below: 1_000, Interval: 90 * day},
	{Name: "small", Below: 10_000, Interval: 60 * day},
	{Name: "medium", Below: 100_000, Interval: 30 * day},
	{Name: "large", Below: 1_000_000, Interval: 14 * day},
	{Name: "mega", Below: -1, Interval: 7 * day},
}

// TierFor returns the refresh tier for an audience size.
func TierFor(followers int64) Tier {
	for _, t := range Tiers {
		if t.Below < 0 || followers < t.Below {
			return t
		}
	}
	return Tiers[len(Tiers)-1]
}

func RefreshInterval(followers int64) time.Duration {
	return TierFor(followers).Interval
}

// ExpiresAt is when a metric fetched at fetchedAt becomes stale.
func ExpiresAt(followers int64, fetchedAt time.Time) time.Time {
	return fetchedAt.Add(RefreshInterval(followers))
}

// EstimateCost prices one fetch per platform. Platforms missing from the table cost nothing.
func EstimateCost(platforms []database.Platform, prices map[database.Platform]float64) float64 {
	var total float64
	for _, p := range platforms {
		total += prices[p]
	}
	return total
}
