package guests

import (
	"context"
	"log/slog"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
)

const (
	MatchEmail    = "email"
	MatchLinkedIn = "linkedin"
)

// DuplicateGroup is a candidate set of guests believed to be one person.
type DuplicateGroup struct {
	MatchedOn         []string `json:"matched_on"`
	GuestIDs          []int64  `json:"guest_ids"`
	SuggestedMasterID int64    `json:"suggested_master_id"`
}

// FindDuplicates groups non-merged guests that share an email hash or a LinkedIn
// hash. Groups that share a member are joined, so every guest appears in at most
// one group. Members are ordered best quality first (lower id on ties) and the
// first member is the suggested master.
func (e *Engine) FindDuplicates(ctx context.Context) ([]DuplicateGroup, error) {
	hashed, err := e.guests.ListHashed(ctx)
	if err != nil {
		return nil, err
	}
	return groupDuplicates(hashed), nil
}

func groupDuplicates(guests []database.Guest) []DuplicateGroup {
	// guests arrive sorted by quality desc, id asc; position doubles as rank
	uf := newUnionFind(len(guests))
	matched := make([]map[string]bool, len(guests))
	for i := range matched {
		matched[i] = map[string]bool{}
	}

	link := func(kind string, key func(g *database.Guest) string) {
		first := make(map[string]int)
		for i := range guests {
			k := key(&guests[i])
			if k == "" {
				continue
			}
			if j, ok := first[k]; ok {
				uf.union(i, j)
				matched[i][kind] = true
				matched[j][kind] = true
				continue
			}
			first[k] = i
		}
	}
	link(MatchEmail, func(g *database.Guest) string { return g.EmailHash })
	link(MatchLinkedIn, func(g *database.Guest) string { return g.LinkedInURLHash })

	members := make(map[int][]int)
	var roots []int
	for i := range guests {
		r := uf.find(i)
		if _, ok := members[r]; !ok {
			roots = append(roots, r)
		}
		members[r] = append(members[r], i)
	}

	var groups []DuplicateGroup
	for _, r := range roots {
		idx := members[r]
		if len(idx) < 2 {
			continue
		}
		g := DuplicateGroup{}
		kinds := map[string]bool{}
		for _, i := range idx {
			g.GuestIDs = append(g.GuestIDs, guests[i].ID)
			for k := range matched[i] {
				kinds[k] = true
			}
		}
		for _, k := range []string{MatchEmail, MatchLinkedIn} {
			if kinds[k] {
				g.MatchedOn = append(g.MatchedOn, k)
			}
		}
		g.SuggestedMasterID = g.GuestIDs[0]
		groups = append(groups, g)
	}
	return groups
}

// AutoMergeReport collects the per-pair outcomes of an automatic merge batch.
type AutoMergeReport struct {
	DryRun  bool          `json:"dry_run"`
	Groups  int           `json:"groups"`
	Merged  int           `json:"merged"`
	Failed  int           `json:"failed"`
	Results []MergeResult `json:"results"`
}

// AutoMergeObviousDuplicates merges guests that share both an email hash and a
// LinkedIn hash into the best-quality member of their group. A failed pair is
// recorded and the batch continues.
func (e *Engine) AutoMergeObviousDuplicates(ctx context.Context, dryRun bool) (AutoMergeReport, error) {
	report := AutoMergeReport{DryRun: dryRun, Results: []MergeResult{}}

	hashed, err := e.guests.ListHashed(ctx)
	if err != nil {
		return report, err
	}

	type key struct{ email, linkedin string }
	groups := make(map[key][]int64)
	var order []key
	for _, g := range hashed {
		if g.EmailHash == "" || g.LinkedInURLHash == "" {
			continue
		}
		k := key{g.EmailHash, g.LinkedInURLHash}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], g.ID)
	}

	for _, k := range order {
		ids := groups[k]
		if len(ids) < 2 {
			continue
		}
		report.Groups++
		master := ids[0]
		for _, dup := range ids[1:] {
			res, err := e.ExecuteMerge(ctx, master, dup, dryRun)
			if err != nil {
				res = MergeResult{MasterID: master, DuplicateID: dup, DryRun: dryRun, Error: err.Error(), FieldsTransferred: []string{}}
			}
			if res.Success {
				report.Merged++
			} else {
				report.Failed++
			}
			report.Results = append(report.Results, res)
		}
	}

	slog.Info("Auto-merge finished", "dry_run", dryRun, "groups", report.Groups, "merged", report.Merged, "failed", report.Failed)
	return report, nil
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

// union keeps the lower index as root so a group's root is its best-ranked member.
func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	u.parent[max(ra, rb)] = min(ra, rb)
}
