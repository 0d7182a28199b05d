package recon

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// AssetGraph is the deduplicated set of findings for one scan, keyed by
// (kind, normalized value). Not safe for concurrent writers; the scheduler
// merges under a single-writer discipline.
type AssetGraph struct {
	entries map[string]Finding
}

func NewAssetGraph() *AssetGraph {
	return &AssetGraph{entries: make(map[string]Finding)}
}

// FromFindings rebuilds a graph from a stored report.
func FromFindings(fs []Finding) *AssetGraph {
	g := NewAssetGraph()
	g.Merge(fs...)
	return g
}

// Merge folds findings into the graph. Idempotent, commutative and
// associative: merge order never affects the resulting graph. On a key
// collision the tool tags are unioned and the earliest FirstSeen wins;
// the first non-empty metadata is kept. Metadata disagreement is an
// aggregation conflict: logged, never surfaced.
func (g *AssetGraph) Merge(fs ...Finding) {
	for _, f := range fs {
		if f.Value == "" {
			continue
		}
		key := f.Key()
		existing, ok := g.entries[key]
		if !ok {
			c := f.clone()
			sort.Strings(c.Tools)
			g.entries[key] = c
			continue
		}
		merged := existing.clone()
		merged.Tools = unionTools(existing.Tools, f.Tools)
		if !f.FirstSeen.IsZero() && (merged.FirstSeen.IsZero() || f.FirstSeen.Before(merged.FirstSeen)) {
			merged.FirstSeen = f.FirstSeen
		}
		if len(merged.Meta) == 0 && len(f.Meta) > 0 {
			merged.Meta = f.clone().Meta
		} else if metaDisagrees(merged.Meta, f.Meta) {
			logrus.WithFields(logrus.Fields{
				"kind":  f.Kind,
				"value": f.Value,
				"tools": f.Tools,
			}).Warn("aggregation conflict: metadata disagrees, keeping first")
		}
		g.entries[key] = merged
	}
}

func unionTools(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, t := range a {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	for _, t := range b {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

func metaDisagrees(have, incoming map[string]string) bool {
	if len(have) == 0 || len(incoming) == 0 {
		return false
	}
	for k, v := range incoming {
		if hv, ok := have[k]; ok && hv != v {
			return true
		}
	}
	return false
}

// Size returns the number of distinct findings.
func (g *AssetGraph) Size() int { return len(g.entries) }

// Findings returns all findings ordered by kind then value.
func (g *AssetGraph) Findings() []Finding {
	out := make([]Finding, 0, len(g.entries))
	for _, f := range g.entries {
		out = append(out, f.clone())
	}
	sortFindings(out)
	return out
}

// ByKind returns findings of one kind, ordered by value.
func (g *AssetGraph) ByKind(kind FindingKind) []Finding {
	var out []Finding
	for _, f := range g.entries {
		if f.Kind == kind {
			out = append(out, f.clone())
		}
	}
	sortFindings(out)
	return out
}

// ByTool returns findings that carry the given source tool tag.
func (g *AssetGraph) ByTool(tool string) []Finding {
	var out []Finding
	for _, f := range g.entries {
		for _, t := range f.Tools {
			if t == tool {
				out = append(out, f.clone())
				break
			}
		}
	}
	sortFindings(out)
	return out
}

// Counts returns the number of findings per kind.
func (g *AssetGraph) Counts() map[FindingKind]int {
	out := make(map[FindingKind]int)
	for _, f := range g.entries {
		out[f.Kind]++
	}
	return out
}

// GraphDiff is the result of comparing two graphs for the same target.
type GraphDiff struct {
	Added   []Finding `json:"added"`
	Removed []Finding `json:"removed"`
}

// Diff reports findings present here but not in prior (Added) and findings
// present in prior but not here (Removed). A nil prior means everything is new.
func (g *AssetGraph) Diff(prior *AssetGraph) GraphDiff {
	var d GraphDiff
	for key, f := range g.entries {
		if prior == nil {
			d.Added = append(d.Added, f.clone())
			continue
		}
		if _, ok := prior.entries[key]; !ok {
			d.Added = append(d.Added, f.clone())
		}
	}
	if prior != nil {
		for key, f := range prior.entries {
			if _, ok := g.entries[key]; !ok {
				d.Removed = append(d.Removed, f.clone())
			}
		}
	}
	sortFindings(d.Added)
	sortFindings(d.Removed)
	return d
}
