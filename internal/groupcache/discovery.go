package groupcache

import (
	"sort"

	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/dsl"
)

// FilterGroup is a group discovered as a direct candidate of a filter
// operator, annotated with the filter's ranking metric and its nesting
// depth (outermost filter = depth 0).
type FilterGroup struct {
	Name   string
	Metric string
	Depth  int
	Node   *dsl.Node // the (group ...) node, evaluated per day by backfill
}

// DiscoverFilterGroups walks the strategy tree and returns every group that
// any filter ranks over, deduplicated by name (deepest occurrence wins) and
// sorted deepest-first so inner groups backfill before the outer filters
// that rank using their returns.
func DiscoverFilterGroups(ast *dsl.Node) []FilterGroup {
	found := make(map[string]FilterGroup)
	walkForFilters(ast, 0, found)

	groups := make([]FilterGroup, 0, len(found))
	for _, fg := range found {
		groups = append(groups, fg)
	}

	sort.Slice(groups, func(a, b int) bool {
		if groups[a].Depth != groups[b].Depth {
			return groups[a].Depth > groups[b].Depth
		}
		return groups[a].Name < groups[b].Name
	})

	return groups
}

func walkForFilters(node *dsl.Node, depth int, found map[string]FilterGroup) {
	if node == nil {
		return
	}

	head := node.Head()
	if head == "filter" || head == "select-top" || head == "select-bottom" {
		metric := filterMetricName(node)
		candidates := filterCandidates(node)
		for _, candidate := range candidates {
			if candidate.Head() != "group" {
				continue
			}
			args := candidate.Args()
			if len(args) == 0 || args[0].Kind != dsl.NodeString {
				continue
			}
			name := args[0].Str

			existing, ok := found[name]
			if !ok || depth > existing.Depth {
				found[name] = FilterGroup{Name: name, Metric: metric, Depth: depth, Node: candidate}
			}

			// Inner filters inside this group's body need their own cached
			// series, one level deeper.
			for _, body := range args[1:] {
				walkForFilters(body, depth+1, found)
			}
		}
	}

	for _, child := range node.Children {
		walkForFilters(child, depth, found)
	}
}

// filterMetricName extracts the ranking metric symbol of a filter node
func filterMetricName(node *dsl.Node) string {
	for _, arg := range node.Args() {
		head := arg.Head()
		if head != "" && head != "select-top" && head != "select-bottom" {
			return head
		}
	}
	return ""
}

// filterCandidates returns the candidate vector's children (the last
// argument of a filter / select form).
func filterCandidates(node *dsl.Node) []*dsl.Node {
	args := node.Args()
	if len(args) == 0 {
		return nil
	}
	last := args[len(args)-1]
	if last.Kind != dsl.NodeVector && last.Kind != dsl.NodeList {
		return nil
	}
	return last.Children
}
