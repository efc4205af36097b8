package graph

import (
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/dominikbraun/graph/draw"
)

// TopologicalSort groups jobs into layers: every job in a layer only needs jobs from
// earlier layers, so the jobs of one layer can run in parallel. Within a layer jobs keep
// their declaration order.
func (g *Graph) TopologicalSort() ([][]string, error) {
	predecessors, err := g.dag.PredecessorMap()
	if err != nil {
		return nil, fmt.Errorf("reading job graph: %w", err)
	}

	inDegree := make(map[string]int, len(g.Nodes))
	for name := range g.Nodes {
		inDegree[name] = len(predecessors[name])
	}

	adjacency, err := g.dag.AdjacencyMap()
	if err != nil {
		return nil, fmt.Errorf("reading job graph: %w", err)
	}

	var layers [][]string
	processed := make(map[string]bool)

	for len(processed) < len(g.Nodes) {
		var currentLayer []string
		for name := range g.Nodes {
			if !processed[name] && inDegree[name] == 0 {
				currentLayer = append(currentLayer, name)
			}
		}

		if len(currentLayer) == 0 {
			return nil, &CircularDependencyError{Chain: g.findCycle()}
		}

		sort.Slice(currentLayer, func(i, j int) bool {
			return g.Nodes[currentLayer[i]].Index < g.Nodes[currentLayer[j]].Index
		})

		for _, name := range currentLayer {
			processed[name] = true

			for dependent := range adjacency[name] {
				inDegree[dependent]--
			}
		}

		layers = append(layers, currentLayer)
	}

	return layers, nil
}

// DOT writes a Graphviz rendering of the job graph.
func (g *Graph) DOT(w io.Writer) error {
	if err := draw.DOT(g.dag, w, draw.GraphAttribute("rankdir", "LR")); err != nil {
		return fmt.Errorf("rendering job graph: %w", err)
	}
	return nil
}

// findCycle returns a needs chain that loops back on itself, e.g. [a b a] when a needs b
// and b needs a.
func (g *Graph) findCycle() []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string

	var dfs func(node string) []string
	dfs = func(node string) []string {
		visited[node] = true
		onStack[node] = true
		stack = append(stack, node)

		for _, dep := range g.Nodes[node].Needs {
			if _, exists := g.Nodes[dep]; !exists {
				continue
			}

			if onStack[dep] {
				start := slices.Index(stack, dep)
				return append(slices.Clone(stack[start:]), dep)
			}
			if !visited[dep] {
				if cycle := dfs(dep); cycle != nil {
					return cycle
				}
			}
		}

		onStack[node] = false
		stack = stack[:len(stack)-1]
		return nil
	}

	for _, name := range g.ordered() {
		if visited[name] {
			continue
		}

		if cycle := dfs(name); cycle != nil {
			return cycle
		}
	}

	return []string{"unknown cycle"}
}

// ordered returns the job ids in declaration order.
func (g *Graph) ordered() []string {
	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return g.Nodes[names[i]].Index < g.Nodes[names[j]].Index
	})
	return names
}
