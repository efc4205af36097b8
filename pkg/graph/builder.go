package graph

import (
	"errors"
	"fmt"
	"log/slog"

	dgraph "github.com/dominikbraun/graph"

	"github.com/greboid/actrun/pkg/workflow"
)

// Build creates the job dependency graph of wf. Edges run from a needed job to the job
// that needs it, and cycles are rejected as soon as the closing edge is added.
func Build(wf *workflow.Workflow) (*Graph, error) {
	g := &Graph{
		Nodes: make(map[string]*Node),
		dag:   dgraph.New(dgraph.StringHash, dgraph.Directed(), dgraph.PreventCycles()),
	}

	for i, job := range wf.Jobs {
		node := &Node{
			ID:    job.ID,
			Label: job.DisplayName(),
			Needs: job.Needs,
			Index: i,
		}
		if err := g.dag.AddVertex(job.ID, dgraph.VertexAttribute("label", node.Label)); err != nil {
			return nil, fmt.Errorf("adding job %q: %w", job.ID, err)
		}
		g.Nodes[job.ID] = node

		slog.Debug("added job to graph",
			"job", job.ID,
			"needs", node.Needs)
	}

	for _, job := range wf.Jobs {
		for _, need := range job.Needs {
			err := g.dag.AddEdge(need, job.ID)
			switch {
			case err == nil, errors.Is(err, dgraph.ErrEdgeAlreadyExists):
			case errors.Is(err, dgraph.ErrEdgeCreatesCycle):
				return nil, &CircularDependencyError{Chain: g.findCycle()}
			case errors.Is(err, dgraph.ErrVertexNotFound):
				return nil, fmt.Errorf("job %q needs unknown job %q", job.ID, need)
			default:
				return nil, fmt.Errorf("adding dependency %s -> %s: %w", need, job.ID, err)
			}
		}
	}

	return g, nil
}

// Needs returns the direct dependencies of id.
func (g *Graph) Needs(id string) []string {
	node, ok := g.Nodes[id]
	if !ok {
		return nil
	}
	return node.Needs
}
