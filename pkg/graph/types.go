package graph

import (
	"strings"

	dgraph "github.com/dominikbraun/graph"
)

// Node is one job of a workflow. Matrix expansion happens later, so a job with a
// strategy is still a single node here.
type Node struct {
	ID    string
	Label string
	Needs []string
	Index int
}

// Graph holds the jobs of one workflow with an edge from each needed job to its dependents.
type Graph struct {
	Nodes map[string]*Node

	dag dgraph.Graph[string, string]
}

// CircularDependencyError reports jobs whose needs lead back to themselves. Chain starts
// and ends with the same job.
type CircularDependencyError struct {
	Chain []string
}

func (e *CircularDependencyError) Error() string {
	return "jobs need each other in a cycle: " + strings.Join(e.Chain, " -> ")
}
