package plan

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/greboid/actrun/pkg/expr"
	"github.com/greboid/actrun/pkg/graph"
	"github.com/greboid/actrun/pkg/matrix"
	"github.com/greboid/actrun/pkg/workflow"
)

// Instance is one runnable copy of a job: the job itself, or one matrix combination of it.
type Instance struct {
	// Key is unique within a plan, e.g. "build/2".
	Key    string
	JobID  string
	Name   string
	Job    *workflow.Job
	Matrix matrix.Combination
}

type JobPlan struct {
	Job       *workflow.Job
	Instances []*Instance
}

// Plan is the expanded workflow. Jobs in the same layer have no needs between them.
type Plan struct {
	Workflow *workflow.Workflow
	Layers   [][]*JobPlan
	Graph    *graph.Graph
}

type Options struct {
	// Jobs restricts the plan to these job ids and everything they need.
	Jobs []string
}

func Build(wf *workflow.Workflow, opts Options) (*Plan, error) {
	g, err := graph.Build(wf)
	if err != nil {
		return nil, err
	}

	selected, err := selectJobs(wf, g, opts.Jobs)
	if err != nil {
		return nil, err
	}

	layers, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	p := &Plan{Workflow: wf, Graph: g}
	for _, layer := range layers {
		var jobPlans []*JobPlan
		for _, id := range layer {
			if !selected[id] {
				continue
			}
			job, _ := wf.Job(id)
			jobPlan, err := expandJob(job)
			if err != nil {
				return nil, err
			}
			jobPlans = append(jobPlans, jobPlan)
		}
		if len(jobPlans) > 0 {
			p.Layers = append(p.Layers, jobPlans)
		}
	}

	return p, nil
}

func selectJobs(wf *workflow.Workflow, g *graph.Graph, ids []string) (map[string]bool, error) {
	selected := make(map[string]bool)
	if len(ids) == 0 {
		for _, job := range wf.Jobs {
			selected[job.ID] = true
		}
		return selected, nil
	}

	var visit func(id string)
	visit = func(id string) {
		if selected[id] {
			return
		}
		selected[id] = true
		for _, need := range g.Needs(id) {
			visit(need)
		}
	}

	for _, id := range ids {
		if _, ok := wf.Job(id); !ok {
			return nil, fmt.Errorf("unknown job %q", id)
		}
		visit(id)
	}
	return selected, nil
}

func expandJob(job *workflow.Job) (*JobPlan, error) {
	var m *workflow.Matrix
	if job.Strategy != nil {
		m = job.Strategy.Matrix
	}

	combos, err := matrix.Expand(m)
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", job.ID, err)
	}

	jobPlan := &JobPlan{Job: job}
	for i, combo := range combos {
		name, err := instanceName(job, combo)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", job.ID, err)
		}
		jobPlan.Instances = append(jobPlan.Instances, &Instance{
			Key:    fmt.Sprintf("%s/%d", job.ID, i+1),
			JobID:  job.ID,
			Name:   name,
			Job:    job,
			Matrix: combo,
		})
	}
	return jobPlan, nil
}

// instanceName follows the GitHub convention: "build (3.6)" for matrix instances unless
// the job name already interpolates matrix values.
func instanceName(job *workflow.Job, combo matrix.Combination) (string, error) {
	if expr.HasExpression(job.Name) {
		ctx := expr.NewContext()
		ctx.Values["matrix"] = combo.Values
		return expr.Interpolate(job.Name, ctx)
	}
	if combo.IsEmpty() {
		return job.DisplayName(), nil
	}
	return fmt.Sprintf("%s (%s)", job.DisplayName(), combo.Label()), nil
}

func (p *Plan) Instances() []*Instance {
	var instances []*Instance
	for _, layer := range p.Layers {
		for _, jobPlan := range layer {
			instances = append(instances, jobPlan.Instances...)
		}
	}
	return instances
}

func (p *Plan) JobIDs() []string {
	var ids []string
	for _, layer := range p.Layers {
		for _, jobPlan := range layer {
			ids = append(ids, jobPlan.Job.ID)
		}
	}
	return ids
}

// Write prints the plan as indented text, one layer per block.
func (p *Plan) Write(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "workflow %s\n", p.Workflow.DisplayName())
	for i, layer := range p.Layers {
		fmt.Fprintf(&b, "layer %d\n", i+1)
		for _, jobPlan := range layer {
			job := jobPlan.Job
			fmt.Fprintf(&b, "  job %s (runs-on %s", job.ID, strings.Join(job.RunsOn, ", "))
			if len(job.Needs) > 0 {
				fmt.Fprintf(&b, ", needs %s", strings.Join(job.Needs, ", "))
			}
			b.WriteString(")\n")
			for _, instance := range jobPlan.Instances {
				fmt.Fprintf(&b, "    - %s\n", instance.Name)
				for _, step := range job.Steps {
					fmt.Fprintf(&b, "        %s", step.DisplayName())
					if step.If != "" {
						fmt.Fprintf(&b, " [if %s]", step.If)
					}
					b.WriteString("\n")
				}
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Contains reports whether the plan includes job id.
func (p *Plan) Contains(id string) bool {
	return slices.Contains(p.JobIDs(), id)
}
