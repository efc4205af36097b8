package runner

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/greboid/actrun/pkg/trigger"
)

type Conclusion string

const (
	Success   Conclusion = "success"
	Failure   Conclusion = "failure"
	Skipped   Conclusion = "skipped"
	Cancelled Conclusion = "cancelled"
)

// FailureKind says why a step or job failed.
type FailureKind string

const (
	FailureNone         FailureKind = ""
	FailureProvisioning FailureKind = "provisioning"
	FailureExit         FailureKind = "exit"
	FailureAction       FailureKind = "action"
	FailureExpression   FailureKind = "expression"
	FailureTimeout      FailureKind = "timeout"
	FailureCancelled    FailureKind = "cancelled"
)

// StepError is returned for a step whose command exited non-zero.
type StepError struct {
	Step     string
	ExitCode int
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed with exit code %d", e.Step, e.ExitCode)
}

type StepResult struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	// Outcome is the raw result; Conclusion differs from it when continue-on-error is set.
	Outcome    Conclusion        `json:"outcome"`
	Conclusion Conclusion        `json:"conclusion"`
	Failure    FailureKind       `json:"failure,omitempty"`
	ExitCode   int               `json:"exit_code,omitempty"`
	Error      string            `json:"error,omitempty"`
	Outputs    map[string]string `json:"outputs,omitempty"`
	LogFile    string            `json:"log_file,omitempty"`
	Started    time.Time         `json:"started"`
	Duration   time.Duration     `json:"duration"`
}

type JobResult struct {
	Key        string            `json:"key"`
	JobID      string            `json:"job_id"`
	Name       string            `json:"name"`
	Matrix     map[string]string `json:"matrix,omitempty"`
	Conclusion Conclusion        `json:"conclusion"`
	Failure    FailureKind       `json:"failure,omitempty"`
	Error      string            `json:"error,omitempty"`
	Steps      []*StepResult     `json:"steps"`
	Started    time.Time         `json:"started"`
	Duration   time.Duration     `json:"duration"`
}

// Step returns the result of the step with the given display name.
func (j *JobResult) Step(name string) (*StepResult, bool) {
	for _, step := range j.Steps {
		if step.Name == name {
			return step, true
		}
	}
	return nil, false
}

type RunResult struct {
	ID         string        `json:"id"`
	Workflow   string        `json:"workflow"`
	Path       string        `json:"path,omitempty"`
	Event      trigger.Event `json:"event"`
	Conclusion Conclusion    `json:"conclusion"`
	Started    time.Time     `json:"started"`
	Finished   time.Time     `json:"finished"`
	Jobs       []*JobResult  `json:"jobs"`
}

func (r *RunResult) Succeeded() bool {
	return r.Conclusion == Success
}

func (r *RunResult) Job(key string) (*JobResult, bool) {
	for _, job := range r.Jobs {
		if job.Key == key {
			return job, true
		}
	}
	return nil, false
}

// conclude folds instance conclusions: any failure or cancellation fails the whole, and
// skipped instances count as success.
func conclude(conclusions []Conclusion) Conclusion {
	result := Success
	for _, c := range conclusions {
		switch c {
		case Failure:
			return Failure
		case Cancelled:
			result = Cancelled
		}
	}
	return result
}

// needResult is the single result GitHub reports for a job across its matrix instances.
func needResult(results []*JobResult) Conclusion {
	if len(results) == 0 {
		return Skipped
	}
	allSkipped := true
	conclusions := make([]Conclusion, 0, len(results))
	for _, result := range results {
		conclusions = append(conclusions, result.Conclusion)
		if result.Conclusion != Skipped {
			allSkipped = false
		}
	}
	if allSkipped {
		return Skipped
	}
	return conclude(conclusions)
}

// ResultRegistry collects instance results as they finish.
type ResultRegistry struct {
	mu      sync.RWMutex
	results map[string]*JobResult
}

func NewResultRegistry() *ResultRegistry {
	return &ResultRegistry{
		results: make(map[string]*JobResult),
	}
}

func (r *ResultRegistry) Record(result *JobResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[result.Key] = result
}

func (r *ResultRegistry) Get(key string) (*JobResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result, ok := r.results[key]
	return result, ok
}

// ForJob returns every instance result of a job ordered by key.
func (r *ResultRegistry) ForJob(jobID string) []*JobResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var results []*JobResult
	for _, result := range r.results {
		if result.JobID == jobID {
			results = append(results, result)
		}
	}
	slices.SortFunc(results, func(a, b *JobResult) int {
		return compareKeys(a.Key, b.Key)
	})
	return results
}

func (r *ResultRegistry) GetAll() map[string]*JobResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.results)
}

// compareKeys orders "build/2" before "build/10".
func compareKeys(a, b string) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
