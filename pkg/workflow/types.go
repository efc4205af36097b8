package workflow

const (
	EventPush             = "push"
	EventPullRequest      = "pull_request"
	EventWorkflowDispatch = "workflow_dispatch"
)

type Workflow struct {
	Name        string    `yaml:"name,omitempty"`
	On          Triggers  `yaml:"on"`
	Env         StringMap `yaml:"env,omitempty"`
	Permissions any       `yaml:"permissions,omitempty"`
	Concurrency any       `yaml:"concurrency,omitempty"`
	Defaults    *Defaults `yaml:"defaults,omitempty"`
	Jobs        Jobs      `yaml:"jobs"`

	// Path is the file the workflow was loaded from, empty when parsed from memory.
	Path string `yaml:"-"`
}

// Triggers maps an event name to its filter. A nil filter matches every event of that kind.
type Triggers map[string]*EventFilter

type EventFilter struct {
	Branches       []string `yaml:"branches,omitempty"`
	BranchesIgnore []string `yaml:"branches-ignore,omitempty"`
	Tags           []string `yaml:"tags,omitempty"`
	TagsIgnore     []string `yaml:"tags-ignore,omitempty"`
	Paths          []string `yaml:"paths,omitempty"`
	PathsIgnore    []string `yaml:"paths-ignore,omitempty"`
	Types          []string `yaml:"types,omitempty"`
}

type Defaults struct {
	Run RunDefaults `yaml:"run,omitempty"`
}

type RunDefaults struct {
	Shell            string `yaml:"shell,omitempty"`
	WorkingDirectory string `yaml:"working-directory,omitempty"`
}

// Jobs keeps the declaration order of the jobs mapping.
type Jobs []*Job

type Job struct {
	ID              string     `yaml:"-"`
	Name            string     `yaml:"name,omitempty"`
	RunsOn          StringList `yaml:"runs-on,omitempty"`
	Needs           StringList `yaml:"needs,omitempty"`
	If              string     `yaml:"if,omitempty"`
	Env             StringMap  `yaml:"env,omitempty"`
	Strategy        *Strategy  `yaml:"strategy,omitempty"`
	Defaults        *Defaults  `yaml:"defaults,omitempty"`
	Permissions     any        `yaml:"permissions,omitempty"`
	TimeoutMinutes  int        `yaml:"timeout-minutes,omitempty"`
	ContinueOnError bool       `yaml:"continue-on-error,omitempty"`
	Steps           []Step     `yaml:"steps"`
}

type Strategy struct {
	Matrix      *Matrix `yaml:"matrix,omitempty"`
	FailFast    *bool   `yaml:"fail-fast,omitempty"`
	MaxParallel int     `yaml:"max-parallel,omitempty"`
}

// Matrix holds the axes in declaration order so instances expand deterministically.
type Matrix struct {
	Axes    []Axis
	Include []StringMap
	Exclude []StringMap
}

type Axis struct {
	Name   string
	Values []string
}

type Step struct {
	ID               string    `yaml:"id,omitempty"`
	Name             string    `yaml:"name,omitempty"`
	If               string    `yaml:"if,omitempty"`
	Uses             string    `yaml:"uses,omitempty"`
	With             StringMap `yaml:"with,omitempty"`
	Run              string    `yaml:"run,omitempty"`
	Shell            string    `yaml:"shell,omitempty"`
	WorkingDirectory string    `yaml:"working-directory,omitempty"`
	Env              StringMap `yaml:"env,omitempty"`
	ContinueOnError  bool      `yaml:"continue-on-error,omitempty"`
	TimeoutMinutes   int       `yaml:"timeout-minutes,omitempty"`
}

func (w *Workflow) Job(id string) (*Job, bool) {
	for _, job := range w.Jobs {
		if job.ID == id {
			return job, true
		}
	}
	return nil, false
}

func (w *Workflow) DisplayName() string {
	if w.Name != "" {
		return w.Name
	}
	return w.Path
}

func (j *Job) DisplayName() string {
	if j.Name != "" {
		return j.Name
	}
	return j.ID
}

func (j *Job) FailFast() bool {
	if j.Strategy == nil || j.Strategy.FailFast == nil {
		return false
	}
	return *j.Strategy.FailFast
}

func (s Step) DisplayName() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Uses != "":
		return s.Uses
	default:
		return firstLine(s.Run)
	}
}

func (m *Matrix) IsEmpty() bool {
	return m == nil || (len(m.Axes) == 0 && len(m.Include) == 0)
}

func (m *Matrix) Axis(name string) (Axis, bool) {
	if m == nil {
		return Axis{}, false
	}
	for _, axis := range m.Axes {
		if axis.Name == name {
			return axis, true
		}
	}
	return Axis{}, false
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
