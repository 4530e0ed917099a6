package pipeline

// StageReport is one row of the status command output.
type StageReport struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Complete    bool           `json:"complete" yaml:"complete"`
	Counts      map[string]int `json:"counts,omitempty" yaml:"counts,omitempty"`
}

// Report describes per-stage progress plus the suggested next command.
type Report struct {
	Workdir string        `json:"workdir" yaml:"workdir"`
	Stages  []StageReport `json:"stages" yaml:"stages"`
	Next    string        `json:"next" yaml:"next"`
}

// Status inspects the work directory and reports every stage's progress in
// execution order, plus the first incomplete stage as the next step.
func (p *Pipeline) Status() (Report, error) {
	ordered, err := p.registry.GetOrdered()
	if err != nil {
		return Report{}, err
	}

	report := Report{Workdir: p.store.Root()}
	for _, stage := range ordered {
		st := stage.Status(p)
		report.Stages = append(report.Stages, StageReport{
			Name:        stage.Name(),
			Description: stage.Description(),
			Complete:    st.Complete,
			Counts:      st.Counts,
		})
		if report.Next == "" && !st.Complete {
			report.Next = "lorecard " + stage.Name()
		}
	}
	if report.Next == "" {
		report.Next = "done"
	}
	return report, nil
}
