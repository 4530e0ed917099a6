package pipeline

import "context"

// Stage is one step of the conversion pipeline. Stages declare their
// dependencies; the registry resolves execution order.
type Stage interface {
	// Name is the stage identifier, also the CLI subcommand ("segment").
	Name() string

	// Dependencies lists stages that must complete first.
	Dependencies() []string

	Description() string

	// Status inspects the work directory for this stage's progress.
	Status(p *Pipeline) StageStatus

	// Run executes the stage. Stages are resumable: running twice is safe
	// and skips work that already exists unless the pipeline forces it.
	Run(ctx context.Context, p *Pipeline) error
}

// StageStatus reports a stage's progress for the status command.
type StageStatus struct {
	Complete bool           `json:"complete" yaml:"complete"`
	Counts   map[string]int `json:"counts,omitempty" yaml:"counts,omitempty"`
}
