package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// StepStatus is the lifecycle of a single pipeline step.
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepActive   StepStatus = "active"
	StepComplete StepStatus = "complete"
	StepError    StepStatus = "error"
)

// TxStep is one unit of work inside a pipeline.
type TxStep struct {
	ID     string
	Label  string
	Status StepStatus
}

// TxPipeline tracks one user action as an ordered step list. Exactly one
// step is active at a time; an error freezes everything after it. Pipelines
// live for the duration of the action and are never persisted.
type TxPipeline struct {
	ID         string
	Action     Action
	Steps      []TxStep
	TxHash     string
	Err        string
	IsComplete bool

	active int // index of the active step, -1 before Begin / after end
}

// NewPipeline builds a pipeline with all steps pending.
func NewPipeline(action Action, steps []TxStep) *TxPipeline {
	for i := range steps {
		steps[i].Status = StepPending
	}
	return &TxPipeline{
		ID:     uuid.New().String(),
		Action: action,
		Steps:  steps,
		active: -1,
	}
}

// Begin activates the first step. No-op on an empty pipeline.
func (p *TxPipeline) Begin() {
	if len(p.Steps) == 0 {
		p.IsComplete = true
		return
	}
	p.active = 0
	p.Steps[0].Status = StepActive
}

// Active returns the currently active step, or nil if none.
func (p *TxPipeline) Active() *TxStep {
	if p.active < 0 || p.active >= len(p.Steps) {
		return nil
	}
	if p.Steps[p.active].Status != StepActive {
		return nil
	}
	return &p.Steps[p.active]
}

// CompleteActive marks the active step complete and activates the next one
// in declared order. When the last step completes the pipeline is done.
func (p *TxPipeline) CompleteActive() error {
	step := p.Active()
	if step == nil {
		return fmt.Errorf("pipeline.CompleteActive: no active step")
	}
	step.Status = StepComplete
	if p.active == len(p.Steps)-1 {
		p.active = -1
		p.IsComplete = true
		return nil
	}
	p.active++
	p.Steps[p.active].Status = StepActive
	return nil
}

// FailActive marks the active step as errored and records the message.
// No step activates after an error.
func (p *TxPipeline) FailActive(err error) {
	step := p.Active()
	if step == nil {
		return
	}
	step.Status = StepError
	p.Err = err.Error()
	p.active = -1
}

// Failed reports whether the pipeline stopped on an error.
func (p *TxPipeline) Failed() bool {
	return p.Err != ""
}

// Done reports whether the pipeline reached a terminal condition:
// all steps complete, or exactly one error.
func (p *TxPipeline) Done() bool {
	return p.IsComplete || p.Failed()
}
