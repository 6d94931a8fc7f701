package impact

import (
	"context"
	"fmt"
)

// Stage is a step of a single simulation run.
type Stage string

const (
	StageIdle                 Stage = "idle"
	StageComputingPhysics     Stage = "computing_physics"
	StageClassifyingLocation  Stage = "classifying_location"
	StageEstimatingPopulation Stage = "estimating_population"
	StageEstimatingTsunami    Stage = "estimating_tsunami"
	StageAssembling           Stage = "assembling"
	StageDone                 Stage = "done"
	StageFailed               Stage = "failed"
)

// transitions lists the legal next stages. Failed is reachable only while
// waiting on the population provider.
var transitions = map[Stage][]Stage{
	StageIdle:                 {StageComputingPhysics},
	StageComputingPhysics:     {StageClassifyingLocation},
	StageClassifyingLocation:  {StageEstimatingPopulation, StageEstimatingTsunami},
	StageEstimatingPopulation: {StageAssembling, StageFailed},
	StageEstimatingTsunami:    {StageAssembling},
	StageAssembling:           {StageDone},
}

// Terminal reports whether no further transitions are possible.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// StageFunc observes stage transitions of a run.
type StageFunc func(Stage)

type stageKey struct{}

// WithStageObserver attaches a stage observer to ctx.
func WithStageObserver(ctx context.Context, fn StageFunc) context.Context {
	return context.WithValue(ctx, stageKey{}, fn)
}

// run tracks the stage of one simulation.
type run struct {
	stage    Stage
	observer StageFunc
}

func newRun(ctx context.Context) *run {
	fn, _ := ctx.Value(stageKey{}).(StageFunc)
	return &run{stage: StageIdle, observer: fn}
}

func (r *run) advance(next Stage) {
	for _, allowed := range transitions[r.stage] {
		if allowed == next {
			r.stage = next
			if r.observer != nil {
				r.observer(next)
			}
			return
		}
	}
	panic(fmt.Sprintf("impact: illegal stage transition %s -> %s", r.stage, next))
}
