package kmeansmr

import "fmt"

// State is the position of a Pipeline in its run.
type State int32

const (
	StateIdle State = iota
	StateNormalizing
	StateSeeding
	StateRefining
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateNormalizing:
		return "Normalizing"
	case StateSeeding:
		return "Seeding"
	case StateRefining:
		return "Refining"
	case StateFinalizing:
		return "Finalizing"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Stage names a unit of work in error messages, logs and metrics.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageSeed      Stage = "seed"
	StageRefine    Stage = "refine"
	StageFinalize  Stage = "finalize"
)
