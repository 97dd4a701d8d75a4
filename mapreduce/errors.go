package mapreduce

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidJob is returned for incomplete job definitions.
	ErrInvalidJob = errors.New("mapreduce: invalid job")
	// ErrNoInput is returned when no blob matches the job's inputs.
	ErrNoInput = errors.New("mapreduce: no input blobs")
	// ErrCorruptSpill is returned when a shuffle run cannot be decoded.
	ErrCorruptSpill = errors.New("mapreduce: corrupt spill")
)

// Phase names the half of a job a task belongs to.
type Phase string

const (
	PhaseMap    Phase = "map"
	PhaseReduce Phase = "reduce"
)

// TaskError is returned when a task fails.
type TaskError struct {
	Job   string
	Phase Phase
	Task  int
	// Input is set for map tasks.
	Input string
	// Line is the 1-based input line of a failing map record, 0 otherwise.
	Line int
	Err  error
}

func (e *TaskError) Error() string {
	switch {
	case e.Line > 0:
		return fmt.Sprintf("%s %s task %d (%s line %d): %v", e.Job, e.Phase, e.Task, e.Input, e.Line, e.Err)
	case e.Input != "":
		return fmt.Sprintf("%s %s task %d (%s): %v", e.Job, e.Phase, e.Task, e.Input, e.Err)
	default:
		return fmt.Sprintf("%s %s task %d: %v", e.Job, e.Phase, e.Task, e.Err)
	}
}

func (e *TaskError) Unwrap() error { return e.Err }
