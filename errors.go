package kmeansmr

import (
	"errors"
	"fmt"

	"github.com/hupe1980/kmeansmr/centroid"
	"github.com/hupe1980/kmeansmr/distance"
	"github.com/hupe1980/kmeansmr/vector"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInvalidRounds is returned for a negative round count.
	ErrInvalidRounds = errors.New("rounds must not be negative")

	// ErrInvalidMetric is returned for an unsupported assignment metric.
	ErrInvalidMetric = errors.New("invalid metric")

	// ErrParse is returned when an input or intermediate vector is malformed.
	ErrParse = errors.New("malformed vector")

	// ErrMissingCentroid is returned when a round lacks centroids for some
	// clusters.
	ErrMissingCentroid = errors.New("missing centroid")

	// ErrOutputOverlapsInput is returned when the output tree would be matched
	// by the input prefix, or the input lies inside the output tree.
	ErrOutputOverlapsInput = errors.New("output overlaps input")
)

// StageError reports the pipeline stage that failed.
//
// The original underlying error can be accessed via errors.Unwrap.
type StageError struct {
	Stage Stage
	// Round is the refinement round, or -1 for stages outside the loop.
	Round int
	Err   error
}

func (e *StageError) Error() string {
	if e.Round >= 0 {
		return fmt.Sprintf("stage %s[%d]: %v", e.Stage, e.Round, e.Err)
	}
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var pe *vector.ParseError
	if errors.As(err, &pe) {
		return fmt.Errorf("%w: %w", ErrParse, err)
	}

	var me *centroid.MissingError
	if errors.As(err, &me) {
		return fmt.Errorf("%w: %w", ErrMissingCentroid, err)
	}
	if errors.Is(err, centroid.ErrRoundNotFound) {
		return fmt.Errorf("%w: %w", ErrMissingCentroid, err)
	}

	var im *distance.ErrInvalidMetric
	if errors.As(err, &im) {
		return fmt.Errorf("%w: %w", ErrInvalidMetric, err)
	}

	return err
}
