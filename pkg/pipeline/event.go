package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"satbathy/internal/models"
)

// Stage is a state of the pipeline state machine. A run moves strictly
// forward through the stages and ends in StageDone or StageFailed.
type Stage int

const (
	StageIdle Stage = iota
	StageReprojecting
	StageFiltering
	StageSampling
	StageSplitting
	StageFitting
	StagePredictingFull
	StageValidating
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "Idle"
	case StageReprojecting:
		return "Reprojecting"
	case StageFiltering:
		return "Filtering"
	case StageSampling:
		return "Sampling"
	case StageSplitting:
		return "Splitting"
	case StageFitting:
		return "Fitting"
	case StagePredictingFull:
		return "PredictingFull"
	case StageValidating:
		return "Validating"
	case StageDone:
		return "Done"
	case StageFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Terminal reports whether no event follows s.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Progress labels, in emission order.
const (
	LabelReprojecting     = "Reprojecting..."
	LabelSkipReprojecting = "Skip Reproject..."
	LabelFiltering        = "Filtering Out of Bound Points..."
	LabelSkipFiltering    = "Skip Filtering Out of Bound Points..."
	LabelSampling         = "Point Sampling..."
	LabelFitting          = "Fitting..."
	LabelPredicting       = "Predicting..."
	LabelValidating       = "Validating..."
	LabelDone             = "Done."
	LabelFailed           = "Failed."
)

// maxEvents bounds the events of one run: seven progress events, or at most
// six followed by a failure.
const maxEvents = 8

// Event is published before each stage starts and once at the end of a run.
type Event struct {
	RunID uuid.UUID
	Time  time.Time
	Stage Stage
	Label string

	// Result is set on the StageDone event only
	Result *Result

	// Failure is set on the StageFailed event only
	Failure *Failure
}

// Failure describes why a run stopped.
type Failure struct {
	Reason models.Reason
	Err    error
}

func (f *Failure) Error() string {
	return f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Observer receives the events of a run, in order, on the goroutine running
// the pipeline.
type Observer func(Event)
