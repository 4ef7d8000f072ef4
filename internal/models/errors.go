package models

import "errors"

// Failure causes. Every error the pipeline returns wraps exactly one of these.
var (
	ErrMissingInput        = errors.New("missing input")
	ErrInvalidSampleType   = errors.New("invalid sample type")
	ErrOutOfBounds         = errors.New("depth sample is out of image boundary")
	ErrConfiguration       = errors.New("invalid configuration")
	ErrInsufficientSamples = errors.New("insufficient samples")
)

// Reason classifies a failed run.
type Reason int

const (
	ReasonInternal Reason = iota
	ReasonMissingInput
	ReasonInvalidSampleType
	ReasonOutOfBounds
	ReasonConfiguration
	ReasonInsufficientSamples
)

func (r Reason) String() string {
	switch r {
	case ReasonMissingInput:
		return "MissingInput"
	case ReasonInvalidSampleType:
		return "InvalidSampleType"
	case ReasonOutOfBounds:
		return "OutOfBounds"
	case ReasonConfiguration:
		return "Configuration"
	case ReasonInsufficientSamples:
		return "InsufficientSamples"
	default:
		return "Internal"
	}
}

// ReasonOf maps an error onto the failure taxonomy.
func ReasonOf(err error) Reason {
	switch {
	case errors.Is(err, ErrMissingInput):
		return ReasonMissingInput
	case errors.Is(err, ErrInvalidSampleType):
		return ReasonInvalidSampleType
	case errors.Is(err, ErrOutOfBounds):
		return ReasonOutOfBounds
	case errors.Is(err, ErrConfiguration):
		return ReasonConfiguration
	case errors.Is(err, ErrInsufficientSamples):
		return ReasonInsufficientSamples
	default:
		return ReasonInternal
	}
}
