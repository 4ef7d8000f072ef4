package models

import (
	"fmt"
	"runtime"
	"strings"
)

// Method selects the regression strategy.
type Method int

const (
	MethodKNN Method = iota
	MethodMLR
	MethodRF
	MethodSVM
)

// Methods lists every strategy in display order.
var Methods = []Method{MethodKNN, MethodMLR, MethodRF, MethodSVM}

// Key is the short identifier used in configuration files and flags.
func (m Method) Key() string {
	switch m {
	case MethodKNN:
		return "knn"
	case MethodMLR:
		return "mlr"
	case MethodRF:
		return "rf"
	case MethodSVM:
		return "svm"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// String returns the human readable method name.
func (m Method) String() string {
	switch m {
	case MethodKNN:
		return "K-Nearest Neighbors"
	case MethodMLR:
		return "Multiple Linear Regression"
	case MethodRF:
		return "Random Forest"
	case MethodSVM:
		return "Support Vector Machines"
	default:
		return m.Key()
	}
}

// Valid reports whether m is one of the four strategies.
func (m Method) Valid() bool {
	return m >= MethodKNN && m <= MethodSVM
}

// ParseMethod accepts a key ("rf") or a display name ("Random Forest").
func ParseMethod(s string) (Method, error) {
	for _, m := range Methods {
		if strings.EqualFold(s, m.Key()) || strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown method %q", ErrConfiguration, s)
}

// Backend selects how the parallel steps schedule their work.
type Backend string

const (
	// BackendThreading runs chunks on a bounded pool of goroutines.
	BackendThreading Backend = "threading"
	// BackendSequential runs every chunk on the calling goroutine.
	BackendSequential Backend = "sequential"
)

// ParseBackend maps a backend name to a Backend. "loky" and "multiprocessing"
// are accepted as aliases of threading.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "threading", "loky", "multiprocessing":
		return BackendThreading, nil
	case "sequential", "serial":
		return BackendSequential, nil
	}
	return "", fmt.Errorf("%w: unknown parallel backend %q", ErrConfiguration, s)
}

// Parallelism carries the performance hints of a run. It never changes results.
type Parallelism struct {
	Backend Backend

	// Workers is the pool size. Negative values count back from the number
	// of CPUs: -1 uses all of them, -2 all but one. Zero is rejected.
	Workers int

	// RandomSeed drives the train/test shuffle.
	RandomSeed int64
}

// Validate rejects a zero worker count and unknown backends.
func (p Parallelism) Validate() error {
	if p.Workers == 0 {
		return fmt.Errorf("%w: worker count must not be zero", ErrConfiguration)
	}
	if _, err := ParseBackend(string(p.Backend)); err != nil {
		return err
	}
	return nil
}

// EffectiveWorkers resolves the worker count against the CPUs available.
func (p Parallelism) EffectiveWorkers() int {
	if b, _ := ParseBackend(string(p.Backend)); b == BackendSequential {
		return 1
	}
	n := p.Workers
	if n < 0 {
		n = runtime.NumCPU() + 1 + n
	}
	if n < 1 {
		n = 1
	}
	return n
}

// ProcessingConfig holds the per-run options of the pipeline.
type ProcessingConfig struct {
	// DepthLabel is the sample attribute holding the measured depth
	DepthLabel string

	// TrainFraction is the share of sampled rows used for fitting, in (0, 1)
	TrainFraction float64

	// LimitEnabled applies the [LimitLower, LimitUpper] depth window
	LimitEnabled bool
	LimitUpper   float64
	LimitLower   float64

	Method      Method
	Parallelism Parallelism

	// AutoNegativeSign negates the depth column when its median is positive
	AutoNegativeSign bool

	// ExcludeOutOfBounds drops samples outside the raster extent
	ExcludeOutOfBounds bool
}

// Normalized returns a copy whose limit window is ordered.
func (c ProcessingConfig) Normalized() ProcessingConfig {
	if c.LimitUpper < c.LimitLower {
		c.LimitUpper, c.LimitLower = c.LimitLower, c.LimitUpper
	}
	return c
}

// Validate checks the options that cannot be corrected silently.
func (c ProcessingConfig) Validate() error {
	if strings.TrimSpace(c.DepthLabel) == "" {
		return fmt.Errorf("%w: depth label is empty", ErrConfiguration)
	}
	if !(c.TrainFraction > 0 && c.TrainFraction < 1) {
		return fmt.Errorf("%w: train fraction %v outside (0, 1)", ErrConfiguration, c.TrainFraction)
	}
	if !c.Method.Valid() {
		return fmt.Errorf("%w: unknown method %d", ErrConfiguration, int(c.Method))
	}
	return c.Parallelism.Validate()
}
