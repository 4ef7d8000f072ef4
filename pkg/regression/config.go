package regression

import (
	"fmt"
	"strconv"

	"satbathy/internal/models"
)

// Param is one named hyper-parameter as shown in reports.
type Param struct {
	Name  string
	Value string
}

// MethodConfig is the hyper-parameter set of one strategy. The variants are
// KNNConfig, MLRConfig, RFConfig and SVMConfig.
type MethodConfig interface {
	Method() models.Method
	Validate() error
	Describe() []Param

	methodConfig()
}

// DefaultMethodConfig returns the default hyper-parameters of m.
func DefaultMethodConfig(m models.Method) (MethodConfig, error) {
	switch m {
	case models.MethodKNN:
		return DefaultKNNConfig(), nil
	case models.MethodMLR:
		return DefaultMLRConfig(), nil
	case models.MethodRF:
		return DefaultRFConfig(), nil
	case models.MethodSVM:
		return DefaultSVMConfig(), nil
	}
	return nil, fmt.Errorf("%w: unknown method %d", models.ErrConfiguration, int(m))
}

// KNN weighting schemes and search algorithms.
const (
	WeightsUniform  = "uniform"
	WeightsDistance = "distance"

	AlgorithmAuto     = "auto"
	AlgorithmBrute    = "brute"
	AlgorithmKDTree   = "kd_tree"
	AlgorithmBallTree = "ball_tree"
)

// KNNConfig configures k-nearest neighbours regression.
type KNNConfig struct {
	Neighbors int    `yaml:"neighbors"`
	Weights   string `yaml:"weights"`
	Algorithm string `yaml:"algorithm"`
	LeafSize  int    `yaml:"leafSize"`
}

func DefaultKNNConfig() KNNConfig {
	return KNNConfig{Neighbors: 5, Weights: WeightsDistance, Algorithm: AlgorithmAuto, LeafSize: 30}
}

func (KNNConfig) Method() models.Method { return models.MethodKNN }
func (KNNConfig) methodConfig()         {}

func (c KNNConfig) Validate() error {
	if c.Neighbors < 1 {
		return fmt.Errorf("%w: knn neighbors must be at least 1, got %d", models.ErrConfiguration, c.Neighbors)
	}
	switch c.Weights {
	case WeightsUniform, WeightsDistance:
	default:
		return fmt.Errorf("%w: unknown knn weights %q", models.ErrConfiguration, c.Weights)
	}
	switch c.Algorithm {
	case AlgorithmAuto, AlgorithmBrute, AlgorithmKDTree, AlgorithmBallTree:
	default:
		return fmt.Errorf("%w: unknown knn algorithm %q", models.ErrConfiguration, c.Algorithm)
	}
	if c.LeafSize < 1 {
		return fmt.Errorf("%w: knn leaf size must be at least 1, got %d", models.ErrConfiguration, c.LeafSize)
	}
	return nil
}

func (c KNNConfig) Describe() []Param {
	return []Param{
		{"N Neighbors", strconv.Itoa(c.Neighbors)},
		{"Weights", c.Weights},
		{"Algorithm", c.Algorithm},
		{"Leaf Size", strconv.Itoa(c.LeafSize)},
	}
}

// MLRConfig configures ordinary least squares.
type MLRConfig struct {
	FitIntercept bool `yaml:"fitIntercept"`
	// CopyX false lets Fit center the caller's feature rows in place.
	CopyX bool `yaml:"copyX"`
}

func DefaultMLRConfig() MLRConfig {
	return MLRConfig{FitIntercept: true, CopyX: true}
}

func (MLRConfig) Method() models.Method { return models.MethodMLR }
func (MLRConfig) methodConfig()         {}
func (MLRConfig) Validate() error       { return nil }

func (c MLRConfig) Describe() []Param {
	return []Param{
		{"Fit Intercept", strconv.FormatBool(c.FitIntercept)},
		{"Copy X", strconv.FormatBool(c.CopyX)},
	}
}

// Random forest split criteria. The short names are accepted as aliases.
const (
	CriterionSquaredError  = "squared_error"
	CriterionAbsoluteError = "absolute_error"
	CriterionFriedmanMSE   = "friedman_mse"
)

// RFConfig configures the random forest.
type RFConfig struct {
	Trees       int    `yaml:"trees"`
	Criterion   string `yaml:"criterion"`
	Bootstrap   bool   `yaml:"bootstrap"`
	RandomState int64  `yaml:"randomState"`
}

func DefaultRFConfig() RFConfig {
	return RFConfig{Trees: 300, Criterion: CriterionSquaredError, Bootstrap: true, RandomState: 0}
}

func (RFConfig) Method() models.Method { return models.MethodRF }
func (RFConfig) methodConfig()         {}

func (c RFConfig) Validate() error {
	if c.Trees < 1 {
		return fmt.Errorf("%w: random forest needs at least one tree, got %d", models.ErrConfiguration, c.Trees)
	}
	if _, err := canonicalCriterion(c.Criterion); err != nil {
		return err
	}
	return nil
}

func (c RFConfig) Describe() []Param {
	return []Param{
		{"N Trees", strconv.Itoa(c.Trees)},
		{"Criterion", c.Criterion},
		{"Bootstrap", strconv.FormatBool(c.Bootstrap)},
		{"Random State", strconv.FormatInt(c.RandomState, 10)},
	}
}

func canonicalCriterion(s string) (string, error) {
	switch s {
	case CriterionSquaredError, "mse":
		return CriterionSquaredError, nil
	case CriterionAbsoluteError, "mae":
		return CriterionAbsoluteError, nil
	case CriterionFriedmanMSE:
		return CriterionFriedmanMSE, nil
	}
	return "", fmt.Errorf("%w: unknown random forest criterion %q", models.ErrConfiguration, s)
}

// SVR kernels.
const (
	KernelLinear  = "linear"
	KernelPoly    = "poly"
	KernelRBF     = "rbf"
	KernelSigmoid = "sigmoid"
)

// SVMConfig configures epsilon support vector regression.
type SVMConfig struct {
	Kernel string  `yaml:"kernel"`
	Gamma  float64 `yaml:"gamma"`
	C      float64 `yaml:"c"`
	// Degree only applies to the poly kernel.
	Degree int `yaml:"degree"`
	// CacheSizeMB bounds the kernel row cache used while training.
	CacheSizeMB int `yaml:"cacheSizeMB"`
}

func DefaultSVMConfig() SVMConfig {
	return SVMConfig{Kernel: KernelRBF, Gamma: 0.1, C: 1000, Degree: 3, CacheSizeMB: 8000}
}

func (SVMConfig) Method() models.Method { return models.MethodSVM }
func (SVMConfig) methodConfig()         {}

func (c SVMConfig) Validate() error {
	switch c.Kernel {
	case KernelLinear, KernelPoly, KernelRBF, KernelSigmoid:
	default:
		return fmt.Errorf("%w: unknown svm kernel %q", models.ErrConfiguration, c.Kernel)
	}
	if c.Gamma < 0 {
		return fmt.Errorf("%w: svm gamma must not be negative, got %v", models.ErrConfiguration, c.Gamma)
	}
	if !(c.C > 0) {
		return fmt.Errorf("%w: svm C must be positive, got %v", models.ErrConfiguration, c.C)
	}
	if c.Kernel == KernelPoly && c.Degree < 1 {
		return fmt.Errorf("%w: poly kernel degree must be at least 1, got %d", models.ErrConfiguration, c.Degree)
	}
	if c.CacheSizeMB < 0 {
		return fmt.Errorf("%w: svm cache size must not be negative", models.ErrConfiguration)
	}
	return nil
}

func (c SVMConfig) Describe() []Param {
	params := []Param{
		{"Kernel", c.Kernel},
		{"Gamma", strconv.FormatFloat(c.Gamma, 'g', -1, 64)},
		{"C", strconv.FormatFloat(c.C, 'g', -1, 64)},
	}
	if c.Kernel == KernelPoly {
		params = append(params, Param{"Degree", strconv.Itoa(c.Degree)})
	}
	return params
}
