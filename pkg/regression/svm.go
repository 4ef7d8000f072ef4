package regression

import (
	"context"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"satbathy/internal/models"
	"satbathy/pkg/workers"
)

const (
	svrEpsilon   = 0.1
	svrTolerance = 1e-3
	svrCoef0     = 0.0
)

// SVR is epsilon support vector regression trained with sequential minimal
// optimisation.
type SVR struct {
	cfg SVMConfig

	kernel  kernelFunc
	support [][]float64
	coef    []float64
	rho     float64
	dims    int
}

func (m *SVR) Method() models.Method { return models.MethodSVM }

// SupportVectors returns the number of training rows with a non-zero
// coefficient.
func (m *SVR) SupportVectors() int {
	return len(m.support)
}

func (m *SVR) Fit(ctx context.Context, x [][]float64, y []float64) error {
	p, err := checkTraining(x, y)
	if err != nil {
		return err
	}
	m.kernel = newKernel(m.cfg)

	rows := make([][]float64, len(x))
	for i, r := range x {
		rows[i] = append([]float64(nil), r...)
	}
	s := newSMO(ctx, rows, y, m.cfg, m.kernel)
	iterations, converged := s.solve()
	if !converged {
		log.Warn().Int("iterations", iterations).Msg("svr solver reached the iteration limit")
	}

	l := len(rows)
	m.support, m.coef = nil, nil
	for i := 0; i < l; i++ {
		beta := s.alpha[i] - s.alpha[i+l]
		if beta != 0 {
			m.support = append(m.support, rows[i])
			m.coef = append(m.coef, beta)
		}
	}
	m.rho = s.rho()
	m.dims = p
	log.Debug().
		Int("iterations", iterations).
		Int("supportVectors", len(m.support)).
		Float64("rho", m.rho).
		Msg("svr fitted")
	return nil
}

func (m *SVR) Predict(ctx context.Context, x [][]float64) ([]float64, error) {
	if m.kernel == nil {
		return nil, errNotFitted
	}
	if _, err := checkColumns(x, m.dims); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	err := workers.ForEach(ctx, len(x), func(start, end int) error {
		for i := start; i < end; i++ {
			v := -m.rho
			for k, sv := range m.support {
				v += m.coef[k] * m.kernel(sv, x[i])
			}
			out[i] = v
		}
		return nil
	})
	return out, err
}

type kernelFunc func(a, b []float64) float64

func newKernel(cfg SVMConfig) kernelFunc {
	gamma, degree := cfg.Gamma, float64(cfg.Degree)
	switch cfg.Kernel {
	case KernelLinear:
		return dot
	case KernelPoly:
		return func(a, b []float64) float64 { return math.Pow(gamma*dot(a, b)+svrCoef0, degree) }
	case KernelSigmoid:
		return func(a, b []float64) float64 { return math.Tanh(gamma*dot(a, b) + svrCoef0) }
	default:
		return func(a, b []float64) float64 {
			var sum float64
			for i := range a {
				d := a[i] - b[i]
				sum += d * d
			}
			return math.Exp(-gamma * sum)
		}
	}
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// smo solves the epsilon-SVR dual as a 2l variable problem
//
//	min 0.5 a'Qa + p'a   subject to   y'a = 0,  0 <= a_t <= C
//
// where the first l variables carry sign +1 and target epsilon - y_i, and the
// last l carry sign -1 and target epsilon + y_i. The working set is chosen
// with second order information (Fan, Chen and Lin, JMLR 2005).
type smo struct {
	ctx    context.Context
	x      [][]float64
	kernel kernelFunc
	c      float64
	l      int

	alpha []float64
	grad  []float64
	sign  []float64
	diag  []float64

	cache *lru.Cache[int, []float64]
}

const smoTau = 1e-12

func newSMO(ctx context.Context, x [][]float64, y []float64, cfg SVMConfig, kernel kernelFunc) *smo {
	l := len(x)
	s := &smo{
		ctx:    ctx,
		x:      x,
		kernel: kernel,
		c:      cfg.C,
		l:      l,
		alpha:  make([]float64, 2*l),
		grad:   make([]float64, 2*l),
		sign:   make([]float64, 2*l),
		diag:   make([]float64, 2*l),
	}
	for i := 0; i < l; i++ {
		s.sign[i], s.sign[i+l] = 1, -1
		s.grad[i] = svrEpsilon - y[i]
		s.grad[i+l] = svrEpsilon + y[i]
		k := kernel(x[i], x[i])
		s.diag[i], s.diag[i+l] = k, k
	}
	s.cache = newKernelCache(cfg.CacheSizeMB, l)
	return s
}

// q returns Q_tk for the row kRow = K(x_(t mod l), .).
func (s *smo) q(t, k int, kRow []float64) float64 {
	return s.sign[t] * s.sign[k] * kRow[k%s.l]
}

func (s *smo) row(t int) []float64 {
	i := t % s.l
	if r, ok := s.cache.Get(i); ok {
		return r
	}
	r := make([]float64, s.l)
	_ = workers.ForEach(s.ctx, s.l, func(start, end int) error {
		for j := start; j < end; j++ {
			r[j] = s.kernel(s.x[i], s.x[j])
		}
		return nil
	})
	s.cache.Add(i, r)
	return r
}

func (s *smo) upper(t int) bool { return s.alpha[t] >= s.c }
func (s *smo) lower(t int) bool { return s.alpha[t] <= 0 }

func (s *smo) solve() (int, bool) {
	maxIter := max(10_000_000, 200*s.l)
	for iter := 0; iter < maxIter; iter++ {
		i, j, optimal := s.selectWorkingSet()
		if optimal {
			return iter, true
		}
		s.update(i, j)
	}
	return maxIter, false
}

func (s *smo) selectWorkingSet() (int, int, bool) {
	n := 2 * s.l
	gmax, gmax2 := math.Inf(-1), math.Inf(-1)
	iMax, jMin := -1, -1
	objMin := math.Inf(1)

	for t := 0; t < n; t++ {
		if s.sign[t] > 0 {
			if !s.upper(t) && -s.grad[t] >= gmax {
				gmax, iMax = -s.grad[t], t
			}
		} else if !s.lower(t) && s.grad[t] >= gmax {
			gmax, iMax = s.grad[t], t
		}
	}
	if iMax < 0 {
		return 0, 0, true
	}

	rowI := s.row(iMax)
	for t := 0; t < n; t++ {
		var gradDiff, quad float64
		if s.sign[t] > 0 {
			if s.lower(t) {
				continue
			}
			gradDiff = gmax + s.grad[t]
			gmax2 = math.Max(gmax2, s.grad[t])
			quad = s.diag[iMax] + s.diag[t] - 2*s.sign[iMax]*s.q(iMax, t, rowI)
		} else {
			if s.upper(t) {
				continue
			}
			gradDiff = gmax - s.grad[t]
			gmax2 = math.Max(gmax2, -s.grad[t])
			quad = s.diag[iMax] + s.diag[t] + 2*s.sign[iMax]*s.q(iMax, t, rowI)
		}
		if gradDiff <= 0 {
			continue
		}
		if quad <= 0 {
			quad = smoTau
		}
		if obj := -(gradDiff * gradDiff) / quad; obj <= objMin {
			jMin, objMin = t, obj
		}
	}

	if gmax+gmax2 < svrTolerance || jMin < 0 {
		return 0, 0, true
	}
	return iMax, jMin, false
}

func (s *smo) update(i, j int) {
	rowI, rowJ := s.row(i), s.row(j)
	c := s.c
	oldI, oldJ := s.alpha[i], s.alpha[j]
	qij := s.q(i, j, rowI)

	if s.sign[i] != s.sign[j] {
		quad := s.diag[i] + s.diag[j] + 2*qij
		if quad <= 0 {
			quad = smoTau
		}
		delta := (-s.grad[i] - s.grad[j]) / quad
		diff := s.alpha[i] - s.alpha[j]
		s.alpha[i] += delta
		s.alpha[j] += delta
		if diff > 0 {
			if s.alpha[j] < 0 {
				s.alpha[j], s.alpha[i] = 0, diff
			}
		} else if s.alpha[i] < 0 {
			s.alpha[i], s.alpha[j] = 0, -diff
		}
		if diff > 0 {
			if s.alpha[i] > c {
				s.alpha[i], s.alpha[j] = c, c-diff
			}
		} else if s.alpha[j] > c {
			s.alpha[j], s.alpha[i] = c, c+diff
		}
	} else {
		quad := s.diag[i] + s.diag[j] - 2*qij
		if quad <= 0 {
			quad = smoTau
		}
		delta := (s.grad[i] - s.grad[j]) / quad
		sum := s.alpha[i] + s.alpha[j]
		s.alpha[i] -= delta
		s.alpha[j] += delta
		if sum > c {
			if s.alpha[i] > c {
				s.alpha[i], s.alpha[j] = c, sum-c
			}
		} else if s.alpha[j] < 0 {
			s.alpha[j], s.alpha[i] = 0, sum
		}
		if sum > c {
			if s.alpha[j] > c {
				s.alpha[j], s.alpha[i] = c, sum-c
			}
		} else if s.alpha[i] < 0 {
			s.alpha[i], s.alpha[j] = 0, sum
		}
	}

	dI, dJ := s.alpha[i]-oldI, s.alpha[j]-oldJ
	for k := range s.grad {
		s.grad[k] += s.q(i, k, rowI)*dI + s.q(j, k, rowJ)*dJ
	}
}

// rho is the negated bias of the decision function.
func (s *smo) rho() float64 {
	ub, lb := math.Inf(1), math.Inf(-1)
	var free int
	var sumFree float64
	for t := range s.alpha {
		yg := s.sign[t] * s.grad[t]
		switch {
		case s.upper(t):
			if s.sign[t] < 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		case s.lower(t):
			if s.sign[t] > 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		default:
			free++
			sumFree += yg
		}
	}
	if free > 0 {
		return sumFree / float64(free)
	}
	return (ub + lb) / 2
}

// kernelCacheRows is how many kernel rows of rowLen values fit in sizeMB,
// never fewer than the two rows of a working pair.
func kernelCacheRows(sizeMB, rowLen int) int {
	if rowLen <= 0 {
		return 2
	}
	return max(2, sizeMB*(1<<20)/(8*rowLen))
}

// newKernelCache keeps the most recently used kernel rows within sizeMB.
func newKernelCache(sizeMB, rowLen int) *lru.Cache[int, []float64] {
	// lru.New only fails for a non-positive size
	c, _ := lru.New[int, []float64](kernelCacheRows(sizeMB, rowLen))
	return c
}
