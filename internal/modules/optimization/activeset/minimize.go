package activeset

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

const (
	armijo          = 1e-4
	maxBacktracks   = 60
	initialStepNorm = 0.1
)

type minimizer struct {
	prob  Problem
	sys   *system
	diff  *fd.Settings
	stats optimize.Stats
}

func (m *minimizer) eval(x []float64) float64 {
	m.stats.FuncEvaluations++
	return m.prob.Func(x)
}

func (m *minimizer) grad(g, x []float64) {
	m.stats.GradEvaluations++
	if m.prob.Grad != nil {
		m.prob.Grad(g, x)
		return
	}
	fd.Gradient(g, m.prob.Func, x, m.diff)
	m.stats.FuncEvaluations += 2 * len(x)
}

// Minimize minimizes p.Func subject to the bounds and linear constraints in
// settings, starting from x0. The start point is first moved onto the
// feasible set; ErrInfeasible is returned when that is impossible.
//
// Search directions are Polak-Ribière conjugate gradients restricted to the
// null space of the working constraints, with an Armijo line search capped
// at the first blocking constraint.
func Minimize(p Problem, x0 []float64, settings *Settings) (*Result, error) {
	start := time.Now()
	if p.Func == nil {
		return nil, errors.New("activeset: objective function is nil")
	}
	n := len(x0)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty start point", ErrDimension)
	}
	if settings == nil {
		settings = &Settings{}
	}
	sys, err := newSystem(n, settings)
	if err != nil {
		return nil, err
	}
	x, ws, err := sys.feasiblePoint(x0)
	if err != nil {
		return nil, err
	}

	m := &minimizer{
		prob: p,
		sys:  sys,
		diff: &fd.Settings{Formula: fd.Central, Step: settings.diffStep()},
	}
	gradTol := settings.gradientThreshold(false)
	funcTol := settings.functionThreshold()
	stepTol := settings.stepThreshold()
	maxIter := settings.maxIterations(n)

	f := m.eval(x)
	g := make([]float64, n)
	m.grad(g, x)

	var dPrev, pgPrev []float64
	stepNorm := initialStepNorm
	funcStall, stepStall := 0, 0
	status := optimize.NotTerminated

	for iter := 0; ; iter++ {
		if iter >= maxIter {
			status = optimize.IterationLimit
			break
		}
		if !allFinite(g) || math.IsNaN(f) {
			status = optimize.Failure
			break
		}

		z, free := sys.subspace(ws)
		pg := projectOnto(z, free, g)
		if floats.Norm(pg, math.Inf(1)) <= gradTol {
			if sys.release(ws, g) {
				dPrev = nil
				continue
			}
			status = optimize.GradientThreshold
			break
		}

		d := make([]float64, n)
		floats.ScaleTo(d, -1, pg)
		if dPrev != nil {
			diff := make([]float64, n)
			floats.SubTo(diff, pg, pgPrev)
			beta := math.Max(0, floats.Dot(pg, diff)/floats.Dot(pgPrev, pgPrev))
			floats.AddScaled(d, beta, dPrev)
			if floats.Dot(d, pg) >= 0 {
				floats.ScaleTo(d, -1, pg)
			}
		}
		slope := floats.Dot(d, g)

		dNorm := floats.Norm(d, math.Inf(1))
		alphaMax, block := sys.maxStep(x, d, ws)
		if alphaMax*dNorm <= activeTolerance {
			sys.add(ws, block, x)
			dPrev = nil
			continue
		}

		alpha := math.Min(alphaMax, 2*stepNorm/dNorm)
		alpha, fNew, ok := m.lineSearch(x, d, f, slope, alpha, alphaMax)
		if !ok {
			if dPrev != nil {
				dPrev = nil
				continue
			}
			status = optimize.FunctionConvergence
			break
		}

		floats.AddScaled(x, alpha, d)
		changed := false
		if alpha == alphaMax && block.kind != blockNone {
			sys.add(ws, block, x)
			changed = true
		}
		if sys.settle(ws, x) {
			changed = true
		}
		m.stats.MajorIterations++

		stepNorm = math.Max(alpha*dNorm, stepTol)
		decrease := f - fNew
		if changed {
			fNew = m.eval(x)
		}
		f = fNew
		m.grad(g, x)

		if changed {
			dPrev, pgPrev = nil, nil
		} else {
			dPrev, pgPrev = d, pg
		}

		if decrease <= funcTol*(1+math.Abs(f)) {
			funcStall++
		} else {
			funcStall = 0
		}
		if alpha*dNorm <= stepTol {
			stepStall++
		} else {
			stepStall = 0
		}
		if funcStall >= stallLimit {
			status = optimize.FunctionConvergence
			break
		}
		if stepStall >= stallLimit {
			status = optimize.StepConvergence
			break
		}
	}

	m.stats.Runtime = time.Since(start)
	return &Result{X: x, F: f, Status: status, Stats: m.stats}, nil
}

// lineSearch finds a step in (0, alphaMax] satisfying the Armijo condition,
// expanding the initial trial while the objective keeps improving.
func (m *minimizer) lineSearch(x, d []float64, f, slope, alpha, alphaMax float64) (float64, float64, bool) {
	trial := make([]float64, len(x))
	at := func(a float64) float64 {
		floats.AddScaledTo(trial, x, a, d)
		return m.eval(trial)
	}
	sufficient := func(a, fa float64) bool {
		return !math.IsNaN(fa) && fa <= f+armijo*a*slope && fa < f
	}

	fa := at(alpha)
	if sufficient(alpha, fa) {
		for alpha < alphaMax {
			next := math.Min(2*alpha, alphaMax)
			fn := at(next)
			if !sufficient(next, fn) || fn >= fa {
				break
			}
			alpha, fa = next, fn
		}
		return alpha, fa, true
	}
	for i := 0; i < maxBacktracks; i++ {
		alpha *= 0.5
		fa = at(alpha)
		if sufficient(alpha, fa) {
			return alpha, fa, true
		}
	}
	return 0, f, false
}
