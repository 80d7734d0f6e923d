package activeset

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// MinimizeQuadratic minimizes ½xᵀQx + cᵀx subject to the bounds and linear
// constraints in settings, starting from x0. A nil c means no linear term.
//
// Each iteration takes the reduced Newton step over the null space of the
// working constraints. When the reduced Hessian is not positive definite the
// step falls back to steepest descent with an exact line search.
func MinimizeQuadratic(q mat.Symmetric, c, x0 []float64, settings *Settings) (*Result, error) {
	start := time.Now()
	n := len(x0)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty start point", ErrDimension)
	}
	if q.SymmetricDim() != n {
		return nil, fmt.Errorf("%w: quadratic term is %d×%d for %d variables", ErrDimension, q.SymmetricDim(), q.SymmetricDim(), n)
	}
	if c == nil {
		c = make([]float64, n)
	}
	if len(c) != n {
		return nil, fmt.Errorf("%w: linear term has %d entries for %d variables", ErrDimension, len(c), n)
	}
	if !allFinite(c) {
		return nil, fmt.Errorf("%w: linear term", ErrNotFinite)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if v := q.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: quadratic term", ErrNotFinite)
			}
		}
	}
	if settings == nil {
		settings = &Settings{}
	}

	scale := make([]float64, n)
	for i := range scale {
		scale[i] = 1
		if d := q.At(i, i); settings.AutoScale && d > 0 {
			scale[i] = 1 / math.Sqrt(d)
		}
	}
	qs := mat.NewSymDense(n, nil)
	cs := make([]float64, n)
	for i := 0; i < n; i++ {
		cs[i] = scale[i] * c[i]
		for j := i; j < n; j++ {
			qs.SetSym(i, j, scale[i]*q.At(i, j)*scale[j])
		}
	}

	sys, err := newSystem(n, scaledSettings(settings, scale))
	if err != nil {
		return nil, err
	}
	y0 := make([]float64, n)
	floats.DivTo(y0, x0, scale)
	y, ws, err := sys.feasiblePoint(y0)
	if err != nil {
		return nil, err
	}

	var stats optimize.Stats
	tol := settings.gradientThreshold(true)
	maxIter := settings.maxIterations(n)
	status := optimize.NotTerminated
	g := make([]float64, n)
	gradient := func() {
		var qy mat.VecDense
		qy.MulVec(qs, mat.NewVecDense(n, y))
		floats.AddTo(g, qy.RawVector().Data, cs)
		stats.GradEvaluations++
	}

	for iter := 0; ; iter++ {
		if iter >= maxIter {
			status = optimize.IterationLimit
			break
		}
		gradient()

		z, free := sys.subspace(ws)
		var rg []float64
		if z != nil {
			var r mat.VecDense
			r.MulVec(z.T(), mat.NewVecDense(len(free), gather(g, free)))
			rg = r.RawVector().Data
		}
		if rg == nil || floats.Norm(rg, math.Inf(1)) <= tol*math.Max(1, floats.Norm(g, math.Inf(1))) {
			if sys.release(ws, g) {
				continue
			}
			status = optimize.GradientThreshold
			break
		}

		d, full := newtonDirection(qs, z, free, rg, n)
		if d == nil {
			d = make([]float64, n)
			pd := make([]float64, len(free))
			var zr mat.VecDense
			zr.MulVec(z, mat.NewVecDense(len(rg), rg))
			floats.ScaleTo(pd, -1, zr.RawVector().Data)
			for k, i := range free {
				d[i] = pd[k]
			}
			full = math.Inf(1)
			if curv := mat.Inner(mat.NewVecDense(n, d), qs, mat.NewVecDense(n, d)); curv > 0 {
				full = -floats.Dot(g, d) / curv
			}
		}

		alphaMax, block := sys.maxStep(y, d, ws)
		alpha := math.Min(full, alphaMax)
		if math.IsInf(alpha, 1) {
			status = optimize.Failure
			break
		}
		floats.AddScaled(y, alpha, d)
		if alpha == alphaMax && block.kind != blockNone {
			sys.add(ws, block, y)
		}
		sys.settle(ws, y)
		stats.MajorIterations++
	}

	x := make([]float64, n)
	floats.MulTo(x, y, scale)
	var qx mat.VecDense
	qx.MulVec(q, mat.NewVecDense(n, x))
	f := 0.5*floats.Dot(x, qx.RawVector().Data) + floats.Dot(c, x)
	stats.FuncEvaluations++
	stats.Runtime = time.Since(start)
	return &Result{X: x, F: f, Status: status, Stats: stats}, nil
}

// newtonDirection solves (ZᵀQZ) p = -Zᵀg and returns d = Z p scattered over
// the free variables with a unit step. It returns nil when the reduced
// Hessian is not positive definite.
func newtonDirection(q *mat.SymDense, z *mat.Dense, free []int, rg []float64, n int) ([]float64, float64) {
	nf, nz := z.Dims()
	qff := mat.NewDense(nf, nf, nil)
	for r, i := range free {
		for c, j := range free {
			qff.Set(r, c, q.At(i, j))
		}
	}
	var qz, h mat.Dense
	qz.Mul(qff, z)
	h.Mul(z.T(), &qz)
	hs := mat.NewSymDense(nz, nil)
	for i := 0; i < nz; i++ {
		for j := i; j < nz; j++ {
			hs.SetSym(i, j, 0.5*(h.At(i, j)+h.At(j, i)))
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(hs) {
		return nil, 0
	}
	var p mat.VecDense
	if err := chol.SolveVecTo(&p, mat.NewVecDense(nz, rg)); err != nil {
		return nil, 0
	}
	p.ScaleVec(-1, &p)
	var zp mat.VecDense
	zp.MulVec(z, &p)
	d := make([]float64, n)
	for k, i := range free {
		d[i] = zp.AtVec(k)
	}
	if !allFinite(d) {
		return nil, 0
	}
	return d, 1
}

func scaledSettings(s *Settings, scale []float64) *Settings {
	out := *s
	n := len(scale)
	if len(s.Lower) == n {
		out.Lower = make([]float64, n)
		floats.DivTo(out.Lower, s.Lower, scale)
	}
	if len(s.Upper) == n {
		out.Upper = make([]float64, n)
		floats.DivTo(out.Upper, s.Upper, scale)
	}
	if s.Constraints != nil {
		m, cols := s.Constraints.Dims()
		a := mat.NewDense(m, cols, nil)
		a.Copy(s.Constraints)
		if cols == n+1 {
			for j := 0; j < m; j++ {
				for i := 0; i < n; i++ {
					a.Set(j, i, a.At(j, i)*scale[i])
				}
			}
		}
		out.Constraints = a
	}
	return &out
}
