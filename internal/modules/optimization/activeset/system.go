package activeset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	maxProjectionIterations = 5000
	projectionTolerance     = 1e-13
	polishRounds            = 5
)

// system holds the bounds and general linear constraints of a problem.
type system struct {
	n     int
	lower []float64
	upper []float64
	rows  [][]float64
	rhs   []float64
	types []int
}

// workingSet tracks the constraints currently treated as equalities.
// Equality rows are always active.
type workingSet struct {
	atLower []bool
	atUpper []bool
	active  []bool
}

type blockKind int

const (
	blockNone blockKind = iota
	blockLower
	blockUpper
	blockRow
)

type blocking struct {
	kind  blockKind
	index int
}

func newSystem(n int, s *Settings) (*system, error) {
	sys := &system{
		n:     n,
		lower: make([]float64, n),
		upper: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		sys.lower[i] = math.Inf(-1)
		sys.upper[i] = math.Inf(1)
	}
	if s.Lower != nil {
		if len(s.Lower) != n {
			return nil, fmt.Errorf("%w: %d lower bounds for %d variables", ErrDimension, len(s.Lower), n)
		}
		copy(sys.lower, s.Lower)
	}
	if s.Upper != nil {
		if len(s.Upper) != n {
			return nil, fmt.Errorf("%w: %d upper bounds for %d variables", ErrDimension, len(s.Upper), n)
		}
		copy(sys.upper, s.Upper)
	}
	for i := 0; i < n; i++ {
		if math.IsNaN(sys.lower[i]) || math.IsNaN(sys.upper[i]) {
			return nil, fmt.Errorf("%w: bound of variable %d", ErrNotFinite, i)
		}
		if sys.lower[i] > sys.upper[i] {
			return nil, fmt.Errorf("%w: lower bound %g exceeds upper bound %g for variable %d",
				ErrInfeasible, sys.lower[i], sys.upper[i], i)
		}
	}

	if s.Constraints == nil {
		return sys, nil
	}
	m, c := s.Constraints.Dims()
	if c != n+1 {
		return nil, fmt.Errorf("%w: constraint matrix has %d columns, want %d", ErrDimension, c, n+1)
	}
	if len(s.Types) != m {
		return nil, fmt.Errorf("%w: %d relation types for %d constraints", ErrDimension, len(s.Types), m)
	}
	for j := 0; j < m; j++ {
		row := mat.Row(nil, j, s.Constraints)
		if !allFinite(row) {
			return nil, fmt.Errorf("%w: constraint row %d", ErrNotFinite, j)
		}
		switch s.Types[j] {
		case LessOrEqual, Equal, GreaterOrEqual:
		default:
			return nil, fmt.Errorf("activeset: unknown relation type %d in row %d", s.Types[j], j)
		}
		sys.rows = append(sys.rows, row[:n:n])
		sys.rhs = append(sys.rhs, row[n])
		sys.types = append(sys.types, s.Types[j])
	}
	return sys, nil
}

// residual returns a_j·x - b_j.
func (s *system) residual(j int, x []float64) float64 {
	return floats.Dot(s.rows[j], x) - s.rhs[j]
}

// violation returns the largest violation of any bound or constraint at x.
func (s *system) violation(x []float64) float64 {
	var v float64
	for i := 0; i < s.n; i++ {
		v = math.Max(v, s.lower[i]-x[i])
		v = math.Max(v, x[i]-s.upper[i])
	}
	for j := range s.rows {
		r := s.residual(j, x)
		switch s.types[j] {
		case Equal:
			v = math.Max(v, math.Abs(r))
		case GreaterOrEqual:
			v = math.Max(v, -r)
		case LessOrEqual:
			v = math.Max(v, r)
		}
	}
	return v
}

func (s *system) newWorkingSet() *workingSet {
	ws := &workingSet{
		atLower: make([]bool, s.n),
		atUpper: make([]bool, s.n),
		active:  make([]bool, len(s.rows)),
	}
	for j, t := range s.types {
		if t == Equal {
			ws.active[j] = true
		}
	}
	return ws
}

func (ws *workingSet) fixed(i int) bool {
	return ws.atLower[i] || ws.atUpper[i]
}

func (ws *workingSet) freeVars() []int {
	free := make([]int, 0, len(ws.atLower))
	for i := range ws.atLower {
		if !ws.fixed(i) {
			free = append(free, i)
		}
	}
	return free
}

func (ws *workingSet) activeRows() []int {
	var rows []int
	for j, a := range ws.active {
		if a {
			rows = append(rows, j)
		}
	}
	return rows
}

// reduced returns the coefficients of rows restricted to the free variables.
func (s *system) reduced(rows, free []int) *mat.Dense {
	a := mat.NewDense(len(rows), len(free), nil)
	for r, j := range rows {
		for c, i := range free {
			a.Set(r, c, s.rows[j][i])
		}
	}
	return a
}

// subspace returns an orthonormal basis of the directions that keep every
// working constraint satisfied, expressed over the free variables. A nil basis
// means no feasible direction exists.
func (s *system) subspace(ws *workingSet) (*mat.Dense, []int) {
	free := ws.freeVars()
	if len(free) == 0 {
		return nil, free
	}
	rows := ws.activeRows()
	if len(rows) == 0 {
		return identity(len(free)), free
	}
	return nullSpace(s.reduced(rows, free)), free
}

// feasiblePoint moves x0 onto the feasible set using Dykstra's alternating
// projections, then polishes the active constraints so that they hold to
// rounding precision.
func (s *system) feasiblePoint(x0 []float64) ([]float64, *workingSet, error) {
	x := make([]float64, s.n)
	copy(x, x0)
	if !allFinite(x) {
		for i := range x {
			x[i] = 0
		}
	}

	if s.violation(x) > projectionTolerance {
		s.project(x)
	}
	return s.polish(x)
}

func (s *system) project(x []float64) {
	var eqRows []int
	var ineqRows []int
	for j, t := range s.types {
		if t == Equal {
			eqRows = append(eqRows, j)
		} else {
			ineqRows = append(ineqRows, j)
		}
	}
	var eq *mat.Dense
	if len(eqRows) > 0 {
		eq = mat.NewDense(len(eqRows), s.n, nil)
		for r, j := range eqRows {
			eq.SetRow(r, s.rows[j])
		}
	}

	y := make([]float64, s.n)
	boxInc := make([]float64, s.n)
	eqInc := make([]float64, s.n)
	rowInc := make([][]float64, len(ineqRows))
	for k := range rowInc {
		rowInc[k] = make([]float64, s.n)
	}
	r := make([]float64, len(eqRows))

	for iter := 0; iter < maxProjectionIterations; iter++ {
		floats.AddTo(y, x, boxInc)
		for i := range x {
			x[i] = math.Min(math.Max(y[i], s.lower[i]), s.upper[i])
		}
		floats.SubTo(boxInc, y, x)

		for k, j := range ineqRows {
			floats.AddTo(y, x, rowInc[k])
			copy(x, y)
			s.projectHalfspace(j, x)
			floats.SubTo(rowInc[k], y, x)
		}

		if eq != nil {
			floats.AddTo(y, x, eqInc)
			copy(x, y)
			for k, j := range eqRows {
				r[k] = s.residual(j, x)
			}
			if delta := pinvSolve(eq, r); delta != nil {
				floats.Sub(x, delta)
			}
			floats.SubTo(eqInc, y, x)
		}

		if s.violation(x) <= projectionTolerance {
			return
		}
	}
}

func (s *system) projectHalfspace(j int, x []float64) {
	norm := floats.Dot(s.rows[j], s.rows[j])
	if norm == 0 {
		return
	}
	r := s.residual(j, x)
	switch s.types[j] {
	case GreaterOrEqual:
		if r < 0 {
			floats.AddScaled(x, -r/norm, s.rows[j])
		}
	case LessOrEqual:
		if r > 0 {
			floats.AddScaled(x, -r/norm, s.rows[j])
		}
	}
}

// polish snaps nearly active bounds, collects nearly active inequalities and
// applies a minimum-norm correction so that the working constraints hold.
func (s *system) polish(x []float64) ([]float64, *workingSet, error) {
	ws := s.newWorkingSet()
	for round := 0; round < polishRounds; round++ {
		for i := range x {
			switch {
			case x[i] <= s.lower[i]+activeTolerance:
				x[i] = s.lower[i]
				ws.atLower[i] = true
			case x[i] >= s.upper[i]-activeTolerance:
				x[i] = s.upper[i]
				ws.atUpper[i] = true
			}
		}
		for j, t := range s.types {
			if t != Equal && math.Abs(s.residual(j, x)) <= activeTolerance {
				ws.active[j] = true
			}
		}

		rows := ws.activeRows()
		free := ws.freeVars()
		if len(rows) == 0 || len(free) == 0 {
			break
		}
		r := make([]float64, len(rows))
		for k, j := range rows {
			r[k] = -s.residual(j, x)
		}
		if floats.Norm(r, math.Inf(1)) <= projectionTolerance {
			break
		}
		delta := pinvSolve(s.reduced(rows, free), r)
		if delta == nil {
			break
		}
		for k, i := range free {
			x[i] += delta[k]
		}
	}

	if v := s.violation(x); v > feasibilityTolerance {
		return nil, nil, fmt.Errorf("%w: violation %g after projection", ErrInfeasible, v)
	}
	return x, ws, nil
}

// maxStep returns the longest step along d that keeps every constraint
// outside the working set satisfied, and the constraint that blocks it.
func (s *system) maxStep(x, d []float64, ws *workingSet) (float64, blocking) {
	alpha := math.Inf(1)
	block := blocking{kind: blockNone}
	for i := 0; i < s.n; i++ {
		if ws.fixed(i) || d[i] == 0 {
			continue
		}
		if d[i] < 0 && !math.IsInf(s.lower[i], -1) {
			t := math.Max((s.lower[i]-x[i])/d[i], 0)
			if t < alpha {
				alpha, block = t, blocking{kind: blockLower, index: i}
			}
		}
		if d[i] > 0 && !math.IsInf(s.upper[i], 1) {
			t := math.Max((s.upper[i]-x[i])/d[i], 0)
			if t < alpha {
				alpha, block = t, blocking{kind: blockUpper, index: i}
			}
		}
	}
	for j := range s.rows {
		if ws.active[j] {
			continue
		}
		ad := floats.Dot(s.rows[j], d)
		r := s.residual(j, x)
		var t float64
		switch {
		case s.types[j] == GreaterOrEqual && ad < 0:
			t = math.Max(r/-ad, 0)
		case s.types[j] == LessOrEqual && ad > 0:
			t = math.Max(-r/ad, 0)
		default:
			continue
		}
		if t < alpha {
			alpha, block = t, blocking{kind: blockRow, index: j}
		}
	}
	return alpha, block
}

// add puts the blocking constraint in the working set. Variables reaching a
// bound are set to it exactly.
func (s *system) add(ws *workingSet, b blocking, x []float64) {
	switch b.kind {
	case blockLower:
		x[b.index] = s.lower[b.index]
		ws.atLower[b.index] = true
	case blockUpper:
		x[b.index] = s.upper[b.index]
		ws.atUpper[b.index] = true
	case blockRow:
		ws.active[b.index] = true
	}
}

// settle fixes free variables that rounding pushed onto or past a bound.
func (s *system) settle(ws *workingSet, x []float64) bool {
	changed := false
	for i := range x {
		if ws.fixed(i) {
			continue
		}
		switch {
		case x[i] <= s.lower[i]:
			x[i] = s.lower[i]
			ws.atLower[i] = true
			changed = true
		case x[i] >= s.upper[i]:
			x[i] = s.upper[i]
			ws.atUpper[i] = true
			changed = true
		}
	}
	return changed
}

// release estimates Lagrange multipliers for gradient g and drops the working
// constraint whose multiplier has the most wrong sign. It reports whether a
// constraint was released.
func (s *system) release(ws *workingSet, g []float64) bool {
	rows := ws.activeRows()
	free := ws.freeVars()
	lambda := make([]float64, len(rows))
	if len(rows) > 0 && len(free) > 0 {
		at := mat.NewDense(len(free), len(rows), nil)
		for c, j := range rows {
			for r, i := range free {
				at.Set(r, c, s.rows[j][i])
			}
		}
		if l := pinvSolve(at, gather(g, free)); l != nil {
			lambda = l
		}
	}

	tol := multiplierTolerance * (1 + floats.Norm(g, math.Inf(1)))
	worst := -tol
	pick := blocking{kind: blockNone}
	for c, j := range rows {
		if s.types[j] == Equal {
			continue
		}
		v := lambda[c]
		if s.types[j] == LessOrEqual {
			v = -v
		}
		if v < worst {
			worst, pick = v, blocking{kind: blockRow, index: j}
		}
	}
	for i := 0; i < s.n; i++ {
		if !ws.fixed(i) || s.lower[i] == s.upper[i] {
			continue
		}
		nu := g[i]
		for c, j := range rows {
			nu -= lambda[c] * s.rows[j][i]
		}
		kind := blockLower
		if ws.atUpper[i] {
			nu = -nu
			kind = blockUpper
		}
		if nu < worst {
			worst, pick = nu, blocking{kind: kind, index: i}
		}
	}

	switch pick.kind {
	case blockNone:
		return false
	case blockRow:
		ws.active[pick.index] = false
	default:
		ws.atLower[pick.index] = false
		ws.atUpper[pick.index] = false
	}
	return true
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func gather(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = v[i]
	}
	return out
}
