package activeset

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// rankEpsilon scales the largest singular value into the rank cut-off.
const rankEpsilon = 1e-13

func identity(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

func numericalRank(values []float64, r, c int) int {
	if len(values) == 0 || values[0] == 0 {
		return 0
	}
	tol := values[0] * float64(max(r, c)) * rankEpsilon
	rank := 0
	for _, s := range values {
		if s > tol {
			rank++
		}
	}
	return rank
}

// nullSpace returns an orthonormal basis of {z : a z = 0}, or nil when the
// null space is trivial.
func nullSpace(a *mat.Dense) *mat.Dense {
	k, n := a.Dims()
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return nil
	}
	rank := numericalRank(svd.Values(nil), k, n)
	if rank >= n {
		return nil
	}
	var v mat.Dense
	svd.VTo(&v)
	z := mat.NewDense(n, n-rank, nil)
	z.Copy(v.Slice(0, n, rank, n))
	return z
}

// pinvSolve returns the minimum-norm least-squares solution of a x = b.
func pinvSolve(a *mat.Dense, b []float64) []float64 {
	k, n := a.Dims()
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil
	}
	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	x := make([]float64, n)
	ui := make([]float64, k)
	vi := make([]float64, n)
	for i := 0; i < numericalRank(values, k, n); i++ {
		mat.Col(ui, i, &u)
		mat.Col(vi, i, &v)
		floats.AddScaled(x, floats.Dot(ui, b)/values[i], vi)
	}
	return x
}

// projectOnto returns Z Zᵀ g over the free variables, zero elsewhere.
func projectOnto(z *mat.Dense, free []int, g []float64) []float64 {
	pg := make([]float64, len(g))
	if z == nil {
		return pg
	}
	var r, p mat.VecDense
	r.MulVec(z.T(), mat.NewVecDense(len(free), gather(g, free)))
	p.MulVec(z, &r)
	for k, i := range free {
		pg[i] = p.AtVec(k)
	}
	return pg
}
