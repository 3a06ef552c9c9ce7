package matrix

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Eye returns n x n symmetric matrix with v on its diagonal.
func Eye(n int, v float64) *mat.SymDense {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, v)
	}

	return m
}

// Symmetrize returns (m + m')/2.
// It panics if m is not square.
func Symmetrize(m mat.Matrix) *mat.SymDense {
	r, c := m.Dims()
	if r != c {
		panic(mat.ErrSquare)
	}

	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}

	return s
}

// MaxAsymmetry returns max |m[i,j] - m[j,i]|.
// It panics if m is not square.
func MaxAsymmetry(m mat.Matrix) float64 {
	r, c := m.Dims()
	if r != c {
		panic(mat.ErrSquare)
	}

	var max float64
	for i := 0; i < r; i++ {
		for j := i + 1; j < r; j++ {
			max = math.Max(max, math.Abs(m.At(i, j)-m.At(j, i)))
		}
	}

	return max
}

// MinEigen returns the smallest eigenvalue of s.
// It returns false if the eigen decomposition fails.
func MinEigen(s mat.Symmetric) (float64, bool) {
	var eig mat.EigenSym
	if ok := eig.Factorize(s, false); !ok {
		return 0, false
	}

	vals := eig.Values(nil)
	min := math.Inf(1)
	for _, v := range vals {
		min = math.Min(min, v)
	}

	return min, true
}

// ClipEigen returns copy of s with its negative eigenvalues set to zero.
// It returns false if the eigen decomposition fails.
func ClipEigen(s mat.Symmetric) (*mat.SymDense, bool) {
	var eig mat.EigenSym
	if ok := eig.Factorize(s, true); !ok {
		return nil, false
	}

	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	n := len(vals)
	out := mat.NewSymDense(n, nil)
	v := mat.NewVecDense(n, nil)
	for i, l := range vals {
		if l <= 0 {
			continue
		}
		v.CopyVec(vecs.ColView(i))
		out.SymRankOne(out, l, v)
	}

	return out, true
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
