// Package mds embeds dissimilarity matrices into low-dimensional space.
//
// Scale runs classical (Torgerson) scaling to seed the configuration, then
// refines it with SMACOF stress majorization. The classical seed replaces a
// random start so repeated runs over the same data produce identical plots.
package mds

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Options controls the embedding.
type Options struct {
	Dimensions int     // target dimensionality, 2 or 3
	MaxIter    int     // SMACOF iteration budget
	Eps        float64 // relative stress improvement below which we stop
}

// DefaultOptions mirror the solver defaults of common MDS implementations.
func DefaultOptions() Options {
	return Options{Dimensions: 2, MaxIter: 300, Eps: 1e-6}
}

// Result is a finished embedding.
type Result struct {
	// Coords holds one row per input point, Dimensions columns each.
	Coords [][]float64
	// Stress is the raw stress: sum of squared residuals between input
	// dissimilarities and embedded distances over distinct pairs.
	Stress float64
	// Stress1 is Kruskal's normalized stress-1.
	Stress1 float64
	// Iterations is the number of SMACOF iterations performed.
	Iterations int
}

// Scale embeds the symmetric dissimilarity matrix d.
func Scale(d *mat.SymDense, opts Options) (*Result, error) {
	n := d.SymmetricDim()
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 points, got %d", n)
	}
	if opts.Dimensions < 1 || opts.Dimensions > n {
		return nil, fmt.Errorf("invalid dimensions %d for %d points", opts.Dimensions, n)
	}
	if opts.MaxIter < 1 {
		return nil, fmt.Errorf("invalid iteration budget %d", opts.MaxIter)
	}

	allZero := true
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := d.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("non-finite dissimilarity at (%d,%d)", i, j)
			}
			if v < 0 {
				return nil, fmt.Errorf("negative dissimilarity %g at (%d,%d)", v, i, j)
			}
			if v != 0 {
				allZero = false
			}
		}
	}
	if allZero {
		coords := make([][]float64, n)
		for i := range coords {
			coords[i] = make([]float64, opts.Dimensions)
		}
		return &Result{Coords: coords}, nil
	}

	x, err := Classical(d, opts.Dimensions)
	if err != nil {
		return nil, err
	}

	x, stress, iters := smacof(d, x, opts)

	coords := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, opts.Dimensions)
		for k := 0; k < opts.Dimensions; k++ {
			row[k] = x.At(i, k)
		}
		coords[i] = row
	}

	return &Result{
		Coords:     coords,
		Stress:     stress,
		Stress1:    stress1(d, x),
		Iterations: iters,
	}, nil
}

// Classical performs Torgerson double-centering scaling and returns an
// n-by-dims coordinate matrix. Missing positive spectrum is padded with
// zero columns.
func Classical(d *mat.SymDense, dims int) (*mat.Dense, error) {
	n := d.SymmetricDim()

	// B = -1/2 * J * D^2 * J with J = I - 11'/n.
	sq := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := d.At(i, j)
			sq.SetSym(i, j, v*v)
		}
	}

	rowMean := make([]float64, n)
	grand := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			rowMean[i] += sq.At(i, j)
		}
		grand += rowMean[i]
		rowMean[i] /= float64(n)
	}
	grand /= float64(n * n)

	b := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			b.SetSym(i, j, -0.5*(sq.At(i, j)-rowMean[i]-rowMean[j]+grand))
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(b, true); !ok {
		return nil, fmt.Errorf("eigendecomposition failed")
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// Eigenvalues come back in ascending order; walk from the top.
	x := mat.NewDense(n, dims, nil)
	col := 0
	for k := n - 1; k >= 0 && col < dims; k-- {
		if vals[k] <= 0 {
			break
		}
		s := math.Sqrt(vals[k])
		for i := 0; i < n; i++ {
			x.Set(i, col, vecs.At(i, k)*s)
		}
		col++
	}
	// Remaining columns stay zero when the positive spectrum is exhausted.
	return x, nil
}

// smacof runs Guttman-transform iterations from the start configuration x
// and returns the final configuration, its raw stress, and the iteration
// count.
func smacof(d *mat.SymDense, x *mat.Dense, opts Options) (*mat.Dense, float64, int) {
	n := d.SymmetricDim()
	dims := opts.Dimensions

	dist := pairwise(x)
	prev := rawStress(d, dist)

	iters := 0
	for ; iters < opts.MaxIter; iters++ {
		// Guttman transform: X' = (1/n) * B(X) * X.
		next := mat.NewDense(n, dims, nil)
		for i := 0; i < n; i++ {
			var bii float64
			for j := 0; j < n; j++ {
				if j == i {
					continue
				}
				var bij float64
				if dij := dist.At(i, j); dij > 0 {
					bij = -d.At(i, j) / dij
				}
				bii -= bij
				for k := 0; k < dims; k++ {
					next.Set(i, k, next.At(i, k)+bij*x.At(j, k))
				}
			}
			for k := 0; k < dims; k++ {
				next.Set(i, k, (next.At(i, k)+bii*x.At(i, k))/float64(n))
			}
		}

		x = next
		dist = pairwise(x)
		cur := rawStress(d, dist)

		if prev-cur <= opts.Eps*prev {
			prev = cur
			iters++
			break
		}
		prev = cur
	}

	return x, prev, iters
}

// pairwise returns the Euclidean distance matrix of configuration x.
func pairwise(x *mat.Dense) *mat.SymDense {
	n, dims := x.Dims()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var sum float64
			for k := 0; k < dims; k++ {
				diff := x.At(i, k) - x.At(j, k)
				sum += diff * diff
			}
			out.SetSym(i, j, math.Sqrt(sum))
		}
	}
	return out
}

func rawStress(d, dist *mat.SymDense) float64 {
	n := d.SymmetricDim()
	var s float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			r := dist.At(i, j) - d.At(i, j)
			s += r * r
		}
	}
	return s
}

// stress1 computes Kruskal's stress-1 for configuration x against d.
func stress1(d *mat.SymDense, x *mat.Dense) float64 {
	dist := pairwise(x)
	n := d.SymmetricDim()
	var num, den float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			r := dist.At(i, j) - d.At(i, j)
			num += r * r
			den += dist.At(i, j) * dist.At(i, j)
		}
	}
	if den == 0 {
		return 0
	}
	return math.Sqrt(num / den)
}
