package ratings

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Dissimilarity is a symmetric label-by-label dissimilarity matrix.
type Dissimilarity struct {
	Labels []string
	Matrix *mat.SymDense
}

// Dissimilarities aggregates the dataset into a symmetric matrix of mean
// ratings across the group's listeners. Labels are sorted; self-distances
// stay zero unless the file rates a label against itself. When the same
// pair occurs in several rows, later rows overwrite earlier ones.
func (d *Dataset) Dissimilarities(group Group) (*Dissimilarity, error) {
	cols := d.SubjectColumns(group)
	if len(cols) == 0 {
		return nil, fmt.Errorf("no subject columns for group %q", group)
	}

	labels := d.Labels()
	idx := make(map[string]int, len(labels))
	for i, l := range labels {
		idx[l] = i
	}

	m := mat.NewSymDense(len(labels), nil)
	for _, t := range d.Trials {
		i := idx[Label(t.Stim1)]
		j := idx[Label(t.Stim2)]

		sum := 0.0
		for _, c := range cols {
			v := t.Ratings[c]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("non-finite rating in column %s for pair %s/%s", c, t.Stim1, t.Stim2)
			}
			sum += v
		}
		m.SetSym(i, j, sum/float64(len(cols)))
	}

	return &Dissimilarity{Labels: labels, Matrix: m}, nil
}
