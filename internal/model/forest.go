package model

import "fmt"

// TreeNode is one node of an exported decision tree. Internal nodes
// route on Feature <= Threshold; leaves carry per-class sample counts
// in Values and are marked by Left < 0.
type TreeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Values    []float64 `json:"values"`
}

// Tree is a single decision tree, nodes indexed by position with the
// root at 0.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// Forest is the exported random forest classifier. Probabilities are
// the average of each tree's normalized leaf distribution.
type Forest struct {
	Classes []string `json:"classes"`
	Trees   []Tree   `json:"trees"`
}

func (f *Forest) validate(inputDim, numClasses int) error {
	if f == nil || len(f.Trees) == 0 {
		return fmt.Errorf("no trees")
	}
	if len(f.Classes) != numClasses {
		return fmt.Errorf("%d classes, want %d", len(f.Classes), numClasses)
	}
	for ti, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d: empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Left < 0 {
				if len(n.Values) != numClasses {
					return fmt.Errorf("tree %d node %d: %d values, want %d", ti, ni, len(n.Values), numClasses)
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= inputDim {
				return fmt.Errorf("tree %d node %d: feature %d out of range", ti, ni, n.Feature)
			}
			if n.Left >= len(t.Nodes) || n.Right < 0 || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d: child index out of range", ti, ni)
			}
		}
	}
	return nil
}

// Proba returns the averaged class probability distribution for a
// feature vector.
func (f *Forest) Proba(vec []float64) []float64 {
	probs := make([]float64, len(f.Classes))
	for i := range f.Trees {
		leaf := f.Trees[i].leaf(vec)

		var total float64
		for _, v := range leaf.Values {
			total += v
		}
		if total == 0 {
			continue
		}
		for c, v := range leaf.Values {
			probs[c] += v / total
		}
	}

	n := float64(len(f.Trees))
	for c := range probs {
		probs[c] /= n
	}
	return probs
}

// Predict returns the class id with the highest averaged probability.
// Ties break toward the lower id.
func (f *Forest) Predict(vec []float64) (int, []float64) {
	probs := f.Proba(vec)

	best := 0
	for c := 1; c < len(probs); c++ {
		if probs[c] > probs[best] {
			best = c
		}
	}
	return best, probs
}

func (t *Tree) leaf(vec []float64) *TreeNode {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Left < 0 {
			return n
		}
		if vec[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}
