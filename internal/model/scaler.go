package model

import "fmt"

// StandardScaler applies the exported standardization: (x - mean) / scale
// per feature.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *StandardScaler) validate(dim int) error {
	if s == nil {
		return fmt.Errorf("missing")
	}
	if len(s.Mean) != dim || len(s.Scale) != dim {
		return fmt.Errorf("dimension mismatch: mean=%d scale=%d want %d",
			len(s.Mean), len(s.Scale), dim)
	}
	return nil
}

// Transform standardizes a feature vector in a new slice. A zero scale
// entry acts as 1 to avoid division by zero, matching the exporter's
// handling of constant features.
func (s *StandardScaler) Transform(vec []float64) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		sc := s.Scale[i]
		if sc == 0 {
			sc = 1
		}
		out[i] = (v - s.Mean[i]) / sc
	}
	return out
}
