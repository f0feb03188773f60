package model

import "fmt"

// DenseLayer is one fully connected layer of the exported encoder.
// Weights are stored row-major: Weights[in][out].
type DenseLayer struct {
	Weights    [][]float64 `json:"weights"`
	Biases     []float64   `json:"biases"`
	Activation string      `json:"activation"` // "relu" or "linear"
}

// Encoder is the bottleneck half of the trained autoencoder, exported
// as a stack of dense layers.
type Encoder struct {
	Layers []DenseLayer `json:"layers"`
}

func (e *Encoder) validate(inputDim int) error {
	if e == nil || len(e.Layers) == 0 {
		return fmt.Errorf("no layers")
	}

	dim := inputDim
	for i, l := range e.Layers {
		if len(l.Weights) != dim {
			return fmt.Errorf("layer %d: expected %d input rows, got %d", i, dim, len(l.Weights))
		}
		if len(l.Biases) == 0 {
			return fmt.Errorf("layer %d: empty biases", i)
		}
		for r, row := range l.Weights {
			if len(row) != len(l.Biases) {
				return fmt.Errorf("layer %d row %d: %d weights, want %d", i, r, len(row), len(l.Biases))
			}
		}
		switch l.Activation {
		case "relu", "linear":
		default:
			return fmt.Errorf("layer %d: unsupported activation %q", i, l.Activation)
		}
		dim = len(l.Biases)
	}
	return nil
}

// OutputDim returns the width of the final layer.
func (e *Encoder) OutputDim() int {
	if len(e.Layers) == 0 {
		return 0
	}
	return len(e.Layers[len(e.Layers)-1].Biases)
}

// Encode runs the forward pass over all layers.
func (e *Encoder) Encode(vec []float64) []float64 {
	for _, l := range e.Layers {
		vec = l.forward(vec)
	}
	return vec
}

func (l *DenseLayer) forward(in []float64) []float64 {
	out := make([]float64, len(l.Biases))
	copy(out, l.Biases)
	for i, v := range in {
		if v == 0 {
			continue
		}
		for j, w := range l.Weights[i] {
			out[j] += v * w
		}
	}
	if l.Activation == "relu" {
		for j, v := range out {
			if v < 0 {
				out[j] = 0
			}
		}
	}
	return out
}
