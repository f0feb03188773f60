package model

// Cascade runs the full scaler -> encoder -> classifier chain over a
// projected feature vector. It is stateless and safe for concurrent
// use once loaded.
type Cascade struct {
	artifacts *Artifacts
}

// NewCascade wraps loaded artifacts.
func NewCascade(a *Artifacts) *Cascade {
	return &Cascade{artifacts: a}
}

// FeatureNames returns the manifest the input vector must follow.
func (c *Cascade) FeatureNames() []string {
	return c.artifacts.FeatureNames
}

// Predict runs the cascade and returns the predicted label name with
// the averaged class probabilities, indexed by class id.
func (c *Cascade) Predict(vec []float64) (string, []float64) {
	scaled := c.artifacts.Scaler.Transform(vec)
	encoded := c.artifacts.Encoder.Encode(scaled)
	classID, probs := c.artifacts.Classifier.Predict(encoded)
	return c.artifacts.Label(classID), probs
}
