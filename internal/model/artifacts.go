// Package model loads the exported inference artifacts and runs the
// scaler -> encoder -> classifier cascade.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact file names inside the model directory.
const (
	ScalerFile       = "scaler.json"
	EncoderFile      = "encoder.json"
	ClassifierFile   = "classifier.json"
	FeatureNamesFile = "feature_names.json"
	LabelMappingFile = "label_mapping.json"
)

// Artifacts is the explicit handle to every loaded inference artifact.
// Load it once at startup and pass it to the pipeline; there is no
// global state and no lazy loading.
type Artifacts struct {
	Scaler       *StandardScaler
	Encoder      *Encoder
	Classifier   *Forest
	FeatureNames []string

	// labelMapping maps class names to classifier output indices;
	// labels is the reverse, indexed by class id.
	labelMapping map[string]int
	labels       map[int]string
}

// LoadArtifacts reads all five artifact files from dir. Any missing or
// malformed file fails the whole load; callers are expected to treat
// that as fatal at startup.
func LoadArtifacts(dir string) (*Artifacts, error) {
	a := &Artifacts{}

	if err := loadJSON(dir, ScalerFile, &a.Scaler); err != nil {
		return nil, err
	}
	if err := loadJSON(dir, EncoderFile, &a.Encoder); err != nil {
		return nil, err
	}
	if err := loadJSON(dir, ClassifierFile, &a.Classifier); err != nil {
		return nil, err
	}
	if err := loadJSON(dir, FeatureNamesFile, &a.FeatureNames); err != nil {
		return nil, err
	}
	if err := loadJSON(dir, LabelMappingFile, &a.labelMapping); err != nil {
		return nil, err
	}

	if err := a.validate(); err != nil {
		return nil, fmt.Errorf("model artifacts in %s: %w", dir, err)
	}

	a.labels = make(map[int]string, len(a.labelMapping))
	for name, id := range a.labelMapping {
		a.labels[id] = name
	}

	return a, nil
}

func (a *Artifacts) validate() error {
	n := len(a.FeatureNames)
	if n == 0 {
		return fmt.Errorf("empty feature manifest")
	}
	if err := a.Scaler.validate(n); err != nil {
		return fmt.Errorf("scaler: %w", err)
	}
	if err := a.Encoder.validate(n); err != nil {
		return fmt.Errorf("encoder: %w", err)
	}
	if err := a.Classifier.validate(a.Encoder.OutputDim(), len(a.labelMapping)); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if len(a.labelMapping) == 0 {
		return fmt.Errorf("empty label mapping")
	}
	return nil
}

// Label resolves a class id to its name. Unknown ids resolve to "Low",
// matching the degraded path everywhere else in the pipeline.
func (a *Artifacts) Label(id int) string {
	if name, ok := a.labels[id]; ok {
		return name
	}
	return "Low"
}

// NumClasses returns the classifier's class count.
func (a *Artifacts) NumClasses() int {
	return len(a.labelMapping)
}

func loadJSON(dir, name string, v any) error {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
