// Package assess runs the full risk assessment pipeline: feature
// engineering, the model cascade, and score derivation.
package assess

import (
	"github.com/shadowid-platform/saqr/internal/domain"
)

// Base scores per predicted level; the confidence at the predicted
// label's index scales them down.
var baseScores = map[domain.RiskLevel]int{
	domain.RiskLow:    0,
	domain.RiskMedium: 50,
	domain.RiskHigh:   100,
}

// Probability slots by classifier class id.
var probabilityOrder = []domain.RiskLevel{
	domain.RiskLow, domain.RiskMedium, domain.RiskHigh,
}

// Score derives the verdict from a predicted label and the class
// probability vector. Probability entries the classifier did not
// produce default to 0.5; unknown labels score as Low.
func Score(label string, probs []float64) domain.RiskAssessment {
	level := domain.RiskLevel(label)

	probMap := make(map[domain.RiskLevel]float64, len(probabilityOrder))
	for i, l := range probabilityOrder {
		if i < len(probs) {
			probMap[l] = probs[i]
		} else {
			probMap[l] = 0.5
		}
	}

	base, ok := baseScores[level]
	if !ok {
		base = 0
	}

	confidence, ok := probMap[level]
	if !ok {
		confidence = 0.5
	}

	return domain.RiskAssessment{
		RiskScore:       int(float64(base) * confidence),
		RiskLevel:       level,
		RiskProbability: probMap,
	}
}
