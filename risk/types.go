// Package risk converts an evidence bundle into a deterministic,
// explainable risk score. The factor catalog is a declarative table of
// named signals evaluated uniformly in one pass: every factor fires at
// most once per run, and scoring the same evidence snapshot twice yields
// identical results.
package risk

import "time"

// Level is the coarse risk bucket derived from the normalized total score.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Confidence rates how many independent factors contributed to a score,
// not the score's magnitude.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Factor is one weighted, named signal that contributed to a score,
// together with the evidence that justifies it.
type Factor struct {
	// Name identifies the factor. No two factors with the same name can
	// fire in one run.
	Name string `json:"factor"`

	// Score is the factor's base weight.
	Score float64 `json:"score"`

	// Weight is the 0.0-1.0 confidence multiplier applied to Score.
	Weight float64 `json:"weight"`

	// Evidence holds the supporting data behind the factor.
	Evidence any `json:"evidence,omitempty"`

	// Description explains the factor in analyst-readable terms.
	Description string `json:"description"`
}

// Score is the outcome of one risk evaluation. It is derived and
// recomputed on demand; each call yields a fresh, independent result.
type Score struct {
	// Total is the clamped 0-100 aggregate.
	Total int `json:"total"`

	Level      Level      `json:"level"`
	Confidence Confidence `json:"confidence"`

	// Factors lists the signals that fired, in catalog order.
	Factors []Factor `json:"factors"`

	// Recommendations are ordered: per-factor guidance first (in firing
	// order), level-specific guidance last.
	Recommendations []string `json:"recommendations"`

	Timestamp time.Time `json:"timestamp"`
}

// levelFor buckets a clamped total into a risk level.
// Boundaries are exact: 24 is low, 25 medium, 49 medium, 50 high,
// 74 high, 75 critical.
func levelFor(total int) Level {
	switch {
	case total < 25:
		return LevelLow
	case total < 50:
		return LevelMedium
	case total < 75:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// confidenceFor buckets the number of fired factors into a confidence
// rating.
func confidenceFor(fired int) Confidence {
	switch {
	case fired < 3:
		return ConfidenceLow
	case fired < 6:
		return ConfidenceMedium
	default:
		return ConfidenceHigh
	}
}

// levelRecommendations returns the guidance appended after all factor
// recommendations. Critical always includes immediate quarantine and
// incident-response escalation.
func levelRecommendations(level Level) []string {
	switch level {
	case LevelCritical:
		return []string{
			"quarantine and block sender immediately",
			"escalate to incident response",
		}
	case LevelHigh:
		return []string{
			"hold the message and alert the security team",
		}
	case LevelMedium:
		return []string{
			"review message headers and sender history before release",
		}
	default:
		return []string{
			"no immediate action required; continue routine monitoring",
		}
	}
}
