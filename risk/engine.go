package risk

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/phalanx-sec/mailtriage/evidence"
)

// RecipientAverager supplies the sender's historical recipients-per-message
// average. evidence.Aggregator implements it. The engine treats any lookup
// failure as "average unknown": the unusualRecipientCount factor simply
// does not fire, and no error propagates.
type RecipientAverager interface {
	AverageRecipients(ctx context.Context, messageID string) (float64, error)
}

// Engine evaluates the factor catalog over an evidence bundle. It is
// purely CPU-bound over already-fetched data apart from the optional
// recipient-average follow-up read.
type Engine struct {
	cfg    Config
	stats  RecipientAverager
	logger *slog.Logger
	now    func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithStats provides the follow-up reader used for the sender's
// historical recipient average. Without it the unusualRecipientCount
// factor never fires.
func WithStats(stats RecipientAverager) EngineOption {
	return func(e *Engine) {
		e.stats = stats
	}
}

// WithLogger sets the structured logger used by the engine.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an Engine with the given heuristics configuration.
func NewEngine(cfg Config, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score evaluates every catalog factor against the bundle and aggregates
// the result. It never returns an error: a nil bundle or a bundle without
// a message yields a zero score with level low, confidence low, and a
// recommendation explaining that the message was not found.
//
// Scoring is deterministic: the same evidence snapshot always yields the
// same total, level, and factor list.
func (e *Engine) Score(ctx context.Context, bundle *evidence.Bundle) Score {
	if bundle == nil || bundle.Message.ID == "" {
		return Score{
			Total:      0,
			Level:      LevelLow,
			Confidence: ConfidenceLow,
			Factors:    []Factor{},
			Recommendations: []string{
				"message was not found in the graph store; no evidence available to score",
			},
			Timestamp: e.now(),
		}
	}

	ec := &evalContext{
		bundle: bundle,
		cfg:    &e.cfg,
		text:   strings.ToLower(bundle.Message.Subject + " " + bundle.Message.Body),
	}

	if e.stats != nil {
		avg, err := e.stats.AverageRecipients(ctx, bundle.Message.ID)
		if err != nil {
			// Average unknown: the dependent factor does not fire.
			e.logger.Debug("recipient average lookup failed",
				"message_id", bundle.Message.ID,
				"error", err)
		} else if len(bundle.SenderHistory) > 0 {
			ec.avgRecipients = avg
			ec.avgKnown = true
		}
	}

	var (
		factors         []Factor
		recommendations []string
		sum             float64
	)

	for _, r := range catalog {
		result := r.evaluate(ec)
		if !result.fired {
			continue
		}

		weight := result.weight
		if weight == 0 {
			weight = 1.0
		}

		factors = append(factors, Factor{
			Name:        r.name,
			Score:       r.base,
			Weight:      weight,
			Evidence:    result.evidence,
			Description: result.description,
		})
		sum += r.base * weight

		if r.recommendation != "" {
			recommendations = append(recommendations, r.recommendation)
		}
	}

	total := int(math.Round(math.Min(100, sum)))
	level := levelFor(total)
	recommendations = append(recommendations, levelRecommendations(level)...)

	e.logger.Debug("risk scored",
		"message_id", bundle.Message.ID,
		"total", total,
		"level", string(level),
		"factors", len(factors))

	return Score{
		Total:           total,
		Level:           level,
		Confidence:      confidenceFor(len(factors)),
		Factors:         factors,
		Recommendations: recommendations,
		Timestamp:       e.now(),
	}
}
