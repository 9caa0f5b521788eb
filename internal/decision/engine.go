package decision

import (
	"context"
	"log"

	"spendguard-agent/internal/config"
	"spendguard-agent/internal/metrics"
	"spendguard-agent/internal/reasoning"
)

// Confidence bounds for external-sourced decisions.
const (
	confidenceBase = 70
	confidenceMin  = 60
	confidenceMax  = 95
)

// Engine owns the decision path for one agent process. Safe for concurrent
// use; it holds no per-event state.
type Engine struct {
	gen reasoning.Generator
	cfg config.DecisionConfig
	// defaultDelay is the countdown length for low/unknown stress.
	defaultDelay int
}

// NewEngine builds the engine. gen may be nil, which forces the rules path
// on every evaluation.
func NewEngine(gen reasoning.Generator, cfg config.DecisionConfig, defaultDelayMinutes int) *Engine {
	return &Engine{gen: gen, cfg: cfg, defaultDelay: defaultDelayMinutes}
}

// Evaluate produces the risk decision for one purchase event. Never returns
// an error: external failures recover to the rules path, and the worst case
// (nothing extracted, nothing reachable) is a low-confidence proceed.
func (e *Engine) Evaluate(ctx context.Context, in Input) RiskDecision {
	d, ok := e.tryExternal(ctx, in)
	if !ok {
		d = ruleBased(in, e.cfg)
	}
	if d.DelayMinutes == 0 {
		d.DelayMinutes = DelayMinutesFor(in.Wellness.StressLevel, e.defaultDelay)
	}
	metrics.DecisionsTotal.WithLabelValues(d.Source, d.RiskLevel).Inc()
	return d
}

func (e *Engine) tryExternal(ctx context.Context, in Input) (RiskDecision, bool) {
	if e.gen == nil {
		return RiskDecision{}, false
	}

	text, err := e.gen.Generate(ctx, buildPrompt(in))
	if err != nil {
		log.Printf("decision: external reasoning failed, falling back to rules: %v", err)
		metrics.ExternalFailures.WithLabelValues("request").Inc()
		return RiskDecision{}, false
	}

	p, err := parseExternal(text)
	if err != nil {
		log.Printf("decision: external answer malformed, falling back to rules: %v", err)
		metrics.ExternalFailures.WithLabelValues("malformed").Inc()
		return RiskDecision{}, false
	}

	d := RiskDecision{
		ShouldIntervene: p.intervene,
		RiskLevel:       p.riskLevel,
		Reasons:         p.reasons,
		Recommendations: p.recommendations,
		StressImpact:    p.stressImpact,
		BudgetImpact:    p.budgetImpact,
		Source:          SourceExternal,
	}
	d.Confidence = scoreConfidence(in, d)
	return d, true
}

// scoreConfidence rates an external decision: base value, a bump per
// corroborating input, a penalty for internal inconsistency, clamped.
func scoreConfidence(in Input, d RiskDecision) int {
	c := confidenceBase
	if in.Wellness.StressLevel != "" {
		c += 5
	}
	if in.Wellness.SavingsRunway != "" {
		c += 5
	}
	if in.Context.Amount > 0 {
		c += 5
	}
	if !in.Behavior.Empty() {
		c += 5
	}
	if d.RiskLevel == RiskHigh && !d.ShouldIntervene {
		c -= 10
	}
	if c < confidenceMin {
		return confidenceMin
	}
	if c > confidenceMax {
		return confidenceMax
	}
	return c
}
