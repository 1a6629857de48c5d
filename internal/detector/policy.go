package detector

// DecisionKind enumerates ThresholdPolicy outcomes.
type DecisionKind string

const (
	DecisionNone   DecisionKind = "none"
	CandidateStart DecisionKind = "candidate_start"
	CandidateEnd   DecisionKind = "candidate_end"
)

// Decision is the policy verdict for one reading. Confidence is the winning
// class probability, zero for DecisionNone.
type Decision struct {
	Kind       DecisionKind
	Confidence float64
}

// ThresholdPolicy turns classifier output into actionable candidates.
// Gates run in a fixed order: global confidence floor, magnitude gate, then
// the per-class floor.
type ThresholdPolicy struct {
	cfg    ThresholdConfig
	filter *MagnitudeFilter
}

// NewThresholdPolicy binds cfg to the session's magnitude filter.
func NewThresholdPolicy(cfg ThresholdConfig, filter *MagnitudeFilter) *ThresholdPolicy {
	return &ThresholdPolicy{cfg: cfg, filter: filter}
}

// Decide evaluates probs for a reading of the given magnitude.
func (p *ThresholdPolicy) Decide(probs ProbabilityVector, magnitude float64) Decision {
	if p.cfg.EnableConfidenceFilter && probs.Max() < p.cfg.PredictionConfidenceMin {
		return Decision{Kind: DecisionNone}
	}
	if p.cfg.EnableMagnitudeFilter && !p.filter.Passes(magnitude) {
		return Decision{Kind: DecisionNone}
	}

	// No-label never wins; ties go to start.
	kind, prob := CandidateStart, probs.Start
	if probs.End > probs.Start {
		kind, prob = CandidateEnd, probs.End
	}
	if prob < p.cfg.StepClassThreshold {
		return Decision{Kind: DecisionNone}
	}
	return Decision{Kind: kind, Confidence: prob}
}
