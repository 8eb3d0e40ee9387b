package types

import "time"

// ComplianceCase is a decision-centric unit of the case base. It is
// structurally parallel to MemoryEntry but lives in its own id space and
// storage; the two never share references.
type ComplianceCase struct {
	CaseID      string `json:"case_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Context  map[string]any `json:"context"`
	Decision map[string]any `json:"decision"`
	Outcome  map[string]any `json:"outcome,omitempty"`

	Tags         []string `json:"tags,omitempty"`
	Stakeholders []string `json:"stakeholders,omitempty"`

	Timestamp    time.Time `json:"timestamp"`
	SuccessScore float64   `json:"success_score"`

	Embedding      []float64          `json:"embedding,omitempty"`
	FeatureWeights map[string]float64 `json:"feature_weights,omitempty"`

	Domain    string `json:"domain,omitempty"`
	RiskLevel string `json:"risk_level,omitempty"`
}

// Validate checks the required fields for admission to the case base.
func (c *ComplianceCase) Validate() error {
	if c == nil {
		return NewError(ErrValidation, "case is nil")
	}
	if c.CaseID == "" {
		return NewError(ErrValidation, "case id is required")
	}
	if c.Title == "" {
		return NewError(ErrValidation, "case title is required")
	}
	if len(c.Context) == 0 {
		return NewError(ErrValidation, "case context is required")
	}
	if len(c.Decision) == 0 {
		return NewError(ErrValidation, "case decision is required")
	}
	return nil
}

// Clone returns a deep copy of the case.
func (c *ComplianceCase) Clone() *ComplianceCase {
	if c == nil {
		return nil
	}
	out := *c
	out.Context = cloneMap(c.Context)
	out.Decision = cloneMap(c.Decision)
	out.Outcome = cloneMap(c.Outcome)
	out.Tags = cloneStrings(c.Tags)
	out.Stakeholders = cloneStrings(c.Stakeholders)
	out.Embedding = cloneFloats(c.Embedding)
	if c.FeatureWeights != nil {
		fw := make(map[string]float64, len(c.FeatureWeights))
		for k, v := range c.FeatureWeights {
			fw[k] = v
		}
		out.FeatureWeights = fw
	}
	return &out
}
