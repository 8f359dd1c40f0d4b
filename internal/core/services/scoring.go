package services

// Scorer computes a reliability score for a loan applicant. The score is
// advisory metadata attached at submission, never a transition guard: a low
// score does not block anything.
type Scorer interface {
	Score(income, charges, debtRatio float64) float64
}

// DefaultScorer is a simple headroom/debt-ratio heuristic, clamped to
// [0,100]. Real credit scoring plugs in behind the Scorer interface.
type DefaultScorer struct{}

// Score weighs disposable-income headroom against the declared debt ratio.
func (DefaultScorer) Score(income, charges, debtRatio float64) float64 {
	if income <= 0 {
		return 0
	}

	headroom := (income - charges) / income
	if headroom < 0 {
		headroom = 0
	}

	score := headroom*70 + (1-debtRatio/100)*30
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
