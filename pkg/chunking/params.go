package chunking

import "fmt"

// Params are the token budgets a chunking run operates under.
type Params struct {
	MinTokens     int
	MaxTokens     int
	OverlapTokens int
}

// LegacyParams is the deprecated fixed profile, reachable only by
// explicitly disabling adaptive chunking without overriding the window.
func LegacyParams() Params {
	return Params{MinTokens: 150, MaxTokens: 450, OverlapTokens: 40}
}

// Validate checks the budget invariants.
func (p Params) Validate() error {
	if p.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", p.MaxTokens)
	}
	if p.MinTokens < 0 || p.MinTokens > p.MaxTokens {
		return fmt.Errorf("min tokens (%d) must be within [0, %d]", p.MinTokens, p.MaxTokens)
	}
	if p.OverlapTokens < 0 || p.OverlapTokens >= p.MaxTokens {
		return fmt.Errorf("overlap tokens (%d) must be within [0, %d)", p.OverlapTokens, p.MaxTokens)
	}
	return nil
}

// AdaptiveParams chooses budgets from the corpus size and the number of
// entities already known for the handbook. Larger corpora get smaller
// windows; entity-dense handbooks shrink further so each chunk stays
// focused.
func AdaptiveParams(totalDocTokens, entityCount int) Params {
	var target int
	switch {
	case totalDocTokens < 50_000:
		target = 700
	case totalDocTokens <= 200_000:
		target = 500
	default:
		target = 350
	}

	if entityCount > 10 {
		// 5% per 10 entities above 10, capped at 50%.
		shrink := float64(entityCount-10) / 10 * 0.05
		if shrink > 0.5 {
			shrink = 0.5
		}
		target = int(float64(target) * (1 - shrink))
	}

	if target < 200 {
		target = 200
	}
	if target > 800 {
		target = 800
	}

	minTokens := int(0.3 * float64(target))
	if minTokens < 100 {
		minTokens = 100
	}
	overlap := int(0.12 * float64(target))
	if overlap > 100 {
		overlap = 100
	}

	return Params{MinTokens: minTokens, MaxTokens: target, OverlapTokens: overlap}
}
