package openaichat

// reasoningEffort maps a Claude thinking budget onto OpenAI's effort levels.
//
// Mapping: ≤ 1,024 tokens low, ≤ 8,192 tokens medium, above high. The thresholds mirror
// the budgets Claude clients typically send for the three levels.
func reasoningEffort(budgetTokens int) string {
	switch {
	case budgetTokens <= 1024:
		return "low"
	case budgetTokens <= 8192:
		return "medium"
	default:
		return "high"
	}
}
