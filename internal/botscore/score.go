package botscore

// DefaultMinScore is the threshold used when no policy or config overrides it.
const DefaultMinScore = 0.5

// IsScoreAcceptable reports whether score meets the inclusive threshold.
func IsScoreAcceptable(score, minScore float64) bool {
	return score >= minScore
}

// ScoreDescription returns a human-readable band for logs.
func ScoreDescription(score float64) string {
	switch {
	case score >= 0.9:
		return "very likely human"
	case score >= 0.7:
		return "likely human"
	case score >= 0.5:
		return "neutral"
	case score >= 0.3:
		return "likely bot"
	default:
		return "very likely bot"
	}
}
