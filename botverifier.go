package formguard

import (
	"context"

	"github.com/MrEthical07/formguard/internal/botscore"
)

// BotResult is the tagged outcome of one bot-score verification.
type BotResult = botscore.Result

// BotOutcome tags a BotResult.
type BotOutcome = botscore.Outcome

const (
	BotVerified = botscore.Verified
	BotDegraded = botscore.Degraded
	BotRejected = botscore.Rejected
)

// BotVerifier checks a client bot-detection token. Implementations never return errors:
// transient trouble maps to BotDegraded and hard failures to BotRejected. Verify must
// honor ctx cancellation.
type BotVerifier interface {
	Verify(ctx context.Context, token, expectedAction string) BotResult
}

// BotVerifierFunc adapts a function to BotVerifier.
type BotVerifierFunc func(ctx context.Context, token, expectedAction string) BotResult

func (f BotVerifierFunc) Verify(ctx context.Context, token, expectedAction string) BotResult {
	return f(ctx, token, expectedAction)
}

// IsScoreAcceptable reports whether score meets the inclusive threshold minScore.
func IsScoreAcceptable(score, minScore float64) bool {
	return botscore.IsScoreAcceptable(score, minScore)
}

// ScoreDescription returns a human-readable band for score.
func ScoreDescription(score float64) string {
	return botscore.ScoreDescription(score)
}
