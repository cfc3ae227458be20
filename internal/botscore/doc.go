// Package botscore verifies bot-detection tokens against a reCAPTCHA v3 style
// siteverify endpoint and returns a tagged [Result].
//
// Outcomes:
//
//   - Verified: the provider answered, the action tag matched, Score is meaningful.
//   - Degraded: the check could not produce a trustworthy signal (unconfigured, timeout,
//     transport error, unparseable body, provider-reported failure). Callers let the
//     request through and record the degradation.
//   - Rejected: empty token or action mismatch. Always a hard denial.
package botscore
