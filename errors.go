package formguard

import "errors"

var (
	// ErrBuilderUsed is returned when Build is called twice on the same Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrInvalidConfig wraps every Config.Validate failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidPolicy is returned by Policy.Validate.
	ErrInvalidPolicy = errors.New("invalid policy")
	// ErrLedgerRequired is returned by Build when rate limiting is enabled without a ledger.
	ErrLedgerRequired = errors.New("ledger required when rate limiting is enabled")
	// ErrTokenIssue is returned by IssueToken when the random source fails.
	ErrTokenIssue = errors.New("token issue failed")
)
