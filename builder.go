package formguard

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/formguard/internal/botscore"
	"github.com/MrEthical07/formguard/internal/ratelimit"
)

// Builder defines a public type used by formguard APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config

	ledger     Ledger
	verifier   BotVerifier
	httpClient *http.Client
	auditSink  AuditSink
	logger     *slog.Logger
	clock      func() time.Time

	built bool
}

// New starts a Builder with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithLedger sets the attempt ledger. Required while RateLimit.Enabled is true.
func (b *Builder) WithLedger(l Ledger) *Builder {
	b.ledger = l
	return b
}

// WithBotVerifier replaces the built-in siteverify client.
func (b *Builder) WithBotVerifier(v BotVerifier) *Builder {
	b.verifier = v
	return b
}

// WithHTTPClient sets the client used by the built-in siteverify client.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

func (b *Builder) withClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates the configuration and assembles a Guard. A Builder builds once.
func (b *Builder) Build() (*Guard, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.RateLimit.Enabled && b.ledger == nil {
		return nil, ErrLedgerRequired
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.clock
	if now == nil {
		now = time.Now
	}

	g := &Guard{
		config:  cfg,
		logger:  logger,
		now:     now,
		metrics: NewMetrics(cfg.Metrics),
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
	}

	if cfg.RateLimit.Enabled {
		g.limiter = ratelimit.New(b.ledger, ratelimit.Config{
			Retention:     cfg.RateLimit.Retention,
			PurgeInterval: cfg.RateLimit.PurgeInterval,
			PurgeTimeout:  cfg.RateLimit.PurgeTimeout,
		},
			ratelimit.WithLogger(logger),
			ratelimit.WithClock(now),
		)
	}

	if cfg.BotScore.Enabled {
		g.verifier = b.verifier
		if g.verifier == nil {
			g.verifier = botscore.New(botscore.Config{
				Secret:    cfg.BotScore.Secret,
				VerifyURL: cfg.BotScore.VerifyURL,
				Timeout:   cfg.BotScore.Timeout,
			},
				botscore.WithHTTPClient(b.httpClient),
				botscore.WithLogger(logger),
			)
		}
	}

	if ws := cfg.Lint(); len(ws) > 0 {
		for _, w := range ws {
			logger.Debug("formguard: config lint", "code", w.Code, "message", w.Message)
		}
	}

	b.built = true

	return g, nil
}
