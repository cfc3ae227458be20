package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/formguard"
	"github.com/MrEthical07/formguard/metrics/export/prometheus"
	"github.com/MrEthical07/formguard/middleware/ginguard"
	"github.com/MrEthical07/formguard/policyset"
	"github.com/MrEthical07/formguard/sinks/redisstats"
	"github.com/MrEthical07/formguard/sinks/streamsink"
)

var serveOpts struct {
	addr          string
	purgeSchedule string
	stream        bool
	streamTopic   string
	watch         bool
}

func init() {
	rootCmd.AddCommand(serveCmd)
	f := serveCmd.Flags()
	f.StringVar(&serveOpts.addr, "addr", ":8080", "listen address")
	f.StringVar(&serveOpts.purgeSchedule, "purge-schedule", "@every 15m", "cron schedule for the full ledger purge; empty disables it")
	f.BoolVar(&serveOpts.stream, "stream", false, "publish verdict events to a Redis stream")
	f.StringVar(&serveOpts.streamTopic, "stream-topic", streamsink.DefaultTopic, "Redis stream receiving verdict events")
	f.BoolVar(&serveOpts.watch, "watch", true, "reload the policy file when it changes")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the token endpoint and the protected form endpoints",
	Long: "Serves GET /api/csrf-token, one POST route per policy endpoint and GET /metrics.\n" +
		"Protected routes answer with the verdict; put formguard in front of the real handlers\n" +
		"or embed the library directly for anything beyond that.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := formguard.ConfigFromEnv()
	cfg.Audit.Enabled = true
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	be, err := openBackend(ctx, flags, cfg.RateLimit.Retention)
	if err != nil {
		return err
	}
	defer be.Close()

	policies, err := loadPolicies(flags.policies)
	if err != nil {
		return err
	}

	sinks := formguard.MultiSink{}
	var stats *redisstats.Sink
	if be.redis != nil {
		stats = redisstats.New(be.redis,
			redisstats.WithPrefix(flags.keyPrefix+":stats"),
			redisstats.WithLogger(logger),
		)
		sinks = append(sinks, stats)

		if serveOpts.stream {
			pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: be.redis}, watermill.NewStdLogger(false, false))
			if err != nil {
				return err
			}
			defer pub.Close()
			sinks = append(sinks, streamsink.New(pub, streamsink.WithTopic(serveOpts.streamTopic), streamsink.WithLogger(logger)))
		}
	}

	g, err := formguard.New().
		WithConfig(cfg).
		WithLedger(be.ledger).
		WithAuditSink(sinks).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer g.Close()

	if err := policies.Constrain(g.ValidatePolicy); err != nil {
		return err
	}

	if flags.policies != "" && serveOpts.watch {
		w, err := policyset.NewWatcher(policies, flags.policies, logger)
		if err != nil {
			return err
		}
		go func() { _ = w.Run(ctx) }()
	}

	scheduler := cron.New()
	if serveOpts.purgeSchedule != "" {
		if _, err := scheduler.AddFunc(serveOpts.purgeSchedule, func() { purgeOnce(ctx, g) }); err != nil {
			return err
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
	}

	srv := &http.Server{
		Addr:              serveOpts.addr,
		Handler:           newRouter(g, policies, prometheus.NewPrometheusExporter(g)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("formguard: listening", "addr", serveOpts.addr, "ledger", flags.ledger, "policies", policies.Names())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("formguard: shutting down")
	return srv.Shutdown(shutdownCtx)
}

func purgeOnce(ctx context.Context, g *formguard.Guard) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	n, err := g.PurgeLedger(ctx)
	if err != nil {
		logger.Error("formguard: scheduled purge failed", "error", err)
		return
	}
	logger.Info("formguard: scheduled purge", "removed", n)
}

// newRouter mounts one POST route per policy. The policy is looked up on every
// request so reloaded quotas apply without restarting; routes themselves are fixed
// at startup.
func newRouter(g *formguard.Guard, policies *policyset.Set, exporter *prometheus.PrometheusExporter) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/csrf-token", ginguard.TokenHandler(g))
	r.GET("/metrics", gin.WrapH(exporter.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	seen := map[string]string{}
	for _, name := range policies.Names() {
		p, _ := policies.Get(name)
		if other, dup := seen[p.Endpoint]; dup {
			logger.Warn("formguard: duplicate policy endpoint skipped", "endpoint", p.Endpoint, "policy", name, "kept", other)
			continue
		}
		seen[p.Endpoint] = name
		name := name
		r.POST(p.Endpoint, func(c *gin.Context) {
			current, ok := policies.Get(name)
			if !ok {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"success": false, "error": "Not found"})
				return
			}
			ginguard.Protect(g, current)(c)
		}, acceptedHandler)
	}
	return r
}

func acceptedHandler(c *gin.Context) {
	v, ok := ginguard.Verdict(c)
	if !ok {
		return
	}
	body := gin.H{
		"success":    true,
		"verdict_id": v.ID,
		"outcome":    v.Outcome.String(),
		"remaining":  v.Remaining,
	}
	if len(v.Degraded) > 0 {
		body["degraded"] = v.Degraded
	}
	c.JSON(http.StatusOK, body)
}
