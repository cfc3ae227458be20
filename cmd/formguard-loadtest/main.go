// Command formguard-loadtest measures how far concurrent bursts push a client past its
// quota, with count-then-insert admission and with atomic admission.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/formguard"
)

const loadToken = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func main() {
	var (
		clients     = flag.Int("clients", 50, "distinct client identities")
		quota       = flag.Int("quota", 10, "max requests per client per window")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "requests per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "fg:lt", "ledger key prefix")
	)
	flag.Parse()

	if *clients <= 0 || *quota <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "clients, quota, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := formguard.DefaultConfig()
	cfg.RateLimit.PurgeInterval = -1
	g, err := formguard.New().
		WithConfig(cfg).
		WithLedger(formguard.NewRedisLedger(client, *prefix, time.Hour)).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build guard: %v\n", err)
		os.Exit(1)
	}
	defer g.Close()

	base := formguard.Policy{MaxRequests: *quota, Window: time.Hour}

	plain := base
	plain.Endpoint = "/loadtest/count-then-insert"
	atomicPolicy := base
	atomicPolicy.Endpoint = "/loadtest/atomic"
	atomicPolicy.AtomicQuota = true

	plainStats := runPhase(g, plain, *clients, *ops, *concurrency)
	atomicStats := runPhase(g, atomicPolicy, *clients, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("count-then-insert", plainStats)
	printStats("atomic", atomicStats)
}

func runPhase(g *formguard.Guard, p formguard.Policy, clients, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		degraded  int64
		admitted  = make([]int64, clients)
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(clients)
				req := newRequest(p.Endpoint, fmt.Sprintf("client-%d", idx))

				t0 := time.Now()
				v := g.VerifyDeferred(req, p)
				d := time.Since(t0)

				if v.Allowed() {
					atomic.AddInt64(&admitted[idx], 1)
				}
				if v.IsDegraded() {
					atomic.AddInt64(&degraded, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)

	s := computeStats(total, latencies, degraded)
	for _, n := range admitted {
		s.admitted += n
		if over := n - int64(p.MaxRequests); over > 0 {
			s.overAdmitted += over
			s.clientsOver++
		}
	}
	return s
}

func newRequest(endpoint, identity string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, endpoint, strings.NewReader("{}"))
	req.Header.Set("X-CSRF-Token", loadToken)
	req.AddCookie(&http.Cookie{Name: "csrf-token", Value: loadToken})
	return req.WithContext(formguard.WithClientIdentity(context.Background(), identity))
}

type phaseStats struct {
	total        time.Duration
	ops          int
	degraded     int64
	admitted     int64
	overAdmitted int64
	clientsOver  int
	p50          time.Duration
	p95          time.Duration
	p99          time.Duration
	opsPerS      float64
}

func computeStats(total time.Duration, samples []time.Duration, degraded int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		degraded: degraded,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d admitted=%d over_admitted=%d clients_over=%d degraded=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.admitted,
		s.overAdmitted,
		s.clientsOver,
		s.degraded,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
