// Package cli implements the formguard command tree.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	envFile   string
	logLevel  string
	logJSON   bool
	ledger    string
	redisURL  string
	dsn       string
	policies  string
	keyPrefix string
}

var (
	flags  globalFlags
	logger = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:           "formguard",
	Short:         "Anti-forgery, rate limiting and bot scoring for form endpoints",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(flags.envFile); err != nil {
			return err
		}
		fillFromEnv(&flags)
		logger = newLogger(flags.logLevel, flags.logJSON)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.StringVar(&flags.logLevel, "log-level", "info", "debug|info|warn|error")
	pf.BoolVar(&flags.logJSON, "log-json", false, "emit JSON logs")
	pf.StringVar(&flags.ledger, "ledger", "", "ledger backend: redis|mysql|sqlite|memory (env FORMGUARD_LEDGER)")
	pf.StringVar(&flags.redisURL, "redis-url", "", "Redis URL (env REDIS_URL)")
	pf.StringVar(&flags.dsn, "dsn", "", "SQL data source name (env DATABASE_DSN)")
	pf.StringVar(&flags.policies, "policies", "", "policy YAML file; predefined policies when empty (env FORMGUARD_POLICIES)")
	pf.StringVar(&flags.keyPrefix, "key-prefix", "fg", "Redis key prefix for the ledger and stats")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "formguard: %v\n", err)
		os.Exit(1)
	}
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func fillFromEnv(f *globalFlags) {
	if f.ledger == "" {
		f.ledger = os.Getenv("FORMGUARD_LEDGER")
	}
	if f.redisURL == "" {
		f.redisURL = os.Getenv("REDIS_URL")
	}
	if f.dsn == "" {
		f.dsn = os.Getenv("DATABASE_DSN")
	}
	if f.policies == "" {
		f.policies = os.Getenv("FORMGUARD_POLICIES")
	}
	if f.ledger == "" {
		switch {
		case f.redisURL != "":
			f.ledger = "redis"
		case f.dsn != "":
			f.ledger = "mysql"
		default:
			f.ledger = "memory"
		}
	}
}

func newLogger(level string, asJSON bool) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if asJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
