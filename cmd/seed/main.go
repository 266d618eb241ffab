// seed applies a YAML RBAC bundle (permissions, roles, security labels and
// access policies) to the database. With --token-for it also prints a bearer
// token for a user, which is handy against a local server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/electcore/electcore/internal/api"
	"github.com/electcore/electcore/internal/app"
	"github.com/electcore/electcore/internal/platform/db"
	"github.com/electcore/electcore/internal/rbac"
)

type options struct {
	bundlePath string
	dryRun     bool
	tokenFor   int64
	tokenTTL   time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVarP(&opts.bundlePath, "bundle", "b", "deploy/rbac/bundle.yaml", "path to the RBAC bundle")
	flagSet.BoolVar(&opts.dryRun, "dry-run", false, "validate the bundle without touching the database")
	flagSet.Int64Var(&opts.tokenFor, "token-for", 0, "print a bearer token for this user id")
	flagSet.DurationVar(&opts.tokenTTL, "token-ttl", 12*time.Hour, "lifetime of the printed token")
	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if opts.tokenFor < 0 {
		return options{}, fmt.Errorf("--token-for must be positive")
	}
	return opts, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseFlags(args, out)
	if err != nil {
		return err
	}

	f, err := os.Open(opts.bundlePath)
	if err != nil {
		return fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()
	bundle, err := rbac.LoadBundle(f)
	if err != nil {
		return err
	}
	if opts.dryRun {
		fmt.Fprintf(out, "bundle ok: %d permissions, %d roles, %d labels, %d policies\n",
			len(bundle.Permissions), len(bundle.Roles), len(bundle.Labels), len(bundle.Policies))
		return nil
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, db.PoolConfig{DSN: cfg.PGDSN, MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := rbac.NewRepository(pool)
	service := rbac.NewService(repo, rbac.NewLedger(repo), nil, logger)
	if err := service.ApplyBundle(ctx, bundle); err != nil {
		logger.Error("apply bundle", slog.Any("error", err))
		return err
	}

	if opts.tokenFor > 0 {
		token, err := api.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, nil, logger).IssueToken(opts.tokenFor, opts.tokenTTL)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Fprintln(out, token)
	}
	return nil
}
