package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter-dispatch/internal/archive"
	"github.com/sungwon/newsletter-dispatch/internal/auth"
	"github.com/sungwon/newsletter-dispatch/internal/bootstrap"
	"github.com/sungwon/newsletter-dispatch/internal/config"
	"github.com/sungwon/newsletter-dispatch/internal/idempotency"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

// env lazily loads config and opens the database for commands that need them.
type env struct {
	configDir string
	stdout    io.Writer
	stderr    io.Writer

	cfg *config.Config
	log zerolog.Logger
	db  *storage.DB
}

func (e *env) config() (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	cfg, err := config.Load(e.configDir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	e.cfg = cfg
	e.log = bootstrap.Logger(cfg)
	return cfg, nil
}

func (e *env) database(ctx context.Context) (*storage.DB, error) {
	if e.db != nil {
		return e.db, nil
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	db, err := bootstrap.Database(ctx, cfg)
	if err != nil {
		return nil, err
	}
	e.db = db
	return db, nil
}

func (e *env) close() {
	if e.db != nil {
		e.db.Close()
	}
}

func newFlagSet(name string, e *env) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func parseIssue(fs *flag.FlagSet, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		fmt.Fprintf(fs.Output(), "-issue must be a newsletter issue id, got %q\n", raw)
		fs.Usage()
		return uuid.Nil, errUsage
	}
	return id, nil
}

func runMigrate(ctx context.Context, e *env, args []string) error {
	if err := newFlagSet("migrate", e).Parse(args); err != nil {
		return errUsage
	}
	db, err := e.database(ctx)
	if err != nil {
		return err
	}
	return bootstrap.Migrate(ctx, db, e.log)
}

func runStats(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("stats", e)
	issue := fs.String("issue", "", "limit to one newsletter issue id")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	var issueID *uuid.UUID
	if *issue != "" {
		id, err := parseIssue(fs, *issue)
		if err != nil {
			return err
		}
		issueID = &id
	}

	db, err := e.database(ctx)
	if err != nil {
		return err
	}
	stats, err := storage.NewQueueRepository().Stats(ctx, db.Pool, issueID)
	if err != nil {
		return err
	}
	confirmed, err := storage.NewSubscriberRepository().ConfirmedEmails(ctx, db.Pool)
	if err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "pending:   %d\n", stats.Pending)
	fmt.Fprintf(e.stdout, "retrying:  %d\n", stats.Retrying)
	fmt.Fprintf(e.stdout, "disabled:  %d\n", stats.Disabled)
	fmt.Fprintf(e.stdout, "confirmed subscribers: %d\n", len(confirmed))
	return nil
}

func runRequeue(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("requeue", e)
	issue := fs.String("issue", "", "newsletter issue id (required)")
	emails := fs.String("emails", "", "comma-separated subscriber emails; empty requeues every disabled task")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	issueID, err := parseIssue(fs, *issue)
	if err != nil {
		return err
	}

	db, err := e.database(ctx)
	if err != nil {
		return err
	}
	n, err := storage.NewQueueRepository().Reenable(ctx, db.Pool, issueID, parseEmails(*emails))
	if err != nil {
		return err
	}

	if n > 0 {
		notifier, closeRedis, err := bootstrap.Notifier(ctx, e.cfg, e.log)
		if err != nil {
			e.log.Warn().Err(err).Msg("requeued without waking workers")
		} else {
			defer closeRedis()
			if err := bootstrap.AsNotifier(notifier).Notify(ctx, issueID); err != nil {
				e.log.Warn().Err(err).Msg("failed to notify workers")
			}
		}
	}

	fmt.Fprintf(e.stdout, "requeued %d task(s) of issue %s\n", n, issueID)
	return nil
}

func runExport(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("export-disabled", e)
	issue := fs.String("issue", "", "newsletter issue id (required)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	issueID, err := parseIssue(fs, *issue)
	if err != nil {
		return err
	}

	db, err := e.database(ctx)
	if err != nil {
		return err
	}
	store, err := bootstrap.Archive(ctx, e.cfg, e.log)
	if err != nil {
		return err
	}

	n, err := archive.NewExporter(store, db.Pool, storage.NewQueueRepository(), e.log).Export(ctx, issueID)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintf(e.stdout, "issue %s has no disabled tasks\n", issueID)
		return nil
	}
	fmt.Fprintf(e.stdout, "exported %d disabled task(s) to %s\n", n, archive.Key(issueID))
	return nil
}

func runSweep(ctx context.Context, e *env, args []string) error {
	if err := newFlagSet("sweep-idempotency", e).Parse(args); err != nil {
		return errUsage
	}
	db, err := e.database(ctx)
	if err != nil {
		return err
	}

	cfg := e.cfg
	janitor := idempotency.NewJanitor(db.Pool, storage.NewIdempotencyRepository(), cfg.Idempotency.Retention, cfg.Idempotency.SweepInterval, e.log)
	n, err := janitor.Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "deleted %d idempotency record(s) older than %s\n", n, cfg.Idempotency.Retention)
	return nil
}

func runToken(_ context.Context, e *env, args []string) error {
	fs := newFlagSet("token", e)
	user := fs.String("user", "", "user id; a random one is generated when empty")
	role := fs.String("role", auth.RolePublisher, "token role: publisher or admin")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	userID := uuid.New()
	if *user != "" {
		id, err := uuid.Parse(*user)
		if err != nil {
			fmt.Fprintf(e.stderr, "-user must be a uuid, got %q\n", *user)
			return errUsage
		}
		userID = id
	}
	if !auth.ValidRole(*role) {
		fmt.Fprintf(e.stderr, "-role must be %s or %s\n", auth.RolePublisher, auth.RoleAdmin)
		return errUsage
	}

	cfg, err := e.config()
	if err != nil {
		return err
	}
	token, err := bootstrap.JWTService(cfg, e.log).GenerateAccessToken(userID, *role)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, token)
	return nil
}
