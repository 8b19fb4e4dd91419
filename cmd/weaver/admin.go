package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/Strob0t/Weaver/internal/adapter/postgres"
	"github.com/Strob0t/Weaver/internal/config"
	"github.com/Strob0t/Weaver/internal/domain/provider"
	"github.com/Strob0t/Weaver/internal/port/messagequeue"
)

// runAdmin dispatches admin subcommands.
func runAdmin(cfg *config.Config, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runAdminMigrate(cfg, args[1:])
	case "add-provider":
		return runAdminAddProvider(cfg, args[1:])
	case "list-sessions":
		return runAdminListSessions(cfg, args[1:])
	case "sweep":
		return runAdminSweep(cfg, args[1:])
	case "watch":
		return runAdminWatch(cfg, args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: weaver admin <command> [options]

Commands:
  migrate          Apply database migrations (--rollback N to undo)
  add-provider     Register a git provider connection
  list-sessions    List sessions with their live container state
  sweep            Run one orphan container and log retention pass
  watch            Print session events from NATS until interrupted
  help             Show this help message

Examples:
  weaver admin migrate
  weaver admin add-provider --name gitlab --type GITLAB --base-url https://gitlab.example.com
  weaver admin list-sessions
`)
}

func runAdminMigrate(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	rollback := fs.Int("rollback", 0, "roll back this many migrations instead of applying")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	if *rollback > 0 {
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *rollback); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
	} else if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	version, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Database at migration version %d\n", version)
	return nil
}

func runAdminAddProvider(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("add-provider", flag.ContinueOnError)
	name := fs.String("name", "", "provider display name (required)")
	typ := fs.String("type", "", "GITLAB, GITHUB or AZURE_DEVOPS (required)")
	baseURL := fs.String("base-url", "", "provider base URL (required)")
	gitConfig := fs.String("git-config", "", "gitconfig written into session containers")
	token := fs.String("token", "", "access token (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	tok := *token
	if tok == "" {
		var err error
		tok, err = promptPassword("Access token: ")
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.providers.Create(ctx, provider.Request{
		Name:      *name,
		BaseURL:   *baseURL,
		Type:      provider.Type(strings.ToUpper(*typ)),
		Token:     tok,
		GitConfig: *gitConfig,
	})
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Provider created: %s (id=%d, type=%s)\n", p.Name, p.ID, p.Type)
	return nil
}

func runAdminListSessions(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("list-sessions", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	views, err := a.sessions.List(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(views) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tREPO\tSTATUS\tCONTAINER\tVSCODE\tERROR")
	for i := range views {
		v := &views[i]
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			v.ID, v.RepoPathWithNamespace, v.Status, v.ContainerState, v.VSCodeURL, v.ErrorMessage)
	}
	return w.Flush()
}

func runAdminSweep(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	rep := a.cleanup.Sweep(ctx)
	fmt.Fprintf(os.Stderr, "Orphan containers removed: %d (failed: %d)\nSession logs deleted: %d\n",
		rep.OrphansRemoved, rep.OrphansFailed, rep.LogsDeleted)
	return nil
}

func runAdminWatch(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	subject := fs.String("subject", messagequeue.SubjectSessions, "subject filter")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !cfg.NATS.Enabled {
		return errors.New("watch requires nats.enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	cancel, err := a.queue.Subscribe(ctx, *subject, func(_ context.Context, subj string, data []byte) error {
		fmt.Printf("%s %s\n", subj, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer cancel()

	<-ctx.Done()
	return nil
}

// promptPassword reads a secret from the terminal without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)                         // newline after input
	if err != nil {
		return "", err
	}
	return string(b), nil
}
