// Command queue-admin runs one-off maintenance against the delivery queue:
// schema migration, queue inspection, requeue and export of disabled tasks,
// idempotency sweeps and dev token minting.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
)

const exitUsage = 2

var errUsage = errors.New("usage")

type command struct {
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

var commands = map[string]command{
	"migrate":           {"apply the embedded schema", runMigrate},
	"stats":             {"print queue depth, optionally for one issue (-issue)", runStats},
	"requeue":           {"re-enable disabled tasks of an issue (-issue, -emails)", runRequeue},
	"export-disabled":   {"append disabled tasks of an issue to the archive (-issue)", runExport},
	"sweep-idempotency": {"delete saved responses older than idempotency.retention", runSweep},
	"token":             {"mint an access token (-user, -role)", runToken},
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: queue-admin [-config dir] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-18s %s\n", name, commands[name].summary)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		os.Exit(exitUsage)
	default:
		fmt.Fprintf(os.Stderr, "queue-admin: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("queue-admin", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configDir := fs.String("config", "config", "directory holding config.yaml")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if fs.NArg() == 0 {
		usage(stderr)
		return errUsage
	}
	name, rest := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		usage(stderr)
		return errUsage
	}

	e := &env{configDir: *configDir, stdout: stdout, stderr: stderr}
	defer e.close()
	return cmd.run(ctx, e, rest)
}

// parseEmails splits a comma-separated list, dropping blanks.
func parseEmails(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
