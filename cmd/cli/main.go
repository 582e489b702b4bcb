package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aryan0dhankhar/clinicdesk/pkg/config"
)

// errUsage marks an error whose message is a usage line.
var errUsage = errors.New("usage")

func main() {
	if len(os.Args) < 2 || os.Args[1] == "help" || os.Args[1] == "--help" || os.Args[1] == "-h" {
		printUsage()
		if len(os.Args) < 2 {
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, os.Stdout)
	if err != nil {
		printBanner(os.Stderr, err.Error())
		os.Exit(1)
	}

	runErr := a.run(ctx, os.Args[1], os.Args[2:])
	banner := a.ctrl.Error()
	a.close()

	switch {
	case errors.Is(runErr, errUsage):
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(2)
	case runErr != nil:
		printBanner(os.Stderr, runErr.Error())
		os.Exit(1)
	case banner != "":
		printBanner(os.Stderr, banner)
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	// watch does its own fetching on a schedule
	if command != "watch" {
		a.ctrl.Restore(ctx)
		_ = a.rec.Bootstrap(ctx)
	}

	switch command {
	case "program":
		return a.handleProgram(ctx, args)
	case "client":
		return a.handleClient(ctx, args)
	case "view":
		return a.handleView(ctx, args)
	case "watch":
		return a.watch(ctx, args)
	default:
		printUsage()
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `clinicdesk - manage health programs and clients

Usage:
  clinicdesk program list
  clinicdesk program create --name <name>
  clinicdesk client list
  clinicdesk client search --query <text>
  clinicdesk client show <id>
  clinicdesk client register --name <name> --age <age> [--gender <g>] [--contact <c>]
  clinicdesk client enroll [--client <id>] --program <name> [--program <name>...]
  clinicdesk view status
  clinicdesk view tab <createProgram|registerClient|enrollClient|searchClient|viewProfile>
  clinicdesk view select <id>
  clinicdesk view clear
  clinicdesk watch [--interval 30s]

Environment:
  CLINICDESK_API      backend base URL (default http://127.0.0.1:5000)
  SESSION_BACKEND     sqlite, redis or memory (default sqlite)
  SESSION_PATH        sqlite session file (default ~/.clinicdesk/session.db)
  SESSION_SCOPE       session namespace (default "default")
  LOG_LEVEL           debug, info, warn or error (default warn)
`)
}
