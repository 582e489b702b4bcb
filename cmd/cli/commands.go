package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
	"github.com/aryan0dhankhar/clinicdesk/internal/view"
	"github.com/aryan0dhankhar/clinicdesk/internal/worker"
)

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}

func (a *app) handleProgram(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: clinicdesk program <list|create>", errUsage)
	}

	switch args[0] {
	case "list":
		a.printPrograms(a.rec.Cache().Programs())
		return nil
	case "create":
		fs := newFlagSet("program create")
		var name string
		fs.StringVarP(&name, "name", "n", "", "program name, e.g. TB")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if name == "" && fs.NArg() > 0 {
			name = strings.Join(fs.Args(), " ")
		}
		program, err := a.rec.CreateProgram(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Program created: %s\n", program.Name)
		return nil
	default:
		return fmt.Errorf("%w: unknown program command %q", errUsage, args[0])
	}
}

func (a *app) handleClient(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: clinicdesk client <list|search|show|register|enroll>", errUsage)
	}

	switch args[0] {
	case "list":
		a.printClients(a.rec.Cache().Clients())
		return nil
	case "search":
		return a.searchClients(args[1:])
	case "show":
		if len(args) < 2 {
			return fmt.Errorf("%w: clinicdesk client show <id>", errUsage)
		}
		client, err := a.ctrl.ViewProfile(ctx, args[1])
		if err != nil {
			return err
		}
		a.printProfile(*client)
		return nil
	case "register":
		return a.registerClient(ctx, args[1:])
	case "enroll":
		return a.enrollClient(ctx, args[1:])
	default:
		return fmt.Errorf("%w: unknown client command %q", errUsage, args[0])
	}
}

func (a *app) searchClients(args []string) error {
	fs := newFlagSet("client search")
	var query string
	fs.StringVarP(&query, "query", "q", "", "case-insensitive name fragment")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if query == "" && fs.NArg() > 0 {
		query = strings.Join(fs.Args(), " ")
	}

	matches := a.ctrl.Search(query)
	if len(matches) == 0 {
		fmt.Fprintln(a.out, "No clients found.")
		return nil
	}
	a.printClients(matches)
	return nil
}

func (a *app) registerClient(ctx context.Context, args []string) error {
	fs := newFlagSet("client register")
	var name, age, gender, contact string
	fs.StringVar(&name, "name", "", "full name (required)")
	fs.StringVar(&age, "age", "", "age (required)")
	fs.StringVar(&gender, "gender", "", "gender")
	fs.StringVar(&contact, "contact", "", "phone or email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	draft := a.rec.UpdateDraft(func(d *domain.Draft) {
		d.Name = name
		d.Age = domain.Age(age)
		d.Gender = gender
		d.Contact = contact
	})
	client, err := a.rec.RegisterClient(ctx, draft)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Client registered: %s (%s)\n", client.Name, client.ID)
	return nil
}

func (a *app) enrollClient(ctx context.Context, args []string) error {
	fs := newFlagSet("client enroll")
	var clientID string
	var programs []string
	fs.StringVarP(&clientID, "client", "c", "", "client id (defaults to the selected client)")
	fs.StringSliceVarP(&programs, "program", "p", nil, "program to enroll in (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if clientID != "" {
		if _, err := a.ctrl.SelectClient(ctx, clientID); err != nil {
			return err
		}
	}

	form := a.ctrl.EnrollForm()
	if form.Guidance != view.GuidanceReady {
		fmt.Fprintln(a.out, form.Guidance.String())
		if form.Guidance != view.GuidanceNeedsSelection || len(programs) > 0 {
			return nil
		}
	}

	for _, p := range domain.CleanProgramNames(programs) {
		if !domain.HasProgram(a.rec.Cache().Programs(), p) {
			return fmt.Errorf("%w: unknown program %q", domain.ErrValidation, p)
		}
		a.ctrl.ToggleProgram(p)
	}
	if len(a.ctrl.SelectedPrograms()) == 0 {
		a.printEnrollForm(a.ctrl.EnrollForm())
		return nil
	}

	client, err := a.ctrl.EnrollSelected(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Client %s is now enrolled in: %s\n", client.Name,
		strings.Join(domain.ProgramNames(client.Programs), ", "))
	return nil
}

func (a *app) handleView(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: clinicdesk view <status|tab|select|clear>", errUsage)
	}

	switch args[0] {
	case "status":
		a.printStatus()
		return nil
	case "tab":
		if len(args) < 2 {
			return fmt.Errorf("%w: clinicdesk view tab <name>", errUsage)
		}
		tab, err := domain.ParseTab(args[1])
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrTabUnavailable, err)
		}
		if err := a.ctrl.ChangeTab(ctx, tab); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Active tab: %s\n", a.ctrl.ActiveTab())
		return nil
	case "select":
		if len(args) < 2 {
			return fmt.Errorf("%w: clinicdesk view select <id>", errUsage)
		}
		client, err := a.ctrl.SelectClient(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Selected client: %s (%s)\n", client.Name, client.ID)
		return nil
	case "clear":
		a.ctrl.ClearSelection(ctx)
		fmt.Fprintln(a.out, "Selection cleared.")
		return nil
	default:
		return fmt.Errorf("%w: unknown view command %q", errUsage, args[0])
	}
}

// watch keeps the mirror fresh and prints a line per sync until interrupted.
func (a *app) watch(ctx context.Context, args []string) error {
	fs := newFlagSet("watch")
	interval := a.cfg.SyncInterval
	fs.DurationVarP(&interval, "interval", "i", interval, "time between refreshes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a.ctrl.Restore(ctx)
	w := worker.NewSyncWorker(a.rec, a.log, interval)
	w.OnSync(func(err error) {
		stats := a.rec.Cache().Stats()
		if err != nil {
			fmt.Fprintf(a.out, "%s  sync failed: %s\n", time.Now().Format(time.TimeOnly), a.ctrl.Error())
			a.ctrl.DismissError()
			return
		}
		line := fmt.Sprintf("%s  programs=%d clients=%d", time.Now().Format(time.TimeOnly), stats.Programs, stats.Clients)
		if sel := a.ctrl.Selected(); sel != nil {
			line += fmt.Sprintf(" selected=%s", sel.ID)
		}
		fmt.Fprintln(a.out, line)
	})
	w.Start(ctx)

	a.log.Debug("watch stopped", slog.String("tab", string(a.ctrl.ActiveTab())))
	return nil
}
