package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
	"github.com/aryan0dhankhar/clinicdesk/internal/view"
)

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
}

func (a *app) printPrograms(programs []domain.Program) {
	if len(programs) == 0 {
		fmt.Fprintln(a.out, "No programs created yet.")
		return
	}
	w := a.table()
	fmt.Fprintln(w, "PROGRAM")
	for _, p := range programs {
		fmt.Fprintln(w, p.Name)
	}
	w.Flush()
}

func (a *app) printClients(clients []domain.Client) {
	if len(clients) == 0 {
		fmt.Fprintln(a.out, "No clients registered yet.")
		return
	}
	w := a.table()
	fmt.Fprintln(w, "ID\tNAME\tAGE\tGENDER\tPROGRAMS")
	for _, c := range clients {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Age, orDash(c.Gender),
			orDash(strings.Join(domain.ProgramNames(c.Programs), ", ")))
	}
	w.Flush()
}

func (a *app) printProfile(c domain.Client) {
	w := a.table()
	fmt.Fprintf(w, "Name:\t%s\n", c.Name)
	fmt.Fprintf(w, "ID:\t%s\n", c.ID)
	fmt.Fprintf(w, "Age:\t%s\n", c.Age)
	fmt.Fprintf(w, "Gender:\t%s\n", orDefault(c.Gender, "Not specified"))
	fmt.Fprintf(w, "Contact:\t%s\n", orDefault(c.Contact, "Not provided"))
	w.Flush()

	fmt.Fprintln(a.out, "Enrolled programs:")
	if len(c.Programs) == 0 {
		fmt.Fprintln(a.out, "  Not enrolled in any programs")
		return
	}
	for _, p := range c.Programs {
		fmt.Fprintf(a.out, "  - %s\n", p.Name)
	}
}

func (a *app) printEnrollForm(form view.EnrollForm) {
	fmt.Fprintln(a.out, form.Guidance.String())
	if form.Selected != nil {
		fmt.Fprintf(a.out, "Client: %s (%s)\n", form.Selected.Name, form.Selected.ID)
	}
	w := a.table()
	fmt.Fprintln(w, "PROGRAM\tSELECTED\tENROLLED")
	for _, p := range form.Programs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, mark(p.Checked), mark(p.Enrolled))
	}
	w.Flush()
}

func (a *app) printStatus() {
	stats := a.rec.Cache().Stats()
	tabs := make([]string, 0, len(domain.Tabs))
	for _, t := range a.ctrl.AvailableTabs() {
		tabs = append(tabs, string(t))
	}

	w := a.table()
	fmt.Fprintf(w, "Backend:\t%s\n", a.cfg.APIURL)
	fmt.Fprintf(w, "Active tab:\t%s\n", a.ctrl.ActiveTab())
	fmt.Fprintf(w, "Available tabs:\t%s\n", strings.Join(tabs, ", "))
	if sel := a.ctrl.Selected(); sel != nil {
		fmt.Fprintf(w, "Selected client:\t%s (%s)\n", sel.Name, sel.ID)
	} else {
		fmt.Fprintf(w, "Selected client:\t%s\n", "none")
	}
	fmt.Fprintf(w, "Programs:\t%d\n", stats.Programs)
	fmt.Fprintf(w, "Clients:\t%d\n", stats.Clients)
	fmt.Fprintf(w, "Session:\t%s (%s)\n", a.cfg.SessionBackend, a.cfg.SessionScope)
	w.Flush()
}

func orDash(s string) string {
	return orDefault(s, "-")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func mark(b bool) string {
	if b {
		return "x"
	}
	return ""
}
