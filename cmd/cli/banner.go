package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// printBanner writes the error banner. On a terminal it is boxed and red;
// piped output gets a plain "Error: " line.
func printBanner(f *os.File, msg string) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		fmt.Fprintf(f, "Error: %s\n", msg)
		return
	}

	red := lipgloss.Color("9")
	style := lipgloss.NewRenderer(f).NewStyle().
		Bold(true).
		Foreground(red).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(red).
		Padding(0, 1)
	if width, _, err := term.GetSize(fd); err == nil && width > 4 {
		style = style.Width(width - 2)
	}
	fmt.Fprintln(f, style.Render("Error: "+msg))
}
