package domain

import "fmt"

// Tab identifies the active view.
type Tab string

const (
	TabCreateProgram  Tab = "createProgram"
	TabRegisterClient Tab = "registerClient"
	TabEnrollClient   Tab = "enrollClient"
	TabSearchClient   Tab = "searchClient"
	TabViewProfile    Tab = "viewProfile"
)

// DefaultTab is shown on first start and whenever the profile view becomes unavailable.
const DefaultTab = TabCreateProgram

// Tabs lists every tab in display order.
var Tabs = []Tab{TabCreateProgram, TabRegisterClient, TabEnrollClient, TabSearchClient, TabViewProfile}

// ParseTab converts a stored or user-supplied string into a Tab.
func ParseTab(s string) (Tab, error) {
	for _, t := range Tabs {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tab %q", s)
}

// Valid reports whether t is one of the known tabs.
func (t Tab) Valid() bool {
	_, err := ParseTab(string(t))
	return err == nil
}
