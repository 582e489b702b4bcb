package featureflags

import (
	"os"
	"strings"
)

// Known flags.
const (
	// ServerAssignedIDs stops sending the draft placeholder id on
	// registration so the backend assigns the client id.
	ServerAssignedIDs = "server_assigned_ids"
)

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes (case-insensitive)
func Enabled(name string) bool {
	v := os.Getenv("FLAG_" + strings.ToUpper(name))
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
