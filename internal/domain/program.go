package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Program is a named health initiative (TB, Malaria, ...). Its name is its identity.
type Program struct {
	Name string
}

// UnmarshalJSON accepts both wire forms used by the backend: a bare string
// ("TB") and an object ({"name": "TB"}). Either way the name is trimmed.
func (p *Program) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		p.Name = strings.TrimSpace(name)
		return nil
	}

	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("program must be a string or an object with a name: %w", err)
	}
	p.Name = strings.TrimSpace(obj.Name)
	return nil
}

// MarshalJSON emits the canonical bare-string form.
func (p Program) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Name)
}

// ProgramNames returns the names of programs in order.
func ProgramNames(programs []Program) []string {
	names := make([]string, 0, len(programs))
	for _, p := range programs {
		names = append(names, p.Name)
	}
	return names
}

// HasProgram reports whether programs contains a program with the given name.
func HasProgram(programs []Program, name string) bool {
	name = strings.TrimSpace(name)
	for _, p := range programs {
		if p.Name == name {
			return true
		}
	}
	return false
}

// CleanProgramNames trims every name and drops blanks and duplicates.
// Order is preserved.
func CleanProgramNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		trimmed := strings.TrimSpace(n)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// NormalizePrograms drops unnamed entries and duplicates, keeping first occurrences.
// The result is never nil.
func NormalizePrograms(programs []Program) []Program {
	names := CleanProgramNames(ProgramNames(programs))
	out := make([]Program, 0, len(names))
	for _, n := range names {
		out = append(out, Program{Name: n})
	}
	return out
}

// UnionPrograms returns the set union of current and add: the current
// programs first, followed by every new name not already present.
// Enrolling twice in the same program therefore leaves the set unchanged.
func UnionPrograms(current []Program, add []string) []Program {
	merged := ProgramNames(current)
	merged = append(merged, add...)
	return NormalizePrograms(programsFromNames(merged))
}

func programsFromNames(names []string) []Program {
	out := make([]Program, 0, len(names))
	for _, n := range names {
		out = append(out, Program{Name: n})
	}
	return out
}
