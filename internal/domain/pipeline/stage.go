package pipeline

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

// Policy decides what a non-passing stage does to the rest of the run.
type Policy string

const (
	PolicyFatal    Policy = "fatal"    // abort remaining scan stages
	PolicyAdvisory Policy = "advisory" // record and continue
)

// ParsePolicy maps a config value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyFatal, PolicyAdvisory:
		return p, nil
	}
	return "", fmt.Errorf("unknown gating policy %q (allowed: fatal, advisory)", s)
}

// Stage is one immutable step of the pipeline.
type Stage struct {
	Name                string
	Ordinal             int
	Adapter             scans.Adapter
	Policy              Policy
	RequiresEnvironment bool
}

// Kind is the scan kind of the stage's adapter.
func (s Stage) Kind() scans.Kind { return s.Adapter.Kind() }

// StageSpec is the input to NewStages.
type StageSpec struct {
	Name                string
	Adapter             scans.Adapter
	Policy              Policy
	RequiresEnvironment bool
}

// NewStages validates specs and assigns ordinals in declared order.
func NewStages(specs ...StageSpec) ([]Stage, error) {
	seen := make(map[string]bool, len(specs))
	out := make([]Stage, 0, len(specs))
	for i, sp := range specs {
		name := strings.TrimSpace(sp.Name)
		if name == "" {
			return nil, fmt.Errorf("stage %d: name is required", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("stage %q declared twice", name)
		}
		seen[name] = true
		if sp.Adapter == nil {
			return nil, fmt.Errorf("stage %q: no adapter", name)
		}
		policy, err := ParsePolicy(string(sp.Policy))
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", name, err)
		}
		if sp.RequiresEnvironment && sp.Adapter.Kind() != scans.KindDAST {
			return nil, fmt.Errorf("stage %q: only dast stages can require the environment", name)
		}
		out = append(out, Stage{
			Name:                name,
			Ordinal:             i + 1,
			Adapter:             sp.Adapter,
			Policy:              policy,
			RequiresEnvironment: sp.RequiresEnvironment,
		})
	}
	return out, nil
}
