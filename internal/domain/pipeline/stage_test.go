package pipeline

import (
	"strings"
	"testing"

	"github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

func TestNewStagesAssignsOrdinals(t *testing.T) {
	stages, err := NewStages(
		StageSpec{Name: "sast", Adapter: stubAdapter{scans.KindSAST}, Policy: PolicyFatal},
		StageSpec{Name: "dast", Adapter: stubAdapter{scans.KindDAST}, Policy: PolicyAdvisory, RequiresEnvironment: true},
	)
	if err != nil {
		t.Fatalf("NewStages: %v", err)
	}
	if stages[0].Ordinal != 1 || stages[1].Ordinal != 2 {
		t.Errorf("unexpected ordinals %d %d", stages[0].Ordinal, stages[1].Ordinal)
	}
	if stages[1].Kind() != scans.KindDAST || !stages[1].RequiresEnvironment {
		t.Errorf("unexpected stage %+v", stages[1])
	}
}

func TestNewStagesValidation(t *testing.T) {
	sast := stubAdapter{scans.KindSAST}
	cases := []struct {
		name  string
		specs []StageSpec
		want  string
	}{
		{"empty name", []StageSpec{{Adapter: sast, Policy: PolicyFatal}}, "name is required"},
		{"duplicate", []StageSpec{
			{Name: "a", Adapter: sast, Policy: PolicyFatal},
			{Name: "a", Adapter: sast, Policy: PolicyFatal},
		}, "declared twice"},
		{"nil adapter", []StageSpec{{Name: "a", Policy: PolicyFatal}}, "no adapter"},
		{"bad policy", []StageSpec{{Name: "a", Adapter: sast, Policy: "maybe"}}, "unknown gating policy"},
		{"env on sast", []StageSpec{{Name: "a", Adapter: sast, Policy: PolicyFatal, RequiresEnvironment: true}}, "only dast"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewStages(tc.specs...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy(" Advisory "); err != nil || p != PolicyAdvisory {
		t.Errorf("ParsePolicy = %q, %v", p, err)
	}
	if _, err := ParsePolicy("soft"); err == nil {
		t.Error("expected error")
	}
}

func TestNewStagesNormalizesPolicy(t *testing.T) {
	stages, err := NewStages(
		StageSpec{Name: "sast", Adapter: stubAdapter{scans.KindSAST}, Policy: "Fatal"},
		StageSpec{Name: "sca", Adapter: stubAdapter{scans.KindSCA}, Policy: " ADVISORY "},
	)
	if err != nil {
		t.Fatalf("NewStages: %v", err)
	}
	if stages[0].Policy != PolicyFatal || stages[1].Policy != PolicyAdvisory {
		t.Errorf("policies = %q, %q", stages[0].Policy, stages[1].Policy)
	}
}
