package runs

import (
	"context"
	"testing"
	"time"

	"github.com/bryanwahyu/scanpipe/internal/domain/pipeline"
	"github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

type stubAdapter struct{ kind scans.Kind }

func (a stubAdapter) Kind() scans.Kind                               { return a.kind }
func (a stubAdapter) Run(context.Context, scans.Target) scans.Result { return scans.Result{} }

func TestSummarizeAndTotals(t *testing.T) {
	stages, err := pipeline.NewStages(
		pipeline.StageSpec{Name: "sast", Adapter: stubAdapter{scans.KindSAST}, Policy: pipeline.PolicyFatal},
		pipeline.StageSpec{Name: "sca", Adapter: stubAdapter{scans.KindSCA}, Policy: pipeline.PolicyAdvisory},
		pipeline.StageSpec{Name: "dast", Adapter: stubAdapter{scans.KindDAST}, Policy: pipeline.PolicyFatal, RequiresEnvironment: true},
	)
	if err != nil {
		t.Fatal(err)
	}
	r := pipeline.NewRunReport("r1", time.Now())
	r.Record(stages[0], scans.Result{
		Outcome:  scans.OutcomeFailedFindings,
		Kind:     scans.ErrKindFindingsAboveThreshold,
		Counts:   scans.SeverityCounts{High: 2, Low: 1, Total: 3},
		Duration: 1500 * time.Millisecond,
	})
	r.Record(stages[1], scans.Result{Outcome: scans.OutcomePassed, Counts: scans.SeverityCounts{Medium: 4, Total: 4}})
	r.Skip(stages[2], "aborted after fatal stage sast")

	sum := Summarize(r)
	if len(sum) != 3 {
		t.Fatalf("len = %d", len(sum))
	}
	if sum[0].Outcome != scans.OutcomeFailedFindings || sum[0].DurationMS != 1500 || sum[0].Kind != scans.KindSAST {
		t.Errorf("sast summary = %+v", sum[0])
	}
	if sum[1].Policy != pipeline.PolicyAdvisory {
		t.Errorf("sca policy = %s", sum[1].Policy)
	}
	if !sum[2].Skipped || sum[2].Outcome != "" || sum[2].SkipReason == "" {
		t.Errorf("dast summary = %+v", sum[2])
	}

	tot := Totals(sum)
	if tot.High != 2 || tot.Medium != 4 || tot.Low != 1 || tot.Total != 7 {
		t.Errorf("totals = %+v", tot)
	}
}

func TestStatusFromVerdict(t *testing.T) {
	if StatusFromVerdict(pipeline.VerdictPassed) != StatusPassed || StatusFromVerdict(pipeline.VerdictFailed) != StatusFailed {
		t.Error("StatusFromVerdict")
	}
}
