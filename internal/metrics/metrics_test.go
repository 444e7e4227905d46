package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservePipeline(t *testing.T) {
	before := testutil.ToFloat64(pipelineRuns.WithLabelValues(OutcomeOK))
	ObservePipeline(OutcomeOK, 20*time.Millisecond, 4)

	if got := testutil.ToFloat64(pipelineRuns.WithLabelValues(OutcomeOK)); got != before+1 {
		t.Errorf("ok runs = %v, expected %v", got, before+1)
	}
	if got := testutil.ToFloat64(pipelineIterations); got != 4 {
		t.Errorf("last chart iterations = %v, expected 4", got)
	}

	ObservePipeline(OutcomeSourceUnavailable, time.Millisecond, 0)
	if got := testutil.ToFloat64(pipelineIterations); got != 4 {
		t.Errorf("failed run changed last chart iterations to %v", got)
	}
}

func TestObserveSuperseded(t *testing.T) {
	before := testutil.ToFloat64(supersededInvocations)
	ObserveSuperseded()
	if got := testutil.ToFloat64(supersededInvocations); got != before+1 {
		t.Errorf("superseded = %v, expected %v", got, before+1)
	}
}
