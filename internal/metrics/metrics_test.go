package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFlowsTotalLabels(t *testing.T) {
	before := testutil.ToFloat64(FlowsTotal.WithLabelValues(OutcomeAlerted))
	FlowsTotal.WithLabelValues(OutcomeAlerted).Inc()
	after := testutil.ToFloat64(FlowsTotal.WithLabelValues(OutcomeAlerted))

	if after-before != 1 {
		t.Errorf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestQuotaGauges(t *testing.T) {
	QuotaUsed.Set(12)
	QuotaLimit.Set(100)

	if got := testutil.ToFloat64(QuotaUsed); got != 12 {
		t.Errorf("QuotaUsed = %v, want 12", got)
	}
	if got := testutil.ToFloat64(QuotaLimit); got != 100 {
		t.Errorf("QuotaLimit = %v, want 100", got)
	}
}
