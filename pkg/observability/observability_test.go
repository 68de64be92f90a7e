package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLiveMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewLiveMetrics(reg)

	metrics.RecordDetection("action_item")
	metrics.RecordDetection("action_item")
	metrics.RecordSegment()
	metrics.AddQueueDepth(QueueStatePending, 3)
	metrics.AddQueueDepth(QueueStatePending, -1)
	metrics.AddQueueDepth(QueueStateInFlight, 1)
	metrics.RecordQueueWait(2.1)
	metrics.RecordEnhancement("http", StatusSuccess, 0.4)
	metrics.RecordEnhancement("http", "timeout", 20)
	metrics.RecordConfidence(0.85)
	metrics.RecordItemAction("confirm")
	metrics.AddActiveSessions(1)
	metrics.RecordEventPublished("item.detected", StatusSuccess)
	metrics.RecordMirrorFailure("insert")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	expectedMetrics := map[string]bool{
		"penf_live_phrases_detected_total":  false,
		"penf_live_segments_total":          false,
		"penf_live_queue_depth":             false,
		"penf_live_queue_wait_seconds":      false,
		"penf_live_enhance_requests_total":  false,
		"penf_live_enhance_latency_seconds": false,
		"penf_live_enhance_confidence":      false,
		"penf_live_item_actions_total":      false,
		"penf_live_active_sessions":         false,
		"penf_live_events_published_total":  false,
		"penf_live_mirror_failures_total":   false,
	}
	for _, fam := range families {
		if _, ok := expectedMetrics[fam.GetName()]; ok {
			expectedMetrics[fam.GetName()] = true
		}
	}
	for name, found := range expectedMetrics {
		if !found {
			t.Errorf("Metric %s not found in registry", name)
		}
	}

	if got := testutil.ToFloat64(metrics.PhrasesDetectedTotal.WithLabelValues("action_item")); got != 2 {
		t.Errorf("action_item detections = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.QueueDepth.WithLabelValues(QueueStatePending)); got != 2 {
		t.Errorf("pending depth = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.EnhanceRequestsTotal.WithLabelValues("http", "timeout")); got != 1 {
		t.Errorf("timeout count = %v, want 1", got)
	}
}

func TestLiveMetrics_NilSafe(t *testing.T) {
	var metrics *LiveMetrics

	metrics.RecordDetection("risk")
	metrics.RecordSegment()
	metrics.AddQueueDepth(QueueStatePending, 1)
	metrics.RecordQueueWait(1)
	metrics.RecordEnhancement("none", StatusSuccess, 0)
	metrics.RecordConfidence(1)
	metrics.RecordItemAction("dismiss")
	metrics.AddActiveSessions(-1)
	metrics.RecordEventPublished("session.reset", StatusSuccess)
	metrics.RecordMirrorFailure("delete")
}

func TestTracer(t *testing.T) {
	tracer := NewTracer()
	ctx := context.Background()

	ctx, detectSpan := tracer.StartDetectSpan(ctx, "session-1")
	if detectSpan == nil {
		t.Fatal("detect span should not be nil")
	}
	detectSpan.End()

	ctx, drainSpan := tracer.StartDrainSpan(ctx, "session-1", 4)
	if drainSpan == nil {
		t.Fatal("drain span should not be nil")
	}
	drainSpan.End()

	_, enhanceSpan := tracer.StartEnhanceSpan(ctx, "http", "item-1", "decision")
	if enhanceSpan == nil {
		t.Fatal("enhance span should not be nil")
	}

	helper := NewSpanHelper(enhanceSpan)
	helper.SetDuration(120)
	helper.SetConfidence(0.9)
	helper.AddEvent("merged")
	helper.SetError(errors.New("boom"), "internal", false)
	helper.SetSuccess()
	enhanceSpan.End()
}
