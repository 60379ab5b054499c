package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewCollector_Disabled(t *testing.T) {
	t.Parallel()

	c, err := NewCollector(&Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewCollector(disabled) error = %v", err)
	}
	if c != nil {
		t.Fatalf("NewCollector(disabled) = %v, want nil", c)
	}

	// Every recording method must tolerate the nil collector.
	c.RecordRequest("GET", "success", time.Millisecond)
	c.RecordRetry()
	c.RecordFailoverWalk()
	c.RecordLeaderChange()
	c.RecordTopologyRefresh()
	c.SetKnownNodes(3)
	c.SetLeaderKnown(true)
	if err := c.Stop(nil); err != nil {
		t.Errorf("Stop on nil collector = %v", err)
	}
}

func TestCollector_Recording(t *testing.T) {
	t.Parallel()

	c, err := NewCollector(&Config{
		Enabled:   true,
		Port:      0,
		Path:      "/metrics",
		Namespace: "test",
	})
	if err != nil {
		t.Fatal(err)
	}

	c.RecordRequest("GET", "success", 10*time.Millisecond)
	c.RecordRequest("GET", "success", 20*time.Millisecond)
	c.RecordRequest("PUT", "error", 5*time.Millisecond)
	c.RecordRetry()
	c.RecordFailoverWalk()
	c.RecordLeaderChange()
	c.RecordLeaderChange()
	c.RecordTopologyRefresh()
	c.SetKnownNodes(3)
	c.SetLeaderKnown(true)

	if got := testutil.ToFloat64(c.requests.WithLabelValues("GET", "success")); got != 2 {
		t.Errorf("requests{GET,success} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.requests.WithLabelValues("PUT", "error")); got != 1 {
		t.Errorf("requests{PUT,error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.retries); got != 1 {
		t.Errorf("retries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.leaderChanges); got != 2 {
		t.Errorf("leaderChanges = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.knownNodes); got != 3 {
		t.Errorf("knownNodes = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.leaderKnown); got != 1 {
		t.Errorf("leaderKnown = %v, want 1", got)
	}

	c.SetLeaderKnown(false)
	if got := testutil.ToFloat64(c.leaderKnown); got != 0 {
		t.Errorf("leaderKnown after clear = %v, want 0", got)
	}
}
