package health_test

import (
	"testing"

	"github.com/dselans/beampatch/mirror/health"
)

func TestMemTrackerOpensAfterThreshold(t *testing.T) {
	tr := health.NewMemTracker()

	if tr.IsUnhealthy("mirror-a") {
		t.Fatal("fresh tracker should report healthy")
	}

	tr.RecordFailure("mirror-a")
	tr.RecordFailure("mirror-a")
	if tr.IsUnhealthy("mirror-a") {
		t.Fatal("should still be healthy below threshold")
	}

	tr.RecordFailure("mirror-a")
	if !tr.IsUnhealthy("mirror-a") {
		t.Fatal("should be unhealthy at threshold")
	}
}

func TestMemTrackerSuccessClearsFailures(t *testing.T) {
	tr := health.NewMemTracker()

	tr.RecordFailure("mirror-a")
	tr.RecordFailure("mirror-a")
	tr.RecordFailure("mirror-a")
	if !tr.IsUnhealthy("mirror-a") {
		t.Fatal("expected unhealthy before recovery")
	}

	tr.RecordSuccess("mirror-a")
	if tr.IsUnhealthy("mirror-a") {
		t.Fatal("expected healthy after success reset")
	}
}
