package instance

import "testing"

func TestIDPrefersDyno(t *testing.T) {
	t.Setenv("DYNO", "web.1")
	t.Setenv("WORKER_ID", "worker-7")
	if got := ID("local"); got != "web.1" {
		t.Fatalf("expected dyno id, got %q", got)
	}
}

func TestIDFallsBackToWorkerID(t *testing.T) {
	t.Setenv("DYNO", "")
	t.Setenv("WORKER_ID", "worker-7")
	if got := ID("local"); got != "worker-7" {
		t.Fatalf("expected worker id, got %q", got)
	}
}
