package security

import (
	"testing"
	"time"
)

func TestBuildReportDerivesFlags(t *testing.T) {
	r := BuildReport(ReportInput{
		Surface:         "admin",
		MaxAttempts:     5,
		LockoutDuration: 15 * time.Minute,
		CodeIssuesPerHr: 5,
		RedisBacked:     true,
	})
	if !r.LockoutActive || r.LockoutThreshold != 5 {
		t.Fatalf("expected active lockout at 5, got %+v", r)
	}
	if !r.CodeIssueLimited || r.ResetLimited {
		t.Fatalf("unexpected throttle flags: issue=%v reset=%v", r.CodeIssueLimited, r.ResetLimited)
	}
	if !r.SharedState {
		t.Fatal("expected shared state")
	}

	r = BuildReport(ReportInput{MaxAttempts: 3})
	if r.LockoutActive {
		t.Fatal("lockout without duration must not be reported active")
	}
}
