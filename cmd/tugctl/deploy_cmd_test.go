package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/tugboat-ci/tugboat/pkg/deploy"
)

func TestReportCycle_LockedIsNotAnError(t *testing.T) {
	buf := new(bytes.Buffer)
	err := reportCycle(buf, deploy.State{}, deploy.OutcomeOK, deploy.ErrLocked)
	if err != nil {
		t.Fatalf("expecting nil, got error (%s)", err)
	}
	if !strings.Contains(buf.String(), "nothing done") {
		t.Fatalf("expected a nothing-done notice, got %q", buf.String())
	}
}

func TestReportCycle_FailureToStartIsNotARollback(t *testing.T) {
	buf := new(bytes.Buffer)
	cause := errors.New("resolving deployment candidate: connection refused")
	err := reportCycle(buf, deploy.State{}, deploy.OutcomeOK, cause)
	if err != cause {
		t.Fatalf("expecting the bare error back, got %v", err)
	}
	if _, ok := err.(*cycleError); ok {
		t.Fatal("a cycle that changed nothing must not carry a report code")
	}
	if !strings.Contains(buf.String(), "no deployment was attempted") {
		t.Fatalf("expected a not-attempted notice, got %q", buf.String())
	}
}

func TestReportCycle_ReportCodesCarryThrough(t *testing.T) {
	for _, tc := range []struct {
		outcome deploy.Outcome
		code    int
	}{
		{deploy.OutcomeRolledBack, 1},
		{deploy.OutcomeManualIntervention, 2},
	} {
		buf := new(bytes.Buffer)
		err := reportCycle(buf, deploy.State{}, tc.outcome, errors.New("verification failed"))
		ce, ok := err.(*cycleError)
		if !ok {
			t.Fatalf("outcome %d: expected a cycle error, got %v", tc.outcome, err)
		}
		if ce.exitCode != tc.code {
			t.Fatalf("outcome %d: expected exit code %d, got %d", tc.outcome, tc.code, ce.exitCode)
		}
	}
}
