package worker

import (
	"testing"
	"time"
)

func TestLedgerStartupSequence(t *testing.T) {
	var l Ledger

	r := l.Transition(StartPending)
	if r.State != StartPending || r.CheckPoint != 1 || r.WaitHint != 3*time.Second {
		t.Fatalf("start-pending report = %+v", r)
	}

	r = l.Transition(Running)
	if r.State != Running || r.CheckPoint != 0 || r.WaitHint != 0 {
		t.Fatalf("running should zero checkpoint and wait hint, got %+v", r)
	}
}

func TestLedgerCheckpointIncrementsWithinPhase(t *testing.T) {
	var l Ledger

	for i := uint32(1); i <= 5; i++ {
		r := l.Transition(StartPending)
		if r.CheckPoint != i {
			t.Fatalf("report %d: checkpoint = %d, want %d", i, r.CheckPoint, i)
		}
	}
}

func TestLedgerCheckpointResetsAtPhaseBoundary(t *testing.T) {
	var l Ledger

	l.Transition(StartPending)
	l.Transition(StartPending)
	l.Transition(Running)

	r := l.Transition(StopPending)
	if r.CheckPoint != 1 {
		t.Fatalf("new pending phase should restart checkpoint at 1, got %d", r.CheckPoint)
	}
	r = l.Transition(StopPending)
	if r.CheckPoint != 2 {
		t.Fatalf("checkpoint should increment to 2, got %d", r.CheckPoint)
	}
}

func TestLedgerPendingToDifferentPendingRestarts(t *testing.T) {
	var l Ledger

	l.Transition(StartPending)
	l.Transition(StartPending)

	// Direct pending-to-pending transition starts a new phase.
	r := l.Transition(StopPending)
	if r.CheckPoint != 1 {
		t.Fatalf("switching pending phases should restart checkpoint, got %d", r.CheckPoint)
	}
}

func TestLedgerInterrogateDoesNotMutate(t *testing.T) {
	var l Ledger

	l.Transition(StartPending)
	l.Transition(StartPending)

	r := l.Update(Request{})
	if r.State != StartPending || r.CheckPoint != 2 {
		t.Fatalf("interrogate should re-report current ledger, got %+v", r)
	}

	// The re-report must not have advanced the checkpoint.
	r = l.Transition(StartPending)
	if r.CheckPoint != 3 {
		t.Fatalf("checkpoint after interrogate = %d, want 3", r.CheckPoint)
	}
}

func TestLedgerStoppedCarriesExitCode(t *testing.T) {
	var l Ledger

	l.Transition(StartPending)
	l.Transition(Running)
	r := l.TransitionExit(Stopped, 0xFFFFFFFF)

	if r.State != Stopped {
		t.Fatalf("state = %v, want stopped", r.State)
	}
	if r.ExitCode != 0xFFFFFFFF {
		t.Fatalf("exit code = %#x, want 0xFFFFFFFF", r.ExitCode)
	}
	if r.CheckPoint != 0 || r.WaitHint != 0 {
		t.Fatalf("terminal report should zero checkpoint and wait hint: %+v", r)
	}
}

func TestLedgerStateSequenceIsPrefixOfContract(t *testing.T) {
	// The reported sequence must be a prefix of
	// start-pending -> running -> stop-pending -> stopped.
	var l Ledger
	want := []State{StartPending, Running, StopPending, Stopped}
	for i, s := range want {
		r := l.Transition(s)
		if r.State != want[i] {
			t.Fatalf("step %d: state %v, want %v", i, r.State, want[i])
		}
	}
}
