package tracker

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 8, 24, 18, 0, 0, 0, time.UTC)

func TestMarkArrived_OnTime(t *testing.T) {
	eta, err := newUserETA("alice", t0, t0.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := eta.markArrived(t0.Add(10 * time.Minute)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if eta.Status != StatusArrived {
		t.Fatalf("expected arrived status, got %s", eta.Status)
	}
	if eta.LatenessMinutes != -5 {
		t.Fatalf("expected lateness -5, got %d", eta.LatenessMinutes)
	}
	if eta.Outcome() != OutcomeOnTime {
		t.Fatalf("expected on-time outcome, got %s", eta.Outcome())
	}
}

func TestMarkArrived_Late(t *testing.T) {
	eta, _ := newUserETA("alice", t0, t0.Add(15*time.Minute))
	if err := eta.markArrived(t0.Add(20 * time.Minute)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if eta.LatenessMinutes != 5 {
		t.Fatalf("expected lateness +5, got %d", eta.LatenessMinutes)
	}
	if eta.Outcome() != OutcomeLate {
		t.Fatalf("expected late outcome, got %s", eta.Outcome())
	}
}

func TestMarkArrived_AlreadyTerminal(t *testing.T) {
	eta, _ := newUserETA("alice", t0, t0.Add(15*time.Minute))
	if err := eta.markArrived(t0.Add(5 * time.Minute)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := eta.markArrived(t0.Add(6 * time.Minute)); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
}

func TestNewUserETA_TargetInPast(t *testing.T) {
	if _, err := newUserETA("alice", t0, t0.Add(-time.Minute)); !errors.Is(err, ErrTargetInPast) {
		t.Fatalf("expected ErrTargetInPast, got %v", err)
	}
}

func TestExpire_BeforeGraceDeadline(t *testing.T) {
	grace := 60 * time.Minute
	eta, _ := newUserETA("alice", t0, t0.Add(15*time.Minute))
	if eta.Overdue(t0.Add(74*time.Minute), grace) {
		t.Fatal("expected not overdue one minute before the grace deadline")
	}
	if err := eta.expire(t0.Add(74*time.Minute), grace); err == nil {
		t.Fatal("expected error expiring before the grace deadline")
	}
}

func TestExpire_AtGraceDeadline(t *testing.T) {
	grace := 60 * time.Minute
	eta, _ := newUserETA("alice", t0, t0.Add(15*time.Minute))
	if !eta.Overdue(t0.Add(75*time.Minute), grace) {
		t.Fatal("expected overdue exactly at the grace deadline")
	}
	if err := eta.expire(t0.Add(75*time.Minute), grace); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if eta.Status != StatusExpired {
		t.Fatalf("expected expired status, got %s", eta.Status)
	}
	if eta.LatenessMinutes != 60 {
		t.Fatalf("expected recorded lateness of the grace window (60), got %d", eta.LatenessMinutes)
	}
	if eta.Outcome() != OutcomeNoShow {
		t.Fatalf("expected no-show outcome, got %s", eta.Outcome())
	}
}

func TestExpire_AlreadyTerminal(t *testing.T) {
	grace := 60 * time.Minute
	eta, _ := newUserETA("alice", t0, t0.Add(15*time.Minute))
	if err := eta.expire(t0.Add(76*time.Minute), grace); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := eta.expire(t0.Add(77*time.Minute), grace); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
}

func TestValidate_ArrivedWithoutTimestamp(t *testing.T) {
	eta := &UserETA{Participant: "alice", DeclaredAt: t0, Target: t0.Add(time.Minute), Status: StatusArrived}
	if err := eta.Validate(); err == nil {
		t.Fatal("expected validation error for arrived eta without arrival timestamp")
	}
}

func TestValidate_UnknownStatus(t *testing.T) {
	eta := &UserETA{Participant: "alice", DeclaredAt: t0, Target: t0.Add(time.Minute), Status: "teleported"}
	if err := eta.Validate(); err == nil {
		t.Fatal("expected validation error for unknown status")
	}
}
