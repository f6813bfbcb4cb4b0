package domain

import (
	"testing"
	"time"
)

func TestBillIDRoundTrip(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.Local)

	for _, seq := range []int{1, 42, 9999} {
		id := FormatBillID(day, seq)
		gotDay, gotSeq, err := ParseBillID(id)
		if err != nil {
			t.Fatalf("parse %s failed: %v", id, err)
		}
		if !gotDay.Equal(day) || gotSeq != seq {
			t.Errorf("round trip lost data: %s -> %v %d", id, gotDay, gotSeq)
		}
	}
}

func TestBillIDFormat(t *testing.T) {
	day := time.Date(2024, 6, 10, 15, 30, 0, 0, time.Local)
	if got := FormatBillID(day, 7); got != "BILL202406100007" {
		t.Errorf("unexpected bill id %s", got)
	}
}

func TestParseBillID_Malformed(t *testing.T) {
	for _, id := range []string{"", "BILL", "XILL202406100007", "BILL2024061000", "BILL20240610xxxx"} {
		if _, _, err := ParseBillID(id); err == nil {
			t.Errorf("expected error for %q", id)
		}
	}
}

func TestRequestStatusTerminal(t *testing.T) {
	terminal := []RequestStatus{RequestStatusCompleted, RequestStatusCancelled, RequestStatusInterrupted}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	open := []RequestStatus{RequestStatusWaiting, RequestStatusQueued, RequestStatusCharging}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
