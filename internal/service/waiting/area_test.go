package waiting

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/echarge/internal/domain"
)

func newTestArea(capacity int) *Area {
	base := time.Date(2024, 6, 10, 9, 0, 0, 0, time.Local)
	return NewArea(capacity, zap.NewNop()).WithClock(func() time.Time { return base })
}

func TestAdmit_AssignsQueueNumbersPerMode(t *testing.T) {
	a := newTestArea(6)

	r1, err := a.Admit("u1", domain.ChargeModeFast, 30)
	if err != nil {
		t.Fatalf("admit failed: %v", err)
	}
	r2, _ := a.Admit("u2", domain.ChargeModeFast, 20)
	r3, _ := a.Admit("u3", domain.ChargeModeTrickle, 10)

	if r1.QueueNumber != "F1" || r2.QueueNumber != "F2" || r3.QueueNumber != "T1" {
		t.Errorf("queue numbers wrong: %s %s %s", r1.QueueNumber, r2.QueueNumber, r3.QueueNumber)
	}
	if r1.Status != domain.RequestStatusWaiting {
		t.Errorf("expected WAITING, got %s", r1.Status)
	}
}

func TestAdmit_FullAndDuplicate(t *testing.T) {
	a := newTestArea(2)

	a.Admit("u1", domain.ChargeModeFast, 10)
	a.Admit("u2", domain.ChargeModeTrickle, 10)

	if _, err := a.Admit("u3", domain.ChargeModeFast, 10); !errors.Is(err, domain.ErrWaitingAreaFull) {
		t.Errorf("expected waiting_area_full, got %v", err)
	}
	if _, err := a.Admit("u1", domain.ChargeModeFast, 10); !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Errorf("expected duplicate_active_request, got %v", err)
	}
}

func TestAdmit_RejectsNonPositiveTarget(t *testing.T) {
	a := newTestArea(6)

	if _, err := a.Admit("u1", domain.ChargeModeFast, 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected invalid_input, got %v", err)
	}
}

func TestHeadAndRemove_PreserveFIFO(t *testing.T) {
	a := newTestArea(6)

	r1, _ := a.Admit("u1", domain.ChargeModeFast, 10)
	r2, _ := a.Admit("u2", domain.ChargeModeFast, 10)

	if h := a.Head(domain.ChargeModeFast); h.ID != r1.ID {
		t.Fatalf("head should be first admitted, got %s", h.ID)
	}
	a.Remove(r1.ID)
	if h := a.Head(domain.ChargeModeFast); h.ID != r2.ID {
		t.Fatalf("head should advance after removal, got %s", h.ID)
	}
}

func TestPushFront_OutranksWaiting(t *testing.T) {
	a := newTestArea(6)

	a.Admit("u1", domain.ChargeModeFast, 10)
	evicted := &domain.ChargeRequest{
		ID: "ev", UserID: "u9", Mode: domain.ChargeModeFast,
		TargetKWH: 18, QueueNumber: "F7", Status: domain.RequestStatusCharging,
		AssignedPileID: "A",
	}
	a.PushFront(evicted)

	h := a.Head(domain.ChargeModeFast)
	if h.ID != "ev" {
		t.Fatalf("evicted car must head the partition, got %s", h.ID)
	}
	if h.Status != domain.RequestStatusWaiting || h.AssignedPileID != "" {
		t.Errorf("pushed-back request not reset: %+v", h)
	}
	if h.QueueNumber != "F7" {
		t.Errorf("original queue number must be preserved, got %s", h.QueueNumber)
	}
}

func TestChangeMode_NewNumberTailPosition(t *testing.T) {
	a := newTestArea(6)

	r1, _ := a.Admit("u1", domain.ChargeModeFast, 10)
	a.Admit("u2", domain.ChargeModeTrickle, 10)
	created := r1.CreatedAt

	changed, err := a.ChangeMode(r1.ID, domain.ChargeModeTrickle)
	if err != nil {
		t.Fatalf("change mode failed: %v", err)
	}
	if changed.QueueNumber != "T2" {
		t.Errorf("expected new number T2, got %s", changed.QueueNumber)
	}
	if !changed.CreatedAt.Equal(created) {
		t.Error("admission time must be preserved across mode change")
	}

	trickle := a.List(domain.ChargeModeTrickle)
	if len(trickle) != 2 || trickle[1].ID != r1.ID {
		t.Errorf("changed request must join the tail: %+v", trickle)
	}
	if len(a.List(domain.ChargeModeFast)) != 0 {
		t.Error("request must leave the old partition")
	}
}

func TestChangeMode_SameModeRefused(t *testing.T) {
	a := newTestArea(6)

	r1, _ := a.Admit("u1", domain.ChargeModeFast, 10)
	if _, err := a.ChangeMode(r1.ID, domain.ChargeModeFast); !errors.Is(err, domain.ErrSameMode) {
		t.Errorf("expected same_mode, got %v", err)
	}
	// Request stays admitted after the refused change.
	if a.Size() != 1 {
		t.Error("request must remain in the area")
	}
}

func TestUpdateTarget(t *testing.T) {
	a := newTestArea(6)

	r1, _ := a.Admit("u1", domain.ChargeModeFast, 10)
	if err := a.UpdateTarget(r1.ID, 25); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if a.Head(domain.ChargeModeFast).TargetKWH != 25 {
		t.Error("target not updated")
	}
	if err := a.UpdateTarget("missing", 25); !errors.Is(err, domain.ErrNotInWaiting) {
		t.Errorf("expected not_in_waiting, got %v", err)
	}
}

func TestAheadCount(t *testing.T) {
	a := newTestArea(6)

	a.Admit("u1", domain.ChargeModeFast, 10)
	r2, _ := a.Admit("u2", domain.ChargeModeFast, 10)

	if n := a.AheadCount(r2.ID); n != 1 {
		t.Errorf("expected 1 ahead, got %d", n)
	}
}
