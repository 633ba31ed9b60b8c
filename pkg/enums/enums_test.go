package enums

import "testing"

func TestParseRoundTrips(t *testing.T) {
	if p, err := ParsePosition("left"); err != nil || p != PositionLeft {
		t.Fatalf("ParsePosition(left) = %q, %v", p, err)
	}
	if _, err := ParsePosition("middle"); err == nil {
		t.Fatal("expected invalid position error")
	}
	if m, err := ParsePayoutMethod("bank_transfer"); err != nil || m != PayoutMethodBankTransfer {
		t.Fatalf("ParsePayoutMethod(bank_transfer) = %q, %v", m, err)
	}
	if e, err := ParseOutboxEventType(" rank_changed "); err != nil || e != EventRankChanged {
		t.Fatalf("ParseOutboxEventType should trim input, got %q, %v", e, err)
	}
	if _, err := ParsePeriodType("yearly"); err == nil {
		t.Fatal("expected invalid period type error")
	}
	if !CommissionTypeLeadership.IsValid() || CommissionType("bonus").IsValid() {
		t.Fatal("unexpected commission type validity")
	}
}

func TestPositionHelpers(t *testing.T) {
	if PositionLeft.Opposite() != PositionRight || PositionRight.Opposite() != PositionLeft {
		t.Fatal("opposite mismatch")
	}
	if PositionLeft.PathSegment() != "L" || PositionRight.PathSegment() != "R" {
		t.Fatal("path segment mismatch")
	}
}

func TestPayoutStatusIsOpen(t *testing.T) {
	open := []PayoutStatus{PayoutStatusPending, PayoutStatusProcessing, PayoutStatusCompleted}
	for _, s := range open {
		if !s.IsOpen() {
			t.Fatalf("expected %s to be open", s)
		}
	}
	for _, s := range []PayoutStatus{PayoutStatusFailed, PayoutStatusCancelled} {
		if s.IsOpen() {
			t.Fatalf("expected %s to be closed", s)
		}
	}
}
