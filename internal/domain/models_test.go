package domain

import (
	"testing"
	"time"
)

func TestTableName(t *testing.T) {
	if got := (PaymentLink{}).TableName(); got != "payment_links" {
		t.Fatalf("TableName = %q; want payment_links", got)
	}
}

func TestTerminal(t *testing.T) {
	cases := map[string]bool{
		StatusAvailable: false,
		StatusReserved:  false,
		StatusClaimed:   false,
		StatusVerified:  true,
	}
	for status, want := range cases {
		l := &PaymentLink{Status: status}
		if got := l.Terminal(); got != want {
			t.Errorf("Terminal() with status=%q = %v; want %v", status, got, want)
		}
	}
}

func TestHeld_NoTimestampNeverHeld(t *testing.T) {
	now := time.Now().UTC()
	for _, status := range []string{StatusAvailable, StatusReserved, StatusClaimed, StatusVerified} {
		l := &PaymentLink{Status: status}
		if l.Held(now, 30*time.Second, 5*time.Minute) {
			t.Errorf("status=%q without reserved_at reported held", status)
		}
	}
}

func TestHeld_ReservedWindow(t *testing.T) {
	now := time.Now().UTC()
	ttl := 30 * time.Second

	fresh := now.Add(-10 * time.Second)
	stale := now.Add(-31 * time.Second)

	held := &PaymentLink{Status: StatusReserved, ReservedAt: &fresh}
	if !held.Held(now, ttl, 5*time.Minute) {
		t.Fatalf("reservation inside TTL should be held")
	}
	expired := &PaymentLink{Status: StatusReserved, ReservedAt: &stale}
	if expired.Held(now, ttl, 5*time.Minute) {
		t.Fatalf("reservation past TTL should not be held")
	}
}

func TestHeld_ClaimedWindow(t *testing.T) {
	now := time.Now().UTC()
	grace := 5 * time.Minute

	fresh := now.Add(-1 * time.Minute)
	stale := now.Add(-6 * time.Minute)

	held := &PaymentLink{Status: StatusClaimed, ReservedAt: &fresh}
	if !held.Held(now, 30*time.Second, grace) {
		t.Fatalf("claim inside grace should be held")
	}
	expired := &PaymentLink{Status: StatusClaimed, ReservedAt: &stale}
	if expired.Held(now, 30*time.Second, grace) {
		t.Fatalf("claim past grace should not be held")
	}
}

func TestHeld_TerminalNeverHeld(t *testing.T) {
	now := time.Now().UTC()
	ts := now.Add(-time.Second)
	l := &PaymentLink{Status: StatusVerified, ReservedAt: &ts}
	if l.Held(now, 30*time.Second, 5*time.Minute) {
		t.Fatalf("verified link must never be held")
	}
}
