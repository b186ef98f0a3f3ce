package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tbourn/go-donation-backend/internal/domain"
)

// fakeOracle returns a canned balance or error.
type fakeOracle struct {
	balance decimal.Decimal
	err     error
	asked   string
}

func (o *fakeOracle) TokenBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	o.asked = address
	return o.balance, o.err
}

func claimedLink(amount int) *domain.PaymentLink {
	return &domain.PaymentLink{
		ID:            "l1",
		URL:           "https://pay.example/a",
		Amount:        amount,
		Status:        domain.StatusClaimed,
		WalletAddress: "0xwallet",
	}
}

func TestNewVerificationService_DefaultTolerance(t *testing.T) {
	s := NewVerificationService(nil, &fakeLinkRepo{}, &fakeOracle{}, nil)
	if s.Tolerance != 0.9 {
		t.Fatalf("Tolerance default = %v; want 0.9", s.Tolerance)
	}
}

func TestVerify_UnknownLink(t *testing.T) {
	s := NewVerificationService(nil, &fakeLinkRepo{}, &fakeOracle{}, nil)
	if _, err := s.Verify(context.Background(), "https://pay.example/x"); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
}

func TestVerify_AlreadyVerifiedIsIdempotent(t *testing.T) {
	r := &fakeLinkRepo{
		getFn: func(url string) (*domain.PaymentLink, error) {
			return &domain.PaymentLink{ID: "l1", URL: url, Status: domain.StatusVerified}, nil
		},
	}
	o := &fakeOracle{}
	s := NewVerificationService(nil, r, o, nil)

	outcome, err := s.Verify(context.Background(), "https://pay.example/a")
	if err != nil || outcome != OutcomeConfirmed {
		t.Fatalf("re-verify = (%v, %v); want (confirmed, nil)", outcome, err)
	}
	if o.asked != "" {
		t.Fatalf("oracle must not be queried for a verified link")
	}
}

func TestVerify_NotClaimed(t *testing.T) {
	for _, status := range []string{domain.StatusAvailable, domain.StatusReserved} {
		r := &fakeLinkRepo{
			getFn: func(url string) (*domain.PaymentLink, error) {
				return &domain.PaymentLink{ID: "l1", URL: url, Status: status}, nil
			},
		}
		s := NewVerificationService(nil, r, &fakeOracle{}, nil)
		if _, err := s.Verify(context.Background(), "https://pay.example/a"); !errors.Is(err, ErrLinkNotClaimed) {
			t.Fatalf("status=%s: expected ErrLinkNotClaimed, got %v", status, err)
		}
	}
}

func TestVerify_OracleFailureFinalizesNothing(t *testing.T) {
	verified, released := false, false
	r := &fakeLinkRepo{
		getFn:          func(url string) (*domain.PaymentLink, error) { return claimedLink(300), nil },
		markVerifiedFn: func(id string) error { verified = true; return nil },
		markAvailFn:    func(id string) error { released = true; return nil },
	}
	o := &fakeOracle{err: errors.New("rate limited")}
	s := NewVerificationService(nil, r, o, nil)

	_, err := s.Verify(context.Background(), "https://pay.example/a")
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
	if verified || released {
		t.Fatalf("oracle failure must leave the link untouched (verified=%v released=%v)", verified, released)
	}
}

func TestVerify_BalanceMeetsThreshold(t *testing.T) {
	verifiedID := ""
	r := &fakeLinkRepo{
		getFn:          func(url string) (*domain.PaymentLink, error) { return claimedLink(100), nil },
		markVerifiedFn: func(id string) error { verifiedID = id; return nil },
	}
	n := &fakeNotifier{}
	// 91 >= 0.9 * 100
	o := &fakeOracle{balance: decimal.NewFromInt(91)}
	s := NewVerificationService(nil, r, o, n)

	outcome, err := s.Verify(context.Background(), "https://pay.example/a")
	if err != nil || outcome != OutcomeConfirmed {
		t.Fatalf("Verify = (%v, %v); want (confirmed, nil)", outcome, err)
	}
	if verifiedID != "l1" {
		t.Fatalf("link not retired")
	}
	if o.asked != "0xwallet" {
		t.Fatalf("oracle asked for %q; want the link's wallet", o.asked)
	}
	if len(n.msgs) != 1 || !strings.Contains(n.msgs[0], "PAYMENT CONFIRMED") {
		t.Fatalf("expected a confirmation alert, got %v", n.msgs)
	}
}

func TestVerify_BalanceBelowThresholdRestoresLink(t *testing.T) {
	releasedID := ""
	r := &fakeLinkRepo{
		getFn:       func(url string) (*domain.PaymentLink, error) { return claimedLink(100), nil },
		markAvailFn: func(id string) error { releasedID = id; return nil },
	}
	n := &fakeNotifier{}
	// 89 < 0.9 * 100
	o := &fakeOracle{balance: decimal.NewFromInt(89)}
	s := NewVerificationService(nil, r, o, n)

	outcome, err := s.Verify(context.Background(), "https://pay.example/a")
	if err != nil || outcome != OutcomeReturned {
		t.Fatalf("Verify = (%v, %v); want (returned, nil)", outcome, err)
	}
	if releasedID != "l1" {
		t.Fatalf("link not returned to pool")
	}
	if len(n.msgs) != 1 || !strings.Contains(n.msgs[0], "PAYMENT NOT FOUND") {
		t.Fatalf("expected a not-found alert, got %v", n.msgs)
	}
}

func TestVerify_ExactThresholdCounts(t *testing.T) {
	r := &fakeLinkRepo{
		getFn: func(url string) (*domain.PaymentLink, error) { return claimedLink(100), nil },
	}
	// Exactly 0.9 * 100.
	o := &fakeOracle{balance: decimal.NewFromInt(90)}
	s := NewVerificationService(nil, r, o, nil)

	outcome, err := s.Verify(context.Background(), "https://pay.example/a")
	if err != nil || outcome != OutcomeConfirmed {
		t.Fatalf("boundary balance should confirm, got (%v, %v)", outcome, err)
	}
}

func TestVerify_NotifierFailureDoesNotFailVerification(t *testing.T) {
	r := &fakeLinkRepo{
		getFn: func(url string) (*domain.PaymentLink, error) { return claimedLink(100), nil },
	}
	n := &fakeNotifier{err: errors.New("telegram down")}
	o := &fakeOracle{balance: decimal.NewFromInt(100)}
	s := NewVerificationService(nil, r, o, n)

	if _, err := s.Verify(context.Background(), "https://pay.example/a"); err != nil {
		t.Fatalf("alert failure must not fail verification: %v", err)
	}
}
