// Package services – VerificationService
//
// This file implements the VerificationService, which finalizes claimed
// links against the on-chain ground truth. It queries the balance oracle for
// the link's wallet, compares the balance against the expected amount with a
// configurable tolerance, and either retires the link (payment confirmed) or
// returns it to the pool (payment not found). Oracle failures finalize
// nothing: the link stays Claimed so the sweeper can retry later.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gorm.io/gorm"

	"github.com/tbourn/go-donation-backend/internal/domain"
	"github.com/tbourn/go-donation-backend/internal/repo"
)

// BalanceOracle is the external ground-truth collaborator: given a wallet
// address it returns the current token balance. Calls may be slow,
// rate-limited, or fail transiently; callers must treat any error as
// "unknown, do not finalize".
type BalanceOracle interface {
	TokenBalance(ctx context.Context, address string) (decimal.Decimal, error)
}

// VerifyOutcome is the result of finalizing a claimed link.
type VerifyOutcome string

const (
	// OutcomeConfirmed means the balance met the threshold and the link is
	// permanently retired.
	OutcomeConfirmed VerifyOutcome = "confirmed"
	// OutcomeReturned means the payment was not found and the link went back
	// to the pool.
	OutcomeReturned VerifyOutcome = "returned"
)

// VerificationService decides the fate of claimed links. The tolerance
// absorbs gas/fee shortfall: a balance of at least Tolerance × amount counts
// as paid (product default 0.9).
type VerificationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the link repository used by this service.
	Repo LinkRepo
	// Oracle is the balance ground truth.
	Oracle BalanceOracle
	// Notifier receives confirmation/not-found alerts; may be nil.
	Notifier Notifier

	// Tolerance is the accepted fraction of the expected amount, in (0,1].
	Tolerance float64
}

// NewVerificationService constructs a VerificationService with the product's
// default tolerance.
func NewVerificationService(db *gorm.DB, r LinkRepo, o BalanceOracle, n Notifier) *VerificationService {
	return &VerificationService{DB: db, Repo: r, Oracle: o, Notifier: n, Tolerance: 0.9}
}

// alertPrinter renders amounts with locale-aware grouping in operator alerts.
var alertPrinter = message.NewPrinter(language.English)

// Verify finalizes the claimed link identified by url.
//
// Steps: load the link, query the oracle for its wallet balance, and compare
// against Tolerance × amount. On success the link becomes Verified (terminal)
// and a confirmation alert fires; on shortfall the link returns to Available
// with its hold cleared and a not-found alert fires. Alert failures are
// logged and swallowed.
//
// Errors:
//   - ErrLinkNotFound when the URL has no record.
//   - OutcomeConfirmed with no error when the link was already verified
//     (idempotent re-verify).
//   - ErrLinkNotClaimed when the link is available or merely reserved.
//   - ErrOracleUnavailable (wrapping the cause) when the oracle fails; the
//     link stays Claimed for a later retry.
func (s *VerificationService) Verify(ctx context.Context, url string) (VerifyOutcome, error) {
	link, err := s.Repo.GetLinkByURL(ctx, s.DB, url)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrLinkNotFound
		}
		return "", err
	}

	switch link.Status {
	case domain.StatusVerified:
		return OutcomeConfirmed, nil
	case domain.StatusClaimed:
	default:
		return "", ErrLinkNotClaimed
	}

	balance, err := s.Oracle.TokenBalance(ctx, link.WalletAddress)
	if err != nil {
		// Do not finalize on an unclean oracle result; the sweeper retries.
		return "", fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	expected := decimal.NewFromInt(int64(link.Amount))
	threshold := expected.Mul(decimal.NewFromFloat(s.Tolerance))

	if balance.GreaterThanOrEqual(threshold) {
		if err := s.Repo.MarkVerified(ctx, s.DB, link.ID); err != nil {
			return "", err
		}
		s.notify(ctx, alertPrinter.Sprintf(
			"✅ PAYMENT CONFIRMED\nReceived: %v USDT\nTarget: $%d\nWallet: %s\nLink: %s",
			balance, link.Amount, link.WalletAddress, link.URL))
		return OutcomeConfirmed, nil
	}

	if err := s.Repo.MarkAvailable(ctx, s.DB, link.ID); err != nil {
		return "", err
	}
	s.notify(ctx, alertPrinter.Sprintf(
		"❌ PAYMENT NOT FOUND\nLink for $%d has been returned to the pool.\nWallet: %s",
		link.Amount, link.WalletAddress))
	return OutcomeReturned, nil
}

// notify fires a best-effort operator alert. A failed alert must never fail
// the verification that triggered it.
func (s *VerificationService) notify(ctx context.Context, text string) {
	if s.Notifier == nil {
		return
	}
	// Bound the side effect so a slow notifier cannot hold the caller.
	nctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Notifier.Notify(nctx, text); err != nil {
		log.Warn().Err(err).Msg("verification alert failed")
	}
}
