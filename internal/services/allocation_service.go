// Package services – AllocationService
//
// This file implements the AllocationService, the component that hands out
// links from the shared pool without ever double-allocating one. A reserve
// picks the first eligible link for the amount and flips it to Reserved with
// a compare-and-swap on the state the picker observed; losing the race means
// re-reading and retrying a bounded number of times. Claims and cancels move
// links along the state machine (Available → Reserved → Claimed → Verified,
// with Available as the sole re-entry point).
//
// Service-level errors (e.g. ErrNoAvailableLinks) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-donation-backend/internal/domain"
	"github.com/tbourn/go-donation-backend/internal/repo"
)

// LinkRepo defines the repository contract required by the allocation,
// verification, and sweeper services. Implementations are responsible for
// persistence of pool state and for the conditional-update guarantees the
// state machine relies on.
type LinkRepo interface {
	// GetLinkByURL fetches a link by its widget URL.
	GetLinkByURL(ctx context.Context, db *gorm.DB, url string) (*domain.PaymentLink, error)

	// ListEligible returns allocatable links for an amount, oldest first.
	ListEligible(ctx context.Context, db *gorm.DB, amount int, now time.Time, reserveTTL, claimGrace time.Duration) ([]domain.PaymentLink, error)

	// CountEligible counts allocatable links for an amount.
	CountEligible(ctx context.Context, db *gorm.DB, amount int, now time.Time, reserveTTL, claimGrace time.Duration) (int64, error)

	// ListStaleClaimed returns claimed links whose grace period expired.
	ListStaleClaimed(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]domain.PaymentLink, error)

	// MarkReserved performs the guarded Available/expired → Reserved CAS.
	MarkReserved(ctx context.Context, db *gorm.DB, id, fromStatus string, fromReservedAt *time.Time, now time.Time) error

	// MarkClaimed moves a non-terminal link to Claimed (idempotent re-stamp).
	MarkClaimed(ctx context.Context, db *gorm.DB, id, claimant string, now time.Time) error

	// MarkAvailable returns a non-terminal link to the pool.
	MarkAvailable(ctx context.Context, db *gorm.DB, id string) error

	// MarkVerified retires a claimed link.
	MarkVerified(ctx context.Context, db *gorm.DB, id string) error
}

// Notifier is the outbound alert collaborator (Telegram in production).
// Notifications are best effort: failures are logged and never propagate
// into the core operation that triggered them.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// AllocationService hands out pool links per requested amount, enforcing the
// at-most-one-active-hold invariant via the repository's guarded transitions.
// It also watches pool depth after each successful reserve and emits a
// low-stock alert once per crossing.
type AllocationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the link repository used by this service.
	Repo LinkRepo
	// Notifier receives low-stock alerts; may be nil.
	Notifier Notifier

	// Amounts is the recognized denomination set.
	Amounts []int
	// ReserveTTL is the unconfirmed-reservation hold window (~30s).
	ReserveTTL time.Duration
	// ClaimGrace is the claimed-awaiting-verification hold window (~5m).
	ClaimGrace time.Duration
	// LowStockThreshold triggers an alert when eligible count drops below it.
	LowStockThreshold int
	// StoreRetries bounds CAS retries before surfacing ErrStoreConflict.
	StoreRetries int

	// lowStock debounces alerts per amount: one firing per downward crossing.
	// Process-local by design; alerting is best effort.
	mu       sync.Mutex
	lowStock map[int]bool
}

// NewAllocationService constructs an AllocationService with the product's
// default hold windows and retry budget.
func NewAllocationService(db *gorm.DB, r LinkRepo, n Notifier, amounts []int) *AllocationService {
	return &AllocationService{
		DB:                db,
		Repo:              r,
		Notifier:          n,
		Amounts:           amounts,
		ReserveTTL:        30 * time.Second,
		ClaimGrace:        5 * time.Minute,
		LowStockThreshold: 2,
		StoreRetries:      3,
		lowStock:          make(map[int]bool),
	}
}

// recognized reports whether amount belongs to the configured denominations.
func (s *AllocationService) recognized(amount int) bool {
	for _, a := range s.Amounts {
		if a == amount {
			return true
		}
	}
	return false
}

// Reserve picks the first eligible link for amount, transitions it to
// Reserved, and returns its widget URL. Two concurrent reserves can observe
// the same candidate; the guarded update lets exactly one win, and the loser
// re-reads the pool. After StoreRetries losses ErrStoreConflict is returned.
//
// Returns ErrInvalidAmount for unknown denominations and ErrNoAvailableLinks
// when the eligible set is empty.
func (s *AllocationService) Reserve(ctx context.Context, amount int) (string, error) {
	if !s.recognized(amount) {
		return "", ErrInvalidAmount
	}

	for attempt := 0; attempt < s.StoreRetries; attempt++ {
		now := time.Now().UTC()
		links, err := s.Repo.ListEligible(ctx, s.DB, amount, now, s.ReserveTTL, s.ClaimGrace)
		if err != nil {
			return "", err
		}
		if len(links) == 0 {
			return "", ErrNoAvailableLinks
		}

		// Deterministic pick: first in iteration order. Pool sizes are small;
		// simplicity beats fairness here.
		pick := links[0]
		err = s.Repo.MarkReserved(ctx, s.DB, pick.ID, pick.Status, pick.ReservedAt, now)
		if errors.Is(err, repo.ErrConflict) {
			continue
		}
		if err != nil {
			return "", err
		}

		s.checkLowStock(ctx, amount)
		return pick.URL, nil
	}
	return "", ErrStoreConflict
}

// Claim records that the holder of the link asserts payment. It transitions
// the link to Claimed, stores the claimant label, and restarts the
// grace-period clock so the verification pass waits for chain confirmation.
// Claiming an already-claimed link is safe: it merely re-stamps the clock.
//
// Returns ErrLinkNotFound for unknown URLs and ErrLinkRetired when the link
// was already verified.
func (s *AllocationService) Claim(ctx context.Context, url, claimant string) error {
	link, err := s.Repo.GetLinkByURL(ctx, s.DB, url)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrLinkNotFound
		}
		return err
	}
	if link.Terminal() {
		return ErrLinkRetired
	}
	err = s.Repo.MarkClaimed(ctx, s.DB, link.ID, claimant, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		// Raced with a concurrent verification; the link is retired now.
		return ErrLinkRetired
	}
	return err
}

// Cancel unconditionally returns a non-terminal link to the pool, clearing
// its hold and claimant regardless of prior state. This is the escape hatch
// that keeps a declined payment from orphaning the link for the full timeout.
//
// Returns ErrLinkNotFound for unknown URLs and ErrLinkRetired when the link
// was already verified.
func (s *AllocationService) Cancel(ctx context.Context, url string) error {
	link, err := s.Repo.GetLinkByURL(ctx, s.DB, url)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrLinkNotFound
		}
		return err
	}
	if link.Terminal() {
		return ErrLinkRetired
	}
	err = s.Repo.MarkAvailable(ctx, s.DB, link.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrLinkRetired
	}
	if err != nil {
		return err
	}
	s.resetLowStock(amountOf(link))
	return nil
}

// Availability reports the count of currently eligible links per configured
// amount, computed against the same staleness rule the allocator uses.
func (s *AllocationService) Availability(ctx context.Context) (map[int]int64, error) {
	now := time.Now().UTC()
	out := make(map[int]int64, len(s.Amounts))
	for _, a := range s.Amounts {
		n, err := s.Repo.CountEligible(ctx, s.DB, a, now, s.ReserveTTL, s.ClaimGrace)
		if err != nil {
			return nil, err
		}
		out[a] = n
	}
	return out, nil
}

// checkLowStock emits one alert per downward crossing of the threshold and
// re-arms once the pool recovers. Alert failures are swallowed.
func (s *AllocationService) checkLowStock(ctx context.Context, amount int) {
	if s.LowStockThreshold <= 0 {
		return
	}
	n, err := s.Repo.CountEligible(ctx, s.DB, amount, time.Now().UTC(), s.ReserveTTL, s.ClaimGrace)
	if err != nil {
		log.Warn().Err(err).Int("amount", amount).Msg("low-stock check failed")
		return
	}

	s.mu.Lock()
	fired := s.lowStock[amount]
	low := n < int64(s.LowStockThreshold)
	switch {
	case low && !fired:
		s.lowStock[amount] = true
	case !low && fired:
		s.lowStock[amount] = false
	}
	s.mu.Unlock()

	if low && !fired && s.Notifier != nil {
		msg := fmt.Sprintf("⚠️ LOW STOCK\nOnly %d link(s) left for the $%d pool.", n, amount)
		if err := s.Notifier.Notify(ctx, msg); err != nil {
			log.Warn().Err(err).Int("amount", amount).Msg("low-stock alert failed")
		}
	}
}

// resetLowStock re-arms the low-stock alert for an amount whose pool just
// regained a link.
func (s *AllocationService) resetLowStock(amount int) {
	s.mu.Lock()
	delete(s.lowStock, amount)
	s.mu.Unlock()
}

// amountOf is a nil-safe accessor used after transitions that only need the
// denomination of an already-loaded link.
func amountOf(l *domain.PaymentLink) int {
	if l == nil {
		return 0
	}
	return l.Amount
}
