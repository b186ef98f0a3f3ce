// Package repo implements the data persistence layer for the link pool,
// backed by GORM. This file provides repository functions for the
// PaymentLink model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Concurrency model:
//
// The pool store is shared by every in-flight request, so state transitions
// are written as conditional UPDATEs (compare-and-swap on the observed status
// and reserved_at). A transition whose guard no longer matches affects zero
// rows and surfaces ErrConflict; callers retry against a fresh read. Holds
// expire lazily: eligibility is computed against the clock at query time, no
// timer ever wakes up to release a link.
//
// Error semantics:
//   - When a link is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - When a guarded transition loses a race, ErrConflict is returned.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-donation-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrConflict is returned when a guarded status transition matched zero rows,
// meaning another caller moved the link first.
var ErrConflict = errors.New("conflict: link state changed concurrently")

// eligibleCond is the shared staleness rule for both the allocation path and
// the sweeper: a link is eligible when it is available, or its hold has aged
// out. Keeping the rule in one SQL fragment prevents the two paths from
// disagreeing about what "expired" means.
const eligibleCond = "status = ? OR (status = ? AND reserved_at < ?) OR (status = ? AND reserved_at < ?)"

func eligibleArgs(now time.Time, reserveTTL, claimGrace time.Duration) []any {
	return []any{
		domain.StatusAvailable,
		domain.StatusReserved, now.Add(-reserveTTL),
		domain.StatusClaimed, now.Add(-claimGrace),
	}
}

// CreateLink inserts a new pool entry for the given amount. The link ID is a
// randomly generated UUID (string), and CreatedAt is set to UTC.
func CreateLink(ctx context.Context, db *gorm.DB, url string, amount int, wallet string) (*domain.PaymentLink, error) {
	l := &domain.PaymentLink{
		ID:            uuid.NewString(),
		URL:           url,
		Amount:        amount,
		Status:        domain.StatusAvailable,
		WalletAddress: wallet,
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(l).Error; err != nil {
		return nil, err
	}
	return l, nil
}

// GetLinkByURL fetches a single link by its widget URL. If the record does
// not exist, it returns ErrNotFound. On other DB errors, the raw error is
// returned.
func GetLinkByURL(ctx context.Context, db *gorm.DB, url string) (*domain.PaymentLink, error) {
	var l domain.PaymentLink
	err := db.WithContext(ctx).
		Where("url = ?", url).
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListEligible returns the links of the given amount that may be handed out
// right now: available ones plus those whose reservation or claim hold has
// expired relative to now. Ordering is deterministic (creation time, then id)
// so concurrent allocators contend on the same candidate and the CAS guard
// decides the winner.
func ListEligible(ctx context.Context, db *gorm.DB, amount int, now time.Time, reserveTTL, claimGrace time.Duration) ([]domain.PaymentLink, error) {
	var out []domain.PaymentLink
	args := append([]any{amount}, eligibleArgs(now, reserveTTL, claimGrace)...)
	err := db.WithContext(ctx).
		Where("amount = ? AND ("+eligibleCond+")", args...).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// CountEligible returns the number of links of the given amount that are
// currently eligible for allocation (same rule as ListEligible).
func CountEligible(ctx context.Context, db *gorm.DB, amount int, now time.Time, reserveTTL, claimGrace time.Duration) (int64, error) {
	var total int64
	args := append([]any{amount}, eligibleArgs(now, reserveTTL, claimGrace)...)
	err := db.WithContext(ctx).
		Model(&domain.PaymentLink{}).
		Where("amount = ? AND ("+eligibleCond+")", args...).
		Count(&total).Error
	return total, err
}

// ListStaleClaimed returns links that are still claimed but whose grace
// period ran out before cutoff, oldest first. These are the sweeper's input.
func ListStaleClaimed(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]domain.PaymentLink, error) {
	var out []domain.PaymentLink
	err := db.WithContext(ctx).
		Where("status = ? AND reserved_at < ?", domain.StatusClaimed, cutoff).
		Order("reserved_at asc").
		Find(&out).Error
	return out, err
}

// MarkReserved transitions a link to Reserved, guarded by the status and
// reserved_at the caller observed. If another allocator won the race (the
// observed state no longer matches), zero rows are affected and ErrConflict
// is returned; the caller should re-read and retry.
func MarkReserved(ctx context.Context, db *gorm.DB, id, fromStatus string, fromReservedAt *time.Time, now time.Time) error {
	q := db.WithContext(ctx).
		Model(&domain.PaymentLink{}).
		Where("id = ? AND status = ?", id, fromStatus)
	if fromReservedAt == nil {
		q = q.Where("reserved_at IS NULL")
	} else {
		q = q.Where("reserved_at = ?", *fromReservedAt)
	}
	res := q.Updates(map[string]any{
		"status":      domain.StatusReserved,
		"reserved_at": now,
		"claimed_by":  "",
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// MarkClaimed transitions a non-terminal link to Claimed, recording the
// claimant and restarting the grace-period clock. Repeating the claim on an
// already-claimed link simply re-stamps reserved_at. Returns ErrNotFound if
// the link is missing or already verified.
func MarkClaimed(ctx context.Context, db *gorm.DB, id, claimant string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.PaymentLink{}).
		Where("id = ? AND status <> ?", id, domain.StatusVerified).
		Updates(map[string]any{
			"status":      domain.StatusClaimed,
			"reserved_at": now,
			"claimed_by":  claimant,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAvailable returns a non-terminal link to the pool, clearing the hold
// and claimant. Verified links are never touched. Returns ErrNotFound if the
// link is missing or already verified.
func MarkAvailable(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.PaymentLink{}).
		Where("id = ? AND status <> ?", id, domain.StatusVerified).
		Updates(map[string]any{
			"status":      domain.StatusAvailable,
			"reserved_at": nil,
			"claimed_by":  "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkVerified retires a claimed link. The guard on status=claimed means a
// concurrent cancel wins over a late verification; in that case ErrConflict
// is returned and the link stays in whatever state it reached.
func MarkVerified(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.PaymentLink{}).
		Where("id = ? AND status = ?", id, domain.StatusClaimed).
		Update("status", domain.StatusVerified)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}
