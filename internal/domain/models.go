// Package domain defines the persistence model for the donation link pool.
// The type here is mapped with GORM and forms the core data layer of the
// donation backend: one row per pre-generated payment widget link.
package domain

import (
	"time"
)

// Link statuses. A link walks Available → Reserved → Claimed → Verified,
// with Reserved/Claimed able to fall back to Available (expiry, cancel, or
// failed verification). Verified is terminal: the link is retired and never
// offered again.
const (
	StatusAvailable = "available"
	StatusReserved  = "reserved"
	StatusClaimed   = "claimed"
	StatusVerified  = "verified"
)

// PaymentLink represents a single pre-generated payment widget link belonging
// to the pool for one donation amount. The pool store is the single source of
// truth shared by all request handlers; reservation state lives in the status
// and reserved_at columns and is expired lazily by comparing against the
// clock on read (no background timers).
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - URL: the externally hosted payment widget page; unique across the pool.
//   - Amount: donation denomination (e.g. 100, 200, … 800); immutable.
//   - Status: available | reserved | claimed | verified (DB check constraint).
//   - ReservedAt: timestamp of the last transition into Reserved or Claimed;
//     NULL whenever the link is Available.
//   - ClaimedBy: optional human-readable label of the claimant.
//   - WalletAddress: address that must receive funds for this link to verify.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type PaymentLink struct {
	ID            string     `json:"id"             gorm:"type:char(36);primaryKey"`
	URL           string     `json:"url"            gorm:"type:varchar(512);not null;uniqueIndex:ux_link_url"`
	Amount        int        `json:"amount"         gorm:"not null;index:idx_amount_status,priority:1"`
	Status        string     `json:"status"         gorm:"type:varchar(16);not null;default:'available';index:idx_amount_status,priority:2;check:status IN ('available','reserved','claimed','verified')"`
	ReservedAt    *time.Time `json:"reserved_at,omitempty"`
	ClaimedBy     string     `json:"claimed_by,omitempty" gorm:"type:varchar(64);not null;default:''"`
	WalletAddress string     `json:"wallet_address" gorm:"type:varchar(64);not null"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for PaymentLink.
func (PaymentLink) TableName() string { return "payment_links" }

// Terminal reports whether the link has reached its terminal state. A
// verified link is permanently retired and must never be re-offered.
func (l *PaymentLink) Terminal() bool { return l.Status == StatusVerified }

// Held reports whether the link carries an in-flight hold (reservation or
// claim) that has not yet expired at the given instant. reserveTTL applies to
// unconfirmed reservations; claimGrace applies to claims awaiting
// verification. An Available or Verified link is never held.
func (l *PaymentLink) Held(now time.Time, reserveTTL, claimGrace time.Duration) bool {
	if l.ReservedAt == nil {
		return false
	}
	switch l.Status {
	case StatusReserved:
		return now.Sub(*l.ReservedAt) <= reserveTTL
	case StatusClaimed:
		return now.Sub(*l.ReservedAt) <= claimGrace
	}
	return false
}
