package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-donation-backend/internal/domain"
)

func newLinkRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("link_repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

// seedLink inserts a link directly, bypassing CreateLink, so tests control
// every column.
func seedLink(t *testing.T, db *gorm.DB, l domain.PaymentLink) domain.PaymentLink {
	t.Helper()
	if err := db.Create(&l).Error; err != nil {
		t.Fatalf("seed link %s: %v", l.ID, err)
	}
	return l
}

func TestCreateLink_Success(t *testing.T) {
	db := newLinkRepoDB(t, &domain.PaymentLink{})

	start := time.Now().UTC().Add(-time.Minute)
	l, err := CreateLink(context.Background(), db, "https://pay.example/a", 300, "0xwallet")
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if l.ID == "" || l.URL != "https://pay.example/a" || l.Amount != 300 || l.WalletAddress != "0xwallet" {
		t.Fatalf("unexpected fields: %+v", l)
	}
	if l.Status != domain.StatusAvailable {
		t.Fatalf("new link status = %q; want available", l.Status)
	}
	if l.CreatedAt.Before(start) {
		t.Fatalf("CreatedAt seems unset: %v", l.CreatedAt)
	}
}

func TestCreateLink_DuplicateURL(t *testing.T) {
	db := newLinkRepoDB(t, &domain.PaymentLink{})

	if _, err := CreateLink(context.Background(), db, "https://pay.example/a", 300, "w"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := CreateLink(context.Background(), db, "https://pay.example/a", 400, "w"); err == nil {
		t.Fatalf("expected unique violation on duplicate url")
	}
}

func TestGetLinkByURL_NotFound(t *testing.T) {
	db := newLinkRepoDB(t, &domain.PaymentLink{})
	_, err := GetLinkByURL(context.Background(), db, "https://pay.example/missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListEligible_AppliesStalenessRule(t *testing.T) {
	db := newLinkRepoDB(t, &domain.PaymentLink{})
	ctx := context.Background()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ttl := 30 * time.Second
	grace := 5 * time.Minute

	freshRes := now.Add(-10 * time.Second) // inside TTL: hidden
	staleRes := now.Add(-31 * time.Second) // past TTL: eligible
	freshClm := now.Add(-1 * time.Minute)  // inside grace: hidden
	staleClm := now.Add(-6 * time.Minute)  // past grace: eligible

	seedLink(t, db, domain.PaymentLink{ID: "av", URL: "u-av", Amount: 300, Status: domain.StatusAvailable, WalletAddress: "w", CreatedAt: now.Add(-5 * time.Hour)})
	seedLink(t, db, domain.PaymentLink{ID: "r1", URL: "u-r1", Amount: 300, Status: domain.StatusReserved, ReservedAt: &freshRes, WalletAddress: "w", CreatedAt: now.Add(-4 * time.Hour)})
	seedLink(t, db, domain.PaymentLink{ID: "r2", URL: "u-r2", Amount: 300, Status: domain.StatusReserved, ReservedAt: &staleRes, WalletAddress: "w", CreatedAt: now.Add(-3 * time.Hour)})
	seedLink(t, db, domain.PaymentLink{ID: "c1", URL: "u-c1", Amount: 300, Status: domain.StatusClaimed, ReservedAt: &freshClm, WalletAddress: "w", CreatedAt: now.Add(-2 * time.Hour)})
	seedLink(t, db, domain.PaymentLink{ID: "c2", URL: "u-c2", Amount: 300, Status: domain.StatusClaimed, ReservedAt: &staleClm, WalletAddress: "w", CreatedAt: now.Add(-1 * time.Hour)})
	seedLink(t, db, domain.PaymentLink{ID: "vf", URL: "u-vf", Amount: 300, Status: domain.StatusVerified, WalletAddress: "w", CreatedAt: now.Add(-6 * time.Hour)})
	seedLink(t, db, domain.PaymentLink{ID: "ot", URL: "u-ot", Amount: 500, Status: domain.StatusAvailable, WalletAddress: "w", CreatedAt: now.Add(-6 * time.Hour)})

	links, err := ListEligible(ctx, db, 300, now, ttl, grace)
	if err != nil {
		t.Fatalf("ListEligible: %v", err)
	}
	if len(links) != 3 {
		t.Fatalf("expected 3 eligible links, got %d: %+v", len(links), links)
	}
	// Oldest first by creation time: av, r2, c2.
	if links[0].ID != "av" || links[1].ID != "r2" || links[2].ID != "c2" {
		t.Fatalf("unexpected order: %s %s %s", links[0].ID, links[1].ID, links[2].ID)
	}

	n, err := CountEligible(ctx, db, 300, now, ttl, grace)
	if err != nil {
		t.Fatalf("CountEligible: %v", err)
	}
	if n != 3 {
		t.Fatalf("CountEligible = %d; want 3", n)
	}
}

func TestListStaleClaimed_FiltersByCutoff(t *testing.T) {
	db := newLinkRepoDB(t, &domain.PaymentLink{})
	ctx := context.Background()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-5 * time.Minute)

	old := now.Add(-10 * time.Minute)
	recent := now.Add(-1 * time.Minute)

	seedLink(t, db, domain.PaymentLink{ID: "stale", URL: "u1", Amount: 100, Status: domain.StatusClaimed, ReservedAt: &old, WalletAddress: "w"})
	seedLink(t, db, domain.PaymentLink{ID: "fresh", URL: "u2", Amount: 100, Status: domain.StatusClaimed, ReservedAt: &recent, WalletAddress: "w"})
	seedLink(t, db, domain.PaymentLink{ID: "res", URL: "u3", Amount: 100, Status: domain.StatusReserved, ReservedAt: &old, WalletAddress: "w"})

	stale, err := ListStaleClaimed(ctx, db, cutoff)
	if err != nil {
		t.Fatalf("ListStaleClaimed: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != "stale" {
		t.Fatalf("expected only the stale claim, got %+v", stale)
	}
}

func TestMarkReserved_CASWinnerAndLoser(t *testing.T) {
	db := newLinkRepoDB(t, &domain.PaymentLink{})
	ctx := context.Background()
	now := time.Now().UTC()

	l := seedLink(t, db, domain.PaymentLink{ID: "l1", URL: "u1", Amount: 300, Status: domain.StatusAvailable, WalletAddress: "w"})

	// Winner: guard matches the observed (available, NULL) state.
	if err := MarkReserved(ctx, db, l.ID, domain.StatusAvailable, nil, now); err != nil {
		t.Fatalf("winner MarkReserved: %v", err)
	}

	// Loser: same observed state no longer matches.
	err := MarkReserved(ctx, db, l.ID, domain.StatusAvailable, nil, now)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("loser expected ErrConflict, got %v", err)
	}

	var got domain.PaymentLink
	if err := db.First(&got, "id = ?", l.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status != domain.StatusReserved || got.ReservedAt == nil {
		t.Fatalf("link not reserved after CAS: %+v", got)
	}
}

func TestMarkReserved_TakesOverExpiredHold(t *testing.T) {
	db := newLinkRepoDB(t, &domain.PaymentLink{})
	ctx := context.Background()
	now := time.Now().UTC()
	stale := now.Add(-time.Minute).Truncate(time.Millisecond)

	l := seedLink(t, db, domain.PaymentLink{ID: "l1", URL: "u1", Amount: 300, Status: domain.StatusReserved, ReservedAt: &stale, WalletAddress: "w"})

	// Guard on the observed stale hold: the takeover clears the old claimant.
	if err := MarkReserved(ctx, db, l.ID, domain.StatusReserved, &stale, now); err != nil {
		t.Fatalf("takeover MarkReserved: %v", err)
	}

	var got domain.PaymentLink
	if err := db.First(&got, "id = ?", l.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status != domain.StatusReserved || got.ReservedAt == nil || !got.ReservedAt.After(stale) {
		t.Fatalf("takeover did not restamp hold: %+v", got)
	}
}

func TestMarkClaimed_SetsClaimantAndRestampsClock(t *testing.T) {
	db := newLinkRepoDB(t, &domain.PaymentLink{})
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Second)

	l := seedLink(t, db, domain.PaymentLink{ID: "l1", URL: "u1", Amount: 300, Status: domain.StatusReserved, ReservedAt: &t0, WalletAddress: "w"})

	t1 := t0.Add(10 * time.Second)
	if err := MarkClaimed(ctx, db, l.ID, "alice", t1); err != nil {
		t.Fatalf("MarkClaimed: %v", err)
	}

	var got domain.PaymentLink
	if err := db.First(&got, "id = ?", l.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status != domain.StatusClaimed || got.ClaimedBy != "alice" {
		t.Fatalf("claim not recorded: %+v", got)
	}
	if got.ReservedAt == nil || !got.ReservedAt.Equal(t1) {
		t.Fatalf("grace clock not restamped: %v", got.ReservedAt)
	}

	// Re-claiming is allowed and just moves the clock forward.
	t2 := t1.Add(30 * time.Second)
	if err := MarkClaimed(ctx, db, l.ID, "alice", t2); err != nil {
		t.Fatalf("re-claim: %v", err)
	}
}

func TestMarkClaimed_VerifiedIsUntouchable(t *testing.T) {
	db := newLinkRepoDB(t, &domain.PaymentLink{})
	ctx := context.Background()

	l := seedLink(t, db, domain.PaymentLink{ID: "l1", URL: "u1", Amount: 300, Status: domain.StatusVerified, WalletAddress: "w"})

	err := MarkClaimed(ctx, db, l.ID, "alice", time.Now().UTC())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound claiming a verified link, got %v", err)
	}
}

func TestMarkAvailable_ClearsHoldAndClaimant(t *testing.T) {
	db := newLinkRepoDB(t, &domain.PaymentLink{})
	ctx := context.Background()
	ts := time.Now().UTC()

	l := seedLink(t, db, domain.PaymentLink{ID: "l1", URL: "u1", Amount: 300, Status: domain.StatusClaimed, ReservedAt: &ts, ClaimedBy: "alice", WalletAddress: "w"})

	if err := MarkAvailable(ctx, db, l.ID); err != nil {
		t.Fatalf("MarkAvailable: %v", err)
	}

	var got domain.PaymentLink
	if err := db.First(&got, "id = ?", l.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status != domain.StatusAvailable || got.ReservedAt != nil || got.ClaimedBy != "" {
		t.Fatalf("link not fully released: %+v", got)
	}
}

func TestMarkAvailable_VerifiedIsUntouchable(t *testing.T) {
	db := newLinkRepoDB(t, &domain.PaymentLink{})
	ctx := context.Background()

	l := seedLink(t, db, domain.PaymentLink{ID: "l1", URL: "u1", Amount: 300, Status: domain.StatusVerified, WalletAddress: "w"})

	err := MarkAvailable(ctx, db, l.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound releasing a verified link, got %v", err)
	}

	var got domain.PaymentLink
	if err := db.First(&got, "id = ?", l.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status != domain.StatusVerified {
		t.Fatalf("verified link mutated to %q", got.Status)
	}
}

func TestMarkVerified_OnlyFromClaimed(t *testing.T) {
	db := newLinkRepoDB(t, &domain.PaymentLink{})
	ctx := context.Background()
	ts := time.Now().UTC()

	claimed := seedLink(t, db, domain.PaymentLink{ID: "c", URL: "u1", Amount: 300, Status: domain.StatusClaimed, ReservedAt: &ts, WalletAddress: "w"})
	reserved := seedLink(t, db, domain.PaymentLink{ID: "r", URL: "u2", Amount: 300, Status: domain.StatusReserved, ReservedAt: &ts, WalletAddress: "w"})

	if err := MarkVerified(ctx, db, claimed.ID); err != nil {
		t.Fatalf("MarkVerified claimed: %v", err)
	}
	if err := MarkVerified(ctx, db, reserved.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict verifying a reserved link, got %v", err)
	}
	// Verifying twice loses to the status=claimed guard.
	if err := MarkVerified(ctx, db, claimed.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on double verify, got %v", err)
	}
}
