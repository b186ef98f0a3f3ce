// Package services – SweeperService
//
// This file implements the sweeper: a stateless reconciliation pass that
// forces links stuck in Claimed past their grace period through verification.
// It is safe to trigger on any schedule (cron, timer, or manual request) and
// safe to run concurrently with itself — when nothing is past its grace
// window the pass is a no-op. One link's oracle failure never aborts the
// rest of the batch.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Verifier is the finalization contract the sweeper drives. In production
// this is the VerificationService.
type Verifier interface {
	Verify(ctx context.Context, url string) (VerifyOutcome, error)
}

// SweepReport aggregates one sweep pass.
type SweepReport struct {
	// Checked is the number of stale claimed links examined.
	Checked int `json:"checked"`
	// Verified counts links confirmed paid and retired.
	Verified int `json:"verified"`
	// Restored counts links returned to the pool.
	Restored int `json:"restored"`
	// Failed counts links left untouched because the oracle was unavailable.
	Failed int `json:"failed"`
}

// SweeperService scans for claimed links whose grace period expired and
// finalizes each through the Verifier.
type SweeperService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the link repository used by this service.
	Repo LinkRepo
	// Verifier finalizes each stale claim.
	Verifier Verifier

	// Grace is how long a claim may sit unverified before the sweeper picks
	// it up. Canonically 5 minutes, to allow blockchain confirmation latency.
	Grace time.Duration
}

// NewSweeperService constructs a SweeperService with the product's default
// grace period.
func NewSweeperService(db *gorm.DB, r LinkRepo, v Verifier) *SweeperService {
	return &SweeperService{DB: db, Repo: r, Verifier: v, Grace: 5 * time.Minute}
}

// Sweep runs one reconciliation pass and reports aggregate counts. The list
// of stale claims is snapshotted up front; links that change state between
// the snapshot and their verification simply fall out as no-ops. Errors from
// individual links are tallied in Failed and logged, not propagated; only a
// failure to read the pool itself aborts the pass.
func (s *SweeperService) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport

	cutoff := time.Now().UTC().Add(-s.Grace)
	stale, err := s.Repo.ListStaleClaimed(ctx, s.DB, cutoff)
	if err != nil {
		return rep, err
	}
	rep.Checked = len(stale)

	for _, link := range stale {
		outcome, err := s.Verifier.Verify(ctx, link.URL)
		if err != nil {
			// Claim raced into another state, or the oracle is down; either
			// way the remaining links still get their pass.
			if !errors.Is(err, ErrLinkNotClaimed) {
				rep.Failed++
			}
			log.Warn().Err(err).Str("url", link.URL).Int("amount", link.Amount).Msg("sweep: verification skipped")
			continue
		}
		switch outcome {
		case OutcomeConfirmed:
			rep.Verified++
		case OutcomeReturned:
			rep.Restored++
		}
	}

	log.Info().
		Int("checked", rep.Checked).
		Int("verified", rep.Verified).
		Int("restored", rep.Restored).
		Int("failed", rep.Failed).
		Msg("sweep complete")
	return rep, nil
}
