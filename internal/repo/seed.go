// Package repo implements the data persistence layer for the link pool,
// backed by GORM. This file seeds the pool from a JSON fixture at startup.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"gorm.io/gorm"
)

// SeedEntry is one element of the pool seed file: a JSON array of links with
// their denomination and receiving wallet.
//
// Example file:
//
//	[
//	  {"url": "https://tinyurl.com/ye7dfa8x", "amount": 100, "wallet_address": "0xabc…"},
//	  {"url": "https://tinyurl.com/2sxktakk", "amount": 200, "wallet_address": "0xabc…"}
//	]
type SeedEntry struct {
	URL           string `json:"url"`
	Amount        int    `json:"amount"`
	WalletAddress string `json:"wallet_address"`
}

// SeedLinks inserts any seed entries not yet present in the pool, keyed by
// URL, and returns the number created. Existing rows are left untouched so a
// restart never resets reservation or verification state. Entries with an
// empty URL or non-positive amount are rejected.
func SeedLinks(ctx context.Context, db *gorm.DB, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var entries []SeedEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return 0, err
	}

	created := 0
	for _, e := range entries {
		if e.URL == "" || e.Amount <= 0 {
			return created, errors.New("seed entry must have a url and a positive amount")
		}
		_, err := GetLinkByURL(ctx, db, e.URL)
		if err == nil {
			continue // already in the pool; keep its current status
		}
		if !errors.Is(err, ErrNotFound) {
			return created, err
		}
		if _, err := CreateLink(ctx, db, e.URL, e.Amount, e.WalletAddress); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
