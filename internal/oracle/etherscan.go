// Package oracle provides balance-oracle clients used to verify donations
// against the chain. Two implementations exist: an Etherscan token-balance
// API client (this file) and a direct JSON-RPC reader (ethrpc.go). Both are
// treated as unreliable collaborators: any unclean result is returned as an
// error and must not finalize link state.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EtherscanClient queries the Etherscan "tokenbalance" endpoint for the
// configured ERC-20 contract. Balances are scaled down by the token's
// decimals (6 for USDT) so callers compare in whole-token units.
type EtherscanClient struct {
	// APIKey is the Etherscan API key.
	APIKey string
	// BaseURL is the API root, e.g. "https://api.etherscan.io".
	BaseURL string
	// Contract is the ERC-20 token contract address.
	Contract string
	// Decimals is the token's decimal scaling.
	Decimals int
	// HTTPClient is the transport; a timeout-bounded default is applied.
	HTTPClient *http.Client
}

// NewEtherscan constructs an EtherscanClient with a 10s request timeout.
func NewEtherscan(apiKey, baseURL, contract string, decimals int) *EtherscanClient {
	return &EtherscanClient{
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Contract:   contract,
		Decimals:   decimals,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// etherscanResponse is the API envelope. Status "1" means OK; anything else
// carries the failure reason in Message/Result.
type etherscanResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// TokenBalance returns the token balance of address in whole-token units.
// Network failures, non-2xx responses, API-level NOTOK statuses, and
// unparsable bodies all surface as errors; the caller treats every error as
// "unknown, do not finalize".
func (c *EtherscanClient) TokenBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "tokenbalance")
	q.Set("contractaddress", c.Contract)
	q.Set("address", strings.ToLower(address))
	q.Set("tag", "latest")
	q.Set("apikey", c.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("etherscan: unexpected status %d", resp.StatusCode)
	}

	var body etherscanResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("etherscan: decode response: %w", err)
	}
	if body.Status != "1" {
		return decimal.Zero, fmt.Errorf("etherscan: %s: %s", body.Message, body.Result)
	}

	raw, err := decimal.NewFromString(body.Result)
	if err != nil {
		return decimal.Zero, fmt.Errorf("etherscan: parse balance %q: %w", body.Result, err)
	}
	return raw.Shift(int32(-c.Decimals)), nil
}
