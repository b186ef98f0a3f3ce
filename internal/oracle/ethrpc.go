// Package oracle – JSON-RPC balance oracle.
//
// This file reads the ERC-20 balanceOf directly from an Ethereum node,
// bypassing Etherscan and its rate limits. Useful for deployments that
// already run (or rent) an RPC endpoint.
package oracle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

// balanceOfSelector is the first four bytes of keccak256("balanceOf(address)").
var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// RPCOracle resolves token balances with a bare eth_call against the token
// contract's balanceOf.
type RPCOracle struct {
	client   *ethclient.Client
	contract common.Address
	decimals int
}

// DialRPC connects to the node at rawURL and returns an oracle bound to the
// given token contract and decimal scaling.
func DialRPC(ctx context.Context, rawURL, contract string, decimals int) (*RPCOracle, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("rpc oracle: invalid token contract %q", contract)
	}
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("rpc oracle: dial %s: %w", rawURL, err)
	}
	return &RPCOracle{
		client:   client,
		contract: common.HexToAddress(contract),
		decimals: decimals,
	}, nil
}

// Close releases the underlying RPC connection.
func (o *RPCOracle) Close() {
	o.client.Close()
}

// TokenBalance returns the token balance of address in whole-token units,
// read from the latest block. Any RPC failure or malformed address surfaces
// as an error; the caller treats every error as "unknown, do not finalize".
func (o *RPCOracle) TokenBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if !common.IsHexAddress(address) {
		return decimal.Zero, fmt.Errorf("rpc oracle: invalid wallet address %q", address)
	}
	holder := common.HexToAddress(address)

	data := make([]byte, 0, 4+32)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(holder.Bytes(), 32)...)

	out, err := o.client.CallContract(ctx, ethereum.CallMsg{
		To:   &o.contract,
		Data: data,
	}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rpc oracle: balanceOf call: %w", err)
	}

	raw := new(big.Int).SetBytes(out)
	return decimal.NewFromBigInt(raw, int32(-o.decimals)), nil
}
