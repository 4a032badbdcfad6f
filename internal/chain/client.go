// Package chain reads and writes the character shares contract over an EVM
// JSON-RPC endpoint. On-chain reads are the authority for user balances and
// for verifying the configured curve parameters; everything else comes from
// the polled REST API.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Otaku-Wars/clashcore/internal/curve"
)

// sharesABI covers the read and write surface of the shares contract that
// this service uses. Amounts are share counts; prices are wei.
const sharesABI = `[
	{"name":"getBuyPriceAfterFee","type":"function","stateMutability":"view","inputs":[{"name":"characterId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"getSellPriceAfterFee","type":"function","stateMutability":"view","inputs":[{"name":"characterId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"characterSharesBalance","type":"function","stateMutability":"view","inputs":[{"name":"characterId","type":"uint256"},{"name":"holder","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"getCurve","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"a","type":"uint256"},{"name":"b","type":"uint256"},{"name":"c","type":"uint256"},{"name":"feePercent","type":"uint256"},{"name":"transferPercent","type":"uint256"}]},
	{"name":"buyShares","type":"function","stateMutability":"payable","inputs":[{"name":"characterId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"sellShares","type":"function","stateMutability":"nonpayable","inputs":[{"name":"characterId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"stake","type":"function","stateMutability":"nonpayable","inputs":[{"name":"characterId","type":"uint256"},{"name":"attribute","type":"uint8"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"unstake","type":"function","stateMutability":"nonpayable","inputs":[{"name":"characterId","type":"uint256"},{"name":"attribute","type":"uint8"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// CurveOnChain is the contract's curve configuration: the three sigmoid
// parameters plus the protocol rates, all 18-decimal fixed point.
type CurveOnChain struct {
	Params       curve.Params
	FeeRate      float64
	TransferRate float64
}

// Client is a read client for the shares contract.
type Client struct {
	eth      *ethclient.Client
	contract common.Address
	abi      abi.ABI
}

// Dial connects to the EVM endpoint and binds the shares contract address.
func Dial(ctx context.Context, rpcURL, contractAddr string) (*Client, error) {
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("chain: invalid contract address %q", contractAddr)
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}

	parsed, err := abi.JSON(strings.NewReader(sharesABI))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: parse contract abi: %w", err)
	}

	return &Client{
		eth:      eth,
		contract: common.HexToAddress(contractAddr),
		abi:      parsed,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// BuyPriceAfterFee reads the contract's own after-fee buy quote, in native
// units. Used to cross-check the local pricing engine, not to serve quotes.
func (c *Client) BuyPriceAfterFee(ctx context.Context, characterID, amount uint64) (float64, error) {
	wei, err := c.callUint(ctx, "getBuyPriceAfterFee",
		new(big.Int).SetUint64(characterID), new(big.Int).SetUint64(amount))
	if err != nil {
		return 0, fmt.Errorf("chain: get buy price for character %d: %w", characterID, err)
	}
	return WeiToEth(wei), nil
}

// SellPriceAfterFee reads the contract's own after-fee sell quote, in native
// units.
func (c *Client) SellPriceAfterFee(ctx context.Context, characterID, amount uint64) (float64, error) {
	wei, err := c.callUint(ctx, "getSellPriceAfterFee",
		new(big.Int).SetUint64(characterID), new(big.Int).SetUint64(amount))
	if err != nil {
		return 0, fmt.Errorf("chain: get sell price for character %d: %w", characterID, err)
	}
	return WeiToEth(wei), nil
}

// SharesBalance reads how many shares of one character an address holds.
// This is the authoritative balance source; REST holdings are advisory.
func (c *Client) SharesBalance(ctx context.Context, characterID uint64, address string) (uint64, error) {
	if !common.IsHexAddress(address) {
		return 0, fmt.Errorf("chain: invalid holder address %q", address)
	}

	bal, err := c.callUint(ctx, "characterSharesBalance",
		new(big.Int).SetUint64(characterID), common.HexToAddress(address))
	if err != nil {
		return 0, fmt.Errorf("chain: get balance of %s for character %d: %w", address, characterID, err)
	}
	return bal.Uint64(), nil
}

// Curve reads the contract's curve parameters and protocol rates. Called once
// at startup to verify the configured values against the deployment.
func (c *Client) Curve(ctx context.Context) (CurveOnChain, error) {
	data, err := c.abi.Pack("getCurve")
	if err != nil {
		return CurveOnChain{}, fmt.Errorf("chain: pack getCurve: %w", err)
	}

	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return CurveOnChain{}, fmt.Errorf("chain: call getCurve: %w", err)
	}

	out, err := c.abi.Unpack("getCurve", raw)
	if err != nil {
		return CurveOnChain{}, fmt.Errorf("chain: unpack getCurve: %w", err)
	}
	if len(out) != 5 {
		return CurveOnChain{}, fmt.Errorf("chain: getCurve returned %d values, want 5", len(out))
	}

	vals := make([]*big.Int, 5)
	for i, v := range out {
		n, ok := v.(*big.Int)
		if !ok {
			return CurveOnChain{}, fmt.Errorf("chain: getCurve output %d is %T, want *big.Int", i, v)
		}
		vals[i] = n
	}

	return CurveOnChain{
		Params:       curve.Params{A: vals[0], B: vals[1], C: vals[2]},
		FeeRate:      FixedToFloat(vals[3]),
		TransferRate: FixedToFloat(vals[4]),
	}, nil
}

// callUint invokes a view method whose single output is a uint256.
func (c *Client) callUint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	out, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s returned %d values, want 1", method, len(out))
	}

	n, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s output is %T, want *big.Int", method, out[0])
	}
	return n, nil
}
