package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/Otaku-Wars/clashcore/internal/domain"
)

// confirmTimeout bounds how long a submitted transaction is watched for a
// receipt before the watch goroutine gives up.
const confirmTimeout = 2 * time.Minute

// StakeAttribute maps an attribute name to the contract's enum ordinal.
var stakeAttributes = map[string]uint8{
	"health":  0,
	"power":   1,
	"attack":  2,
	"defense": 3,
	"speed":   4,
}

// ConfirmFunc is called when a submitted transaction lands. characterID tells
// the caller which character's state should be re-polled; err is non-nil when
// the transaction reverted.
type ConfirmFunc func(intentID string, characterID uint64, err error)

// Writer submits share trades and stakes. Submission is fire-and-forget: the
// returned intent ID identifies the attempt, confirmation arrives later via
// the ConfirmFunc, and displayed state only changes when the authoritative
// sources report it.
type Writer struct {
	client  *Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	onDone  ConfirmFunc
	logger  *slog.Logger
}

// NewWriter creates a trade writer signing with key on the given chain.
func NewWriter(client *Client, key *ecdsa.PrivateKey, chainID int64, onDone ConfirmFunc, logger *slog.Logger) *Writer {
	return &Writer{
		client:  client,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
		onDone:  onDone,
		logger:  logger.With(slog.String("component", "chain_writer")),
	}
}

// Address returns the signing address.
func (w *Writer) Address() string {
	return w.from.Hex()
}

// BuyShares submits a buy of amount shares, attaching maxCost native units as
// the payment. Returns the intent ID immediately.
func (w *Writer) BuyShares(ctx context.Context, characterID, amount uint64, maxCost float64) (string, error) {
	return w.submit(ctx, "buyShares", characterID, EthToWei(maxCost),
		new(big.Int).SetUint64(characterID), new(big.Int).SetUint64(amount))
}

// SellShares submits a sell of amount shares.
func (w *Writer) SellShares(ctx context.Context, characterID, amount uint64) (string, error) {
	return w.submit(ctx, "sellShares", characterID, nil,
		new(big.Int).SetUint64(characterID), new(big.Int).SetUint64(amount))
}

// Stake locks shares behind one of the character's battle attributes.
func (w *Writer) Stake(ctx context.Context, characterID uint64, attribute string, amount uint64) (string, error) {
	ord, ok := stakeAttributes[attribute]
	if !ok {
		return "", fmt.Errorf("chain: unknown stake attribute %q", attribute)
	}
	return w.submit(ctx, "stake", characterID, nil,
		new(big.Int).SetUint64(characterID), ord, new(big.Int).SetUint64(amount))
}

// Unstake releases previously staked shares.
func (w *Writer) Unstake(ctx context.Context, characterID uint64, attribute string, amount uint64) (string, error) {
	ord, ok := stakeAttributes[attribute]
	if !ok {
		return "", fmt.Errorf("chain: unknown stake attribute %q", attribute)
	}
	return w.submit(ctx, "unstake", characterID, nil,
		new(big.Int).SetUint64(characterID), ord, new(big.Int).SetUint64(amount))
}

// submit signs and broadcasts one contract call, then watches for the receipt
// in the background.
func (w *Writer) submit(ctx context.Context, method string, characterID uint64, value *big.Int, args ...any) (string, error) {
	intentID := uuid.NewString()

	data, err := w.client.abi.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("chain: pack %s: %w", method, err)
	}

	nonce, err := w.client.eth.PendingNonceAt(ctx, w.from)
	if err != nil {
		return "", fmt.Errorf("chain: pending nonce: %w", err)
	}

	gasPrice, err := w.client.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("chain: suggest gas price: %w", err)
	}

	msg := ethereum.CallMsg{From: w.from, To: &w.client.contract, Value: value, Data: data}
	gasLimit, err := w.client.eth.EstimateGas(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("chain: %s %w: %v", method, domain.ErrWriteRejected, err)
	}

	tx := types.NewTransaction(nonce, w.client.contract, value, gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return "", fmt.Errorf("chain: sign %s: %w", method, err)
	}

	if err := w.client.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("chain: send %s: %w", method, err)
	}

	w.logger.Info("transaction submitted",
		slog.String("intent_id", intentID),
		slog.String("method", method),
		slog.Uint64("character_id", characterID),
		slog.String("tx_hash", signed.Hash().Hex()))

	go w.watch(intentID, characterID, method, signed)

	return intentID, nil
}

// watch waits for the receipt and reports the outcome. Runs detached from the
// submitting request's context.
func (w *Writer) watch(intentID string, characterID uint64, method string, tx *types.Transaction) {
	ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(ctx, w.client.eth, tx)
	switch {
	case err != nil:
		err = fmt.Errorf("chain: wait for %s: %w", method, err)
	case receipt.Status != types.ReceiptStatusSuccessful:
		err = fmt.Errorf("chain: %s %w: tx %s reverted", method, domain.ErrWriteRejected, tx.Hash().Hex())
	}

	if err != nil {
		w.logger.Warn("transaction failed",
			slog.String("intent_id", intentID),
			slog.String("method", method),
			slog.Uint64("character_id", characterID),
			slog.String("error", err.Error()))
	} else {
		w.logger.Info("transaction confirmed",
			slog.String("intent_id", intentID),
			slog.String("method", method),
			slog.Uint64("character_id", characterID),
			slog.String("tx_hash", tx.Hash().Hex()))
	}

	if w.onDone != nil {
		w.onDone(intentID, characterID, err)
	}
}
