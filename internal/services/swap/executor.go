package swap

import (
	"context"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/dexterm/internal/domain"
	"github.com/vadiminshakov/dexterm/internal/events"
	"github.com/vadiminshakov/dexterm/internal/metrics"
	"github.com/vadiminshakov/dexterm/pkg/retrier"
	"go.uber.org/zap"
)

// DefaultSlippageBps tolerated adverse price movement between quote and execution.
const DefaultSlippageBps = 50

// Chain on-chain operations needed to execute a swap.
type Chain interface {
	ChainID() int64
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error)
	SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int, gas uint64) (common.Hash, error)
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Wallet the connected signer.
type Wallet interface {
	Address() (common.Address, bool)
}

// QuoteAPI fetches firm quotes.
type QuoteAPI interface {
	Quote(ctx context.Context, p QuoteParams) (QuoteResponse, error)
}

// TradeSaver persists completed swaps.
type TradeSaver interface {
	SaveTrade(record domain.TradeRecord) (domain.TradeRecord, error)
}

// SnapshotSaver persists balance snapshots.
type SnapshotSaver interface {
	Save(snapshot domain.BalanceSnapshot) error
}

// ExecutorDeps collaborators of an Executor. Trades, Snapshots, Balances, Retrier and Metrics are optional.
type ExecutorDeps struct {
	Logger    *zap.Logger
	Chain     Chain
	Wallet    Wallet
	API       QuoteAPI
	Decimals  *DecimalsResolver
	Trades    TradeSaver
	Snapshots SnapshotSaver
	Balances  *events.BalanceBroadcaster
	Retrier   *retrier.Retrier
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Result outcome of a successful swap.
type Result struct {
	TxHash         string          `json:"tx_hash"`
	ApprovalTxHash string          `json:"approval_tx_hash,omitempty"`
	SellAmount     decimal.Decimal `json:"sell_amount"`
	BuyAmount      decimal.Decimal `json:"buy_amount"`
	SellBalance    *string         `json:"sell_balance,omitempty"`
	BuyBalance     *string         `json:"buy_balance,omitempty"`
	TradeID        string          `json:"trade_id,omitempty"`
}

// Executor runs confirmed swaps one at a time.
type Executor struct {
	logger    *zap.Logger
	chain     Chain
	wallet    Wallet
	api       QuoteAPI
	decimals  *DecimalsResolver
	trades    TradeSaver
	snapshots SnapshotSaver
	balances  *events.BalanceBroadcaster
	retrier   *retrier.Retrier
	metrics   *metrics.Metrics
	now       func() time.Time

	inFlight atomic.Bool
}

func NewExecutor(deps ExecutorDeps) *Executor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	r := deps.Retrier
	if r == nil {
		r = retrier.New()
	}
	return &Executor{
		logger:    logger,
		chain:     deps.Chain,
		wallet:    deps.Wallet,
		api:       deps.API,
		decimals:  deps.Decimals,
		trades:    deps.Trades,
		snapshots: deps.Snapshots,
		balances:  deps.Balances,
		retrier:   r,
		metrics:   deps.Metrics,
		now:       now,
	}
}

// Preflight runs the confirmation checks: amounts, quote expiry, wallet and balance.
func (e *Executor) Preflight(ctx context.Context, intent domain.SwapIntent, quote domain.Quote) error {
	_, _, err := e.preflight(ctx, intent, quote)
	return err
}

// Execute submits the swap for intent under quote. A second call while one is running fails with ErrBusy.
// Nothing is retried: every failure needs a fresh call.
func (e *Executor) Execute(ctx context.Context, intent domain.SwapIntent, quote domain.Quote) (Result, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer e.inFlight.Store(false)

	res, err := e.execute(ctx, intent, quote)
	e.metrics.SwapFinished(outcome(err))
	if err != nil {
		e.logger.Error("Swap failed",
			zap.String("sell_token", intent.SellToken),
			zap.String("buy_token", intent.BuyToken),
			zap.String("sell_amount", intent.SellAmount.String()),
			zap.Error(err))
		return Result{}, err
	}
	return res, nil
}

func (e *Executor) execute(ctx context.Context, intent domain.SwapIntent, quote domain.Quote) (Result, error) {
	owner, sellDecimals, err := e.preflight(ctx, intent, quote)
	if err != nil {
		return Result{}, err
	}
	buyDecimals, err := e.decimals.Resolve(ctx, intent.BuyToken)
	if err != nil {
		return Result{}, err
	}

	sellAmount := ToBaseUnits(intent.SellAmount, sellDecimals)
	slippage := intent.SlippageBps
	if slippage <= 0 {
		slippage = DefaultSlippageBps
	}

	firm, err := e.api.Quote(ctx, QuoteParams{
		PriceParams: PriceParams{
			ChainID:    e.chain.ChainID(),
			SellToken:  intent.SellToken,
			BuyToken:   intent.BuyToken,
			SellAmount: sellAmount,
		},
		Taker:       owner.Hex(),
		SlippageBps: slippage,
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "failed to get firm quote")
	}

	to, data, value, gas, err := decodeTx(firm.Tx())
	if err != nil {
		return Result{}, err
	}

	approvalHash, err := e.ensureAllowance(ctx, intent.SellToken, owner, sellAmount, firm.AllowanceSpender())
	if err != nil {
		return Result{}, err
	}

	// the approval may have taken a while, balances can move meanwhile
	if err := e.checkBalance(ctx, intent.SellToken, owner, sellAmount); err != nil {
		return Result{}, err
	}

	hash, err := e.chain.SendTransaction(ctx, to, data, value, gas)
	if err != nil {
		return Result{}, classifyProviderError(err, "failed to submit swap")
	}

	e.logger.Info("Swap submitted, waiting for receipt", zap.String("hash", hash.Hex()))

	receipt, err := e.chain.WaitReceipt(ctx, hash)
	if err != nil {
		return Result{}, errors.Wrapf(err, "failed to wait for swap %s", hash.Hex())
	}
	if receipt == nil || receipt.Status != types.ReceiptStatusSuccessful {
		return Result{}, &RevertedError{TxHash: hash.Hex()}
	}

	buyAmount := quote.ReceiveAmount
	if firm.BuyAmount != "" {
		if v, perr := ParseBaseUnits(firm.BuyAmount); perr == nil {
			buyAmount = FromBaseUnits(v, buyDecimals)
		}
	}

	res := Result{
		TxHash:     hash.Hex(),
		SellAmount: intent.SellAmount,
		BuyAmount:  buyAmount,
	}
	if approvalHash != (common.Hash{}) {
		res.ApprovalTxHash = approvalHash.Hex()
	}

	e.logger.Info("Swap confirmed",
		zap.String("hash", res.TxHash),
		zap.String("sell_amount", res.SellAmount.String()),
		zap.String("buy_amount", res.BuyAmount.String()))

	e.afterSuccess(ctx, owner, intent, sellDecimals, buyDecimals, &res)
	return res, nil
}

func (e *Executor) preflight(ctx context.Context, intent domain.SwapIntent, quote domain.Quote) (common.Address, uint8, error) {
	if !intent.SellAmount.IsPositive() || !quote.PayAmount.IsPositive() || !quote.ReceiveAmount.IsPositive() {
		return common.Address{}, 0, ErrInvalidAmount
	}
	if !quote.Valid(e.now()) {
		return common.Address{}, 0, ErrQuoteExpired
	}

	var owner common.Address
	connected := false
	if e.wallet != nil {
		owner, connected = e.wallet.Address()
	}
	if !connected {
		return common.Address{}, 0, ErrWalletNotConnected
	}
	if intent.Taker != "" && !strings.EqualFold(intent.Taker, owner.Hex()) {
		return common.Address{}, 0, errors.Errorf("taker %s is not the connected wallet", intent.Taker)
	}

	sellDecimals, err := e.decimals.Resolve(ctx, intent.SellToken)
	if err != nil {
		return common.Address{}, 0, err
	}
	if err := e.checkBalance(ctx, intent.SellToken, owner, ToBaseUnits(intent.SellAmount, sellDecimals)); err != nil {
		return common.Address{}, 0, err
	}

	return owner, sellDecimals, nil
}

func (e *Executor) checkBalance(ctx context.Context, token string, owner common.Address, spend *big.Int) error {
	balance, err := e.chain.BalanceOf(ctx, common.HexToAddress(token), owner)
	if err != nil {
		return errors.Wrap(err, "failed to read balance")
	}
	if balance.Cmp(spend) < 0 {
		return errors.Wrapf(ErrInsufficientFunds, "balance %s < spend %s", balance, spend)
	}
	return nil
}

// ensureAllowance approves spender for an unlimited amount when the current allowance
// does not cover the spend. Approvals are never revoked.
func (e *Executor) ensureAllowance(ctx context.Context, token string, owner common.Address, spend *big.Int, spender string) (common.Hash, error) {
	if spender == "" || domain.IsNativeToken(token) {
		return common.Hash{}, nil
	}
	if !common.IsHexAddress(spender) {
		return common.Hash{}, errors.Errorf("invalid allowance spender %q", spender)
	}

	tokenAddr := common.HexToAddress(token)
	spenderAddr := common.HexToAddress(spender)

	current, err := e.chain.Allowance(ctx, tokenAddr, owner, spenderAddr)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to read allowance")
	}
	if current.Cmp(spend) >= 0 {
		e.logger.Debug("Allowance already sufficient", zap.String("spender", spenderAddr.Hex()))
		return common.Hash{}, nil
	}

	hash, err := e.chain.Approve(ctx, tokenAddr, spenderAddr, new(big.Int).Set(math.MaxBig256))
	if err != nil {
		return common.Hash{}, classifyProviderError(err, "failed to submit approval")
	}
	e.metrics.ApprovalSubmitted()
	e.logger.Info("Approval submitted, waiting for receipt",
		zap.String("hash", hash.Hex()),
		zap.String("spender", spenderAddr.Hex()))

	receipt, err := e.chain.WaitReceipt(ctx, hash)
	if err != nil {
		return common.Hash{}, errors.Wrapf(err, "failed to wait for approval %s", hash.Hex())
	}
	if receipt == nil || receipt.Status != types.ReceiptStatusSuccessful {
		return common.Hash{}, &RevertedError{TxHash: hash.Hex(), Approval: true}
	}

	return hash, nil
}

// afterSuccess refreshes balances and records the trade. Failures here are logged only.
func (e *Executor) afterSuccess(ctx context.Context, owner common.Address, intent domain.SwapIntent, sellDecimals, buyDecimals uint8, res *Result) {
	ts := e.now().UTC()

	for _, side := range []struct {
		token    string
		decimals uint8
		out      **string
	}{
		{intent.SellToken, sellDecimals, &res.SellBalance},
		{intent.BuyToken, buyDecimals, &res.BuyBalance},
	} {
		raw, err := e.chain.BalanceOf(ctx, common.HexToAddress(side.token), owner)
		if err != nil {
			e.logger.Warn("Balance refresh failed", zap.String("token", side.token), zap.Error(err))
			continue
		}
		amount := FromBaseUnits(raw, side.decimals).String()
		*side.out = &amount

		snapshot := domain.BalanceSnapshot{Timestamp: ts, Wallet: owner.Hex(), Token: side.token, Amount: amount}
		if e.snapshots != nil {
			if err := e.snapshots.Save(snapshot); err != nil {
				e.logger.Warn("Failed to persist balance snapshot", zap.String("token", side.token), zap.Error(err))
			}
		}
		if e.balances != nil {
			e.balances.Publish(snapshot)
		}
	}

	if e.trades == nil {
		return
	}

	record := domain.TradeRecord{
		Timestamp:      ts,
		ChainID:        e.chain.ChainID(),
		Wallet:         owner.Hex(),
		SellToken:      intent.SellToken,
		BuyToken:       intent.BuyToken,
		SellAmount:     res.SellAmount.String(),
		BuyAmount:      res.BuyAmount.String(),
		TxHash:         res.TxHash,
		ApprovalTxHash: res.ApprovalTxHash,
	}
	saved, err := retrier.DoWithData(e.retrier, ctx, func(ctx context.Context) (domain.TradeRecord, error) {
		return e.trades.SaveTrade(record)
	})
	if err != nil {
		e.metrics.TradePersistFailed()
		e.logger.Error("Failed to persist trade record", zap.String("hash", res.TxHash), zap.Error(err))
		return
	}
	res.TradeID = saved.ID
}

func decodeTx(tx Transaction) (common.Address, []byte, *big.Int, uint64, error) {
	if !common.IsHexAddress(tx.To) {
		return common.Address{}, nil, nil, 0, errors.Errorf("firm quote has invalid target %q", tx.To)
	}
	data, err := hexutil.Decode(tx.Data)
	if err != nil {
		return common.Address{}, nil, nil, 0, errors.Wrap(err, "firm quote has invalid call data")
	}

	value := big.NewInt(0)
	if tx.Value != "" {
		if value, err = ParseBaseUnits(tx.Value); err != nil {
			return common.Address{}, nil, nil, 0, errors.Wrap(err, "firm quote has invalid value")
		}
	}

	var gas uint64
	if tx.Gas != "" {
		g, err := ParseBaseUnits(tx.Gas)
		if err != nil || !g.IsUint64() {
			return common.Address{}, nil, nil, 0, errors.Errorf("firm quote has invalid gas %q", tx.Gas)
		}
		gas = g.Uint64()
	}

	return common.HexToAddress(tx.To), data, value, gas, nil
}
