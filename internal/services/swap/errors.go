package swap

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/dexterm/internal/metrics"
)

var (
	// ErrQuoteExpired the quote passed its expiry and must be re-fetched.
	ErrQuoteExpired = errors.New("quote expired")
	// ErrNoQuote there is no quote for the current input.
	ErrNoQuote = errors.New("no quote available")
	// ErrInsufficientFunds the wallet balance is below the requested spend.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidAmount the amount is empty, malformed or not positive.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrWalletNotConnected no signing wallet is available.
	ErrWalletNotConnected = errors.New("wallet not connected")
	// ErrUserRejected the signer declined the request.
	ErrUserRejected = errors.New("user rejected the request")
	// ErrSwapReverted the transaction was mined but did not succeed.
	ErrSwapReverted = errors.New("transaction reverted")
	// ErrBusy another execution is in flight.
	ErrBusy = errors.New("swap already in progress")
	// ErrEmptyQuote the swap API answered without a buy amount.
	ErrEmptyQuote = errors.New("swap api returned no buy amount")
)

// userRejectedCode EIP-1193 error code for a request the user declined.
const userRejectedCode = 4001

// RevertedError reports a mined transaction whose receipt status is not successful.
type RevertedError struct {
	TxHash   string
	Approval bool
}

func (e *RevertedError) Error() string {
	if e.Approval {
		return fmt.Sprintf("approval %s: %s", e.TxHash, ErrSwapReverted)
	}
	return fmt.Sprintf("swap %s: %s", e.TxHash, ErrSwapReverted)
}

func (e *RevertedError) Unwrap() error {
	return ErrSwapReverted
}

// classifyProviderError maps signer errors onto the sentinel set.
func classifyProviderError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedCode {
		return errors.Wrap(ErrUserRejected, rpcErr.Error())
	}
	return errors.Wrap(err, msg)
}

// outcome metric label for an execution result.
func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrSwapReverted):
		return metrics.OutcomeReverted
	case errors.Is(err, ErrUserRejected):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
