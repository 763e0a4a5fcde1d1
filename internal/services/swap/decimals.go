package swap

import (
	"context"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/dexterm/internal/domain"
)

const nativeDecimals = 18

// well-known mainnet tokens, keyed by lowercase address
var knownDecimals = map[string]uint8{
	"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": 6,  // USDC
	"0xdac17f958d2ee523a2206206994597c13d831ec7": 6,  // USDT
	"0x2260fac5e5542a773aa44fbcfedf7c193bc2c599": 8,  // WBTC
	"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": 18, // WETH
}

// DecimalsReader reads decimals() from a token contract.
type DecimalsReader interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// DecimalsResolver resolves token decimals from the known table first, then on chain.
// On-chain answers are cached for the life of the process and never evicted.
type DecimalsResolver struct {
	reader DecimalsReader

	mu    sync.RWMutex
	cache map[string]uint8
}

func NewDecimalsResolver(reader DecimalsReader) *DecimalsResolver {
	return &DecimalsResolver{reader: reader, cache: make(map[string]uint8)}
}

// Resolve returns the decimals of token.
func (r *DecimalsResolver) Resolve(ctx context.Context, token string) (uint8, error) {
	if domain.IsNativeToken(token) {
		return nativeDecimals, nil
	}
	if !common.IsHexAddress(token) {
		return 0, errors.Errorf("invalid token address %q", token)
	}

	key := strings.ToLower(token)
	if dec, ok := knownDecimals[key]; ok {
		return dec, nil
	}

	r.mu.RLock()
	dec, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return dec, nil
	}

	if r.reader == nil {
		return 0, errors.Errorf("unknown decimals for %s", token)
	}

	dec, err := r.reader.Decimals(ctx, common.HexToAddress(token))
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read decimals of %s", token)
	}

	r.mu.Lock()
	r.cache[key] = dec
	r.mu.Unlock()

	return dec, nil
}
