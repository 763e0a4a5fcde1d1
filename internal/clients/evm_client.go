package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/dexterm/internal/domain"
	"go.uber.org/zap"
)

const (
	erc20ABI = `[
		{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
		{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
		{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
		{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
	]`

	defaultReceiptPollInterval = 2 * time.Second
)

// EVMClient reads ERC-20 state and signs transactions for one wallet on one chain.
// Without a private key it is read-only and reports the wallet as not connected.
type EVMClient struct {
	logger       *zap.Logger
	client       *ethclient.Client
	chainID      *big.Int
	key          *ecdsa.PrivateKey
	address      common.Address
	erc20        abi.ABI
	pollInterval time.Duration
}

// NewEVMClient dials rpcURL and loads the signing key if one is given.
func NewEVMClient(ctx context.Context, logger *zap.Logger, rpcURL, privateKeyHex string) (*EVMClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse erc20 abi")
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial rpc %s", rpcURL)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to get chain id")
	}

	c := &EVMClient{
		logger:       logger,
		client:       client,
		chainID:      chainID,
		erc20:        parsed,
		pollInterval: defaultReceiptPollInterval,
	}

	if privateKeyHex != "" {
		key, addr, err := ParsePrivateKey(privateKeyHex)
		if err != nil {
			client.Close()
			return nil, err
		}
		c.key, c.address = key, addr
	}

	return c, nil
}

// ParsePrivateKey decodes a hex key (with or without 0x) and derives its address.
func ParsePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, common.Address, error) {
	key := strings.TrimSpace(privateKeyHex)
	if len(key) >= 2 && (key[:2] == "0x" || key[:2] == "0X") {
		key = key[2:]
	}

	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, common.Address{}, errors.Wrap(err, "invalid private key")
	}

	pub, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, common.Address{}, fmt.Errorf("error casting public key to ECDSA")
	}

	return privateKey, crypto.PubkeyToAddress(*pub), nil
}

// Close closes the RPC connection.
func (c *EVMClient) Close() {
	c.client.Close()
}

// ChainID returns the id reported by the node.
func (c *EVMClient) ChainID() int64 {
	return c.chainID.Int64()
}

// Address returns the wallet address and whether a signing key is loaded.
func (c *EVMClient) Address() (common.Address, bool) {
	return c.address, c.key != nil
}

// Decimals calls decimals() on the token contract.
func (c *EVMClient) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := c.call(ctx, token, "decimals")
	if err != nil {
		return 0, err
	}
	dec, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", out[0])
	}
	return dec, nil
}

// BalanceOf returns the owner's balance in base units. The native placeholder address reads the coin balance.
func (c *EVMClient) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if domain.IsNativeToken(token.Hex()) {
		bal, err := c.client.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get native balance")
		}
		return bal, nil
	}
	out, err := c.call(ctx, token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return toBig(out[0])
}

// Allowance returns how much spender may pull from owner.
func (c *EVMClient) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := c.call(ctx, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return toBig(out[0])
}

// Approve submits approve(spender, amount) and returns the tx hash without waiting.
func (c *EVMClient) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := c.erc20.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to pack approve")
	}
	return c.SendTransaction(ctx, token, data, big.NewInt(0), 0)
}

// SendTransaction signs and submits an EIP-1559 transaction. Gas 0 means estimate.
func (c *EVMClient) SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int, gas uint64) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, fmt.Errorf("no signing key loaded")
	}
	if value == nil {
		value = big.NewInt(0)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to get nonce")
	}

	tip, err := c.client.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to suggest gas tip")
	}

	head, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to get latest header")
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	if gas == 0 {
		gas, err = c.client.EstimateGas(ctx, ethereum.CallMsg{From: c.address, To: &to, Value: value, Data: data})
		if err != nil {
			return common.Hash{}, errors.Wrap(err, "failed to estimate gas")
		}
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to sign transaction")
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to send transaction")
	}

	c.logger.Info("Transaction submitted",
		zap.String("hash", signed.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas))

	return signed.Hash(), nil
}

// WaitReceipt polls until the transaction is mined or ctx is done.
func (c *EVMClient) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, errors.Wrapf(err, "failed to get receipt for %s", hash.Hex())
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *EVMClient) call(ctx context.Context, token common.Address, method string, args ...any) ([]any, error) {
	data, err := c.erc20.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s", method)
	}

	raw, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "%s call on %s failed", method, token.Hex())
	}

	out, err := c.erc20.Unpack(method, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack %s", method)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty %s result from %s", method, token.Hex())
	}
	return out, nil
}

func toBig(v any) (*big.Int, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected uint256 type %T", v)
	}
	return b, nil
}
