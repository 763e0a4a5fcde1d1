package clients

import (
	"context"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	hyperliquid "github.com/sonirico/go-hyperliquid"
)

const defaultHyperliquidURL = "https://api.hyperliquid.xyz"

// NewHyperliquidInfo returns a client for the public Info API.
// The SDK builds Info through an Exchange, which needs a key; an ephemeral one is
// generated since only unauthenticated market data is read.
func NewHyperliquidInfo(baseURL string) (*hyperliquid.Info, error) {
	if baseURL == "" {
		baseURL = defaultHyperliquidURL
	}

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate key")
	}
	accountAddr := crypto.PubkeyToAddress(privateKey.PublicKey).Hex()

	ex := hyperliquid.NewExchange(
		context.Background(),
		privateKey,
		baseURL,
		nil,
		"",
		accountAddr,
		nil,
	)

	return ex.Info(), nil
}
