package clients

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrivateKey(t *testing.T) {
	const want = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"

	tests := []struct {
		name string
		key  string
	}{
		{name: "with prefix", key: "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"},
		{name: "without prefix", key: "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"},
		{name: "surrounding whitespace", key: " 0X4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, addr, err := ParsePrivateKey(tt.key)
			require.NoError(t, err)
			require.NotNil(t, key)
			assert.Equal(t, want, addr.Hex())
		})
	}
}

func TestParsePrivateKey_Invalid(t *testing.T) {
	_, _, err := ParsePrivateKey("0xnothex")
	assert.Error(t, err)
}

func TestToBig(t *testing.T) {
	_, err := toBig("1")
	assert.Error(t, err)
}
