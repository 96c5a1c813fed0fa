package wallet

import (
	"testing"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tron := base58.CheckEncode(make([]byte, 20), tronVersion)
	sol := base58.Encode(make([]byte, 32))

	tests := []struct {
		name     string
		currency domain.Currency
		address  string
		valid    bool
	}{
		{"btc p2pkh", "BTC", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", true},
		{"btc bech32", "BTC", "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", true},
		{"btc garbage", "BTC", "1A1zP1eP5QGefi2DMPTfTL5SLmv7Divf00", false},
		{"eth", "ETH", "0x52908400098527886E0F7030069857D2E4169EE7", true},
		{"eth short", "ETH", "0x5290840009852788", false},
		{"usdt erc20", "USDT", "0x8617E340B3D01FA5F11F306F4090FD50E238070D", true},
		{"usdt trc20", "USDT", tron, true},
		{"usdt junk", "USDT", "not-an-address", false},
		{"sol", "SOL", sol, true},
		{"sol wrong length", "SOL", base58.Encode(make([]byte, 20)), false},
		{"generic", "XRP", "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh", true},
		{"generic with space", "XRP", "rHb9CJAWyB4rj91VRW n96DkukG4bwdtyTh", false},
		{"empty", "ETH", "  ", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.currency, tc.address)
			if tc.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, domain.ErrInvalidWalletAddress)
		})
	}
}
