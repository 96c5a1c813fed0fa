// Package wallet validates external payout addresses per chain.
package wallet

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
)

const tronVersion = 0x41

var evmCurrencies = map[domain.Currency]struct{}{
	"ETH":   {},
	"BNB":   {},
	"USDC":  {},
	"MATIC": {},
	"AVAX":  {},
}

// Validate checks that address is well formed for the chain carrying currency.
// Currencies without a dedicated rule only get a shape check.
func Validate(currency domain.Currency, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("empty address: %w", domain.ErrInvalidWalletAddress)
	}

	var ok bool
	switch {
	case currency == "BTC":
		ok = isBitcoinAddress(address)
	case currency == "USDT":
		// USDT circulates as ERC-20 and TRC-20.
		ok = common.IsHexAddress(address) || isTronAddress(address)
	case currency == "SOL":
		ok = len(base58.Decode(address)) == 32
	case isEVM(currency):
		ok = common.IsHexAddress(address)
	default:
		ok = isPlausible(address)
	}
	if !ok {
		return fmt.Errorf("%s address %q: %w", currency, address, domain.ErrInvalidWalletAddress)
	}
	return nil
}

func isEVM(c domain.Currency) bool {
	_, ok := evmCurrencies[c]
	return ok
}

func isBitcoinAddress(address string) bool {
	for _, params := range []*chaincfg.Params{&chaincfg.MainNetParams, &chaincfg.TestNet3Params} {
		decoded, err := btcutil.DecodeAddress(address, params)
		if err == nil && decoded.IsForNet(params) {
			return true
		}
	}
	return false
}

func isTronAddress(address string) bool {
	payload, version, err := base58.CheckDecode(address)
	return err == nil && version == tronVersion && len(payload) == 20
}

func isPlausible(address string) bool {
	if len(address) < 20 || len(address) > 128 {
		return false
	}
	for _, r := range address {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
