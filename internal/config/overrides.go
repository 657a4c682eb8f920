package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"tvlScope/internal/model"
)

// DefaultTokenOverrides patches mainnet tokens whose metadata calls are broken or non-standard.
func DefaultTokenOverrides() map[common.Address]model.TokenOverride {
	return map[common.Address]model.TokenOverride{
		common.HexToAddress("0x9f8F72aA9304c8B593d555F12eF6589cC3A579A2"): {Symbol: strPtr("MKR")},
		common.HexToAddress("0x0Ba45A8b5d5575935B8158a88C631E9F9C95a2e5"): {Symbol: strPtr("TRB"), Decimals: uint8Ptr(18)},
		common.HexToAddress("0x9469D013805bFfB7D3DEBe5E7839237e535ec483"): {Symbol: strPtr("RING")},
		common.HexToAddress("0x9F284E1337A815fe77D2Ff4aE46544645B20c5ff"): {Symbol: strPtr("KTON")},
		common.HexToAddress("0x431ad2ff6a9C365805eBaD47Ee021148d6f7DBe0"): {Symbol: strPtr("DF")},
		common.HexToAddress("0x89d24A6b4CcB1B6fAA2625fE562bDD9a23260359"): {Symbol: strPtr("SAI")},
	}
}

// loadOverrides layers the built-in table, the token-overrides config map and
// the token-override flag entries, later layers winning per field.
func loadOverrides(v *viper.Viper) (map[common.Address]model.TokenOverride, error) {
	out := DefaultTokenOverrides()

	if v.IsSet("token-overrides") {
		var fromFile map[string]model.TokenOverride
		if err := v.UnmarshalKey("token-overrides", &fromFile); err != nil {
			return nil, fmt.Errorf("decode token-overrides: %w", err)
		}
		for key, ov := range fromFile {
			if !common.IsHexAddress(key) {
				return nil, fmt.Errorf("token-overrides: invalid address %q", key)
			}
			merge(out, common.HexToAddress(key), ov)
		}
	}

	for _, entry := range getStringSlice(v, "token-override") {
		addr, ov, err := ParseOverride(entry)
		if err != nil {
			return nil, err
		}
		merge(out, addr, ov)
	}
	return out, nil
}

// ParseOverride parses "address=SYMBOL", "address=SYMBOL:decimals" or "address=:decimals".
func ParseOverride(entry string) (common.Address, model.TokenOverride, error) {
	parts := strings.SplitN(entry, "=", 2)
	if len(parts) != 2 {
		return common.Address{}, model.TokenOverride{}, fmt.Errorf("token override %q: expected address=SYMBOL[:decimals]", entry)
	}
	key := strings.TrimSpace(parts[0])
	if !common.IsHexAddress(key) {
		return common.Address{}, model.TokenOverride{}, fmt.Errorf("token override %q: invalid address", entry)
	}

	var ov model.TokenOverride
	symbol, decimals, hasDecimals := strings.Cut(strings.TrimSpace(parts[1]), ":")
	if symbol = strings.TrimSpace(symbol); symbol != "" {
		ov.Symbol = strPtr(symbol)
	}
	if hasDecimals {
		d, err := strconv.ParseUint(strings.TrimSpace(decimals), 10, 8)
		if err != nil {
			return common.Address{}, model.TokenOverride{}, fmt.Errorf("token override %q: invalid decimals: %w", entry, err)
		}
		ov.Decimals = uint8Ptr(uint8(d))
	}
	if ov.Symbol == nil && ov.Decimals == nil {
		return common.Address{}, model.TokenOverride{}, fmt.Errorf("token override %q: nothing to override", entry)
	}
	return common.HexToAddress(key), ov, nil
}

func merge(dst map[common.Address]model.TokenOverride, addr common.Address, ov model.TokenOverride) {
	cur := dst[addr]
	if ov.Symbol != nil {
		cur.Symbol = ov.Symbol
	}
	if ov.Decimals != nil {
		cur.Decimals = ov.Decimals
	}
	dst[addr] = cur
}

func strPtr(s string) *string { return &s }

func uint8Ptr(v uint8) *uint8 { return &v }
