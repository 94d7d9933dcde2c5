package token

import (
	"fmt"
	"sort"
	"strings"
)

// TokenInfo Arbitrum One上的静态代币信息
type TokenInfo struct {
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}

var registry = map[string]TokenInfo{
	"USDC": {
		Address:  "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		Decimals: 6,
		Symbol:   "USDC",
		Name:     "USD Coin",
	},
	"USDT": {
		Address:  "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9",
		Decimals: 6,
		Symbol:   "USDT",
		Name:     "Tether USD",
	},
	"DAI": {
		Address:  "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1",
		Decimals: 18,
		Symbol:   "DAI",
		Name:     "Dai Stablecoin",
	},
	"WETH": {
		Address:  "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
		Decimals: 18,
		Symbol:   "WETH",
		Name:     "Wrapped Ether",
	},
	"ARB": {
		Address:  "0x912CE59144191C1204E64559FE8253a0e49E6548",
		Decimals: 18,
		Symbol:   "ARB",
		Name:     "Arbitrum",
	},
}

type UnknownTokenError struct {
	Input   string
	Symbols []string
}

func (e *UnknownTokenError) Error() string {
	return fmt.Sprintf("unknown token %q, accepted symbols: %s", e.Input, strings.Join(e.Symbols, ", "))
}

// Resolve 按符号（不区分大小写）优先查找，其次按地址查找
func Resolve(tokenOrAddress string) (TokenInfo, error) {
	upper := strings.ToUpper(tokenOrAddress)
	if info, ok := registry[upper]; ok {
		return info, nil
	}

	lower := strings.ToLower(tokenOrAddress)
	for _, info := range registry {
		if strings.ToLower(info.Address) == lower {
			return info, nil
		}
	}

	return TokenInfo{}, &UnknownTokenError{Input: tokenOrAddress, Symbols: Symbols()}
}

// Symbols 返回已收录的代币符号，按字母序
func Symbols() []string {
	symbols := make([]string, 0, len(registry))
	for s := range registry {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// All 返回全部已收录代币，按符号排序
func All() []TokenInfo {
	tokens := make([]TokenInfo, 0, len(registry))
	for _, s := range Symbols() {
		tokens = append(tokens, registry[s])
	}
	return tokens
}
