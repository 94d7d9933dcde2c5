package token

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseAmount 把人类可读的十进制金额转为定点整数单位。
// 小数部分右补零到decimals位，超出部分直接截断（不做四舍五入，避免多付）。
// 例如 ParseAmount("5.00", 6) => 5000000
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(amount, "-") {
		negative = true
		amount = amount[1:]
	}

	parts := strings.SplitN(amount, ".", 2)
	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if whole == "" {
		whole = "0"
	}

	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}

	if len(frac) < decimals {
		frac += strings.Repeat("0", decimals-len(frac))
	} else {
		frac = frac[:decimals]
	}

	raw, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	if negative {
		raw.Neg(raw)
	}
	return raw, nil
}

// FormatAmount ParseAmount的逆运算，用于对外展示。
// 去掉小数部分多余的尾零；整数金额不带小数点。
func FormatAmount(raw *big.Int, decimals int) string {
	if raw == nil {
		return "0"
	}
	if decimals <= 0 {
		return raw.String()
	}

	s := new(big.Int).Abs(raw).String()
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}

	whole := s[:len(s)-decimals]
	frac := strings.TrimRight(s[len(s)-decimals:], "0")

	out := whole
	if frac != "" {
		out = whole + "." + frac
	}
	if raw.Sign() < 0 {
		out = "-" + out
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
