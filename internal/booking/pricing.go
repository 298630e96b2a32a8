package booking

import (
	"fmt"
	"strconv"
	"strings"
)

// 金额一律使用最小货币单位（分）的 int64 表示，避免浮点误差。

// Quote 计算区间总价：天数 × 日租金（分）。
// 纯函数；dailyRateCents <= 0 时返回 ErrInvalidRate。
// 总价在创建预订时计算一次并冻结，后续任何流转都不会重新计价。
func Quote(r DateRange, dailyRateCents int64) (int64, error) {
	if dailyRateCents <= 0 {
		return 0, ErrInvalidRate
	}
	days := r.Days()
	if days < 1 {
		return 0, ErrInvalidRange
	}
	return int64(days) * dailyRateCents, nil
}

// ParseAmountCents 把十进制金额字符串（如 "500" / "499.95" / "0.005"）
// 解析为分。超出两位小数的部分按四舍五入（round-half-up）处理，
// 且只在这一次解析时发生，之后全程整数运算。
func ParseAmountCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount is empty")
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart = s[:i]
		fracPart = s[i+1:]
	}
	if intPart == "" {
		intPart = "0"
	}

	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	cents := whole * 100
	if fracPart != "" {
		for _, ch := range fracPart {
			if ch < '0' || ch > '9' {
				return 0, fmt.Errorf("invalid amount %q", s)
			}
		}
		// 补齐/截断到 3 位，第 3 位用于半进位判定
		frac := fracPart
		for len(frac) < 3 {
			frac += "0"
		}
		hundredths, _ := strconv.ParseInt(frac[:2], 10, 64)
		if frac[2] >= '5' {
			hundredths++
		}
		cents += hundredths
	}

	if neg {
		cents = -cents
	}
	return cents, nil
}

// FormatAmountCents 把分格式化为十进制金额字符串（两位小数）。
func FormatAmountCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
