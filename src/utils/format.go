package utils

import (
	"fmt"
	"math"
	"strings"
)

// FormatCurrency renders v as a dollar amount with two decimals and thousands
// separators, e.g. 1234567.891 -> "$1,234,567.89". Negative amounts keep the
// sign in front of the dollar symbol: -12.3 -> "-$12.30".
func FormatCurrency(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	sign := ""
	if v < 0 {
		sign = "-"
	}
	s := fmt.Sprintf("%.2f", math.Abs(v))
	parts := strings.SplitN(s, ".", 2)
	return sign + "$" + groupThousands(parts[0]) + "." + parts[1]
}

// FormatPercent renders v as a percentage with two decimals, e.g. "12.34%".
func FormatPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

func groupThousands(digits string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	var b strings.Builder
	rem := n % 3
	if rem > 0 {
		b.WriteString(digits[:rem])
	}
	for i := rem; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
