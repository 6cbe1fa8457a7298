package internal

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// nonNumericRe matches everything except digits, the decimal point and minus.
	nonNumericRe = regexp.MustCompile(`[^0-9.\-]+`)
	// leadingFloatRe matches the longest parseable float prefix.
	leadingFloatRe = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)`)
	// plainFloatRe matches a decimal number, optionally in exponent form as
	// Excel stores very small and very large values.
	plainFloatRe = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)
)

// ParseNumber coerces a cell value to a float. Plain numeric strings,
// including exponent form such as "1.5E+20", parse as they are. Other strings
// are stripped to digits, '.' and '-', then the leading number is parsed, so
// "$1,200.50" becomes 1200.5. Anything unparseable is 0.
func ParseNumber(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return finiteOrZero(n)
	case float32:
		return finiteOrZero(float64(n))
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case uint:
		return float64(n)
	case uint64:
		return float64(n)
	case uint32:
		return float64(n)
	case bool:
		return 0
	case string:
		return parseNumericString(n)
	default:
		return parseNumericString(fmt.Sprint(n))
	}
}

// ToNumber reports v as a float only when it is already numeric or a plain
// numeric string. Unlike ParseNumber it does not strip formatting.
func ToNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func parseNumericString(s string) float64 {
	if t := strings.TrimSpace(s); plainFloatRe.MatchString(t) {
		// Out-of-range values come back as ±Inf or 0 and end up 0.
		f, _ := strconv.ParseFloat(t, 64)
		return finiteOrZero(f)
	}
	cleaned := nonNumericRe.ReplaceAllString(s, "")
	m := leadingFloatRe.FindString(cleaned)
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return finiteOrZero(f)
}

func finiteOrZero(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return 0
	}
	return f
}
