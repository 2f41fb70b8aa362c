package reconcile

import (
	"encoding/json"
	"math"
	"math/big"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	currencyCode  = regexp.MustCompile(`(?i)cop`)
	thousandsTail = regexp.MustCompile(`^-?\d{1,3}\.\d{3}$`)
)

// Amount normalises a monetary value of unknown shape into whole pesos.
// It never panics: anything it cannot read is worth zero. The sign of the
// input is kept, callers decide whether a negative amount is meaningful.
func Amount(v any) int64 {
	d, ok := amountDecimal(v)
	if !ok {
		return 0
	}
	return d.Round(0).IntPart()
}

func amountDecimal(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, false
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int8:
		return decimal.NewFromInt(int64(val)), true
	case int16:
		return decimal.NewFromInt(int64(val)), true
	case int32:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case uint:
		return fromUint(uint64(val)), true
	case uint8:
		return decimal.NewFromInt(int64(val)), true
	case uint16:
		return decimal.NewFromInt(int64(val)), true
	case uint32:
		return decimal.NewFromInt(int64(val)), true
	case uint64:
		return fromUint(val), true
	case float32:
		return fromFloat(float64(val))
	case float64:
		return fromFloat(val)
	case json.Number:
		return parseAmountString(val.String())
	case string:
		return parseAmountString(val)
	case map[string]any:
		units, uok := val["units"]
		price, pok := val["price"]
		if !uok || !pok {
			return decimal.Zero, false
		}
		u, uok := amountDecimal(units)
		p, pok := amountDecimal(price)
		if !uok || !pok {
			return decimal.Zero, false
		}
		return u.Mul(p), true
	}
	return decimal.Zero, false
}

func fromUint(u uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(u), 0)
}

func fromFloat(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

// parseAmountString accepts "$ 12.500", "12,500 COP", "€100", "1.250.000" and
// plain decimals. Any currency symbol is dropped. A lone dot followed by exactly three digits is read as the es-CO
// thousands separator.
func parseAmountString(raw string) (decimal.Decimal, bool) {
	s := currencyCode.ReplaceAllString(raw, "")
	s = strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) || unicode.Is(unicode.Sc, r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.Zero, false
	}
	if strings.Count(s, ".") > 1 || thousandsTail.MatchString(s) {
		s = strings.ReplaceAll(s, ".", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
