// Package pct 提供基于 decimal 的百分比阈值与收益计算，所有百分比均以 "5 表示 5%" 传入。
package pct

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	decOne     = decimal.NewFromInt(1)
	decHundred = decimal.NewFromInt(100)
)

// FromFloat 将 float64 转成 decimal，NaN/Inf 视为 0。
func FromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func ToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// Above 返回 anchor × (1 + p/100)。
func Above(anchor, p decimal.Decimal) decimal.Decimal {
	return anchor.Mul(decOne.Add(p.Div(decHundred)))
}

// Below 返回 anchor × (1 − p/100)。
func Below(anchor, p decimal.Decimal) decimal.Decimal {
	return anchor.Mul(decOne.Sub(p.Div(decHundred)))
}

// Return 计算 (to − from) / from × 100，from 非正时返回 0。
func Return(from, to decimal.Decimal) decimal.Decimal {
	if !from.IsPositive() {
		return decimal.Zero
	}
	return to.Sub(from).Div(from).Mul(decHundred)
}

// Of 返回 base × p/100。
func Of(base, p decimal.Decimal) decimal.Decimal {
	return base.Mul(p).Div(decHundred)
}

// Ratio 返回 part/whole，whole 非正时返回 0。
func Ratio(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole)
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
