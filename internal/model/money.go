package model

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// RestockingFee 按百分比计算手续费，四舍五入到最小货币单位
func RestockingFee(amount int64, percentage decimal.Decimal) int64 {
	if amount <= 0 || !percentage.IsPositive() {
		return 0
	}
	fee := decimal.NewFromInt(amount).Mul(percentage).Div(hundred).Round(0).IntPart()
	if fee > amount {
		return amount
	}
	return fee
}

// RefundAmount 实退金额，不小于零
func RefundAmount(approved, restockingFee int64) int64 {
	if approved <= restockingFee {
		return 0
	}
	return approved - restockingFee
}

// OrderTotals 计算订单总额，折扣封顶使总额不为负
func OrderTotals(subtotal, shippingCost, discount int64) (cappedDiscount, total int64) {
	gross := subtotal + shippingCost
	if discount > gross {
		discount = gross
	}
	return discount, gross - discount
}
