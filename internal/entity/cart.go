package entity

import "github.com/shopspring/decimal"

// LineKey is the uniqueness key of a cart line.
type LineKey struct {
	ProductID ProductID
	Branch    string
	Variant   string
}

type CartLine struct {
	ProductID   ProductID       `json:"productId"`
	Branch      string          `json:"branch"`
	VariantKey  string          `json:"variantKey"`
	VariantName string          `json:"variant"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"price"`
	Product     Product         `json:"product"`
}

func (l CartLine) Key() LineKey {
	key := l.VariantKey
	if key == "" {
		key = NormalizeVariantName(l.VariantName)
	}
	return LineKey{ProductID: l.ProductID, Branch: l.Branch, Variant: key}
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
