// Package pricing derives totals and branch/product/variant groupings from a
// cart snapshot or a placed order. Amounts keep full precision; use Money to
// render them.
package pricing

import (
	"github.com/shopspring/decimal"

	"storefront/internal/entity"
)

type Totals struct {
	Quantity int
	Price    decimal.Decimal
}

func Sum(lines []entity.CartLine) Totals {
	totals := Totals{Price: decimal.Zero}
	for _, l := range lines {
		totals.Quantity += l.Quantity
		totals.Price = totals.Price.Add(l.Subtotal())
	}
	return totals
}

// Money renders an amount rounded to two places.
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type VariantGroup struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

type ProductGroup struct {
	ProductID entity.ProductID
	Name      string
	Variants  []VariantGroup
	Quantity  int
	Subtotal  decimal.Decimal
}

type BranchGroup struct {
	Branch   string
	Products []ProductGroup
	Quantity int
	Subtotal decimal.Decimal
}

type entry struct {
	productID   entity.ProductID
	productName string
	branch      string
	variantKey  string
	variantName string
	quantity    int
	unitPrice   decimal.Decimal
}

// Group nests lines by branch, product and variant, in first-seen order.
func Group(lines []entity.CartLine) []BranchGroup {
	entries := make([]entry, len(lines))
	for i, l := range lines {
		entries[i] = entry{
			productID:   l.ProductID,
			productName: l.Product.Name,
			branch:      l.Branch,
			variantKey:  l.Key().Variant,
			variantName: l.VariantName,
			quantity:    l.Quantity,
			unitPrice:   l.UnitPrice,
		}
	}
	return group(entries)
}

// GroupItems groups placed-order items. names supplies product display names;
// missing names fall back to "Unknown Product".
func GroupItems(items []entity.OrderItem, names map[entity.ProductID]string) []BranchGroup {
	entries := make([]entry, len(items))
	for i, it := range items {
		name, ok := names[it.ProductID]
		if !ok {
			name = "Unknown Product"
		}
		entries[i] = entry{
			productID:   it.ProductID,
			productName: name,
			branch:      it.Branch,
			variantKey:  entity.NormalizeVariantName(it.Variant),
			variantName: it.Variant,
			quantity:    it.Quantity,
			unitPrice:   it.Price,
		}
	}
	return group(entries)
}

func group(entries []entry) []BranchGroup {
	var branches []BranchGroup
	branchIdx := map[string]int{}
	productIdx := map[string]map[entity.ProductID]int{}
	variantIdx := map[string]map[entity.ProductID]map[string]int{}

	for _, e := range entries {
		bi, ok := branchIdx[e.branch]
		if !ok {
			bi = len(branches)
			branchIdx[e.branch] = bi
			branches = append(branches, BranchGroup{Branch: e.branch, Subtotal: decimal.Zero})
			productIdx[e.branch] = map[entity.ProductID]int{}
			variantIdx[e.branch] = map[entity.ProductID]map[string]int{}
		}
		b := &branches[bi]

		pi, ok := productIdx[e.branch][e.productID]
		if !ok {
			pi = len(b.Products)
			productIdx[e.branch][e.productID] = pi
			b.Products = append(b.Products, ProductGroup{ProductID: e.productID, Name: e.productName, Subtotal: decimal.Zero})
			variantIdx[e.branch][e.productID] = map[string]int{}
		}
		p := &b.Products[pi]

		subtotal := e.unitPrice.Mul(decimal.NewFromInt(int64(e.quantity)))
		vi, ok := variantIdx[e.branch][e.productID][e.variantKey]
		if !ok {
			variantIdx[e.branch][e.productID][e.variantKey] = len(p.Variants)
			p.Variants = append(p.Variants, VariantGroup{
				Name:      e.variantName,
				Quantity:  e.quantity,
				UnitPrice: e.unitPrice,
				Subtotal:  subtotal,
			})
		} else {
			v := &p.Variants[vi]
			v.Quantity += e.quantity
			v.Subtotal = v.Subtotal.Add(subtotal)
		}

		p.Quantity += e.quantity
		p.Subtotal = p.Subtotal.Add(subtotal)
		b.Quantity += e.quantity
		b.Subtotal = b.Subtotal.Add(subtotal)
	}
	return branches
}

// PickupBranch is the branch of the first line. consistent is false when any
// other line belongs to a different branch.
func PickupBranch(lines []entity.CartLine) (branch string, consistent bool) {
	if len(lines) == 0 {
		return "", true
	}
	branch = lines[0].Branch
	for _, l := range lines[1:] {
		if l.Branch != branch {
			return branch, false
		}
	}
	return branch, true
}

type Summary struct {
	Totals
	Branches     []BranchGroup
	PickupBranch string
	SingleBranch bool
}

func Summarize(lines []entity.CartLine) Summary {
	branch, consistent := PickupBranch(lines)
	return Summary{
		Totals:       Sum(lines),
		Branches:     Group(lines),
		PickupBranch: branch,
		SingleBranch: consistent,
	}
}
