// Package catalog is a read-only projection of products and their per-branch
// variant lists.
package catalog

import (
	"fmt"

	"storefront/internal/entity"
)

// Resolve returns the variant at variantIndex in the product's list for branch.
func Resolve(product entity.Product, branch string, variantIndex int) (entity.Variant, error) {
	variants, ok := product.Branches[branch]
	if !ok {
		return entity.Variant{}, fmt.Errorf("%w: product %s has no branch %q", entity.ErrInvalidReference, product.ID, branch)
	}
	if variantIndex < 0 || variantIndex >= len(variants) {
		return entity.Variant{}, fmt.Errorf("%w: variant index %d out of range for product %s at %q", entity.ErrInvalidReference, variantIndex, product.ID, branch)
	}
	return variants[variantIndex], nil
}

// FindVariant returns the index of the variant whose key or normalized name
// matches variant, or -1.
func FindVariant(product entity.Product, branch, variant string) int {
	want := entity.NormalizeVariantName(variant)
	for i, v := range product.Branches[branch] {
		if v.ID != "" && v.ID == variant {
			return i
		}
		if entity.NormalizeVariantName(v.Name) == want {
			return i
		}
	}
	return -1
}

func AvailableVariants(product entity.Product, branch string) []entity.Variant {
	var available []entity.Variant
	for _, v := range product.Branches[branch] {
		if v.Available {
			available = append(available, v)
		}
	}
	return available
}

// Filter keeps products matching any of categories (all when empty) that have
// at least one available variant at branch. The "all" branch matches every product.
func Filter(products []entity.Product, categories []string, branch string) []entity.Product {
	wanted := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		wanted[c] = struct{}{}
	}

	var result []entity.Product
	for _, p := range products {
		if len(wanted) > 0 {
			if _, ok := wanted[p.Category]; !ok {
				continue
			}
		}
		if branch != entity.AllBranches && branch != "" && len(AvailableVariants(p, branch)) == 0 {
			continue
		}
		result = append(result, p)
	}
	return result
}

// OrderBranches puts the selected branch first, followed by the rest in
// directory order.
func OrderBranches(selected string, branches []entity.Branch) []entity.Branch {
	ordered := make([]entity.Branch, 0, len(branches))
	for _, b := range branches {
		if b.ID == selected {
			ordered = append(ordered, b)
		}
	}
	for _, b := range branches {
		if b.ID != selected {
			ordered = append(ordered, b)
		}
	}
	return ordered
}

// Index is a lookup of products by id.
type Index map[entity.ProductID]entity.Product

func NewIndex(products []entity.Product) Index {
	idx := make(Index, len(products))
	for _, p := range products {
		idx[p.ID] = p
	}
	return idx
}

func (idx Index) Names() map[entity.ProductID]string {
	names := make(map[entity.ProductID]string, len(idx))
	for id, p := range idx {
		names[id] = p.Name
	}
	return names
}
