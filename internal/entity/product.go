package entity

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// ProductID identifies a catalog product. The catalog emits it either as a
// plain string or as a {"$oid": "..."} object.
type ProductID string

func (id *ProductID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ProductID(s)
		return nil
	}

	var oid struct {
		OID string `json:"$oid"`
	}
	if err := json.Unmarshal(data, &oid); err != nil {
		return err
	}
	*id = ProductID(oid.OID)
	return nil
}

type Product struct {
	ID       ProductID            `json:"_id"`
	Name     string               `json:"name"`
	Price    decimal.Decimal      `json:"price"`
	Category string               `json:"category"`
	Branches map[string][]Variant `json:"branches"`
}

// Variant is a purchasable option of a product at one branch.
type Variant struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// Key is the identity of the variant within its branch: the stable id when the
// catalog provides one, the normalized name otherwise.
func (v Variant) Key() string {
	if v.ID != "" {
		return v.ID
	}
	return NormalizeVariantName(v.Name)
}

func NormalizeVariantName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

/*
Catalog document shape:

{
  "_id": {"$oid": "66f1..."},
  "name": "Mint Pod",
  "price": 10,
  "category": "Pods",
  "branches": {
    "main":   [{"name": "Mint", "available": true}],
    "second": [{"name": "Mint", "available": false}]
  }
}
*/
