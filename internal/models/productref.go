package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ProductRef points at a product either by bare identifier or as an
// expanded product. Equality always goes through ID.
type ProductRef struct {
	id      int64
	product *Product
}

// Ref returns a bare reference to a product id
func Ref(id int64) ProductRef {
	return ProductRef{id: id}
}

// Expand returns a reference carrying the full product
func Expand(p Product) ProductRef {
	return ProductRef{id: p.ID, product: &p}
}

// ID returns the canonical product identifier
func (r ProductRef) ID() int64 {
	return r.id
}

// Product returns the expanded product, or nil for a bare reference
func (r ProductRef) Product() *Product {
	return r.product
}

// IsExpanded reports whether the reference carries the product
func (r ProductRef) IsExpanded() bool {
	return r.product != nil
}

// Reference strips any expansion
func (r ProductRef) Reference() ProductRef {
	return ProductRef{id: r.id}
}

// MarshalJSON writes a number for bare references and the product object otherwise
func (r ProductRef) MarshalJSON() ([]byte, error) {
	if r.product != nil {
		return json.Marshal(r.product)
	}
	return []byte(strconv.FormatInt(r.id, 10)), nil
}

// UnmarshalJSON accepts a number, a numeric string, or a product object
func (r *ProductRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*r = ProductRef{}
		return nil
	case data[0] == '{':
		var p Product
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("invalid product object: %w", err)
		}
		if p.ID == 0 {
			return fmt.Errorf("product object has no id")
		}
		*r = Expand(p)
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid product id %q", s)
		}
		*r = Ref(id)
		return nil
	default:
		var id int64
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("invalid product id: %w", err)
		}
		*r = Ref(id)
		return nil
	}
}
