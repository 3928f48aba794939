package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// CartLine is the catalog snapshot taken for one product when a checkout session is priced.
type CartLine struct {
	ProductID      uuid.UUID `json:"product_id"`
	SKU            string    `json:"sku"`
	Name           string    `json:"name"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Quantity       int       `json:"quantity"`
}

// TotalCents returns unit price times quantity.
func (l CartLine) TotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

// CartLines is the ordered set of lines persisted as jsonb.
type CartLines []CartLine

// SubtotalCents sums the line totals.
func (c CartLines) SubtotalCents() int64 {
	var total int64
	for _, line := range c {
		total += line.TotalCents()
	}
	return total
}

// Value marshals the lines into JSON.
func (c CartLines) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]CartLine(c))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes the JSON array.
func (c *CartLines) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cart lines: unsupported scan type %T", value)
	}
	var lines []CartLine
	if err := json.Unmarshal(raw, &lines); err != nil {
		return err
	}
	*c = lines
	return nil
}
