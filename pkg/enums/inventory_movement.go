package enums

// InventoryMovementKind labels a row in the inventory movement ledger.
type InventoryMovementKind string

const (
	MovementSale       InventoryMovementKind = "sale"
	MovementRestock    InventoryMovementKind = "restock"
	MovementAdjustment InventoryMovementKind = "adjustment"
)

var validInventoryMovementKinds = []InventoryMovementKind{
	MovementSale,
	MovementRestock,
	MovementAdjustment,
}

func (k InventoryMovementKind) IsValid() bool {
	for _, candidate := range validInventoryMovementKinds {
		if candidate == k {
			return true
		}
	}
	return false
}
