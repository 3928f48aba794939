package inventory

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Availability is the sellability view of one product's stock.
type Availability struct {
	ProductID    uuid.UUID `json:"product_id"`
	Quantity     int       `json:"quantity"`
	IsAvailable  bool      `json:"is_available"`
	IsLowStock   bool      `json:"is_low_stock"`
	IsOutOfStock bool      `json:"is_out_of_stock"`
	Tracked      bool      `json:"tracked"`
}

// AvailabilityOf derives the flags for a stored record. A nil record yields
// the unavailable placeholder returned for unknown products.
func AvailabilityOf(productID uuid.UUID, record *models.InventoryRecord) Availability {
	if record == nil {
		return Availability{ProductID: productID, IsOutOfStock: true}
	}
	qty := record.Quantity
	tracked := record.TrackInventory
	return Availability{
		ProductID:    productID,
		Quantity:     qty,
		IsAvailable:  !tracked || qty > 0 || record.AllowBackorder,
		IsLowStock:   tracked && qty > 0 && qty <= record.LowStockThreshold,
		IsOutOfStock: tracked && qty == 0 && !record.AllowBackorder,
		Tracked:      tracked,
	}
}

// RecordSettings is the admin-supplied shape of an inventory record.
type RecordSettings struct {
	Quantity          int  `json:"quantity" validate:"gte=0"`
	LowStockThreshold int  `json:"low_stock_threshold" validate:"gte=0"`
	TrackInventory    bool `json:"track_inventory"`
	AllowBackorder    bool `json:"allow_backorder"`
}

// LineItem is one (product, quantity) pair of an order handed to the ledger.
type LineItem struct {
	ProductID uuid.UUID
	Quantity  int
}

type LineStatus string

const (
	LineApplied        LineStatus = "applied"
	LineAlreadyApplied LineStatus = "already_applied"
	LineUntracked      LineStatus = "untracked"
	LineNotTracked     LineStatus = "not_tracked"
	LineNotSynced      LineStatus = "not_synced"
)

type LineResult struct {
	ProductID        uuid.UUID  `json:"product_id"`
	PreviousQuantity int        `json:"previous_quantity"`
	NewQuantity      int        `json:"new_quantity"`
	Delta            int        `json:"delta"`
	Status           LineStatus `json:"status"`
}

// SyncReport describes what a sync or restock pass did to each order line.
type SyncReport struct {
	OrderID       uuid.UUID    `json:"order_id"`
	AlreadySynced bool         `json:"already_synced"`
	SyncedAt      *time.Time   `json:"synced_at,omitempty"`
	Items         []LineResult `json:"items"`
}

// mergeLines folds repeated products into one line, keeping first-seen order.
func mergeLines(items []LineItem) []LineItem {
	index := make(map[uuid.UUID]int, len(items))
	out := make([]LineItem, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		if i, ok := index[item.ProductID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out
}

// crossedLowStock reports whether a decrement from prev to next entered the
// low stock band or emptied the shelf.
func crossedLowStock(record models.InventoryRecord, prev, next int) bool {
	if !record.TrackInventory || next >= prev {
		return false
	}
	if next == 0 {
		return true
	}
	return prev > record.LowStockThreshold && next <= record.LowStockThreshold
}
