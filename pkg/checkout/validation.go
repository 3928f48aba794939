package checkout

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// LineRequest is one requested cart line before catalog pricing.
type LineRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required"`
}

// LineViolation explains why a requested line was rejected.
type LineViolation struct {
	ProductID uuid.UUID `json:"product_id"`
	Reason    string    `json:"reason"`
	Quantity  int       `json:"quantity,omitempty"`
}

const (
	ReasonNonPositiveQty = "quantity_must_be_positive"
	ReasonQtyTooLarge    = "quantity_exceeds_limit"
	ReasonDuplicate      = "duplicate_product"
	ReasonUnknownProduct = "product_not_found"
	ReasonInactive       = "product_inactive"
	ReasonUnavailable    = "out_of_stock"
	ReasonCurrency       = "currency_mismatch"
)

// ValidateLines checks the shape of the requested cart: non-empty, positive
// quantities below maxQty, one line per product.
func ValidateLines(lines []LineRequest, maxQty int) error {
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	var violations []LineViolation
	seen := make(map[uuid.UUID]struct{}, len(lines))
	for _, line := range lines {
		switch {
		case line.Quantity <= 0:
			violations = append(violations, LineViolation{ProductID: line.ProductID, Reason: ReasonNonPositiveQty, Quantity: line.Quantity})
		case maxQty > 0 && line.Quantity > maxQty:
			violations = append(violations, LineViolation{ProductID: line.ProductID, Reason: ReasonQtyTooLarge, Quantity: line.Quantity})
		}
		if _, dup := seen[line.ProductID]; dup {
			violations = append(violations, LineViolation{ProductID: line.ProductID, Reason: ReasonDuplicate})
		}
		seen[line.ProductID] = struct{}{}
	}
	return ViolationsError(violations)
}

// ViolationsError wraps violations into a VALIDATION_ERROR, or returns nil when there are none.
func ViolationsError(violations []LineViolation) error {
	if len(violations) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%d cart line(s) rejected", len(violations))).
		WithDetails(map[string]any{"violations": violations})
}

// CartHash identifies a cart by its product/quantity pairs regardless of order,
// so resubmitting the same cart reuses the open session.
func CartHash(lines []LineRequest) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts = append(parts, line.ProductID.String()+"x"+strconv.Itoa(line.Quantity))
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])
}
