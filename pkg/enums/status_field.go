package enums

// StatusField names the order axis a history entry refers to.
type StatusField string

const (
	StatusFieldStatus        StatusField = "status"
	StatusFieldPaymentStatus StatusField = "payment_status"
)
