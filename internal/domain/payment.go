package domain

import "time"

// Payment is the append-only record of a confirmed payment. order_id and
// payment_intent_id are each unique across all rows.
type Payment struct {
	ID                   string
	UserID               string
	TicketID             string
	PaymentIntentID      string
	OrderID              string
	ConfirmationImageRef string
	Confirmed            bool
	CreatedAt            time.Time
}
