package reconcile

import (
	"errors"
	"time"
)

// ErrUnknownShape is returned when a webhook payload matches none of the
// known gateway layouts. The event fails closed; the process does not.
var ErrUnknownShape = errors.New("unrecognized webhook payload shape")

// PaymentEvent is the gateway-agnostic form of one webhook notification.
// It lives only for the duration of a single reconciliation pass.
type PaymentEvent struct {
	ExternalRef       string
	RawStatus         string
	CaptureStatus     string
	OrderAmount       float64
	TransactionAmount float64
	PaymentMode       string
	PaymentDetails    string
	GatewayRef        string
	BankReference     string
	Message           string
	ErrorMessage      string
	PaymentTime       *time.Time
	Gateway           string
	RawJSON           string
}

// Outcome classifies how a reconciliation pass ended. None of these are
// errors; callers branch on the outcome, not on err.
type Outcome string

const (
	// OutcomeApplied means the payment record was created or advanced.
	OutcomeApplied Outcome = "applied"
	// OutcomeSkipped means the stored status is terminal and the event was
	// dropped as a stale or duplicate delivery.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeOrderNotFound means no order matched the event's reference,
	// which is expected when a webhook races ahead of order persistence.
	OutcomeOrderNotFound Outcome = "order_not_found"
)

// Result is the observable output of one reconciliation pass.
type Result struct {
	Outcome           Outcome `json:"outcome"`
	OrderID           uint    `json:"order_id,omitempty"`
	CustomOrderID     string  `json:"custom_order_id,omitempty"`
	ExternalRef       string  `json:"external_ref"`
	Status            string  `json:"status,omitempty"`
	PreviousStatus    string  `json:"previous_status,omitempty"`
	OrderAmount       float64 `json:"order_amount,omitempty"`
	TransactionAmount float64 `json:"transaction_amount,omitempty"`
}
