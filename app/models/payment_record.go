package models

import "time"

// Canonical payment statuses. Success, failed and cancelled are terminal:
// once recorded they are never overwritten, regardless of later events.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusSuccess   = "success"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
)

// PaymentRecord is the single reconciled payment outcome for one order.
// Exactly one row exists per custom_order_id; it is created on the first
// event and upserted in place afterwards.
type PaymentRecord struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	CustomOrderID     string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"custom_order_id"`
	Status            string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	OrderAmount       float64    `json:"order_amount"`
	TransactionAmount float64    `json:"transaction_amount"`
	PaymentMode       string     `gorm:"type:varchar(50)" json:"payment_mode"`
	PaymentDetails    string     `gorm:"type:varchar(191)" json:"payment_details"`
	GatewayRef        string     `gorm:"type:varchar(191);index" json:"gateway_ref"`
	RawStatus         string     `gorm:"type:varchar(50)" json:"raw_status"`
	Message           string     `gorm:"type:varchar(500)" json:"message"`
	ErrorMessage      string     `gorm:"type:varchar(500)" json:"error_message"`
	PaymentTime       *time.Time `json:"payment_time,omitempty"`
	RawEventJSON      string     `gorm:"type:longtext" json:"raw_event_json"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PaymentRecord) TableName() string {
	return "payment_records"
}

// IsTerminal reports whether a canonical status may never be overwritten.
func IsTerminal(status string) bool {
	switch status {
	case PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	default:
		return false
	}
}
