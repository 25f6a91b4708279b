package models

import "time"

// Ledger lifecycle states for one inbound webhook call.
const (
	LedgerStatusPending    = "pending"
	LedgerStatusProcessing = "processing"
	LedgerStatusProcessed  = "processed"
	LedgerStatusFailed     = "failed"
	LedgerStatusRetrying   = "retrying"
)

// WebhookLedgerEntry records a single inbound webhook delivery verbatim,
// together with its processing lifecycle and retry bookkeeping. Rows are
// created once per call; only the lifecycle and response fields are mutated
// afterwards.
type WebhookLedgerEntry struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	WebhookID     string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"webhook_id"`
	Gateway       string     `gorm:"type:varchar(50);not null;index" json:"gateway"`
	PayloadJSON   string     `gorm:"type:longtext;not null" json:"payload_json"`
	HeadersJSON   string     `gorm:"type:longtext" json:"headers_json"`
	SourceIP      string     `gorm:"type:varchar(45)" json:"source_ip"`
	Status        string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	OrderRef      string     `gorm:"type:varchar(64);index" json:"order_ref"`
	RetryCount    int        `gorm:"default:0" json:"retry_count"`
	NextRetryAt   *time.Time `gorm:"index" json:"next_retry_at,omitempty"`
	ProcessingMs  int64      `json:"processing_ms"`
	FailureReason string     `gorm:"type:text" json:"failure_reason"`
	ResponseJSON  string     `gorm:"type:longtext" json:"response_json"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WebhookLedgerEntry) TableName() string {
	return "webhook_ledger_entries"
}

// IsRetryable reports whether a failed entry still has retry budget left.
func (e *WebhookLedgerEntry) IsRetryable(maxRetries int) bool {
	return e.Status == LedgerStatusFailed && e.RetryCount < maxRetries
}
