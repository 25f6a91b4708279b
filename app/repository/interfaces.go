package repository

import (
	"time"

	"github.com/schoolpay/schoolpay/app/models"
)

// OrderRepository defines order lookup and metadata-cache operations.
// Lookup misses are reported via the bool return, not as errors.
type OrderRepository interface {
	Create(order *models.Order) error
	GetByID(id uint) (*models.Order, bool, error)
	GetByCustomOrderID(ref string) (*models.Order, bool, error)
	GetByMetadataValue(key, value string) (*models.Order, bool, error)
	UpdateMetadata(customOrderID, metadataJSON string) error
	List(schoolID string, offset, limit int) ([]models.Order, int64, error)
}

// PaymentRepository defines the single upsert path for reconciled payment
// state. CreateIfAbsent and UpdateIfPending are each one conditional write,
// so two concurrent events for the same order cannot interleave into a
// half-written record.
type PaymentRepository interface {
	GetByCustomOrderID(ref string) (*models.PaymentRecord, bool, error)
	CreateIfAbsent(rec *models.PaymentRecord) (bool, error)
	UpdateIfPending(rec *models.PaymentRecord) (bool, error)
}

// LedgerFilter narrows operator listings of webhook ledger entries.
type LedgerFilter struct {
	Status   string
	OrderRef string
	Gateway  string
}

// LedgerRepository defines the audit ledger's persistence operations. All
// lifecycle transitions go through here and nowhere else.
type LedgerRepository interface {
	Create(entry *models.WebhookLedgerEntry) error
	GetByWebhookID(webhookID string) (*models.WebhookLedgerEntry, bool, error)
	MarkProcessing(webhookID string) error
	MarkProcessed(webhookID, orderRef, responseJSON string, processingMs int64) error
	MarkFailed(webhookID, reason string, retryCount int, nextRetryAt *time.Time) error
	ClaimForRetry(id uint) (bool, error)
	ReclaimStuck(staleBefore time.Time) (int64, error)
	DueForRetry(now time.Time, maxRetries, limit int) ([]models.WebhookLedgerEntry, error)
	List(filter LedgerFilter, offset, limit int) ([]models.WebhookLedgerEntry, int64, error)
}
