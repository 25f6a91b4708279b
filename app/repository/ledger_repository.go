package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/schoolpay/schoolpay/app/models"
)

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a webhook ledger repository backed by GORM.
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Create(entry *models.WebhookLedgerEntry) error {
	return r.db.Create(entry).Error
}

func (r *ledgerRepository) GetByWebhookID(webhookID string) (*models.WebhookLedgerEntry, bool, error) {
	var entry models.WebhookLedgerEntry
	err := r.db.Where("webhook_id = ?", webhookID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &entry, true, nil
}

func (r *ledgerRepository) MarkProcessing(webhookID string) error {
	return r.db.Model(&models.WebhookLedgerEntry{}).
		Where("webhook_id = ?", webhookID).
		Update("status", models.LedgerStatusProcessing).Error
}

func (r *ledgerRepository) MarkProcessed(webhookID, orderRef, responseJSON string, processingMs int64) error {
	return r.db.Model(&models.WebhookLedgerEntry{}).
		Where("webhook_id = ?", webhookID).
		Updates(map[string]any{
			"status":         models.LedgerStatusProcessed,
			"order_ref":      orderRef,
			"response_json":  responseJSON,
			"processing_ms":  processingMs,
			"next_retry_at":  nil,
			"failure_reason": "",
		}).Error
}

func (r *ledgerRepository) MarkFailed(webhookID, reason string, retryCount int, nextRetryAt *time.Time) error {
	return r.db.Model(&models.WebhookLedgerEntry{}).
		Where("webhook_id = ?", webhookID).
		Updates(map[string]any{
			"status":         models.LedgerStatusFailed,
			"failure_reason": reason,
			"retry_count":    retryCount,
			"next_retry_at":  nextRetryAt,
		}).Error
}

// ClaimForRetry flips a failed entry to retrying in one conditional UPDATE.
// Two overlapping sweeps can both see the same due row, but only one claim
// succeeds; the loser's RowsAffected is zero.
func (r *ledgerRepository) ClaimForRetry(id uint) (bool, error) {
	tx := r.db.Model(&models.WebhookLedgerEntry{}).
		Where("id = ? AND status = ?", id, models.LedgerStatusFailed).
		Update("status", models.LedgerStatusRetrying)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// ReclaimStuck flips retrying entries whose last update is older than the
// cutoff back to failed. A worker that crashed mid-replay leaves its claimed
// row in retrying forever; the reclaim returns it to the retry pool.
func (r *ledgerRepository) ReclaimStuck(staleBefore time.Time) (int64, error) {
	tx := r.db.Model(&models.WebhookLedgerEntry{}).
		Where("status = ? AND updated_at < ?", models.LedgerStatusRetrying, staleBefore).
		Update("status", models.LedgerStatusFailed)
	return tx.RowsAffected, tx.Error
}

func (r *ledgerRepository) DueForRetry(now time.Time, maxRetries, limit int) ([]models.WebhookLedgerEntry, error) {
	var entries []models.WebhookLedgerEntry
	err := r.db.
		Where("status = ? AND retry_count < ? AND (next_retry_at IS NULL OR next_retry_at <= ?)",
			models.LedgerStatusFailed, maxRetries, now).
		Order("next_retry_at asc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *ledgerRepository) List(filter LedgerFilter, offset, limit int) ([]models.WebhookLedgerEntry, int64, error) {
	query := r.db.Model(&models.WebhookLedgerEntry{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.OrderRef != "" {
		query = query.Where("order_ref = ?", filter.OrderRef)
	}
	if filter.Gateway != "" {
		query = query.Where("gateway = ?", filter.Gateway)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.WebhookLedgerEntry
	err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&entries).Error
	return entries, total, err
}
