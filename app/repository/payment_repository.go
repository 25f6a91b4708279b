package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/schoolpay/schoolpay/app/models"
)

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a payment record repository backed by GORM.
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) GetByCustomOrderID(ref string) (*models.PaymentRecord, bool, error) {
	var rec models.PaymentRecord
	err := r.db.Where("custom_order_id = ?", ref).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &rec, true, nil
}

// CreateIfAbsent inserts the record unless one already exists for the order.
// The unique index on custom_order_id plus ON CONFLICT DO NOTHING make this a
// single atomic statement; the bool reports whether the row was created.
func (r *paymentRepository) CreateIfAbsent(rec *models.PaymentRecord) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "custom_order_id"}},
		DoNothing: true,
	}).Create(rec)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// UpdateIfPending overwrites the record only while its stored status is still
// pending. The status predicate rides in the WHERE clause of one UPDATE, so a
// concurrent terminal write can never be clobbered; zero rows affected means
// the transition was rejected.
func (r *paymentRepository) UpdateIfPending(rec *models.PaymentRecord) (bool, error) {
	tx := r.db.Model(&models.PaymentRecord{}).
		Where("custom_order_id = ? AND status = ?", rec.CustomOrderID, models.PaymentStatusPending).
		Updates(map[string]any{
			"status":             rec.Status,
			"order_amount":       rec.OrderAmount,
			"transaction_amount": rec.TransactionAmount,
			"payment_mode":       rec.PaymentMode,
			"payment_details":    rec.PaymentDetails,
			"gateway_ref":        rec.GatewayRef,
			"raw_status":         rec.RawStatus,
			"message":            rec.Message,
			"error_message":      rec.ErrorMessage,
			"payment_time":       rec.PaymentTime,
			"raw_event_json":     rec.RawEventJSON,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
