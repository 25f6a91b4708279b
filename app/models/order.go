package models

import (
	"encoding/json"
	"time"
)

// Metadata keys the reconciliation engine caches on an order. Gateways return
// our reference under inconsistent names, so the last-seen provider
// identifiers are kept here to give the resolver more lookup candidates.
const (
	MetaCollectRequestID  = "collect_request_id"
	MetaProviderPaymentID = "provider_payment_id"
	MetaOrderIDAlias      = "order_id"
	MetaLastStatus        = "last_status"
	MetaLastWebhookAt     = "last_webhook_at"
	MetaBankReference     = "bank_reference"
)

// Order is one payment intent raised by a school for a student. Intake facts
// are written once at creation; only the metadata cache is rewritten later.
type Order struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CustomOrderID string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"custom_order_id"`
	SchoolID      string    `gorm:"type:varchar(64);not null;index" json:"school_id"`
	StudentName   string    `gorm:"type:varchar(191)" json:"student_name"`
	StudentID     string    `gorm:"type:varchar(64)" json:"student_id"`
	StudentEmail  string    `gorm:"type:varchar(191)" json:"student_email"`
	Gateway       string    `gorm:"type:varchar(50);not null;index" json:"gateway"`
	Amount        float64   `gorm:"not null" json:"amount"`
	MetadataJSON  string    `gorm:"type:longtext" json:"metadata_json"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// Metadata decodes the metadata cache. A missing or corrupt blob yields an
// empty map rather than an error; the cache is advisory.
func (o *Order) Metadata() map[string]string {
	meta := map[string]string{}
	if o.MetadataJSON == "" {
		return meta
	}
	if err := json.Unmarshal([]byte(o.MetadataJSON), &meta); err != nil {
		return map[string]string{}
	}
	return meta
}

// SetMetadata re-encodes the metadata cache onto the model.
func (o *Order) SetMetadata(meta map[string]string) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	o.MetadataJSON = string(raw)
	return nil
}

// MergeMetadata overlays the given keys onto the existing cache, dropping
// empty values from the overlay.
func (o *Order) MergeMetadata(overlay map[string]string) error {
	meta := o.Metadata()
	for k, v := range overlay {
		if v == "" {
			continue
		}
		meta[k] = v
	}
	return o.SetMetadata(meta)
}
