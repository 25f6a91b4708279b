package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/schoolpay/schoolpay/app/models"
)

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates an order repository backed by GORM.
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(order *models.Order) error {
	return r.db.Create(order).Error
}

func (r *orderRepository) GetByID(id uint) (*models.Order, bool, error) {
	var order models.Order
	err := r.db.First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &order, true, nil
}

func (r *orderRepository) GetByCustomOrderID(ref string) (*models.Order, bool, error) {
	var order models.Order
	err := r.db.Where("custom_order_id = ?", ref).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &order, true, nil
}

// GetByMetadataValue matches a cached provider identifier inside the
// metadata_json blob. MySQL's JSON functions accept longtext holding valid
// JSON, so no dedicated column per provider field is needed.
func (r *orderRepository) GetByMetadataValue(key, value string) (*models.Order, bool, error) {
	var order models.Order
	err := r.db.
		Where("JSON_UNQUOTE(JSON_EXTRACT(metadata_json, ?)) = ?", "$."+key, value).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &order, true, nil
}

func (r *orderRepository) UpdateMetadata(customOrderID, metadataJSON string) error {
	return r.db.Model(&models.Order{}).
		Where("custom_order_id = ?", customOrderID).
		Update("metadata_json", metadataJSON).Error
}

func (r *orderRepository) List(schoolID string, offset, limit int) ([]models.Order, int64, error) {
	query := r.db.Model(&models.Order{})
	if schoolID != "" {
		query = query.Where("school_id = ?", schoolID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&orders).Error
	return orders, total, err
}
