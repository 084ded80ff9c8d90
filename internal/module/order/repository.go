package order

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Repository defines the interface for order data access.
type Repository interface {
	// Order operations
	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, reference string) (*Order, error)
	OrderExists(ctx context.Context, reference string) (bool, error)
	UpdateOrder(ctx context.Context, order *Order) error

	// Cart operations
	CreateCart(ctx context.Context, cart *Cart) error
	CartExists(ctx context.Context, id string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new order repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// --- Order Operations ---

func (r *repository) CreateOrder(ctx context.Context, order *Order) error {
	err := r.db.WithContext(ctx).Create(order).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrOrderExists
	}
	return err
}

func (r *repository) GetOrder(ctx context.Context, reference string) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).First(&order, "reference = ?", reference).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) OrderExists(ctx context.Context, reference string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Order{}).Where("reference = ?", reference).Count(&count).Error
	return count > 0, err
}

func (r *repository) UpdateOrder(ctx context.Context, order *Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

// --- Cart Operations ---

func (r *repository) CreateCart(ctx context.Context, cart *Cart) error {
	return r.db.WithContext(ctx).Create(cart).Error
}

func (r *repository) CartExists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Cart{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}
