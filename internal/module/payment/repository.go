package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uniedit/payrecon/internal/module/payment/domain"
	"github.com/uniedit/payrecon/internal/module/payment/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new transaction history repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetTransactionHistory(ctx context.Context, orderReference string) (*domain.TransactionHistory, error) {
	var ent entity.TransactionHistoryEntity
	err := r.db.WithContext(ctx).First(&ent, "order_reference = ?", orderReference).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrHistoryNotFound
		}
		return nil, fmt.Errorf("get transaction history: %w", err)
	}
	return ent.ToDomain(), nil
}

func (r *repository) SaveTransactionHistory(ctx context.Context, history *domain.TransactionHistory) error {
	ent := entity.FromDomainTransactionHistory(history)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_reference"}},
			UpdateAll: true,
		}).
		Create(ent).Error
	if err != nil {
		return fmt.Errorf("save transaction history: %w", err)
	}
	return nil
}

// --- Notification Log ---

type notificationLogRepository struct {
	db *gorm.DB
}

// NewNotificationLogRepository creates a new notification log repository.
func NewNotificationLogRepository(db *gorm.DB) NotificationLogRepository {
	return &notificationLogRepository{db: db}
}

func (r *notificationLogRepository) Create(ctx context.Context, log *NotificationLog) error {
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("create notification log: %w", err)
	}
	return nil
}

func (r *notificationLogRepository) Get(ctx context.Context, id string) (*NotificationLog, error) {
	var log NotificationLog
	err := r.db.WithContext(ctx).First(&log, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationLogNotFound
		}
		return nil, fmt.Errorf("get notification log: %w", err)
	}
	return &log, nil
}

func (r *notificationLogRepository) UpdateStatus(ctx context.Context, id string, status LogStatus, message string) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationLog{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"message":    message,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("update notification log: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotificationLogNotFound
	}
	return nil
}
