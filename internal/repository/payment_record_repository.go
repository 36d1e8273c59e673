package repository

import (
	"context"
	"errors"

	"fasset-backend/internal/models"

	"gorm.io/gorm"
)

// PaymentRecordRepository defines the interface for payment record data access
type PaymentRecordRepository interface {
	Create(ctx context.Context, record *models.PaymentRecord) error
	Exists(ctx context.Context, txHash, sourceHash string) (bool, error)
	ListAll(ctx context.Context) ([]*models.PaymentRecord, error)
	DeleteOlderThan(ctx context.Context, blockNumber uint64) (int64, error)

	// underlying block cursor (single row, updated in place)
	GetUnderlyingBlock(ctx context.Context) (*models.UnderlyingBlock, error)
	SaveUnderlyingBlock(ctx context.Context, block *models.UnderlyingBlock) error
}

// paymentRecordRepository implements PaymentRecordRepository
type paymentRecordRepository struct {
	db *gorm.DB
}

// NewPaymentRecordRepository creates a new PaymentRecordRepository instance
func NewPaymentRecordRepository(db *gorm.DB) PaymentRecordRepository {
	return &paymentRecordRepository{db: db}
}

func (r *paymentRecordRepository) Create(ctx context.Context, record *models.PaymentRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *paymentRecordRepository) Exists(ctx context.Context, txHash, sourceHash string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PaymentRecord{}).
		Where("transaction_hash = ? AND source_hash = ?", txHash, sourceHash).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *paymentRecordRepository) ListAll(ctx context.Context) ([]*models.PaymentRecord, error) {
	var records []*models.PaymentRecord
	err := r.db.WithContext(ctx).Order("id ASC").Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *paymentRecordRepository) DeleteOlderThan(ctx context.Context, blockNumber uint64) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("block_number < ?", blockNumber).
		Delete(&models.PaymentRecord{})
	return result.RowsAffected, result.Error
}

func (r *paymentRecordRepository) GetUnderlyingBlock(ctx context.Context) (*models.UnderlyingBlock, error) {
	var block models.UnderlyingBlock
	err := r.db.WithContext(ctx).Where("id = ?", 1).First(&block).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &block, nil
}

func (r *paymentRecordRepository) SaveUnderlyingBlock(ctx context.Context, block *models.UnderlyingBlock) error {
	block.ID = 1
	return r.db.WithContext(ctx).Save(block).Error
}
