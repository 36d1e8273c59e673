package repository

import (
	"context"

	"fasset-backend/internal/models"

	"gorm.io/gorm"
)

// RedemptionRepository defines the interface for redemption request data access
type RedemptionRepository interface {
	Create(ctx context.Context, request *models.RedemptionRequest) error
	GetByID(ctx context.Context, id uint64) (*models.RedemptionRequest, error)
	Save(ctx context.Context, request *models.RedemptionRequest) error
	ListOpen(ctx context.Context) ([]*models.RedemptionRequest, error)
	FindByRedeemer(ctx context.Context, redeemer string, page, limit int) ([]*models.RedemptionRequest, int64, error)
	FindByVault(ctx context.Context, vault string, page, limit int) ([]*models.RedemptionRequest, int64, error)
	FindOpenPastDeadline(ctx context.Context, block uint64, timestamp uint64) ([]*models.RedemptionRequest, error)
}

// redemptionRepository implements RedemptionRepository
type redemptionRepository struct {
	db *gorm.DB
}

// NewRedemptionRepository creates a new RedemptionRepository instance
func NewRedemptionRepository(db *gorm.DB) RedemptionRepository {
	return &redemptionRepository{db: db}
}

func (r *redemptionRepository) Create(ctx context.Context, request *models.RedemptionRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *redemptionRepository) GetByID(ctx context.Context, id uint64) (*models.RedemptionRequest, error) {
	var request models.RedemptionRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *redemptionRepository) Save(ctx context.Context, request *models.RedemptionRequest) error {
	return r.db.WithContext(ctx).Save(request).Error
}

// ListOpen returns every redemption still awaiting agent payment, for
// startup state recovery.
func (r *redemptionRepository) ListOpen(ctx context.Context) ([]*models.RedemptionRequest, error) {
	var requests []*models.RedemptionRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", models.RedemptionStatusRequested).
		Order("id ASC").Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *redemptionRepository) FindByRedeemer(ctx context.Context, redeemer string, page, limit int) ([]*models.RedemptionRequest, int64, error) {
	var requests []*models.RedemptionRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&models.RedemptionRequest{}).Where("redeemer = ?", redeemer)
	query.Count(&total)

	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("created_at DESC").Find(&requests).Error
	if err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

func (r *redemptionRepository) FindByVault(ctx context.Context, vault string, page, limit int) ([]*models.RedemptionRequest, int64, error) {
	var requests []*models.RedemptionRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&models.RedemptionRequest{}).Where("vault = ?", vault)
	query.Count(&total)

	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("created_at DESC").Find(&requests).Error
	if err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

// FindOpenPastDeadline returns open redemptions whose payment window has
// closed on both axes. The sweeper flags them; the timeout claim itself
// needs a non-payment proof from the redeemer.
func (r *redemptionRepository) FindOpenPastDeadline(ctx context.Context, block uint64, timestamp uint64) ([]*models.RedemptionRequest, error) {
	var requests []*models.RedemptionRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND last_underlying_block < ? AND last_underlying_timestamp < ?",
			models.RedemptionStatusRequested, block, timestamp).
		Order("id ASC").Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}
