package repository

import (
	"context"

	"fasset-backend/internal/models"

	"gorm.io/gorm"
)

// ReservationRepository defines the interface for collateral reservation data access
type ReservationRepository interface {
	Create(ctx context.Context, reservation *models.CollateralReservation) error
	GetByID(ctx context.Context, id uint64) (*models.CollateralReservation, error)
	Save(ctx context.Context, reservation *models.CollateralReservation) error
	ListOpen(ctx context.Context) ([]*models.CollateralReservation, error)
	FindByMinter(ctx context.Context, minter string, page, limit int) ([]*models.CollateralReservation, int64, error)
	FindByVault(ctx context.Context, vault string, page, limit int) ([]*models.CollateralReservation, int64, error)
	FindOpenPastDeadline(ctx context.Context, block uint64, timestamp uint64) ([]*models.CollateralReservation, error)
}

// reservationRepository implements ReservationRepository
type reservationRepository struct {
	db *gorm.DB
}

// NewReservationRepository creates a new ReservationRepository instance
func NewReservationRepository(db *gorm.DB) ReservationRepository {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) Create(ctx context.Context, reservation *models.CollateralReservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *reservationRepository) GetByID(ctx context.Context, id uint64) (*models.CollateralReservation, error) {
	var reservation models.CollateralReservation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *reservationRepository) Save(ctx context.Context, reservation *models.CollateralReservation) error {
	return r.db.WithContext(ctx).Save(reservation).Error
}

// ListOpen returns every reservation still awaiting payment, for startup
// state recovery.
func (r *reservationRepository) ListOpen(ctx context.Context) ([]*models.CollateralReservation, error) {
	var reservations []*models.CollateralReservation
	err := r.db.WithContext(ctx).
		Where("status = ?", models.ReservationStatusReserved).
		Order("id ASC").Find(&reservations).Error
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

func (r *reservationRepository) FindByMinter(ctx context.Context, minter string, page, limit int) ([]*models.CollateralReservation, int64, error) {
	var reservations []*models.CollateralReservation
	var total int64

	query := r.db.WithContext(ctx).Model(&models.CollateralReservation{}).Where("minter = ?", minter)
	query.Count(&total)

	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("created_at DESC").Find(&reservations).Error
	if err != nil {
		return nil, 0, err
	}

	return reservations, total, nil
}

func (r *reservationRepository) FindByVault(ctx context.Context, vault string, page, limit int) ([]*models.CollateralReservation, int64, error) {
	var reservations []*models.CollateralReservation
	var total int64

	query := r.db.WithContext(ctx).Model(&models.CollateralReservation{}).Where("vault = ?", vault)
	query.Count(&total)

	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("created_at DESC").Find(&reservations).Error
	if err != nil {
		return nil, 0, err
	}

	return reservations, total, nil
}

// FindOpenPastDeadline returns open reservations whose payment window has
// closed on both the block and timestamp axis. Used by the deadline sweeper
// to flag candidates; the default itself needs a non-payment proof.
func (r *reservationRepository) FindOpenPastDeadline(ctx context.Context, block uint64, timestamp uint64) ([]*models.CollateralReservation, error) {
	var reservations []*models.CollateralReservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND last_underlying_block < ? AND last_underlying_timestamp < ?",
			models.ReservationStatusReserved, block, timestamp).
		Order("id ASC").Find(&reservations).Error
	if err != nil {
		return nil, err
	}
	return reservations, nil
}
