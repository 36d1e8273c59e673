package repository

import (
	"context"

	"fasset-backend/internal/models"

	"gorm.io/gorm"
)

// EventRepository defines the interface for protocol event and audit data access
type EventRepository interface {
	// ProtocolEvent operations
	CreateEvent(ctx context.Context, event *models.ProtocolEvent) error
	FindEventsByVault(ctx context.Context, vault string, page, limit int) ([]*models.ProtocolEvent, int64, error)
	FindEventsByType(ctx context.Context, eventType models.ProtocolEventType, page, limit int) ([]*models.ProtocolEvent, int64, error)

	// ChallengeEvent operations
	CreateChallenge(ctx context.Context, event *models.ChallengeEvent) error
	FindChallengesByVault(ctx context.Context, vault string, page, limit int) ([]*models.ChallengeEvent, int64, error)

	// LiquidationEvent operations
	CreateLiquidation(ctx context.Context, event *models.LiquidationEvent) error
	FindLiquidationsByVault(ctx context.Context, vault string, page, limit int) ([]*models.LiquidationEvent, int64, error)

	// PriceSnapshot operations
	CreatePriceSnapshot(ctx context.Context, snapshot *models.PriceSnapshot) error
	LatestPriceSnapshot(ctx context.Context, symbol string) (*models.PriceSnapshot, error)
	FindPriceSnapshots(ctx context.Context, symbol string, page, limit int) ([]*models.PriceSnapshot, int64, error)
}

// eventRepository implements EventRepository
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepository instance
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) CreateEvent(ctx context.Context, event *models.ProtocolEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventRepository) FindEventsByVault(ctx context.Context, vault string, page, limit int) ([]*models.ProtocolEvent, int64, error) {
	var events []*models.ProtocolEvent
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ProtocolEvent{}).Where("vault = ?", vault)
	query.Count(&total)

	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("created_at DESC").Find(&events).Error
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

func (r *eventRepository) FindEventsByType(ctx context.Context, eventType models.ProtocolEventType, page, limit int) ([]*models.ProtocolEvent, int64, error) {
	var events []*models.ProtocolEvent
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ProtocolEvent{}).Where("event_type = ?", eventType)
	query.Count(&total)

	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("created_at DESC").Find(&events).Error
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

func (r *eventRepository) CreateChallenge(ctx context.Context, event *models.ChallengeEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventRepository) FindChallengesByVault(ctx context.Context, vault string, page, limit int) ([]*models.ChallengeEvent, int64, error) {
	var events []*models.ChallengeEvent
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ChallengeEvent{}).Where("vault = ?", vault)
	query.Count(&total)

	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("created_at DESC").Find(&events).Error
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

func (r *eventRepository) CreateLiquidation(ctx context.Context, event *models.LiquidationEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventRepository) FindLiquidationsByVault(ctx context.Context, vault string, page, limit int) ([]*models.LiquidationEvent, int64, error) {
	var events []*models.LiquidationEvent
	var total int64

	query := r.db.WithContext(ctx).Model(&models.LiquidationEvent{}).Where("vault = ?", vault)
	query.Count(&total)

	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("created_at DESC").Find(&events).Error
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

func (r *eventRepository) CreatePriceSnapshot(ctx context.Context, snapshot *models.PriceSnapshot) error {
	return r.db.WithContext(ctx).Create(snapshot).Error
}

func (r *eventRepository) LatestPriceSnapshot(ctx context.Context, symbol string) (*models.PriceSnapshot, error) {
	var snapshot models.PriceSnapshot
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("id DESC").First(&snapshot).Error
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *eventRepository) FindPriceSnapshots(ctx context.Context, symbol string, page, limit int) ([]*models.PriceSnapshot, int64, error) {
	var snapshots []*models.PriceSnapshot
	var total int64

	query := r.db.WithContext(ctx).Model(&models.PriceSnapshot{}).Where("symbol = ?", symbol)
	query.Count(&total)

	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("created_at DESC").Find(&snapshots).Error
	if err != nil {
		return nil, 0, err
	}

	return snapshots, total, nil
}
