package repository

import (
	"context"

	"fasset-backend/internal/models"

	"gorm.io/gorm"
)

// TicketRepository defines the interface for redemption ticket data access
type TicketRepository interface {
	Create(ctx context.Context, ticket *models.RedemptionTicket) error
	GetByID(ctx context.Context, id uint64) (*models.RedemptionTicket, error)
	Save(ctx context.Context, ticket *models.RedemptionTicket) error
	Delete(ctx context.Context, id uint64) error
	ListOrdered(ctx context.Context) ([]*models.RedemptionTicket, error)
	ListByVault(ctx context.Context, vault string) ([]*models.RedemptionTicket, error)
	FindByVault(ctx context.Context, vault string, page, limit int) ([]*models.RedemptionTicket, int64, error)
}

// ticketRepository implements TicketRepository
type ticketRepository struct {
	db *gorm.DB
}

// NewTicketRepository creates a new TicketRepository instance
func NewTicketRepository(db *gorm.DB) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *models.RedemptionTicket) error {
	return r.db.WithContext(ctx).Create(ticket).Error
}

func (r *ticketRepository) GetByID(ctx context.Context, id uint64) (*models.RedemptionTicket, error) {
	var ticket models.RedemptionTicket
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&ticket).Error
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) Save(ctx context.Context, ticket *models.RedemptionTicket) error {
	return r.db.WithContext(ctx).Save(ticket).Error
}

func (r *ticketRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.RedemptionTicket{}).Error
}

// ListOrdered returns all open tickets in queue order. Ticket ids are
// monotonic, so id order is FIFO order.
func (r *ticketRepository) ListOrdered(ctx context.Context) ([]*models.RedemptionTicket, error) {
	var tickets []*models.RedemptionTicket
	err := r.db.WithContext(ctx).Order("id ASC").Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// ListByVault returns every open ticket of one agent in queue order.
func (r *ticketRepository) ListByVault(ctx context.Context, vault string) ([]*models.RedemptionTicket, error) {
	var tickets []*models.RedemptionTicket
	err := r.db.WithContext(ctx).Where("vault = ?", vault).Order("id ASC").Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (r *ticketRepository) FindByVault(ctx context.Context, vault string, page, limit int) ([]*models.RedemptionTicket, int64, error) {
	var tickets []*models.RedemptionTicket
	var total int64

	query := r.db.WithContext(ctx).Model(&models.RedemptionTicket{}).Where("vault = ?", vault)
	query.Count(&total)

	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("id ASC").Find(&tickets).Error
	if err != nil {
		return nil, 0, err
	}

	return tickets, total, nil
}
