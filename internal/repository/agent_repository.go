package repository

import (
	"context"
	"errors"

	"fasset-backend/internal/models"

	"gorm.io/gorm"
)

// AgentRepository defines the interface for agent data access
type AgentRepository interface {
	Create(ctx context.Context, agent *models.Agent) error
	GetByVault(ctx context.Context, vault string) (*models.Agent, error)
	GetByUnderlyingAddress(ctx context.Context, address string) (*models.Agent, error)
	Save(ctx context.Context, agent *models.Agent) error
	FindAll(ctx context.Context, page, limit int) ([]*models.Agent, int64, error)
	FindByStatus(ctx context.Context, status models.AgentStatus, page, limit int) ([]*models.Agent, int64, error)
	FindPubliclyAvailable(ctx context.Context, page, limit int) ([]*models.Agent, int64, error)
	ListOpen(ctx context.Context) ([]*models.Agent, error)

	// collateral withdrawal announcements
	UpsertWithdrawal(ctx context.Context, w *models.CollateralWithdrawal) error
	DeleteWithdrawal(ctx context.Context, vault, kind string) error
	FindWithdrawalsByVault(ctx context.Context, vault string) ([]*models.CollateralWithdrawal, error)
	ListWithdrawals(ctx context.Context) ([]*models.CollateralWithdrawal, error)
}

// agentRepository implements AgentRepository
type agentRepository struct {
	db *gorm.DB
}

// NewAgentRepository creates a new AgentRepository instance
func NewAgentRepository(db *gorm.DB) AgentRepository {
	return &agentRepository{db: db}
}

func (r *agentRepository) Create(ctx context.Context, agent *models.Agent) error {
	return r.db.WithContext(ctx).Create(agent).Error
}

func (r *agentRepository) GetByVault(ctx context.Context, vault string) (*models.Agent, error) {
	var agent models.Agent
	err := r.db.WithContext(ctx).Where("vault = ?", vault).First(&agent).Error
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepository) GetByUnderlyingAddress(ctx context.Context, address string) (*models.Agent, error) {
	var agent models.Agent
	err := r.db.WithContext(ctx).Where("underlying_address = ?", address).First(&agent).Error
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepository) Save(ctx context.Context, agent *models.Agent) error {
	return r.db.WithContext(ctx).Save(agent).Error
}

func (r *agentRepository) FindAll(ctx context.Context, page, limit int) ([]*models.Agent, int64, error) {
	var agents []*models.Agent
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Agent{})
	query.Count(&total)

	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("id ASC").Find(&agents).Error
	if err != nil {
		return nil, 0, err
	}

	return agents, total, nil
}

func (r *agentRepository) FindByStatus(ctx context.Context, status models.AgentStatus, page, limit int) ([]*models.Agent, int64, error) {
	var agents []*models.Agent
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Agent{}).Where("status = ?", status)
	query.Count(&total)

	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("id ASC").Find(&agents).Error
	if err != nil {
		return nil, 0, err
	}

	return agents, total, nil
}

func (r *agentRepository) FindPubliclyAvailable(ctx context.Context, page, limit int) ([]*models.Agent, int64, error) {
	var agents []*models.Agent
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Agent{}).
		Where("publicly_available = ? AND status <> ?", true, models.AgentStatusDestroyed)
	query.Count(&total)

	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("id ASC").Find(&agents).Error
	if err != nil {
		return nil, 0, err
	}

	return agents, total, nil
}

// ListOpen returns every non-destroyed agent, for startup state recovery.
func (r *agentRepository) ListOpen(ctx context.Context) ([]*models.Agent, error) {
	var agents []*models.Agent
	err := r.db.WithContext(ctx).
		Where("status <> ?", models.AgentStatusDestroyed).
		Order("id ASC").Find(&agents).Error
	if err != nil {
		return nil, err
	}
	return agents, nil
}

func (r *agentRepository) UpsertWithdrawal(ctx context.Context, w *models.CollateralWithdrawal) error {
	var existing models.CollateralWithdrawal
	err := r.db.WithContext(ctx).
		Where("vault = ? AND collateral_kind = ?", w.Vault, w.CollateralKind).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.WithContext(ctx).Create(w).Error
	}
	if err != nil {
		return err
	}
	existing.AmountWei = w.AmountWei
	existing.AllowedAt = w.AllowedAt
	return r.db.WithContext(ctx).Save(&existing).Error
}

func (r *agentRepository) DeleteWithdrawal(ctx context.Context, vault, kind string) error {
	return r.db.WithContext(ctx).
		Where("vault = ? AND collateral_kind = ?", vault, kind).
		Delete(&models.CollateralWithdrawal{}).Error
}

func (r *agentRepository) FindWithdrawalsByVault(ctx context.Context, vault string) ([]*models.CollateralWithdrawal, error) {
	var withdrawals []*models.CollateralWithdrawal
	err := r.db.WithContext(ctx).Where("vault = ?", vault).Find(&withdrawals).Error
	if err != nil {
		return nil, err
	}
	return withdrawals, nil
}

func (r *agentRepository) ListWithdrawals(ctx context.Context) ([]*models.CollateralWithdrawal, error) {
	var withdrawals []*models.CollateralWithdrawal
	err := r.db.WithContext(ctx).Order("id ASC").Find(&withdrawals).Error
	if err != nil {
		return nil, err
	}
	return withdrawals, nil
}
