package services

import (
	"context"
	"errors"

	"tontiflex/internal/adapters/persistence/models"
	"tontiflex/internal/adapters/persistence/repositories"
	"tontiflex/internal/core/domain"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Tontine service errors
var (
	ErrInvalidStakeBounds = errors.New("min stake must be positive and not exceed max stake")
)

// TontineService manages circle administration: creation, status changes
// and participant listings. Circle membership itself goes through the
// membership workflow.
type TontineService struct {
	tontines *repositories.TontineRepository
	logger   *zap.Logger
}

// NewTontineService creates a new tontine service
func NewTontineService(tontines *repositories.TontineRepository, logger *zap.Logger) *TontineService {
	return &TontineService{tontines: tontines, logger: logger}
}

// TontineInput represents circle configuration
type TontineInput struct {
	InstitutionID uint    `json:"institution_id" validate:"required"`
	Name          string  `json:"name" validate:"required"`
	MinStake      float64 `json:"min_stake" validate:"required,gt=0"`
	MaxStake      float64 `json:"max_stake" validate:"required,gt=0"`
	MembershipFee float64 `json:"membership_fee" validate:"required,gte=0"`
}

// Create opens a new circle in ACTIVE.
func (s *TontineService) Create(ctx context.Context, input *TontineInput) (*models.Tontine, error) {
	if input.MinStake <= 0 || input.MinStake > input.MaxStake {
		return nil, ErrInvalidStakeBounds
	}

	t := &models.Tontine{
		InstitutionID: input.InstitutionID,
		Name:          input.Name,
		MinStake:      input.MinStake,
		MaxStake:      input.MaxStake,
		MembershipFee: input.MembershipFee,
		Status:        domain.TontineActive,
	}
	if err := s.tontines.Create(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("tontine created",
		zap.Uint("tontine_id", t.ID),
		zap.String("name", t.Name))

	return t, nil
}

// SetStatus moves a circle between ACTIVE, SUSPENDED and CLOSED.
func (s *TontineService) SetStatus(ctx context.Context, id uint, status string) (*models.Tontine, error) {
	switch status {
	case domain.TontineActive, domain.TontineSuspended, domain.TontineClosed:
	default:
		return nil, domain.Reject(domain.CodeInvalidTransition, "unknown tontine status "+status)
	}

	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == domain.TontineClosed {
		return nil, domain.Reject(domain.CodeInvalidTransition, "a closed tontine cannot be reopened")
	}

	t.Status = status
	if err := s.tontines.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetByID gets a circle
func (s *TontineService) GetByID(ctx context.Context, id uint) (*models.Tontine, error) {
	t, err := s.tontines.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTontineNotFound
		}
		return nil, err
	}
	return t, nil
}

// List lists circles
func (s *TontineService) List(ctx context.Context, offset, limit int) ([]*models.Tontine, int64, error) {
	return s.tontines.List(ctx, offset, limit)
}

// Participants lists a circle's participants
func (s *TontineService) Participants(ctx context.Context, tontineID uint) ([]*models.TontineParticipant, error) {
	if _, err := s.GetByID(ctx, tontineID); err != nil {
		return nil, err
	}
	return s.tontines.ListParticipants(ctx, tontineID)
}
