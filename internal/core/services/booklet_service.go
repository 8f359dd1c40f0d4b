package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tontiflex/internal/adapters/persistence/models"
	"tontiflex/internal/adapters/persistence/repositories"
	"tontiflex/internal/core/domain"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Booklet service errors
var (
	ErrBookletNotFound = errors.New("booklet not found")
	ErrNotParticipant  = errors.New("client is not a participant of this tontine")
)

// BookletService manages 31-slot contribution booklets: the daily
// contribution flow, cycle renewal and the calendar views built on top.
type BookletService struct {
	db       *gorm.DB
	booklets *repositories.BookletRepository
	tontines *repositories.TontineRepository
	payments *PaymentService
	ledger   *LedgerService
	notifier *NotificationService
	logger   *zap.Logger
}

// NewBookletService creates a new booklet service
func NewBookletService(
	db *gorm.DB,
	booklets *repositories.BookletRepository,
	tontines *repositories.TontineRepository,
	payments *PaymentService,
	ledger *LedgerService,
	notifier *NotificationService,
	logger *zap.Logger,
) *BookletService {
	return &BookletService{
		db:       db,
		booklets: booklets,
		tontines: tontines,
		payments: payments,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger,
	}
}

// Current returns the client's booklet for the running cycle.
func (s *BookletService) Current(ctx context.Context, clientID, tontineID uint) (*models.Booklet, error) {
	b, err := s.booklets.GetCurrent(ctx, clientID, tontineID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookletNotFound
		}
		return nil, err
	}
	return b, nil
}

// Calendar returns the 31-day view of the current cycle.
func (s *BookletService) Calendar(ctx context.Context, clientID, tontineID uint) ([]CalendarDay, error) {
	b, err := s.Current(ctx, clientID, tontineID)
	if err != nil {
		return nil, err
	}
	return GenerateCalendar(b, time.Now()), nil
}

// Statistics returns contribution statistics for the current cycle.
func (s *BookletService) Statistics(ctx context.Context, clientID, tontineID uint) (*BookletStatistics, error) {
	b, err := s.Current(ctx, clientID, tontineID)
	if err != nil {
		return nil, err
	}
	stats := ComputeStatistics(b, time.Now())
	return &stats, nil
}

// ListByClient lists all of a client's booklets across circles and cycles.
func (s *BookletService) ListByClient(ctx context.Context, clientID uint) ([]*models.Booklet, error) {
	return s.booklets.ListByClient(ctx, clientID)
}

// InitiateContribution asks the gateway to collect a daily contribution
// from the client's phone. The contribution lands on the booklet once the
// gateway confirms.
func (s *BookletService) InitiateContribution(ctx context.Context, clientID, tontineID uint, phone string, amount float64) (*models.PaymentTransaction, error) {
	if amount <= 0 {
		return nil, domain.Reject(domain.CodeInvalidStake, "contribution amount must be positive")
	}

	member, err := s.tontines.IsParticipant(ctx, tontineID, clientID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotParticipant
	}

	booklet, err := s.Current(ctx, clientID, tontineID)
	if err != nil {
		return nil, err
	}

	return s.payments.Initiate(ctx, domain.PaymentKindContribution, booklet.ID, phone, amount)
}

// RecordContribution handles a successful gateway callback for a daily
// contribution. The day slot for the confirmation date is marked paid and
// the circle's pool credited. When the 31-day window has elapsed a fresh
// cycle is opened first and the contribution lands on its day 1, which
// doubles as the institution's commission.
func (s *BookletService) RecordContribution(ctx context.Context, payment *models.PaymentTransaction) (*models.Booklet, error) {
	var booklet *models.Booklet
	var day int
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		booklet, err = s.booklets.WithTx(tx).GetByID(ctx, payment.TargetID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookletNotFound
			}
			return err
		}

		now := time.Now()
		day = CycleDayFor(booklet, now)
		if day > domain.BookletDays {
			booklet, err = s.renewCycle(ctx, tx, booklet, now)
			if err != nil {
				return err
			}
			day = 1
		}

		booklet.SetDayPaid(day)
		if err := s.booklets.WithTx(tx).Update(ctx, booklet); err != nil {
			return err
		}

		tontine, err := s.tontines.WithTx(tx).GetByID(ctx, booklet.TontineID)
		if err != nil {
			return err
		}
		return s.ledger.WithTx(tx).Credit(ctx, tontine.InstitutionID, payment.Amount)
	})
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.Uint("booklet_id", booklet.ID),
		zap.Int("day", day),
		zap.Float64("amount", payment.Amount),
	}
	if day == domain.CommissionDay {
		fields = append(fields, zap.Bool("commission", true))
	}
	s.logger.Info("contribution recorded", fields...)

	s.notifier.Dispatch(ctx, booklet.ClientID, "contribution_recorded", map[string]string{
		"booklet_id": fmt.Sprint(booklet.ID),
		"day":        fmt.Sprint(day),
	})

	return booklet, nil
}

// renewCycle closes the elapsed cycle and opens the next one. Old booklets
// are kept as history; the new cycle starts on the renewal date with only
// the commission day marked.
func (s *BookletService) renewCycle(ctx context.Context, tx *gorm.DB, old *models.Booklet, now time.Time) (*models.Booklet, error) {
	next := &models.Booklet{
		ClientID:    old.ClientID,
		TontineID:   old.TontineID,
		CycleNumber: old.CycleNumber + 1,
		CycleStart:  now,
		Days:        models.NewBookletDays(),
	}
	if err := s.booklets.WithTx(tx).Create(ctx, next); err != nil {
		return nil, err
	}

	s.logger.Info("booklet cycle renewed",
		zap.Uint("client_id", old.ClientID),
		zap.Uint("tontine_id", old.TontineID),
		zap.Int("cycle", next.CycleNumber))

	return next, nil
}
