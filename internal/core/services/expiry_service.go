package services

import (
	"context"
	"time"

	"tontiflex/internal/config"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ExpiryService periodically times out requests stuck waiting on the
// payment gateway: memberships in PAYMENT_PENDING and withdrawals in
// APPROVED whose payout never confirmed.
type ExpiryService struct {
	cfg         config.ExpiryConfig
	memberships *MembershipService
	withdrawals *WithdrawalService
	logger      *zap.Logger
	cron        *cron.Cron
}

// NewExpiryService creates a new expiry sweeper
func NewExpiryService(
	cfg config.ExpiryConfig,
	memberships *MembershipService,
	withdrawals *WithdrawalService,
	logger *zap.Logger,
) *ExpiryService {
	return &ExpiryService{
		cfg:         cfg,
		memberships: memberships,
		withdrawals: withdrawals,
		logger:      logger,
		cron:        cron.New(),
	}
}

// Start schedules the sweep and runs the cron loop in the background.
func (s *ExpiryService) Start() error {
	_, err := s.cron.AddFunc(s.cfg.SweepSpec, func() {
		s.Sweep(context.Background())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("expiry sweeper started", zap.String("spec", s.cfg.SweepSpec))
	return nil
}

// Stop stops the cron loop and waits for a running sweep to finish.
func (s *ExpiryService) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep expires everything past its timeout. Each request is handled in
// its own unit so one failure does not block the rest of the batch.
func (s *ExpiryService) Sweep(ctx context.Context) {
	now := time.Now()

	stale, err := s.memberships.ListStalePending(ctx, now.Add(-s.cfg.PaymentTimeout))
	if err != nil {
		s.logger.Error("expiry sweep: list memberships", zap.Error(err))
	}
	for _, req := range stale {
		if err := s.memberships.Expire(ctx, req.ID); err != nil {
			s.logger.Error("expiry sweep: membership",
				zap.Uint("request_id", req.ID), zap.Error(err))
			continue
		}
		s.logger.Info("membership expired", zap.Uint("request_id", req.ID))
	}

	pending, err := s.withdrawals.ListStaleApproved(ctx, now.Add(-s.cfg.PayoutTimeout))
	if err != nil {
		s.logger.Error("expiry sweep: list withdrawals", zap.Error(err))
	}
	for _, req := range pending {
		if err := s.withdrawals.Expire(ctx, req.ID); err != nil {
			s.logger.Error("expiry sweep: withdrawal",
				zap.Uint("request_id", req.ID), zap.Error(err))
			continue
		}
		s.logger.Info("withdrawal expired", zap.Uint("request_id", req.ID))
	}
}
