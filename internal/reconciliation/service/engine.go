package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/config"
	"github.com/smallbiznis/staybook/internal/notification/sideeffect"
	"github.com/smallbiznis/staybook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/staybook/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/staybook/internal/reconciliation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        bookingdomain.Repository
	Gateway     paymentdomain.Gateway
	SideEffects *sideeffect.Runner
	Clock       clock.Clock
	Config      *config.ReconcileConfigHolder `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics           `optional:"true"`
}

// Engine is the single writer path for payment evidence. Every transition
// is a conditional update whose affected-row count decides who runs the
// side effects.
type Engine struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        bookingdomain.Repository
	gateway     paymentdomain.Gateway
	sideEffects *sideeffect.Runner
	clock       clock.Clock
	config      *config.ReconcileConfigHolder
	obsMetrics  *obsmetrics.Metrics
}

func NewEngine(p Params) *Engine {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Engine{
		db:          p.DB,
		log:         p.Log.Named("reconciliation.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		gateway:     p.Gateway,
		sideEffects: p.SideEffects,
		clock:       clk,
		config:      p.Config,
		obsMetrics:  p.ObsMetrics,
	}
}

func (e *Engine) ApplyEvidence(ctx context.Context, bookingID snowflake.ID, evidence reconciliationdomain.Evidence) (reconciliationdomain.Result, error) {
	evidence.SessionID = strings.TrimSpace(evidence.SessionID)
	evidence.PaymentIntentID = strings.TrimSpace(evidence.PaymentIntentID)
	if bookingID == 0 {
		return reconciliationdomain.Result{}, bookingdomain.ErrBookingNotFound
	}

	booking, err := e.repo.FindByID(ctx, e.db, bookingID)
	if err != nil {
		return reconciliationdomain.Result{}, err
	}
	if booking == nil {
		return reconciliationdomain.Result{}, bookingdomain.ErrBookingNotFound
	}

	log := logger.WithBooking(logger.WithContext(ctx, e.log), bookingID.String()).With(
		zap.String("source", string(evidence.Source)),
		zap.String("provider_status", string(evidence.ProviderStatus)),
	)

	var result reconciliationdomain.Result
	switch evidence.ProviderStatus {
	case paymentdomain.ProviderStatusSucceeded:
		result, err = e.applySettled(ctx, log, booking, evidence)
	case paymentdomain.ProviderStatusProcessing, paymentdomain.ProviderStatusRequiresAction:
		result, err = e.applyProcessing(ctx, booking, evidence)
	case paymentdomain.ProviderStatusFailed, paymentdomain.ProviderStatusCanceled:
		result, err = e.applyFailed(ctx, booking, evidence)
	default:
		return reconciliationdomain.Result{}, reconciliationdomain.ErrInvalidEvidence
	}
	if err != nil {
		e.obsMetrics.RecordReconciliation(ctx, string(evidence.Source), "error")
		return reconciliationdomain.Result{}, err
	}

	e.obsMetrics.RecordReconciliation(ctx, string(evidence.Source), string(result.Outcome))
	log.Info("payment evidence applied",
		zap.String("outcome", string(result.Outcome)),
		zap.String("payment_status", string(result.PaymentStatus)),
		zap.Strings("warnings", result.Warnings),
	)
	return result, nil
}

func (e *Engine) applySettled(ctx context.Context, log *zap.Logger, booking *bookingdomain.Booking, evidence reconciliationdomain.Evidence) (reconciliationdomain.Result, error) {
	now := e.clock.Now().UTC()
	fields := map[string]any{
		"payment_status": bookingdomain.PaymentStatusPaid,
		"status": gorm.Expr("CASE WHEN status = ? THEN status ELSE ? END",
			bookingdomain.BookingStatusCompleted, bookingdomain.BookingStatusConfirmed),
		"payment_method": gorm.Expr("COALESCE(payment_method, ?)", bookingdomain.PaymentMethodCard),
		"updated_at":     now,
	}
	stampCorrelation(fields, evidence)

	// Only unsettled payments may move to paid; a refunded or disputed
	// booking is never re-settled by a replayed signal.
	cond := bookingdomain.Condition{
		StatusNotIn: []bookingdomain.BookingStatus{bookingdomain.BookingStatusCancelled},
		PaymentStatusIn: []bookingdomain.PaymentStatus{
			bookingdomain.PaymentStatusPending,
			bookingdomain.PaymentStatusProcessing,
			bookingdomain.PaymentStatusFailed,
		},
	}

	var warnings []string
	var rows int64
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rows, err = e.repo.ConditionalUpdate(ctx, tx, booking.ID, fields, cond)
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		return e.repo.InsertTransaction(ctx, tx, e.settlementLine(booking, evidence, now))
	})
	if err != nil {
		return reconciliationdomain.Result{}, fmt.Errorf("apply settled evidence: %w", err)
	}

	if rows == 0 {
		current, err := e.repo.FindByID(ctx, e.db, booking.ID)
		if err == nil && current != nil {
			booking = current
		}
		if booking.Status == bookingdomain.BookingStatusCancelled {
			warnings = append(warnings, e.recordSettledOnCancelled(ctx, log, booking, evidence)...)
		}
		result := e.buildResult(ctx, booking, reconciliationdomain.OutcomeNoOp, true)
		result.Warnings = append(warnings, result.Warnings...)
		return result, nil
	}

	// The paid write has committed; a caller that goes away must not take
	// the confirmations with it, since no later signal will flip the row again.
	effectsCtx := context.WithoutCancel(ctx)
	details, detailWarnings := e.loadDetails(effectsCtx, booking)
	warnings = append(warnings, detailWarnings...)
	warnings = append(warnings, e.sideEffects.BookingConfirmed(effectsCtx, details)...)

	result := reconciliationdomain.Result{
		Success:       true,
		Outcome:       reconciliationdomain.OutcomeTransitioned,
		PaymentStatus: bookingdomain.PaymentStatusPaid,
		Warnings:      warnings,
	}
	if len(detailWarnings) == 0 {
		view := bookingdomain.NewBookingDetailsView(*details)
		result.Booking = &view
		result.PaymentStatus = view.PaymentStatus
	} else {
		result.Booking = minimalPaidView(booking.ID)
	}
	return result, nil
}

// recordSettledOnCancelled keeps the audit trail for a payment that landed
// after the booking was cancelled. Status and payment status stay frozen.
func (e *Engine) recordSettledOnCancelled(ctx context.Context, log *zap.Logger, booking *bookingdomain.Booking, evidence reconciliationdomain.Evidence) []string {
	if booking.PaymentStatus.IsRefunded() {
		return nil
	}
	fields := map[string]any{}
	stampCorrelation(fields, evidence)
	if len(fields) > 0 {
		fields["updated_at"] = e.clock.Now().UTC()
		_, err := e.repo.ConditionalUpdate(ctx, e.db, booking.ID, fields, bookingdomain.Condition{
			StatusIn: []bookingdomain.BookingStatus{bookingdomain.BookingStatusCancelled},
		})
		if err != nil {
			log.Warn("failed to stamp correlation ids on cancelled booking", zap.Error(err))
		}
	}
	log.Warn("payment settled on a cancelled booking; operator refund required",
		zap.String("session_id", evidence.SessionID),
		zap.String("payment_intent_id", evidence.PaymentIntentID),
	)
	return []string{reconciliationdomain.WarnSettledOnCancelled}
}

func (e *Engine) applyProcessing(ctx context.Context, booking *bookingdomain.Booking, evidence reconciliationdomain.Evidence) (reconciliationdomain.Result, error) {
	fields := map[string]any{
		"payment_status": bookingdomain.PaymentStatusProcessing,
		"updated_at":     e.clock.Now().UTC(),
	}
	stampCorrelation(fields, evidence)
	rows, err := e.repo.ConditionalUpdate(ctx, e.db, booking.ID, fields, bookingdomain.Condition{
		StatusNotIn:     []bookingdomain.BookingStatus{bookingdomain.BookingStatusCancelled, bookingdomain.BookingStatusCompleted},
		PaymentStatusIn: []bookingdomain.PaymentStatus{bookingdomain.PaymentStatusPending},
	})
	if err != nil {
		return reconciliationdomain.Result{}, fmt.Errorf("apply processing evidence: %w", err)
	}

	result := e.reload(ctx, booking, outcomeFor(rows))
	result.Success = result.PaymentStatus == bookingdomain.PaymentStatusPaid
	result.Processing = !result.Success
	if result.Processing {
		result.Message = "Payment is still processing"
	}
	return result, nil
}

func (e *Engine) applyFailed(ctx context.Context, booking *bookingdomain.Booking, evidence reconciliationdomain.Evidence) (reconciliationdomain.Result, error) {
	fields := map[string]any{
		"payment_status": bookingdomain.PaymentStatusFailed,
		"updated_at":     e.clock.Now().UTC(),
	}
	stampCorrelation(fields, evidence)
	rows, err := e.repo.ConditionalUpdate(ctx, e.db, booking.ID, fields, bookingdomain.Condition{
		PaymentStatusIn: []bookingdomain.PaymentStatus{bookingdomain.PaymentStatusPending, bookingdomain.PaymentStatusProcessing},
	})
	if err != nil {
		return reconciliationdomain.Result{}, fmt.Errorf("apply failed evidence: %w", err)
	}

	result := e.reload(ctx, booking, outcomeFor(rows))
	result.Success = result.PaymentStatus == bookingdomain.PaymentStatusPaid
	if !result.Success {
		result.Message = "Payment was not completed"
	}
	return result, nil
}

// applyDispute marks a settled booking as disputed and tells the host.
func (e *Engine) applyDispute(ctx context.Context, booking *bookingdomain.Booking) error {
	rows, err := e.repo.ConditionalUpdate(ctx, e.db, booking.ID, map[string]any{
		"payment_status": bookingdomain.PaymentStatusDisputed,
		"updated_at":     e.clock.Now().UTC(),
	}, bookingdomain.Condition{
		PaymentStatusIn: []bookingdomain.PaymentStatus{bookingdomain.PaymentStatusPaid},
	})
	if err != nil {
		return fmt.Errorf("apply dispute: %w", err)
	}
	if rows == 0 {
		return nil
	}
	effectsCtx := context.WithoutCancel(ctx)
	details, _ := e.loadDetails(effectsCtx, booking)
	e.sideEffects.PaymentDisputed(effectsCtx, details)
	return nil
}

func (e *Engine) settlementLine(booking *bookingdomain.Booking, evidence reconciliationdomain.Evidence, now time.Time) *bookingdomain.PaymentTransaction {
	amount := evidence.Amount
	if amount <= 0 {
		amount = booking.TotalAmount
	}
	meta, _ := json.Marshal(map[string]any{
		"source":     string(evidence.Source),
		"session_id": evidence.SessionID,
	})
	completed := now
	line := &bookingdomain.PaymentTransaction{
		ID:                e.genID.Generate(),
		BookingID:         booking.ID,
		TransactionType:   bookingdomain.TransactionTypeCard,
		Amount:            amount,
		Currency:          booking.Currency,
		Status:            bookingdomain.TransactionStatusSucceeded,
		PaymentMethodType: bookingdomain.PaymentMethodCard,
		CompletedAt:       &completed,
		Metadata:          datatypes.JSON(meta),
		CreatedAt:         now,
	}
	if evidence.PaymentIntentID != "" {
		ref := evidence.PaymentIntentID
		line.ProviderReference = &ref
	}
	return line
}

// reload re-reads the booking for the response; a failed read falls back to
// the state observed before the write.
func (e *Engine) reload(ctx context.Context, booking *bookingdomain.Booking, outcome reconciliationdomain.Outcome) reconciliationdomain.Result {
	current, err := e.repo.FindByID(ctx, e.db, booking.ID)
	if err != nil || current == nil {
		current = booking
	}
	return e.buildResult(ctx, current, outcome, false)
}

func (e *Engine) buildResult(ctx context.Context, booking *bookingdomain.Booking, outcome reconciliationdomain.Outcome, success bool) reconciliationdomain.Result {
	result := reconciliationdomain.Result{
		Success:       success,
		Outcome:       outcome,
		PaymentStatus: booking.PaymentStatus,
	}
	details, warnings := e.loadDetails(ctx, booking)
	view := bookingdomain.NewBookingDetailsView(*details)
	result.Booking = &view
	result.Warnings = warnings
	return result
}

// loadDetails never fails; without display data it returns the bare booking
// and a warning.
func (e *Engine) loadDetails(ctx context.Context, booking *bookingdomain.Booking) (*bookingdomain.BookingDetails, []string) {
	details, err := e.repo.FindDetails(ctx, e.db, booking.ID)
	if err == nil && details != nil {
		return details, nil
	}
	if err != nil {
		logger.WithContext(ctx, e.log).Warn("failed to load booking details",
			zap.String("booking_id", booking.ID.String()),
			zap.Error(err),
		)
	}
	return &bookingdomain.BookingDetails{Booking: *booking}, []string{reconciliationdomain.WarnBookingDetailsUnavailable}
}

func stampCorrelation(fields map[string]any, evidence reconciliationdomain.Evidence) {
	if evidence.SessionID != "" {
		fields["external_session_id"] = gorm.Expr("COALESCE(external_session_id, ?)", evidence.SessionID)
	}
	if evidence.PaymentIntentID != "" {
		fields["payment_intent_id"] = gorm.Expr("COALESCE(payment_intent_id, ?)", evidence.PaymentIntentID)
	}
}

func outcomeFor(rows int64) reconciliationdomain.Outcome {
	if rows > 0 {
		return reconciliationdomain.OutcomeTransitioned
	}
	return reconciliationdomain.OutcomeNoOp
}

func minimalPaidView(id snowflake.ID) *bookingdomain.BookingView {
	return &bookingdomain.BookingView{
		ID:            id.String(),
		Status:        bookingdomain.BookingStatusConfirmed,
		PaymentStatus: bookingdomain.PaymentStatusPaid,
	}
}
