package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	admindomain "github.com/smallbiznis/staybook/internal/adminaction/domain"
	"github.com/smallbiznis/staybook/internal/auth"
	"github.com/smallbiznis/staybook/internal/authorization"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/lock"
	"github.com/smallbiznis/staybook/internal/notification/sideeffect"
	"github.com/smallbiznis/staybook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/staybook/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
	dbpkg "github.com/smallbiznis/staybook/pkg/db"
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
	Authz       authorization.Service `optional:"true"`
	Locker      *lock.BookingLocker   `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics   `optional:"true"`
}

// Service applies privileged booking transitions. State writes are strict;
// notifications and emails are best-effort and surface as warnings.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        bookingdomain.Repository
	gateway     paymentdomain.Gateway
	sideEffects *sideeffect.Runner
	clock       clock.Clock
	authz       authorization.Service
	locker      *lock.BookingLocker
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) admindomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("adminaction.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		gateway:     p.Gateway,
		sideEffects: p.SideEffects,
		clock:       clk,
		authz:       p.Authz,
		locker:      p.Locker,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) Process(ctx context.Context, req admindomain.Request) (admindomain.Result, error) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return admindomain.Result{}, admindomain.ErrUnauthorized
	}
	action, err := admindomain.ParseAction(string(req.Action))
	if err != nil {
		return admindomain.Result{}, err
	}
	if err := s.authorize(ctx, identity, action); err != nil {
		s.obsMetrics.RecordAdminAction(ctx, string(action), admindomain.OutcomeRejected)
		return admindomain.Result{}, err
	}
	if req.BookingID == 0 {
		return admindomain.Result{}, bookingdomain.ErrInvalidBooking
	}
	req.Reason = strings.TrimSpace(req.Reason)

	var refundMinor int64
	if action == admindomain.ActionRefund {
		refundMinor = bookingdomain.ToMinorUnits(req.RefundAmount)
		if refundMinor <= 0 {
			s.obsMetrics.RecordAdminAction(ctx, string(action), admindomain.OutcomeRejected)
			return admindomain.Result{}, admindomain.ErrInvalidRefundAmount
		}
	}

	booking, err := s.repo.FindByID(ctx, s.db, req.BookingID)
	if err != nil {
		return admindomain.Result{}, err
	}
	if booking == nil {
		return admindomain.Result{}, bookingdomain.ErrBookingNotFound
	}

	log := logger.WithBooking(logger.WithContext(ctx, s.log), booking.ID.String())
	log = logger.WithActor(log, identity.Role, identity.UserID.String()).With(zap.String("action", string(action)))

	var result admindomain.Result
	switch action {
	case admindomain.ActionMarkPaid:
		result, err = s.markPaid(ctx, log, identity, booking, req.Reason)
	case admindomain.ActionCancel:
		result, err = s.cancel(ctx, log, booking, req.Reason)
	case admindomain.ActionRefund:
		result, err = s.refund(ctx, log, identity, booking, req.Reason, refundMinor)
	}
	if err != nil {
		s.obsMetrics.RecordAdminAction(ctx, string(action), outcomeForError(err))
		log.Warn("admin action failed", zap.Error(err))
		return admindomain.Result{}, err
	}

	s.obsMetrics.RecordAdminAction(ctx, string(action), result.Outcome)
	log.Info("admin action processed",
		zap.String("outcome", result.Outcome),
		zap.Strings("warnings", result.Warnings),
	)
	return result, nil
}

func (s *Service) authorize(ctx context.Context, identity auth.Identity, action admindomain.Action) error {
	if s.authz == nil {
		if !identity.IsAdmin() {
			return admindomain.ErrForbidden
		}
		return nil
	}
	err := s.authz.Authorize(ctx, identity.Role, authorization.ObjectBooking, "booking:"+string(action))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authorization.ErrForbidden), errors.Is(err, authorization.ErrInvalidRole):
		return admindomain.ErrForbidden
	default:
		return err
	}
}

func (s *Service) markPaid(ctx context.Context, log *zap.Logger, identity auth.Identity, booking *bookingdomain.Booking, reason string) (admindomain.Result, error) {
	if booking.Status == bookingdomain.BookingStatusCancelled {
		return admindomain.Result{}, fmt.Errorf("%w: cancelled booking cannot be marked as paid", admindomain.ErrIllegalTransition)
	}
	if booking.PaymentStatus == bookingdomain.PaymentStatusPaid {
		return s.noOp(ctx, booking, "Booking already marked as paid"), nil
	}

	now := s.clock.Now().UTC()
	fields := map[string]any{
		"payment_status": bookingdomain.PaymentStatusPaid,
		"status": gorm.Expr("CASE WHEN status = ? THEN status ELSE ? END",
			bookingdomain.BookingStatusCompleted, bookingdomain.BookingStatusConfirmed),
		"payment_method": bookingdomain.PaymentMethodBankTransfer,
		"updated_at":     now,
	}
	cond := bookingdomain.Condition{
		StatusNotIn: []bookingdomain.BookingStatus{bookingdomain.BookingStatusCancelled},
		PaymentStatusIn: []bookingdomain.PaymentStatus{
			bookingdomain.PaymentStatusPending,
			bookingdomain.PaymentStatusProcessing,
			bookingdomain.PaymentStatusFailed,
		},
	}

	var rows int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rows, err = s.repo.ConditionalUpdate(ctx, tx, booking.ID, fields, cond)
		if err != nil || rows == 0 {
			return err
		}
		line := s.ledgerLine(booking, bookingdomain.TransactionTypeBankTransfer, booking.TotalAmount, now, map[string]any{
			"approved_by": identity.UserID.String(),
			"reason":      reason,
		})
		line.PaymentMethodType = bookingdomain.PaymentMethodBankTransfer
		return s.repo.InsertTransaction(ctx, tx, line)
	})
	if err != nil {
		return admindomain.Result{}, fmt.Errorf("mark booking paid: %w", err)
	}

	if rows == 0 {
		current, err := s.repo.FindByID(ctx, s.db, booking.ID)
		if err != nil {
			return admindomain.Result{}, err
		}
		if current != nil && current.PaymentStatus == bookingdomain.PaymentStatusPaid {
			return s.noOp(ctx, current, "Booking already marked as paid"), nil
		}
		return admindomain.Result{}, fmt.Errorf("%w: payment status no longer allows mark_paid", admindomain.ErrIllegalTransition)
	}

	log.Info("booking marked as paid", zap.String("reason", reason))
	effectsCtx := context.WithoutCancel(ctx)
	details, warnings := s.loadDetails(effectsCtx, booking.ID)
	if details != nil {
		warnings = append(warnings, s.sideEffects.BookingConfirmed(effectsCtx, details)...)
	}
	return s.applied(ctx, booking.ID, details, "Booking marked as paid", warnings), nil
}

func (s *Service) cancel(ctx context.Context, log *zap.Logger, booking *bookingdomain.Booking, reason string) (admindomain.Result, error) {
	switch {
	case booking.Status == bookingdomain.BookingStatusCompleted:
		return admindomain.Result{}, fmt.Errorf("%w: completed booking cannot be cancelled", admindomain.ErrIllegalTransition)
	case booking.Status == bookingdomain.BookingStatusCancelled:
		return s.noOp(ctx, booking, "Booking already cancelled"), nil
	case booking.PaymentStatus == bookingdomain.PaymentStatusPaid,
		booking.PaymentStatus == bookingdomain.PaymentStatusDisputed:
		return admindomain.Result{}, admindomain.ErrRefundRequired
	case booking.PaymentStatus == bookingdomain.PaymentStatusProcessing:
		return admindomain.Result{}, admindomain.ErrPaymentInFlight
	}

	now := s.clock.Now().UTC()
	fields := map[string]any{
		"status":              bookingdomain.BookingStatusCancelled,
		"cancellation_reason": nullableReason(reason),
		"cancelled_at":        now,
		"updated_at":          now,
	}
	reduced := map[string]any{
		"status":     bookingdomain.BookingStatusCancelled,
		"updated_at": now,
	}
	cond := bookingdomain.Condition{
		StatusNotIn: []bookingdomain.BookingStatus{bookingdomain.BookingStatusCancelled, bookingdomain.BookingStatusCompleted},
		PaymentStatusNotIn: []bookingdomain.PaymentStatus{
			bookingdomain.PaymentStatusPaid,
			bookingdomain.PaymentStatusDisputed,
			bookingdomain.PaymentStatusProcessing,
		},
	}

	var warnings []string
	rows, err := s.repo.ConditionalUpdate(ctx, s.db, booking.ID, fields, cond)
	if dbpkg.IsSchemaShapeErr(err) {
		log.Warn("cancel write rejected by schema, retrying with reduced field set", zap.Error(err))
		warnings = append(warnings, admindomain.WarnDegradedWrite)
		rows, err = s.repo.ConditionalUpdate(ctx, s.db, booking.ID, reduced, cond)
	}
	if err != nil {
		return admindomain.Result{}, fmt.Errorf("cancel booking: %w", err)
	}

	if rows == 0 {
		current, err := s.repo.FindByID(ctx, s.db, booking.ID)
		if err != nil {
			return admindomain.Result{}, err
		}
		switch {
		case current != nil && current.Status == bookingdomain.BookingStatusCancelled:
			return s.noOp(ctx, current, "Booking already cancelled"), nil
		case current != nil && current.PaymentStatus == bookingdomain.PaymentStatusProcessing:
			return admindomain.Result{}, admindomain.ErrPaymentInFlight
		case current != nil && (current.PaymentStatus == bookingdomain.PaymentStatusPaid ||
			current.PaymentStatus == bookingdomain.PaymentStatusDisputed):
			return admindomain.Result{}, admindomain.ErrRefundRequired
		}
		return admindomain.Result{}, fmt.Errorf("%w: booking changed while cancelling", admindomain.ErrIllegalTransition)
	}

	log.Info("booking cancelled", zap.String("reason", reason))
	effectsCtx := context.WithoutCancel(ctx)
	details, detailWarnings := s.loadDetails(effectsCtx, booking.ID)
	warnings = append(warnings, detailWarnings...)
	if details != nil {
		warnings = append(warnings, s.sideEffects.BookingCancelled(effectsCtx, details, reason)...)
	}
	return s.applied(ctx, booking.ID, details, "Booking cancelled", warnings), nil
}

// checkRefundable reports done=true when the booking already carries a refund.
func checkRefundable(booking *bookingdomain.Booking, amount int64) (done bool, err error) {
	switch {
	case booking.PaymentStatus.IsRefunded():
		return true, nil
	case booking.PaymentStatus != bookingdomain.PaymentStatusPaid:
		return false, admindomain.ErrNotRefundable
	case booking.PaymentIntentID == nil || strings.TrimSpace(*booking.PaymentIntentID) == "":
		return false, admindomain.ErrMissingPaymentIntent
	case amount > booking.TotalAmount:
		return false, admindomain.ErrRefundExceedsTotal
	}
	return false, nil
}

func (s *Service) refund(ctx context.Context, log *zap.Logger, identity auth.Identity, booking *bookingdomain.Booking, reason string, amount int64) (admindomain.Result, error) {
	if done, err := checkRefundable(booking, amount); done || err != nil {
		if err != nil {
			return admindomain.Result{}, err
		}
		return s.noOp(ctx, booking, "Booking already refunded"), nil
	}

	token, acquired, err := s.locker.TryLock(ctx, booking.ID, string(admindomain.ActionRefund))
	if err != nil {
		// The gateway idempotency key still guards the refund.
		log.Warn("refund lock unavailable", zap.Error(err))
	} else if !acquired {
		return admindomain.Result{}, admindomain.ErrRefundInProgress
	}
	if token != "" {
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), booking.ID, string(admindomain.ActionRefund), token); err != nil {
				log.Warn("failed to release refund lock", zap.Error(err))
			}
		}()
	}

	// A concurrent submission may have finished between the first read and
	// the lock.
	current, err := s.repo.FindByID(ctx, s.db, booking.ID)
	if err != nil {
		return admindomain.Result{}, err
	}
	if current == nil {
		return admindomain.Result{}, bookingdomain.ErrBookingNotFound
	}
	booking = current
	if done, err := checkRefundable(booking, amount); done || err != nil {
		if err != nil {
			return admindomain.Result{}, err
		}
		return s.noOp(ctx, booking, "Booking already refunded"), nil
	}

	refund, err := s.gateway.CreateRefund(ctx, paymentdomain.CreateRefundRequest{
		PaymentIntentID: strings.TrimSpace(*booking.PaymentIntentID),
		Amount:          amount,
		Reason:          reason,
		Metadata: map[string]string{
			"booking_id":  booking.ID.String(),
			"approved_by": identity.UserID.String(),
		},
		IdempotencyKey: fmt.Sprintf("refund:%s:%d", booking.ID.String(), amount),
	})
	if err != nil {
		s.obsMetrics.RecordRefund(ctx, admindomain.OutcomeFailed)
		return admindomain.Result{}, fmt.Errorf("create refund: %w", err)
	}
	log = log.With(zap.String("refund_id", refund.ID), zap.Int64("amount", amount))

	next := bookingdomain.PaymentStatusPartiallyRefunded
	if amount >= booking.TotalAmount {
		next = bookingdomain.PaymentStatusRefunded
	}

	now := s.clock.Now().UTC()
	cancellationReason := reason
	if cancellationReason == "" {
		cancellationReason = "refunded"
	}
	fields := map[string]any{
		"status":              bookingdomain.BookingStatusCancelled,
		"payment_status":      next,
		"refund_amount":       amount,
		"refund_date":         now,
		"refund_reason":       nullableReason(reason),
		"cancelled_at":        now,
		"cancellation_reason": cancellationReason,
		"updated_at":          now,
	}
	cond := bookingdomain.Condition{
		PaymentStatusIn: []bookingdomain.PaymentStatus{bookingdomain.PaymentStatusPaid},
	}
	line := s.ledgerLine(booking, bookingdomain.TransactionTypeRefund, amount, now, map[string]any{
		"approved_by": identity.UserID.String(),
		"reason":      reason,
		"refund_id":   refund.ID,
	})
	line.ProviderReference = &refund.ID

	var warnings []string
	var rows int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rows, err = s.repo.ConditionalUpdate(ctx, tx, booking.ID, fields, cond)
		if err != nil || rows == 0 {
			return err
		}
		return s.repo.InsertTransaction(ctx, tx, line)
	})
	if dbpkg.IsSchemaShapeErr(err) {
		log.Warn("refund write rejected by schema, retrying with reduced field set", zap.Error(err))
		warnings = append(warnings, admindomain.WarnDegradedWrite)
		rows, err = s.repo.ConditionalUpdate(ctx, s.db, booking.ID, map[string]any{
			"status":         bookingdomain.BookingStatusCancelled,
			"payment_status": next,
			"updated_at":     now,
		}, cond)
		if err == nil && rows == 1 {
			if ledgerErr := s.repo.InsertTransaction(ctx, s.db, line); ledgerErr != nil {
				log.Warn("refund ledger line not written", zap.Error(ledgerErr))
				warnings = append(warnings, admindomain.WarnLedgerWriteFailed)
			}
		}
	}
	if err == nil && rows == 0 {
		// Same idempotency key, so the gateway returned the refund another
		// submission already recorded.
		current, findErr := s.repo.FindByID(ctx, s.db, booking.ID)
		if findErr == nil && current != nil && current.PaymentStatus.IsRefunded() {
			log.Info("refund already recorded by a concurrent submission")
			result := s.noOp(ctx, current, "Booking already refunded")
			result.RefundID = refund.ID
			return result, nil
		}
		err = errors.New("booking no longer paid")
	}
	if err != nil {
		s.obsMetrics.RecordRefund(ctx, "update_failed")
		log.Error("refund processed but booking update failed", zap.Error(err))
		return admindomain.Result{}, &admindomain.RefundUpdateFailedError{
			BookingID: booking.ID,
			RefundID:  refund.ID,
			Err:       err,
		}
	}
	s.obsMetrics.RecordRefund(ctx, string(next))

	effectsCtx := context.WithoutCancel(ctx)
	details, detailWarnings := s.loadDetails(effectsCtx, booking.ID)
	warnings = append(warnings, detailWarnings...)
	if details != nil {
		warnings = append(warnings, s.sideEffects.BookingCancelled(effectsCtx, details, cancellationReason)...)
	}
	message := fmt.Sprintf("Refund of %.2f %s processed", bookingdomain.FromMinorUnits(amount), strings.ToUpper(booking.Currency))
	result := s.applied(ctx, booking.ID, details, message, warnings)
	result.RefundID = refund.ID
	return result, nil
}

func (s *Service) ledgerLine(booking *bookingdomain.Booking, kind bookingdomain.TransactionType, amount int64, now time.Time, meta map[string]any) *bookingdomain.PaymentTransaction {
	raw, _ := json.Marshal(meta)
	completed := now
	return &bookingdomain.PaymentTransaction{
		ID:                s.genID.Generate(),
		BookingID:         booking.ID,
		TransactionType:   kind,
		Amount:            amount,
		Currency:          booking.Currency,
		Status:            bookingdomain.TransactionStatusSucceeded,
		PaymentMethodType: paymentMethodOf(booking),
		CompletedAt:       &completed,
		Metadata:          datatypes.JSON(raw),
		CreatedAt:         now,
	}
}

func (s *Service) noOp(ctx context.Context, booking *bookingdomain.Booking, message string) admindomain.Result {
	details, warnings := s.loadDetails(ctx, booking.ID)
	if details == nil {
		details = &bookingdomain.BookingDetails{Booking: *booking}
	}
	view := bookingdomain.NewBookingDetailsView(*details)
	return admindomain.Result{
		Success:  true,
		Message:  message,
		Outcome:  admindomain.OutcomeNoOp,
		Booking:  &view,
		Warnings: warnings,
	}
}

func (s *Service) applied(ctx context.Context, id snowflake.ID, details *bookingdomain.BookingDetails, message string, warnings []string) admindomain.Result {
	result := admindomain.Result{
		Success:  true,
		Message:  message,
		Outcome:  admindomain.OutcomeApplied,
		Warnings: warnings,
	}
	if details != nil {
		view := bookingdomain.NewBookingDetailsView(*details)
		result.Booking = &view
	} else {
		result.Booking = &bookingdomain.BookingView{ID: id.String()}
	}
	return result
}

// loadDetails returns nil details and a warning when the read fails.
func (s *Service) loadDetails(ctx context.Context, id snowflake.ID) (*bookingdomain.BookingDetails, []string) {
	details, err := s.repo.FindDetails(ctx, s.db, id)
	if err == nil && details != nil {
		return details, nil
	}
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("failed to load booking details",
			zap.String("booking_id", id.String()),
			zap.Error(err),
		)
	}
	return nil, []string{admindomain.WarnDetailsUnavailable}
}

func paymentMethodOf(booking *bookingdomain.Booking) string {
	if booking.PaymentMethod != nil && *booking.PaymentMethod != "" {
		return *booking.PaymentMethod
	}
	return bookingdomain.PaymentMethodCard
}

func nullableReason(reason string) any {
	if reason == "" {
		return nil
	}
	return reason
}

func outcomeForError(err error) string {
	switch {
	case errors.Is(err, admindomain.ErrRefundUpdateFailed):
		return admindomain.OutcomeFailed
	case errors.Is(err, paymentdomain.ErrGateway):
		return admindomain.OutcomeFailed
	default:
		return admindomain.OutcomeRejected
	}
}
