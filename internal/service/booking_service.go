package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vendora/internal/database"
	"vendora/internal/domain"
	"vendora/internal/events"
	"vendora/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var (
	// ErrActionNotAllowed means the booking is past the state this action
	// expects. The conditional transition declined; nothing was changed.
	ErrActionNotAllowed = errors.New("booking state does not allow this action")

	// ErrActorMismatch means the caller does not own the side of the booking
	// this action belongs to.
	ErrActorMismatch = errors.New("actor is not a party to this booking")

	// ErrWrongPaymentPath means the action belongs to the other payment path.
	ErrWrongPaymentPath = errors.New("action does not match the booking's payment path")
)

// ValidationError carries field-level failures from booking creation input.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid booking input: %v", e.Fields)
}

// CreateBookingInput is the write shape for new bookings. The payment path is
// fixed here and never changes afterwards.
type CreateBookingInput struct {
	UserID              int64  `json:"user_id" validate:"required,gt=0"`
	EventID             int64  `json:"event_id" validate:"required,gt=0"`
	VendorID            int64  `json:"vendor_id" validate:"required,gt=0"`
	ServiceID           int64  `json:"service_id" validate:"required,gt=0"`
	ServiceDate         string `json:"service_date" validate:"required,datetime=2006-01-02"`
	FinalAmountCents    int64  `json:"final_amount_cents" validate:"gte=0"`
	DepositAmountCents  int64  `json:"deposit_amount_cents" validate:"gte=0"`
	PaymentPath         string `json:"payment_path" validate:"required,oneof=manual online"`
	SpecialInstructions string `json:"special_instructions" validate:"max=2000"`
}

type BookingService struct {
	repo     domain.BookingRepository
	ledger   domain.ErrorLedger
	gateway  domain.PaymentGateway
	eventBus domain.EventPublisher
	notifier domain.Notifier
	validate *validator.Validate
	logger   *zerolog.Logger
}

func NewBookingService(
	repo domain.BookingRepository,
	ledger domain.ErrorLedger,
	paymentGateway domain.PaymentGateway,
	eventBus domain.EventPublisher,
	notifier domain.Notifier,
	logger *zerolog.Logger,
) *BookingService {
	return &BookingService{
		repo:     repo,
		ledger:   ledger,
		gateway:  paymentGateway,
		eventBus: eventBus,
		notifier: notifier,
		validate: validator.New(),
		logger:   logger,
	}
}

// CreateBooking validates the input and persists a new booking in its
// path-dependent initial status.
func (s *BookingService) CreateBooking(ctx context.Context, input *CreateBookingInput) (*models.Booking, error) {
	if err := s.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return nil, &ValidationError{Fields: fields}
		}
		return nil, err
	}

	serviceDate, err := time.Parse("2006-01-02", input.ServiceDate)
	if err != nil {
		return nil, &ValidationError{Fields: []string{"ServiceDate"}}
	}

	booking := &models.Booking{
		UserID:              input.UserID,
		EventID:             input.EventID,
		VendorID:            input.VendorID,
		ServiceID:           input.ServiceID,
		ServiceDate:         serviceDate,
		FinalAmountCents:    input.FinalAmountCents,
		DepositAmountCents:  input.DepositAmountCents,
		SpecialInstructions: input.SpecialInstructions,
		PaymentPath:         input.PaymentPath,
		Status:              models.InitialStatus(input.PaymentPath),
	}

	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		return nil, err
	}

	s.publishEvent(booking, booking.Status, events.EventBookingCreated, "")
	s.notify(ctx, booking, booking.Status)

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Str("payment_path", booking.PaymentPath).
		Str("status", booking.Status).
		Msg("booking created")
	return booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// ApproveBooking is the vendor confirming a manual-path booking after
// reviewing the attached payment proof.
func (s *BookingService) ApproveBooking(ctx context.Context, bookingID, vendorID int64) error {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.VendorID != vendorID {
		return ErrActorMismatch
	}

	applied, err := s.repo.TransitionStatus(ctx, bookingID, models.StatusConfirmed, models.StatusPendingReview)
	if err != nil {
		return err
	}
	if !applied {
		return ErrActionNotAllowed
	}

	s.publishEvent(booking, models.StatusConfirmed, events.EventBookingConfirmed, "")
	s.notify(ctx, booking, models.StatusConfirmed)
	return nil
}

// DeclineBooking is the vendor rejecting a manual-path booking under review.
func (s *BookingService) DeclineBooking(ctx context.Context, bookingID, vendorID int64) error {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.VendorID != vendorID {
		return ErrActorMismatch
	}

	applied, err := s.repo.TransitionStatus(ctx, bookingID, models.StatusCancelled, models.StatusPendingReview)
	if err != nil {
		return err
	}
	if !applied {
		return ErrActionNotAllowed
	}

	s.publishEvent(booking, models.StatusCancelled, events.EventBookingCancelled, "")
	s.notify(ctx, booking, models.StatusCancelled)
	return nil
}

// StartOnlinePayment places an authorization hold for an online-path booking
// and records the gateway reference. Safe to call repeatedly: once a
// reference exists it is returned instead of creating a second hold.
func (s *BookingService) StartOnlinePayment(ctx context.Context, bookingID, userID int64) (string, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return "", err
	}
	if booking.UserID != userID {
		return "", ErrActorMismatch
	}
	if booking.PaymentPath != models.PathOnline {
		return "", ErrWrongPaymentPath
	}
	if booking.Status != models.StatusPendingPayment {
		return "", ErrActionNotAllowed
	}
	if booking.ExternalPaymentRef != nil {
		return *booking.ExternalPaymentRef, nil
	}

	meta := models.PaymentMetadata{BookingID: booking.ID, UserID: booking.UserID}
	ref, err := s.gateway.CreateAuthorization(ctx, booking.FinalAmountCents, meta)
	if err != nil {
		s.recordPaymentError(ctx, booking, models.ErrCodeGatewayFailure, err.Error())
		return "", err
	}

	applied, err := s.repo.SetExternalPaymentRef(ctx, bookingID, ref)
	if err != nil {
		return "", err
	}
	if !applied {
		// A concurrent call won the race; its reference is the one on record.
		s.recordPaymentError(ctx, booking, models.ErrCodeDuplicateAuthorization,
			fmt.Sprintf("authorization %s created for booking that already holds a reference", ref))
		current, err := s.repo.GetBooking(ctx, bookingID)
		if err != nil {
			return "", err
		}
		if current.ExternalPaymentRef != nil {
			return *current.ExternalPaymentRef, nil
		}
		return "", database.ErrPaymentRefTaken
	}

	s.logger.Info().
		Int64("booking_id", bookingID).
		Str("authorization_ref", ref).
		Msg("authorization hold placed")
	return ref, nil
}

// AttachPaymentProof stores the user's proof-of-payment reference on a
// manual-path booking still under review.
func (s *BookingService) AttachPaymentProof(ctx context.Context, bookingID, userID int64, proofRef string) error {
	if proofRef == "" {
		return &ValidationError{Fields: []string{"ProofRef"}}
	}

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.UserID != userID {
		return ErrActorMismatch
	}
	if booking.PaymentPath != models.PathManual {
		return ErrWrongPaymentPath
	}

	applied, err := s.repo.AttachPaymentProof(ctx, bookingID, proofRef)
	if err != nil {
		return err
	}
	if !applied {
		return ErrActionNotAllowed
	}

	s.notify(ctx, booking, booking.Status)
	return nil
}

// FinancialTotals reports the sum of final amounts grouped by status.
func (s *BookingService) FinancialTotals(ctx context.Context) (map[string]int64, error) {
	return s.repo.FinancialTotalsByStatus(ctx)
}

func (s *BookingService) publishEvent(booking *models.Booking, status, eventType, paymentRef string) {
	if s.eventBus == nil {
		return
	}
	payload := events.BookingEventPayload{
		BookingID:  booking.ID,
		UserID:     booking.UserID,
		VendorID:   booking.VendorID,
		Status:     status,
		PaymentRef: paymentRef,
		OccurredAt: time.Now(),
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Int64("booking_id", booking.ID).Msg("failed to publish event")
	}
}

func (s *BookingService) notify(ctx context.Context, booking *models.Booking, status string) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyStatusChange(ctx, booking.ID, status, []int64{booking.UserID, booking.VendorID})
}

func (s *BookingService) recordPaymentError(ctx context.Context, booking *models.Booking, code, message string) {
	if s.ledger == nil {
		return
	}
	rec := &models.PaymentErrorRecord{
		BookingID: &booking.ID,
		UserID:    &booking.UserID,
		Code:      code,
		Message:   message,
	}
	if err := s.ledger.AppendPaymentError(ctx, rec); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("failed to append payment error record")
	}
}
