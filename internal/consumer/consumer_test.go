package consumer

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"vendora/internal/database"
	"vendora/internal/gateway"
	"vendora/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateBooking(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockRepo) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockRepo) TransitionStatus(ctx context.Context, id int64, newStatus string, expectedPrior ...string) (bool, error) {
	args := m.Called(ctx, id, newStatus, expectedPrior)
	return args.Bool(0), args.Error(1)
}
func (m *mockRepo) ListByStatusOlderThan(ctx context.Context, status string, cutoff time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, status, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockRepo) SetExternalPaymentRef(ctx context.Context, id int64, ref string) (bool, error) {
	args := m.Called(ctx, id, ref)
	return args.Bool(0), args.Error(1)
}
func (m *mockRepo) FindByExternalPaymentRef(ctx context.Context, ref string) (*models.Booking, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockRepo) AttachPaymentProof(ctx context.Context, id int64, proofRef string) (bool, error) {
	args := m.Called(ctx, id, proofRef)
	return args.Bool(0), args.Error(1)
}
func (m *mockRepo) FinancialTotalsByStatus(ctx context.Context) (map[string]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) AppendPaymentError(ctx context.Context, rec *models.PaymentErrorRecord) error {
	return m.Called(ctx, rec).Error(0)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateAuthorization(ctx context.Context, amountCents int64, meta models.PaymentMetadata) (string, error) {
	args := m.Called(ctx, amountCents, meta)
	return args.String(0), args.Error(1)
}
func (m *mockGateway) Capture(ctx context.Context, ref string) (string, error) {
	args := m.Called(ctx, ref)
	return args.String(0), args.Error(1)
}

type mockReplay struct {
	mock.Mock
}

func (m *mockReplay) MarkIfFirst(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}
func (m *mockReplay) Forget(ctx context.Context, eventID string) error {
	return m.Called(ctx, eventID).Error(0)
}

func testLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func pendingPaymentBooking() *models.Booking {
	return &models.Booking{
		ID:               77,
		UserID:           5,
		VendorID:         9,
		PaymentPath:      models.PathOnline,
		Status:           models.StatusPendingPayment,
		FinalAmountCents: 150_00,
	}
}

func TestProcessAuthorizationSucceeded(t *testing.T) {
	repo := new(mockRepo)
	ledger := new(mockLedger)
	gw := new(mockGateway)

	booking := pendingPaymentBooking()
	event := &gateway.Event{
		ID:               "evt_1",
		Kind:             gateway.KindAuthorizationSucceeded,
		RawKind:          "authorization.succeeded",
		AuthorizationRef: "auth_abc",
		Metadata:         models.PaymentMetadata{BookingID: 77, UserID: 5},
	}

	repo.On("GetBooking", mock.Anything, int64(77)).Return(booking, nil)
	repo.On("TransitionStatus", mock.Anything, int64(77), models.StatusCompleted,
		[]string{models.StatusPendingPayment, models.StatusConfirmed}).Return(true, nil)
	repo.On("SetExternalPaymentRef", mock.Anything, int64(77), "auth_abc").Return(true, nil)
	gw.On("Capture", mock.Anything, "auth_abc").Return("cap_1", nil)

	c := New(repo, ledger, gw, nil, nil, nil, testLogger())
	err := c.Process(context.Background(), event)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
	gw.AssertExpectations(t)
	ledger.AssertNotCalled(t, "AppendPaymentError", mock.Anything, mock.Anything)
}

func TestProcessRedeliveryIsSilent(t *testing.T) {
	repo := new(mockRepo)
	ledger := new(mockLedger)
	gw := new(mockGateway)

	// Booking already completed: the conditional transition declines and the
	// redelivery is acknowledged without capture or ledger writes.
	booking := pendingPaymentBooking()
	booking.Status = models.StatusCompleted

	event := &gateway.Event{
		ID:               "evt_1",
		Kind:             gateway.KindAuthorizationSucceeded,
		RawKind:          "authorization.succeeded",
		AuthorizationRef: "auth_abc",
		Metadata:         models.PaymentMetadata{BookingID: 77},
	}

	repo.On("GetBooking", mock.Anything, int64(77)).Return(booking, nil)
	repo.On("TransitionStatus", mock.Anything, int64(77), models.StatusCompleted,
		[]string{models.StatusPendingPayment, models.StatusConfirmed}).Return(false, nil)

	c := New(repo, ledger, gw, nil, nil, nil, testLogger())
	err := c.Process(context.Background(), event)

	assert.NoError(t, err)
	gw.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything)
	ledger.AssertNotCalled(t, "AppendPaymentError", mock.Anything, mock.Anything)
}

func TestProcessReplayCacheShortCircuit(t *testing.T) {
	repo := new(mockRepo)
	ledger := new(mockLedger)
	replay := new(mockReplay)

	replay.On("MarkIfFirst", mock.Anything, "evt_1").Return(false, nil)

	event := &gateway.Event{
		ID:       "evt_1",
		Kind:     gateway.KindAuthorizationSucceeded,
		RawKind:  "authorization.succeeded",
		Metadata: models.PaymentMetadata{BookingID: 77},
	}

	c := New(repo, ledger, nil, nil, nil, replay, testLogger())
	err := c.Process(context.Background(), event)

	assert.NoError(t, err)
	repo.AssertNotCalled(t, "GetBooking", mock.Anything, mock.Anything)
	replay.AssertExpectations(t)
}

func TestProcessAuthorizationFailed(t *testing.T) {
	repo := new(mockRepo)
	ledger := new(mockLedger)

	booking := pendingPaymentBooking()
	event := &gateway.Event{
		ID:       "evt_2",
		Kind:     gateway.KindAuthorizationFailed,
		RawKind:  "authorization.failed",
		Metadata: models.PaymentMetadata{BookingID: 77},
	}

	repo.On("GetBooking", mock.Anything, int64(77)).Return(booking, nil)
	repo.On("TransitionStatus", mock.Anything, int64(77), models.StatusPaymentFailed,
		[]string{models.StatusPendingPayment}).Return(true, nil)

	c := New(repo, ledger, nil, nil, nil, nil, testLogger())
	err := c.Process(context.Background(), event)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestProcessRefundUnresolvableRef(t *testing.T) {
	repo := new(mockRepo)
	ledger := new(mockLedger)

	event := &gateway.Event{
		ID:               "evt_3",
		Kind:             gateway.KindChargeRefunded,
		RawKind:          "charge.refunded",
		AuthorizationRef: "auth_unknown",
	}

	repo.On("FindByExternalPaymentRef", mock.Anything, "auth_unknown").
		Return(nil, database.ErrBookingNotFound)
	ledger.On("AppendPaymentError", mock.Anything, mock.MatchedBy(func(rec *models.PaymentErrorRecord) bool {
		return rec.Code == models.ErrCodeUnresolvableEvent
	})).Return(nil)

	c := New(repo, ledger, nil, nil, nil, nil, testLogger())
	err := c.Process(context.Background(), event)

	// Unresolvable events are recorded and acknowledged, never retried.
	assert.NoError(t, err)
	repo.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestProcessRefundFromCompleted(t *testing.T) {
	repo := new(mockRepo)
	ledger := new(mockLedger)

	booking := pendingPaymentBooking()
	booking.Status = models.StatusCompleted

	event := &gateway.Event{
		ID:               "evt_4",
		Kind:             gateway.KindChargeRefunded,
		RawKind:          "charge.refunded",
		AuthorizationRef: "auth_abc",
	}

	repo.On("FindByExternalPaymentRef", mock.Anything, "auth_abc").Return(booking, nil)
	repo.On("TransitionStatus", mock.Anything, int64(77), models.StatusRefunded,
		[]string{models.StatusCompleted}).Return(true, nil)

	c := New(repo, ledger, nil, nil, nil, nil, testLogger())
	err := c.Process(context.Background(), event)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestProcessUnknownKindGoesToLedger(t *testing.T) {
	repo := new(mockRepo)
	ledger := new(mockLedger)

	event := &gateway.Event{
		ID:      "evt_5",
		Kind:    gateway.KindUnknown,
		RawKind: "charge.disputed",
	}

	ledger.On("AppendPaymentError", mock.Anything, mock.MatchedBy(func(rec *models.PaymentErrorRecord) bool {
		return rec.Code == models.ErrCodeUnresolvableEvent
	})).Return(nil)

	c := New(repo, ledger, nil, nil, nil, nil, testLogger())
	err := c.Process(context.Background(), event)

	assert.NoError(t, err)
	ledger.AssertExpectations(t)
}

func TestProcessCaptureFailureIsRecordedNotRetried(t *testing.T) {
	repo := new(mockRepo)
	ledger := new(mockLedger)
	gw := new(mockGateway)

	booking := pendingPaymentBooking()
	event := &gateway.Event{
		ID:               "evt_6",
		Kind:             gateway.KindAuthorizationSucceeded,
		RawKind:          "authorization.succeeded",
		AuthorizationRef: "auth_abc",
		Metadata:         models.PaymentMetadata{BookingID: 77},
	}

	repo.On("GetBooking", mock.Anything, int64(77)).Return(booking, nil)
	repo.On("TransitionStatus", mock.Anything, int64(77), models.StatusCompleted,
		[]string{models.StatusPendingPayment, models.StatusConfirmed}).Return(true, nil)
	repo.On("SetExternalPaymentRef", mock.Anything, int64(77), "auth_abc").Return(true, nil)
	gw.On("Capture", mock.Anything, "auth_abc").
		Return("", &gateway.GatewayError{Code: gateway.CodeUnavailable, Message: "timeout"})
	ledger.On("AppendPaymentError", mock.Anything, mock.MatchedBy(func(rec *models.PaymentErrorRecord) bool {
		return rec.Code == models.ErrCodeCaptureFailure && rec.BookingID != nil && *rec.BookingID == 77
	})).Return(nil)

	c := New(repo, ledger, gw, nil, nil, nil, testLogger())
	err := c.Process(context.Background(), event)

	// Capture failure after a committed transition is a ledger entry, not a
	// redelivery.
	assert.NoError(t, err)
	ledger.AssertExpectations(t)
}

func TestProcessInfrastructureErrorTriggersRetry(t *testing.T) {
	repo := new(mockRepo)
	ledger := new(mockLedger)
	replay := new(mockReplay)

	event := &gateway.Event{
		ID:       "evt_7",
		Kind:     gateway.KindAuthorizationSucceeded,
		RawKind:  "authorization.succeeded",
		Metadata: models.PaymentMetadata{BookingID: 77},
	}

	replay.On("MarkIfFirst", mock.Anything, "evt_7").Return(true, nil)
	replay.On("Forget", mock.Anything, "evt_7").Return(nil)
	repo.On("GetBooking", mock.Anything, int64(77)).Return(nil, errors.New("disk failure"))
	ledger.On("AppendPaymentError", mock.Anything, mock.MatchedBy(func(rec *models.PaymentErrorRecord) bool {
		return rec.Code == models.ErrCodeDispatchFailure
	})).Return(nil)

	c := New(repo, ledger, nil, nil, nil, replay, testLogger())
	err := c.Process(context.Background(), event)

	assert.Error(t, err)
	replay.AssertExpectations(t)
	ledger.AssertExpectations(t)
}
