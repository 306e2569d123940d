package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"vendora/internal/config"
	"vendora/internal/database"
	"vendora/internal/export"
	"vendora/internal/gateway"
	"vendora/internal/metrics"
	"vendora/internal/models"
	"vendora/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// BookingService is the slice of the service layer the HTTP API needs.
type BookingService interface {
	CreateBooking(ctx context.Context, input *service.CreateBookingInput) (*models.Booking, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ApproveBooking(ctx context.Context, bookingID, vendorID int64) error
	DeclineBooking(ctx context.Context, bookingID, vendorID int64) error
	StartOnlinePayment(ctx context.Context, bookingID, userID int64) (string, error)
	AttachPaymentProof(ctx context.Context, bookingID, userID int64, proofRef string) error
	FinancialTotals(ctx context.Context) (map[string]int64, error)
}

// WebhookProcessor dispatches a verified gateway event.
type WebhookProcessor interface {
	Process(ctx context.Context, event *gateway.Event) error
}

// LedgerReader lists payment error records for operator views.
type LedgerReader interface {
	ListRecentPaymentErrors(ctx context.Context, limit int) ([]*models.PaymentErrorRecord, error)
	ListPaymentErrorsForBooking(ctx context.Context, bookingID int64) ([]*models.PaymentErrorRecord, error)
}

// HTTPServer exposes the booking API and the gateway webhook endpoint.
type HTTPServer struct {
	cfg           config.APIConfig
	bookings      BookingService
	webhook       WebhookProcessor
	ledger        LedgerReader
	exporter      *export.Exporter
	webhookSecret string
	server        *http.Server
	auth          *HTTPAuth
	logger        zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	webhookSecret string,
	bookings BookingService,
	webhook WebhookProcessor,
	ledger LedgerReader,
	exporter *export.Exporter,
	logger *zerolog.Logger,
) *HTTPServer {
	srv := &HTTPServer{
		cfg:           cfg,
		bookings:      bookings,
		webhook:       webhook,
		ledger:        ledger,
		exporter:      exporter,
		webhookSecret: webhookSecret,
		logger:        logger.With().Str("component", "http").Logger(),
	}
	srv.auth = NewHTTPAuth(cfg)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/v1/bookings", srv.handleBookings)
	apiMux.HandleFunc("/api/v1/bookings/", srv.handleBookingByID)
	apiMux.HandleFunc("/api/v1/reports/financial", srv.handleFinancialReport)
	apiMux.HandleFunc("/api/v1/payment-errors", srv.handlePaymentErrors)

	// The webhook authenticates by payload signature, not API key.
	root := http.NewServeMux()
	root.Handle("/api/v1/", srv.auth.Wrap(apiMux))
	root.HandleFunc("/webhooks/payment", srv.handleWebhook)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(root),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the assembled handler, used by tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("/webhooks/payment")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	signature := strings.TrimSpace(r.Header.Get("X-Gateway-Signature"))
	event, err := gateway.VerifyAndParseEvent(raw, signature, s.webhookSecret)
	if err != nil {
		// Rejected before any state was touched.
		s.logger.Warn().Err(err).Msg("webhook rejected")
		if errors.Is(err, gateway.ErrInvalidSignature) {
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	if err := s.webhook.Process(r.Context(), event); err != nil {
		// The only response that makes the gateway redeliver.
		writeError(w, http.StatusInternalServerError, "event processing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("/api/v1/bookings")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var input service.CreateBookingInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	booking, err := s.bookings.CreateBooking(r.Context(), &input)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleBookingByID(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/bookings/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "booking id is required")
		return
	}

	bookingID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || bookingID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.handleGetBooking(w, r, bookingID)
	case len(parts) == 2 && r.Method == http.MethodPost:
		s.handleBookingAction(w, r, bookingID, parts[1])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request, bookingID int64) {
	metrics.IncHTTP("/api/v1/bookings/{id}")

	booking, err := s.bookings.GetBooking(r.Context(), bookingID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleBookingAction(w http.ResponseWriter, r *http.Request, bookingID int64, action string) {
	metrics.IncHTTP("/api/v1/bookings/{id}/" + action)

	type actionRequest struct {
		VendorID int64  `json:"vendor_id"`
		UserID   int64  `json:"user_id"`
		ProofRef string `json:"proof_ref"`
	}

	var body actionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx := r.Context()
	switch action {
	case "approve":
		if err := s.bookings.ApproveBooking(ctx, bookingID, body.VendorID); err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": models.StatusConfirmed})
	case "decline":
		if err := s.bookings.DeclineBooking(ctx, bookingID, body.VendorID); err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": models.StatusCancelled})
	case "pay":
		ref, err := s.bookings.StartOnlinePayment(ctx, bookingID, body.UserID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"authorization_ref": ref})
	case "proof":
		if err := s.bookings.AttachPaymentProof(ctx, bookingID, body.UserID, body.ProofRef); err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"attached": true})
	default:
		writeError(w, http.StatusNotFound, "unknown action")
	}
}

func (s *HTTPServer) handleFinancialReport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("/api/v1/reports/financial")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	totals, err := s.bookings.FinancialTotals(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "xlsx") {
		records, err := s.ledger.ListRecentPaymentErrors(r.Context(), models.DefaultLedgerPageSize)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="financial.xlsx"`)
		if err := s.exporter.WriteFinancialReport(w, totals, records); err != nil {
			s.logger.Error().Err(err).Msg("failed to stream report")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"totals_by_status": totals})
}

func (s *HTTPServer) handlePaymentErrors(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("/api/v1/payment-errors")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if rawID := strings.TrimSpace(r.URL.Query().Get("booking_id")); rawID != "" {
		bookingID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || bookingID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid booking_id")
			return
		}
		records, err := s.ledger.ListPaymentErrorsForBooking(r.Context(), bookingID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"errors": records})
		return
	}

	limit := models.DefaultLedgerPageSize
	if rawLimit := strings.TrimSpace(r.URL.Query().Get("limit")); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	records, err := s.ledger.ListRecentPaymentErrors(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": records})
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, database.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking not found")
	case errors.Is(err, service.ErrActorMismatch):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrActionNotAllowed), errors.Is(err, service.ErrWrongPaymentPath):
		writeError(w, http.StatusConflict, err.Error())
	default:
		if _, ok := gateway.AsGatewayError(err); ok {
			writeError(w, http.StatusBadGateway, "payment gateway error")
			return
		}
		s.logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg      config.APIConfig
	clients  map[string]config.APIClientKey
	limiters sync.Map // map[string]*rate.Limiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled || !a.cfg.HTTP.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if err == errPermissionDenied {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

var errPermissionDenied = fmt.Errorf("permission denied")

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKeyHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = "x-api-key"
	}
	extraHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderExtra))
	if extraHeader == "" {
		extraHeader = "x-api-extra"
	}

	apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader))
	extra := strings.TrimSpace(r.Header.Get(extraHeader))
	if apiKey == "" || extra == "" {
		return fmt.Errorf("missing api key headers")
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return fmt.Errorf("invalid api key")
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return fmt.Errorf("invalid extra header")
	}

	return a.checkPermissions(client, r)
}

func (a *HTTPAuth) checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermissionHTTP(r)
	if required == "" {
		return nil
	}
	if len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermissionHTTP(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/bookings"):
		if r.Method == http.MethodGet {
			return "read:bookings"
		}
		return "write:bookings"
	case strings.HasPrefix(path, "/api/v1/reports"):
		return "read:reports"
	case path == "/api/v1/payment-errors":
		return "read:reports"
	}
	return ""
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	key := a.clientKey(r)
	lim := a.getLimiter(key)
	if !lim.Allow() {
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	apiKeyHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = "x-api-key"
	}

	if apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *HTTPAuth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
