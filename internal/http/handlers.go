package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	mongoadapter "github.com/photobook/bookings-and-payments/internal/adapters/mongo"
	"github.com/photobook/bookings-and-payments/internal/adapters/postgres"
	"github.com/photobook/bookings-and-payments/internal/config"
	"github.com/photobook/bookings-and-payments/internal/domain"
	"github.com/photobook/bookings-and-payments/internal/geo"
	"github.com/photobook/bookings-and-payments/internal/idempotency"
	"github.com/photobook/bookings-and-payments/internal/observability"
	"github.com/photobook/bookings-and-payments/internal/payments"
)

// The handler layer depends on these narrow interfaces rather than the
// concrete adapters so tests can substitute fakes without touching the
// environment. The production wiring in cmd/api satisfies all of them with
// the real adapters.

type BookingStore interface {
	Ping(ctx context.Context) error
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	CreateBooking(ctx context.Context, tx pgx.Tx, b domain.Booking) error
	AttachPaymentIntent(ctx context.Context, bookingID uuid.UUID, intentID string) error
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	ApplyPaymentEvent(ctx context.Context, tx pgx.Tx, intentID string, kind domain.PaymentEventKind) (uuid.UUID, domain.Status, bool, error)
	InsertOutbox(ctx context.Context, tx pgx.Tx, rec postgres.OutboxRecord) error
}

type PaymentProcessor interface {
	CreateDepositIntent(ctx context.Context, p payments.DepositIntentParams) (*payments.DepositIntent, error)
	Refund(ctx context.Context, paymentIntentID string, amountCents int64, reason string) (*payments.RefundResult, error)
}

type ProfileDirectory interface {
	GetPhotographer(ctx context.Context, id string) (*mongoadapter.PhotographerDoc, error)
}

type AnomalyLog interface {
	LogEvent(ctx context.Context, action string, data map[string]interface{}) error
	LogUnmatchedIntent(ctx context.Context, eventType, paymentIntentID string) error
	LogClientConfirmation(ctx context.Context, bookingID, reportedStatus, persistedStatus string) error
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*idempotency.Response, error)
	Set(ctx context.Context, key string, resp idempotency.Response) error
}

type Geocoder interface {
	Geocode(ctx context.Context, address string) (*geo.Result, error)
}

type Handlers struct {
	cfg       *config.Config
	store     BookingStore
	processor PaymentProcessor
	profiles  ProfileDirectory
	audit     AnomalyLog
	idemp     IdempotencyStore
	geocoder  Geocoder
	logger    observability.Logger
}

func NewHandlers(cfg *config.Config, store BookingStore, processor PaymentProcessor, profiles ProfileDirectory, audit AnomalyLog, idemp IdempotencyStore, geocoder Geocoder, logger observability.Logger) *Handlers {
	return &Handlers{
		cfg:       cfg,
		store:     store,
		processor: processor,
		profiles:  profiles,
		audit:     audit,
		idemp:     idemp,
		geocoder:  geocoder,
		logger:    logger,
	}
}

type createBookingRequest struct {
	PhotographerID     string `json:"photographer_id"`
	EventType          string `json:"event_type"`
	EventDate          string `json:"event_date"`
	EventTime          string `json:"event_time"`
	Duration           string `json:"duration"`
	Location           string `json:"location"`
	Description        string `json:"description"`
	GuestCount         int    `json:"guest_count"`
	BudgetBand         string `json:"budget_band"`
	ClientName         string `json:"client_name"`
	ClientEmail        string `json:"client_email"`
	ClientPhone        string `json:"client_phone"`
	AdditionalRequests string `json:"additional_requests"`
}

type pricingResponse struct {
	SessionTotal       string `json:"session_total"`
	DepositAmount      string `json:"deposit_amount"`
	RemainingBalance   string `json:"remaining_balance"`
	PlatformFee        string `json:"platform_fee"`
	PhotographerAmount string `json:"photographer_amount"`
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		// a degraded replay cache must not block intake
		h.logger.Warn("idempotency lookup failed", err)
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	draft := domain.Draft{
		PhotographerID:     req.PhotographerID,
		EventType:          req.EventType,
		EventDate:          req.EventDate,
		EventTime:          req.EventTime,
		DurationBucket:     req.Duration,
		Location:           req.Location,
		Description:        req.Description,
		GuestCount:         req.GuestCount,
		BudgetBand:         req.BudgetBand,
		ClientName:         req.ClientName,
		ClientEmail:        req.ClientEmail,
		ClientPhone:        req.ClientPhone,
		AdditionalRequests: req.AdditionalRequests,
	}
	if err := draft.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	photographer, err := h.profiles.GetPhotographer(r.Context(), draft.PhotographerID)
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "photographer not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	rate, err := photographer.Rate()
	if err != nil {
		http.Error(w, "photographer has no usable rate", http.StatusInternalServerError)
		return
	}

	quote, err := domain.NewQuote(rate, draft.DurationBucket)
	if errors.Is(err, domain.ErrInvalidInput) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	booking := domain.NewBooking(draft, quote)

	err = h.store.WithTx(r.Context(), func(tx pgx.Tx) error {
		if err := h.store.CreateBooking(r.Context(), tx, booking); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"booking_id":      booking.ID,
			"photographer_id": booking.PhotographerID,
			"status":          booking.Status,
		})
		return h.store.InsertOutbox(r.Context(), tx, postgres.OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "booking",
			AggregateID:   booking.ID,
			EventType:     "booking.created",
			Payload:       payload,
			DedupeKey:     uuid.New().String(),
		})
	})
	if errors.Is(err, domain.ErrSerializationFailure) {
		http.Error(w, "conflict, try again", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"booking_id": booking.ID,
		"status":     booking.Status,
		"pricing": pricingResponse{
			SessionTotal:       quote.SessionTotal.String(),
			DepositAmount:      quote.DepositAmount.String(),
			RemainingBalance:   quote.RemainingBalance.String(),
			PlatformFee:        quote.PlatformFee.String(),
			PhotographerAmount: quote.PhotographerAmount.String(),
		},
	}
	data, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	booking, err := h.store.GetBooking(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "booking not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"booking_id":        booking.ID,
		"status":            booking.Status,
		"payment_intent_id": booking.PaymentIntentID,
		"event_type":        booking.EventType,
		"event_date":        booking.EventDate,
		"event_time":        booking.EventTime,
		"duration":          booking.DurationBucket,
		"location":          booking.Location,
		"total_amount":      booking.TotalAmount.String(),
		"deposit_amount":    booking.DepositAmount.String(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// CreatePaymentIntent charges nothing itself; it asks the processor for a
// deposit intent and binds the reference to the booking. The amount comes
// from the stored booking, never from the request.
func (h *Handlers) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	booking, err := h.store.GetBooking(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "booking not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if booking.PaymentIntentID != "" {
		http.Error(w, "payment attempt already exists for this booking", http.StatusConflict)
		return
	}
	if booking.Status != domain.StatusPending {
		http.Error(w, "booking is not pending", http.StatusConflict)
		return
	}

	intent, err := h.processor.CreateDepositIntent(r.Context(), payments.DepositIntentParams{
		BookingID:      booking.ID.String(),
		PhotographerID: booking.PhotographerID,
		AmountCents:    booking.DepositCents(),
		EventType:      booking.EventType,
		EventDate:      booking.EventDate,
		ClientName:     booking.ClientName,
		ClientEmail:    booking.ClientEmail,
	})
	if errors.Is(err, domain.ErrInvalidInput) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var procErr *payments.ProcessorError
	if errors.As(err, &procErr) {
		http.Error(w, procErr.Message, http.StatusPaymentRequired)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.store.AttachPaymentIntent(r.Context(), booking.ID, intent.ID); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// A concurrent attempt won the race; the intent just created is
			// orphaned on the processor side and will expire unconfirmed.
			h.logger.Warn("discarding payment intent after attach conflict", intent.ID)
			http.Error(w, "payment attempt already exists for this booking", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	observability.PaymentIntentsCreated.Inc()

	resp := map[string]interface{}{
		"booking_id":        booking.ID,
		"payment_intent_id": intent.ID,
		"client_secret":     intent.ClientSecret,
	}
	data, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)
}

type confirmationRequest struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// ClientConfirmation is the presentation-only half of the dual-trust flow.
// Whatever the payment UI reports, the persisted status only moves when the
// signed webhook arrives.
func (h *Handlers) ClientConfirmation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req confirmationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Status == "" {
		http.Error(w, "missing status", http.StatusBadRequest)
		return
	}

	booking, err := h.store.GetBooking(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "booking not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.audit.LogClientConfirmation(r.Context(), booking.ID.String(), req.Status, string(booking.Status))

	resp := map[string]interface{}{
		"booking_id": booking.ID,
		"status":     booking.Status,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// PaymentWebhook is the authoritative trigger of the booking status
// machine. Every well-formed, correctly-signed event is acknowledged with
// 2xx, including those matching no booking; anything else would put the
// processor into a redelivery loop over a local problem.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, payments.MaxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	ev, err := payments.ParseEvent(payload, r.Header.Get("Stripe-Signature"), h.cfg.StripeWebhookSecret)
	var sigErr *payments.SignatureError
	if errors.As(err, &sigErr) {
		observability.WebhookEventsTotal.WithLabelValues("unknown", "signature_rejected").Inc()
		h.logger.Warn("webhook signature rejected", err)
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, "malformed event", http.StatusBadRequest)
		return
	}

	if !ev.Recognized {
		observability.WebhookEventsTotal.WithLabelValues(ev.Type, "ignored").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	var status domain.Status
	var changed bool
	err = h.store.WithTx(r.Context(), func(tx pgx.Tx) error {
		bookingID, next, applied, err := h.store.ApplyPaymentEvent(r.Context(), tx, ev.PaymentIntentID, ev.Kind)
		if err != nil {
			return err
		}
		status, changed = next, applied
		if !applied {
			return nil
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"booking_id":        bookingID,
			"payment_intent_id": ev.PaymentIntentID,
			"status":            next,
		})
		return h.store.InsertOutbox(r.Context(), tx, postgres.OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "booking",
			AggregateID:   bookingID,
			EventType:     "booking." + string(next),
			Payload:       payload,
			DedupeKey:     ev.PaymentIntentID + ":" + string(next),
		})
	})
	if errors.Is(err, domain.ErrNotFound) {
		h.audit.LogUnmatchedIntent(r.Context(), ev.Type, ev.PaymentIntentID)
		observability.WebhookEventsTotal.WithLabelValues(ev.Type, "unmatched").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		// 5xx so the processor redelivers; the transition is idempotent.
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	outcome := "duplicate"
	if changed {
		outcome = "applied"
	}
	observability.WebhookEventsTotal.WithLabelValues(ev.Type, outcome).Inc()
	h.logger.WithField("payment_intent_id", ev.PaymentIntentID).WithField("status", string(status)).Info("webhook processed")
	w.WriteHeader(http.StatusOK)
}

type refundRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

func (h *Handlers) RefundDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	booking, err := h.store.GetBooking(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "booking not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if booking.Status != domain.StatusConfirmed || booking.PaymentIntentID == "" {
		http.Error(w, "only confirmed bookings with a charged deposit can be refunded", http.StatusConflict)
		return
	}

	depositCents := booking.DepositCents()
	amount := req.AmountCents
	if amount == 0 {
		amount = depositCents
	}
	if amount < 0 || amount > depositCents {
		http.Error(w, "refund amount exceeds deposit", http.StatusBadRequest)
		return
	}

	result, err := h.processor.Refund(r.Context(), booking.PaymentIntentID, amount, req.Reason)
	var procErr *payments.ProcessorError
	if errors.As(err, &procErr) {
		http.Error(w, procErr.Message, http.StatusPaymentRequired)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.audit.LogEvent(r.Context(), "refund.issued", map[string]interface{}{
		"booking_id":        booking.ID.String(),
		"payment_intent_id": booking.PaymentIntentID,
		"refund_id":         result.ID,
		"amount_cents":      result.AmountCents,
	})

	resp := map[string]interface{}{
		"refund_id":    result.ID,
		"amount_cents": result.AmountCents,
		"status":       result.Status,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handlers) Geocode(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")

	result, err := h.geocoder.Geocode(r.Context(), address)
	if errors.Is(err, domain.ErrInvalidInput) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var statusErr *geo.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Status {
		case "ZERO_RESULTS":
			http.Error(w, "no results", http.StatusNotFound)
		case "OVER_QUERY_LIMIT":
			http.Error(w, "geocoding quota exceeded", http.StatusTooManyRequests)
		default:
			http.Error(w, statusErr.Error(), http.StatusBadGateway)
		}
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	resp := map[string]interface{}{
		"lat":               result.Lat,
		"lng":               result.Lng,
		"formatted_address": result.FormattedAddress,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
