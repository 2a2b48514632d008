package http

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mongoadapter "github.com/photobook/bookings-and-payments/internal/adapters/mongo"
	"github.com/photobook/bookings-and-payments/internal/adapters/postgres"
	"github.com/photobook/bookings-and-payments/internal/config"
	"github.com/photobook/bookings-and-payments/internal/domain"
	"github.com/photobook/bookings-and-payments/internal/geo"
	"github.com/photobook/bookings-and-payments/internal/idempotency"
	"github.com/photobook/bookings-and-payments/internal/observability"
	"github.com/photobook/bookings-and-payments/internal/payments"
)

const testWebhookSecret = "whsec_handler_test"

type fakeStore struct {
	bookings map[uuid.UUID]*domain.Booking
	byIntent map[string]uuid.UUID
	outbox   []postgres.OutboxRecord
	pingErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bookings: make(map[uuid.UUID]*domain.Booking),
		byIntent: make(map[string]uuid.UUID),
	}
}

func (s *fakeStore) Ping(ctx context.Context) error { return s.pingErr }

func (s *fakeStore) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

func (s *fakeStore) CreateBooking(ctx context.Context, tx pgx.Tx, b domain.Booking) error {
	copied := b
	s.bookings[b.ID] = &copied
	return nil
}

func (s *fakeStore) AttachPaymentIntent(ctx context.Context, bookingID uuid.UUID, intentID string) error {
	b, ok := s.bookings[bookingID]
	if !ok {
		return domain.ErrNotFound
	}
	if b.PaymentIntentID != "" {
		return domain.ErrConflict
	}
	b.PaymentIntentID = intentID
	s.byIntent[intentID] = bookingID
	return nil
}

func (s *fakeStore) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (s *fakeStore) ApplyPaymentEvent(ctx context.Context, tx pgx.Tx, intentID string, kind domain.PaymentEventKind) (uuid.UUID, domain.Status, bool, error) {
	id, ok := s.byIntent[intentID]
	if !ok {
		return uuid.Nil, "", false, domain.ErrNotFound
	}
	b := s.bookings[id]
	next, changed := domain.ApplyPaymentEvent(b.Status, kind)
	if changed {
		b.Status = next
	}
	return id, next, changed, nil
}

func (s *fakeStore) InsertOutbox(ctx context.Context, tx pgx.Tx, rec postgres.OutboxRecord) error {
	s.outbox = append(s.outbox, rec)
	return nil
}

type fakeProcessor struct {
	created int
	err     error
}

func (p *fakeProcessor) CreateDepositIntent(ctx context.Context, params payments.DepositIntentParams) (*payments.DepositIntent, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if p.err != nil {
		return nil, p.err
	}
	p.created++
	return &payments.DepositIntent{
		ID:           fmt.Sprintf("pi_test_%d", p.created),
		ClientSecret: "secret_abc",
		Status:       "requires_payment_method",
	}, nil
}

func (p *fakeProcessor) Refund(ctx context.Context, paymentIntentID string, amountCents int64, reason string) (*payments.RefundResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &payments.RefundResult{ID: "re_test_1", AmountCents: amountCents, Status: "succeeded"}, nil
}

type fakeProfiles struct {
	docs map[string]*mongoadapter.PhotographerDoc
}

func (f *fakeProfiles) GetPhotographer(ctx context.Context, id string) (*mongoadapter.PhotographerDoc, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

type auditEntry struct {
	action string
	data   map[string]interface{}
}

type fakeAudit struct {
	entries []auditEntry
}

func (f *fakeAudit) LogEvent(ctx context.Context, action string, data map[string]interface{}) error {
	f.entries = append(f.entries, auditEntry{action: action, data: data})
	return nil
}

func (f *fakeAudit) LogUnmatchedIntent(ctx context.Context, eventType, paymentIntentID string) error {
	return f.LogEvent(ctx, "webhook.unmatched_intent", map[string]interface{}{
		"event_type": eventType, "payment_intent_id": paymentIntentID,
	})
}

func (f *fakeAudit) LogClientConfirmation(ctx context.Context, bookingID, reportedStatus, persistedStatus string) error {
	return f.LogEvent(ctx, "client.confirmation", map[string]interface{}{
		"booking_id": bookingID, "reported_status": reportedStatus, "persisted_status": persistedStatus,
	})
}

type fakeIdemp struct {
	saved map[string]idempotency.Response
}

func (f *fakeIdemp) Get(ctx context.Context, key string) (*idempotency.Response, error) {
	if resp, ok := f.saved[key]; ok {
		return &resp, nil
	}
	return nil, nil
}

func (f *fakeIdemp) Set(ctx context.Context, key string, resp idempotency.Response) error {
	f.saved[key] = resp
	return nil
}

type fakeGeocoder struct {
	err error
}

func (f *fakeGeocoder) Geocode(ctx context.Context, address string) (*geo.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &geo.Result{Lat: 37.769, Lng: -122.486, FormattedAddress: address}, nil
}

type fixture struct {
	store     *fakeStore
	processor *fakeProcessor
	profiles  *fakeProfiles
	audit     *fakeAudit
	idemp     *fakeIdemp
	geocoder  *fakeGeocoder
	server    http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     newFakeStore(),
		processor: &fakeProcessor{},
		profiles: &fakeProfiles{docs: map[string]*mongoadapter.PhotographerDoc{
			"ph_123": {ID: "ph_123", Name: "Imani Cole", HourlyRate: "150", Active: true},
		}},
		audit:    &fakeAudit{},
		idemp:    &fakeIdemp{saved: make(map[string]idempotency.Response)},
		geocoder: &fakeGeocoder{},
	}
	cfg := &config.Config{StripeWebhookSecret: testWebhookSecret}
	h := NewHandlers(cfg, f.store, f.processor, f.profiles, f.audit, f.idemp, f.geocoder, observability.NewLogger())
	f.server = SetupRouter(h, observability.NewLogger(), nil)
	return f
}

func validBookingBody() []byte {
	return []byte(`{
		"photographer_id": "ph_123",
		"event_type": "wedding",
		"event_date": "2026-10-12",
		"event_time": "14:00",
		"duration": "3-hours",
		"location": "Golden Gate Park, San Francisco",
		"client_name": "Ada Lovell",
		"client_email": "ada@example.com"
	}`)
}

func (f *fixture) createBooking(t *testing.T) uuid.UUID {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", bytes.NewReader(validBookingBody()))
	req.Header.Set("Idempotency-Key", uuid.New().String())
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		BookingID uuid.UUID `json:"booking_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.BookingID
}

func (f *fixture) attachIntent(t *testing.T, bookingID uuid.UUID) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings/"+bookingID.String()+"/payment-intent", nil)
	req.Header.Set("Idempotency-Key", uuid.New().String())
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		PaymentIntentID string `json:"payment_intent_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.PaymentIntentID
}

func signPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func (f *fixture) deliverWebhook(t *testing.T, eventType, intentID string) *httptest.ResponseRecorder {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{"id":"evt_1","api_version":"2022-11-15","type":%q,"data":{"object":{"id":%q,"object":"payment_intent","amount":13500}}}`, eventType, intentID))
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signPayload(payload, testWebhookSecret, time.Now()))
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func TestCreateBooking_ReturnsPricingSnapshot(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", bytes.NewReader(validBookingBody()))
	req.Header.Set("Idempotency-Key", uuid.New().String())
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Status  string          `json:"status"`
		Pricing pricingResponse `json:"pricing"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "450", resp.Pricing.SessionTotal)
	assert.Equal(t, "135", resp.Pricing.DepositAmount)
	assert.Equal(t, "315", resp.Pricing.RemainingBalance)
	assert.Equal(t, "14", resp.Pricing.PlatformFee)
	assert.Equal(t, "121", resp.Pricing.PhotographerAmount)

	require.Len(t, f.store.outbox, 1)
	assert.Equal(t, "booking.created", f.store.outbox[0].EventType)
}

func TestCreateBooking_InvalidDraftRejected(t *testing.T) {
	f := newFixture(t)

	body := []byte(`{"photographer_id":"ph_123","event_type":"wedding","duration":"3-hours"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", bytes.NewReader(body))
	req.Header.Set("Idempotency-Key", uuid.New().String())
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.store.bookings)
}

func TestCreateBooking_UnknownDurationRejected(t *testing.T) {
	f := newFixture(t)

	body := bytes.Replace(validBookingBody(), []byte("3-hours"), []byte("5-hours"), 1)
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", bytes.NewReader(body))
	req.Header.Set("Idempotency-Key", uuid.New().String())
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.store.bookings)
}

func TestCreateBooking_UnknownPhotographer(t *testing.T) {
	f := newFixture(t)

	body := bytes.Replace(validBookingBody(), []byte("ph_123"), []byte("ph_missing"), 1)
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", bytes.NewReader(body))
	req.Header.Set("Idempotency-Key", uuid.New().String())
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateBooking_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	key := uuid.New().String()

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/bookings", bytes.NewReader(validBookingBody()))
		req.Header.Set("Idempotency-Key", key)
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code)
	second := send()
	require.Equal(t, http.StatusCreated, second.Code)

	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Len(t, f.store.bookings, 1)
}

func TestCreateBooking_MissingIdempotencyKey(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", bytes.NewReader(validBookingBody()))
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatePaymentIntent_AttachesOnce(t *testing.T) {
	f := newFixture(t)
	bookingID := f.createBooking(t)

	intentID := f.attachIntent(t, bookingID)
	assert.Equal(t, "pi_test_1", intentID)

	b := f.store.bookings[bookingID]
	assert.Equal(t, intentID, b.PaymentIntentID)
	assert.Equal(t, domain.StatusPending, b.Status)

	// a second attempt for the same booking must be refused
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings/"+bookingID.String()+"/payment-intent", nil)
	req.Header.Set("Idempotency-Key", uuid.New().String())
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, intentID, f.store.bookings[bookingID].PaymentIntentID)
}

func TestCreatePaymentIntent_ProcessorRejection(t *testing.T) {
	f := newFixture(t)
	bookingID := f.createBooking(t)
	f.processor.err = &payments.ProcessorError{Code: "card_declined", Message: "Your card was declined."}

	req := httptest.NewRequest(http.MethodPost, "/v1/bookings/"+bookingID.String()+"/payment-intent", nil)
	req.Header.Set("Idempotency-Key", uuid.New().String())
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Empty(t, f.store.bookings[bookingID].PaymentIntentID)
}

func TestClientConfirmation_NeverMutatesStatus(t *testing.T) {
	f := newFixture(t)
	bookingID := f.createBooking(t)
	f.attachIntent(t, bookingID)

	body := []byte(`{"status":"succeeded"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings/"+bookingID.String()+"/confirmation", bytes.NewReader(body))
	req.Header.Set("Idempotency-Key", uuid.New().String())
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.Status, "client report must not move the status")
	assert.Equal(t, domain.StatusPending, f.store.bookings[bookingID].Status)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, "client.confirmation", f.audit.entries[0].action)
	assert.Equal(t, "succeeded", f.audit.entries[0].data["reported_status"])
}

func TestPaymentWebhook_ConfirmsAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	bookingID := f.createBooking(t)
	intentID := f.attachIntent(t, bookingID)
	outboxBefore := len(f.store.outbox)

	rec := f.deliverWebhook(t, "payment_intent.succeeded", intentID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusConfirmed, f.store.bookings[bookingID].Status)
	require.Len(t, f.store.outbox, outboxBefore+1)
	assert.Equal(t, "booking.confirmed", f.store.outbox[outboxBefore].EventType)

	// redelivery acknowledges without a second transition or event
	rec = f.deliverWebhook(t, "payment_intent.succeeded", intentID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusConfirmed, f.store.bookings[bookingID].Status)
	assert.Len(t, f.store.outbox, outboxBefore+1)

	// a late cancellation cannot move a terminal booking
	rec = f.deliverWebhook(t, "payment_intent.canceled", intentID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusConfirmed, f.store.bookings[bookingID].Status)
	assert.Len(t, f.store.outbox, outboxBefore+1)
}

func TestPaymentWebhook_FailureMarksPaymentFailed(t *testing.T) {
	f := newFixture(t)
	bookingID := f.createBooking(t)
	intentID := f.attachIntent(t, bookingID)

	rec := f.deliverWebhook(t, "payment_intent.payment_failed", intentID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusPaymentFailed, f.store.bookings[bookingID].Status)
}

func TestPaymentWebhook_TamperedSignatureRejected(t *testing.T) {
	f := newFixture(t)
	bookingID := f.createBooking(t)
	intentID := f.attachIntent(t, bookingID)

	payload := []byte(fmt.Sprintf(`{"id":"evt_1","api_version":"2022-11-15","type":"payment_intent.succeeded","data":{"object":{"id":%q,"object":"payment_intent"}}}`, intentID))
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signPayload(payload, "whsec_wrong", time.Now()))
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.StatusPending, f.store.bookings[bookingID].Status, "unverified event must not mutate state")
}

func TestPaymentWebhook_UnmatchedIntentAcknowledged(t *testing.T) {
	f := newFixture(t)

	rec := f.deliverWebhook(t, "payment_intent.succeeded", "pi_unknown")
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, "webhook.unmatched_intent", f.audit.entries[0].action)
	assert.Equal(t, "pi_unknown", f.audit.entries[0].data["payment_intent_id"])
}

func TestPaymentWebhook_UnrecognizedTypeIgnored(t *testing.T) {
	f := newFixture(t)
	bookingID := f.createBooking(t)
	f.attachIntent(t, bookingID)

	rec := f.deliverWebhook(t, "charge.refunded", "pi_test_1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusPending, f.store.bookings[bookingID].Status)
}

func TestRefund_RequiresConfirmedBooking(t *testing.T) {
	f := newFixture(t)
	bookingID := f.createBooking(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/bookings/"+bookingID.String()+"/refund", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Idempotency-Key", uuid.New().String())
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRefund_FullDeposit(t *testing.T) {
	f := newFixture(t)
	bookingID := f.createBooking(t)
	intentID := f.attachIntent(t, bookingID)
	f.deliverWebhook(t, "payment_intent.succeeded", intentID)

	req := httptest.NewRequest(http.MethodPost, "/v1/bookings/"+bookingID.String()+"/refund", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Idempotency-Key", uuid.New().String())
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		AmountCents int64 `json:"amount_cents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(13500), resp.AmountCents)

	var found bool
	for _, e := range f.audit.entries {
		if e.action == "refund.issued" {
			found = true
		}
	}
	assert.True(t, found, "refund must leave an audit trail")
}

func TestRefund_AmountAboveDepositRejected(t *testing.T) {
	f := newFixture(t)
	bookingID := f.createBooking(t)
	intentID := f.attachIntent(t, bookingID)
	f.deliverWebhook(t, "payment_intent.succeeded", intentID)

	req := httptest.NewRequest(http.MethodPost, "/v1/bookings/"+bookingID.String()+"/refund", bytes.NewReader([]byte(`{"amount_cents":999999}`)))
	req.Header.Set("Idempotency-Key", uuid.New().String())
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGeocode_StatusMapping(t *testing.T) {
	for status, want := range map[string]int{
		"ZERO_RESULTS":     http.StatusNotFound,
		"OVER_QUERY_LIMIT": http.StatusTooManyRequests,
		"REQUEST_DENIED":   http.StatusBadGateway,
	} {
		f := newFixture(t)
		f.geocoder.err = &geo.StatusError{Status: status}

		req := httptest.NewRequest(http.MethodGet, "/v1/geocode?address=nowhere", nil)
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, status)
	}
}

func TestReadyz_ReportsStoreOutage(t *testing.T) {
	f := newFixture(t)
	f.store.pingErr = fmt.Errorf("connection refused")

	req := httptest.NewRequest(http.MethodGet, "/v1/readyz", nil)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
