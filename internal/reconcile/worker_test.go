package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photobook/bookings-and-payments/internal/domain"
	"github.com/photobook/bookings-and-payments/internal/observability"
)

type stubStore struct {
	bookings []domain.Booking
}

func (s *stubStore) GetStalePendingBookings(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error) {
	return s.bookings, nil
}

type stubProcessor struct {
	mu       sync.Mutex
	statuses map[string]string
	failures map[string]int
	calls    map[string]int
}

func (s *stubProcessor) IntentStatus(ctx context.Context, intentID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[intentID]++
	if s.failures[intentID] >= s.calls[intentID] {
		return "", errors.New("processor unavailable")
	}
	status, ok := s.statuses[intentID]
	if !ok {
		return "", errors.New("no such intent")
	}
	return status, nil
}

type divergence struct {
	bookingID       string
	processorStatus string
	localStatus     string
}

type stubAudit struct {
	mu          sync.Mutex
	divergences []divergence
}

func (s *stubAudit) LogStatusDivergence(ctx context.Context, bookingID, paymentIntentID, processorStatus, localStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.divergences = append(s.divergences, divergence{bookingID: bookingID, processorStatus: processorStatus, localStatus: localStatus})
	return nil
}

func pendingBooking(intentID string) domain.Booking {
	return domain.Booking{
		ID:              uuid.New(),
		Status:          domain.StatusPending,
		PaymentIntentID: intentID,
	}
}

func TestSweep_ReportsSettledIntentStillPending(t *testing.T) {
	b := pendingBooking("pi_settled")
	store := &stubStore{bookings: []domain.Booking{b}}
	proc := &stubProcessor{statuses: map[string]string{"pi_settled": "succeeded"}}
	audit := &stubAudit{}

	w := NewWorker(store, proc, audit, observability.NewLogger())
	require.NoError(t, w.Sweep(context.Background()))

	require.Len(t, audit.divergences, 1)
	assert.Equal(t, b.ID.String(), audit.divergences[0].bookingID)
	assert.Equal(t, "succeeded", audit.divergences[0].processorStatus)
	assert.Equal(t, "pending", audit.divergences[0].localStatus)
}

func TestSweep_InFlightIntentNotReported(t *testing.T) {
	store := &stubStore{bookings: []domain.Booking{pendingBooking("pi_open")}}
	proc := &stubProcessor{statuses: map[string]string{"pi_open": "requires_payment_method"}}
	audit := &stubAudit{}

	w := NewWorker(store, proc, audit, observability.NewLogger())
	require.NoError(t, w.Sweep(context.Background()))
	assert.Empty(t, audit.divergences)
}

func TestSweep_RetriesTransientLookupFailures(t *testing.T) {
	old := retryBackoff
	retryBackoff = time.Millisecond
	t.Cleanup(func() { retryBackoff = old })

	store := &stubStore{bookings: []domain.Booking{pendingBooking("pi_flaky")}}
	proc := &stubProcessor{
		statuses: map[string]string{"pi_flaky": "canceled"},
		failures: map[string]int{"pi_flaky": 2},
	}
	audit := &stubAudit{}

	w := NewWorker(store, proc, audit, observability.NewLogger())
	require.NoError(t, w.Sweep(context.Background()))

	assert.Equal(t, 3, proc.calls["pi_flaky"])
	require.Len(t, audit.divergences, 1)
	assert.Equal(t, "canceled", audit.divergences[0].processorStatus)
}

func TestSweep_LookupFailureSkipsBooking(t *testing.T) {
	old := retryBackoff
	retryBackoff = time.Millisecond
	t.Cleanup(func() { retryBackoff = old })

	store := &stubStore{bookings: []domain.Booking{pendingBooking("pi_down")}}
	proc := &stubProcessor{failures: map[string]int{"pi_down": 10}}
	audit := &stubAudit{}

	w := NewWorker(store, proc, audit, observability.NewLogger())
	require.NoError(t, w.Sweep(context.Background()))
	assert.Empty(t, audit.divergences)
}
