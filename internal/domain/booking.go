package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Booking is one requested photography or videography engagement. The
// payment-intent reference is empty until a payment attempt begins and is
// immutable once set; a new attempt needs a new booking.
type Booking struct {
	ID                 uuid.UUID
	PhotographerID     string
	EventType          string
	EventDate          string
	EventTime          string
	DurationBucket     string
	Location           string
	Description        string
	GuestCount         int
	BudgetBand         string
	ClientName         string
	ClientEmail        string
	ClientPhone        string
	AdditionalRequests string
	TotalAmount        decimal.Decimal
	DepositAmount      decimal.Decimal
	Status             Status
	PaymentIntentID    string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// DepositCents is the deposit in minor currency units, the figure actually
// sent to the payment processor.
func (b Booking) DepositCents() int64 {
	return b.DepositAmount.Shift(2).IntPart()
}

func NewBooking(draft Draft, quote Quote) Booking {
	now := time.Now().UTC()
	return Booking{
		ID:                 uuid.New(),
		PhotographerID:     draft.PhotographerID,
		EventType:          draft.EventType,
		EventDate:          draft.EventDate,
		EventTime:          draft.EventTime,
		DurationBucket:     draft.DurationBucket,
		Location:           draft.Location,
		Description:        draft.Description,
		GuestCount:         draft.GuestCount,
		BudgetBand:         draft.BudgetBand,
		ClientName:         draft.ClientName,
		ClientEmail:        draft.ClientEmail,
		ClientPhone:        draft.ClientPhone,
		AdditionalRequests: draft.AdditionalRequests,
		TotalAmount:        quote.SessionTotal,
		DepositAmount:      quote.DepositAmount,
		Status:             StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
