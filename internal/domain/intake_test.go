package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDraft() Draft {
	return Draft{
		PhotographerID: "ph_123",
		EventType:      "wedding",
		EventDate:      "2026-10-12",
		EventTime:      "14:00",
		DurationBucket: "3-hours",
		Location:       "Golden Gate Park, San Francisco",
		ClientName:     "Ada Lovell",
		ClientEmail:    "ada@example.com",
	}
}

func TestDraftValidate_OK(t *testing.T) {
	require.NoError(t, validDraft().Validate())
}

func TestDraftValidate_RequiredEventFields(t *testing.T) {
	mutations := map[string]func(*Draft){
		"event_type": func(d *Draft) { d.EventType = "" },
		"event_date": func(d *Draft) { d.EventDate = "" },
		"event_time": func(d *Draft) { d.EventTime = "" },
		"duration":   func(d *Draft) { d.DurationBucket = "" },
		"location":   func(d *Draft) { d.Location = "" },
	}
	for name, mutate := range mutations {
		d := validDraft()
		mutate(&d)
		err := d.ValidateEventDetails()
		assert.True(t, errors.Is(err, ErrInvalidInput), name)
	}
}

func TestDraftValidate_RequiredContactFields(t *testing.T) {
	d := validDraft()
	d.ClientName = ""
	assert.True(t, errors.Is(d.ValidateContact(), ErrInvalidInput))

	d = validDraft()
	d.ClientEmail = ""
	assert.True(t, errors.Is(d.ValidateContact(), ErrInvalidInput))
}

func TestDraftValidate_OptionalFields(t *testing.T) {
	d := validDraft()
	d.ClientPhone = ""
	d.BudgetBand = ""
	d.AdditionalRequests = ""
	assert.NoError(t, d.Validate())
}

func TestNewBooking(t *testing.T) {
	d := validDraft()
	q, err := NewQuote(decimal.NewFromInt(150), d.DurationBucket)
	require.NoError(t, err)

	b := NewBooking(d, q)
	assert.NotEqual(t, "", b.ID.String())
	assert.Equal(t, StatusPending, b.Status)
	assert.Equal(t, "", b.PaymentIntentID)
	assert.Equal(t, "450", b.TotalAmount.String())
	assert.Equal(t, "135", b.DepositAmount.String())
}
