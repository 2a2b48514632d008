package payments

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"github.com/photobook/bookings-and-payments/internal/domain"
)

// MinDepositCents is the processor's charge floor: one whole dollar.
const MinDepositCents = 100

var platformFeeRate = decimal.NewFromFloat(0.10)

type Config struct {
	SecretKey     string
	WebhookSecret string
}

// Client wraps the payment processor API. It holds its own API handle so
// tests and alternate environments construct their own instance instead of
// mutating the SDK's package-level key.
type Client struct {
	api           *client.API
	webhookSecret string
}

func NewClient(cfg Config) *Client {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &Client{api: api, webhookSecret: cfg.WebhookSecret}
}

// DepositIntentParams carries the server-computed deposit and the booking
// fields attached as reconciliation metadata. The metadata is for humans
// reading the processor dashboard; the processor record stays authoritative.
type DepositIntentParams struct {
	BookingID      string
	PhotographerID string
	AmountCents    int64
	EventType      string
	EventDate      string
	ClientName     string
	ClientEmail    string
}

func (p DepositIntentParams) Validate() error {
	if p.AmountCents < MinDepositCents {
		return errors.Wrapf(domain.ErrInvalidInput, "deposit %d below minimum of %d cents", p.AmountCents, MinDepositCents)
	}
	if p.PhotographerID == "" {
		return errors.Wrap(domain.ErrInvalidInput, "missing photographer id")
	}
	return nil
}

type DepositIntent struct {
	ID           string
	ClientSecret string
	Status       string
}

type RefundResult struct {
	ID          string
	AmountCents int64
	Status      string
	Reason      string
}

// ProcessorError preserves the processor's own code and message so the
// caller can show them to the user.
type ProcessorError struct {
	Code    string
	Message string
}

func (e *ProcessorError) Error() string {
	return "processor error " + e.Code + ": " + e.Message
}

func wrapProcessorError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return &ProcessorError{Code: string(se.Code), Message: se.Msg}
	}
	return err
}

// FeeSplit computes the platform's cut of a deposit in minor units,
// round(amount x 0.10), and the photographer's remainder.
func FeeSplit(amountCents int64) (platformFee, photographerAmount int64) {
	fee := decimal.NewFromInt(amountCents).Mul(platformFeeRate).Round(0).IntPart()
	return fee, amountCents - fee
}

// CreateDepositIntent makes exactly one payment-intent creation call. No
// retry; a processor rejection is surfaced as a ProcessorError and the
// caller decides what to do.
func (c *Client) CreateDepositIntent(ctx context.Context, p DepositIntentParams) (*DepositIntent, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	platformFee, photographerAmount := FeeSplit(p.AmountCents)

	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(p.AmountCents),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
	}
	params.AddMetadata("booking_id", p.BookingID)
	params.AddMetadata("photographer_id", p.PhotographerID)
	params.AddMetadata("platform_fee", strconv.FormatInt(platformFee, 10))
	params.AddMetadata("photographer_amount", strconv.FormatInt(photographerAmount, 10))
	params.AddMetadata("event_type", p.EventType)
	params.AddMetadata("event_date", p.EventDate)
	params.AddMetadata("client_name", p.ClientName)
	params.AddMetadata("client_email", p.ClientEmail)

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, wrapProcessorError(err)
	}

	return &DepositIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}, nil
}

// IntentStatus fetches the processor's authoritative status for an intent.
// Only the identifier is stored locally, so reconciliation joins back here.
func (c *Client) IntentStatus(ctx context.Context, paymentIntentID string) (string, error) {
	pi, err := c.api.PaymentIntents.Get(paymentIntentID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return "", wrapProcessorError(err)
	}
	return string(pi.Status), nil
}

// Refund refunds part or all of a charged deposit. A zero amount refunds
// the full remaining charge.
func (c *Client) Refund(ctx context.Context, paymentIntentID string, amountCents int64, reason string) (*RefundResult, error) {
	if paymentIntentID == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "missing payment intent id")
	}

	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(paymentIntentID),
	}
	if amountCents > 0 {
		params.Amount = stripe.Int64(amountCents)
	}
	if reason != "" {
		params.Reason = stripe.String(reason)
	}

	ref, err := c.api.Refunds.New(params)
	if err != nil {
		return nil, wrapProcessorError(err)
	}

	return &RefundResult{
		ID:          ref.ID,
		AmountCents: ref.Amount,
		Status:      string(ref.Status),
		Reason:      string(ref.Reason),
	}, nil
}
