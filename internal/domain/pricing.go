package domain

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

var (
	depositRate     = decimal.NewFromFloat(0.30)
	platformFeeRate = decimal.NewFromFloat(0.10)
)

// durationHours maps every accepted duration bucket to the hour count used
// for pricing. Unknown buckets are rejected rather than priced at a default,
// so a "full-day" shoot can never be billed as one hour.
var durationHours = map[string]int64{
	"1-hour":   1,
	"2-hours":  2,
	"3-hours":  3,
	"4-hours":  4,
	"6-hours":  6,
	"8-hours":  8,
	"half-day": 4,
	"full-day": 8,
}

func DurationHours(bucket string) (int64, error) {
	h, ok := durationHours[bucket]
	if !ok {
		return 0, errors.Wrapf(ErrInvalidInput, "unknown duration bucket %q", bucket)
	}
	return h, nil
}

// Quote is the pricing snapshot shown to the client before payment. All
// amounts are whole currency units; rounding is half away from zero. The
// deposit, not the session total, is what gets charged.
type Quote struct {
	HourlyRate         decimal.Decimal
	Hours              int64
	SessionTotal       decimal.Decimal
	DepositAmount      decimal.Decimal
	RemainingBalance   decimal.Decimal
	PlatformFee        decimal.Decimal
	PhotographerAmount decimal.Decimal
}

// NewQuote recomputes the snapshot from the photographer's rate and the
// duration bucket. Every caller must go through this; client-supplied
// amounts are never trusted for charge creation.
func NewQuote(hourlyRate decimal.Decimal, bucket string) (Quote, error) {
	hours, err := DurationHours(bucket)
	if err != nil {
		return Quote{}, err
	}
	if hourlyRate.Sign() <= 0 {
		return Quote{}, errors.Wrap(ErrInvalidInput, "hourly rate must be positive")
	}

	total := hourlyRate.Mul(decimal.NewFromInt(hours))
	deposit := total.Mul(depositRate).Round(0)
	fee := deposit.Mul(platformFeeRate).Round(0)

	return Quote{
		HourlyRate:         hourlyRate,
		Hours:              hours,
		SessionTotal:       total,
		DepositAmount:      deposit,
		RemainingBalance:   total.Sub(deposit),
		PlatformFee:        fee,
		PhotographerAmount: deposit.Sub(fee),
	}, nil
}

// DepositCents is the deposit in minor currency units, as sent to the
// payment processor.
func (q Quote) DepositCents() int64 {
	return q.DepositAmount.Shift(2).IntPart()
}
