package domain

import "github.com/cockroachdb/errors"

// Draft holds the intake form fields before a booking is created. Step one
// of the wizard collects the event details, step two the client contact;
// phone, budget band and additional requests stay optional throughout.
type Draft struct {
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
}

// ValidateEventDetails checks the step-one fields. Failing it blocks
// advancing to the contact step.
func (d Draft) ValidateEventDetails() error {
	required := []struct{ name, value string }{
		{"event_type", d.EventType},
		{"event_date", d.EventDate},
		{"event_time", d.EventTime},
		{"duration", d.DurationBucket},
		{"location", d.Location},
	}
	for _, f := range required {
		if f.value == "" {
			return errors.Wrapf(ErrInvalidInput, "missing %s", f.name)
		}
	}
	if _, err := DurationHours(d.DurationBucket); err != nil {
		return err
	}
	return nil
}

// ValidateContact checks the step-two fields.
func (d Draft) ValidateContact() error {
	if d.ClientName == "" {
		return errors.Wrap(ErrInvalidInput, "missing client_name")
	}
	if d.ClientEmail == "" {
		return errors.Wrap(ErrInvalidInput, "missing client_email")
	}
	return nil
}

// Validate runs the full intake validation before a booking row is written.
func (d Draft) Validate() error {
	if d.PhotographerID == "" {
		return errors.Wrap(ErrInvalidInput, "missing photographer_id")
	}
	if err := d.ValidateEventDetails(); err != nil {
		return err
	}
	return d.ValidateContact()
}
