package signals

import (
	"fmt"
	"time"

	"insiderbot/src/model"
)

type Reason string

const (
	ReasonEmptyGroup       Reason = "empty_group"
	ReasonInvalidEvent     Reason = "invalid_event"
	ReasonPriceUnavailable Reason = "price_unavailable"
	ReasonPriceOutOfRange  Reason = "price_out_of_range"
	ReasonWeakSignal       Reason = "weak_signal"
)

// Rejection explains why a ticker produced no signal.
type Rejection struct {
	Ticker string
	Reason Reason
	Score  float64
	Err    error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %s: %v", r.Ticker, r.Reason, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Ticker, r.Reason)
}

func (r *Rejection) Unwrap() error { return r.Err }

// Record converts the rejection into its audit row.
func (r *Rejection) Record(service string, at time.Time) model.Rejection {
	msg := string(r.Reason)
	if r.Err != nil {
		msg = r.Err.Error()
	}
	return model.Rejection{
		Service:    service,
		Stage:      "signal",
		Ticker:     r.Ticker,
		Reason:     string(r.Reason),
		Message:    msg,
		OccurredAt: at,
	}
}
