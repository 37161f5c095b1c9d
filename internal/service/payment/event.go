package payment

import (
	"encoding/json"
	"fmt"
)

// Provider event kinds the reconciler handles. Anything else is
// acknowledged and ignored for forward compatibility.
const (
	kindCheckoutCompleted = "checkout.session.completed"
	kindPaymentFailed     = "payment_intent.payment_failed"
	kindChargeRefunded    = "charge.refunded"
)

// Event is the closed set of decoded provider notifications.
type Event interface {
	// ExternalID is the provider-side event id, used for logging and
	// manual reconciliation.
	ExternalID() string
	isEvent()
}

type eventBase struct {
	ID string
}

func (e eventBase) ExternalID() string { return e.ID }
func (eventBase) isEvent()            {}

// CheckoutCompleted reports a finished checkout session. AmountTotal is in
// minor units, as delivered by the provider.
type CheckoutCompleted struct {
	eventBase
	SessionID       string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
}

// PaymentFailed reports a failed payment attempt.
type PaymentFailed struct {
	eventBase
	PaymentIntentID string
}

// ChargeRefunded reports a refunded charge. AmountRefunded is minor units.
type ChargeRefunded struct {
	eventBase
	PaymentIntentID string
	AmountRefunded  int64
}

// UnknownEvent is any kind outside the handled set.
type UnknownEvent struct {
	eventBase
	Kind string
}

// wireEvent mirrors the provider envelope: a type tag plus a nested object.
type wireEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID             string `json:"id"`
			PaymentIntent  string `json:"payment_intent"`
			AmountTotal    int64  `json:"amount_total"`
			AmountRefunded int64  `json:"amount_refunded"`
			Currency       string `json:"currency"`
		} `json:"object"`
	} `json:"data"`
}

// DecodeEvent parses a verified webhook payload into its typed event.
func DecodeEvent(payload []byte) (Event, error) {
	var wire wireEvent
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}

	base := eventBase{ID: wire.ID}
	obj := wire.Data.Object
	switch wire.Type {
	case kindCheckoutCompleted:
		return &CheckoutCompleted{
			eventBase:       base,
			SessionID:       obj.ID,
			PaymentIntentID: obj.PaymentIntent,
			AmountTotal:     obj.AmountTotal,
			Currency:        obj.Currency,
		}, nil
	case kindPaymentFailed:
		return &PaymentFailed{
			eventBase:       base,
			PaymentIntentID: obj.ID,
		}, nil
	case kindChargeRefunded:
		return &ChargeRefunded{
			eventBase:       base,
			PaymentIntentID: obj.PaymentIntent,
			AmountRefunded:  obj.AmountRefunded,
		}, nil
	default:
		return &UnknownEvent{eventBase: base, Kind: wire.Type}, nil
	}
}
