package entity

// Status is an order lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// transitions is the full legal-transition table. Delivered, cancelled and
// refunded are terminal, with delivered->refunded as the single escape.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled, StatusRefunded},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {StatusRefunded},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	_, ok := transitions[s]
	return s, ok
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status has no outgoing transitions at all.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) String() string { return string(s) }

// StatusChange describes one guarded transition. The write only applies
// while the order still holds From; PaymentRef and TrackingNumber are
// updated alongside the status when non-empty.
type StatusChange struct {
	From           Status
	To             Status
	Note           string
	PaymentRef     string
	TrackingNumber string
}
