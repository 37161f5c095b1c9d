package order

import (
	"errors"
	"fmt"

	"github.com/mustafamuhammed29/handyland-sub001/internal/entity"
)

// ErrCouponInvalid is returned when the client explicitly claims a coupon
// code that fails validation. A coupon that merely stops qualifying is
// silently ignored instead.
var ErrCouponInvalid = errors.New("coupon is not applicable")

// InsufficientStockError names the first item whose reservation failed.
// All reservations taken earlier in the same request have been compensated
// by the time this error is returned.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q (product %d, requested %d)", e.Name, e.ProductID, e.Requested)
}

// IntegrityError reports a client-submitted total that disagrees with the
// server-computed total beyond the configured tolerance. Treated as a
// possible tampering signal and logged as such.
type IntegrityError struct {
	Submitted int64
	Computed  int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("submitted total %d disagrees with computed total %d", e.Submitted, e.Computed)
}

// StaleTransitionError rejects an illegal status change and carries the
// order's actual current status so the caller can reconcile.
type StaleTransitionError struct {
	Current   entity.Status
	Requested entity.Status
}

func (e *StaleTransitionError) Error() string {
	return fmt.Sprintf("cannot transition %s order to %s", e.Current, e.Requested)
}
