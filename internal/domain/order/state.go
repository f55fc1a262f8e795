package order

// OrderState implements the state pattern for order lifecycle transitions:
// Pending -> Paid -> Shipping -> Completed, and Pending -> Cancelled.
type OrderState interface {
	Status() Status
	OnPaid() (OrderState, error)
	OnShipped() (OrderState, error)
	OnCompleted() (OrderState, error)
	OnCancelled() (OrderState, error)
}

func stateFor(s Status) (OrderState, error) {
	switch s {
	case StatusPending:
		return pendingState{}, nil
	case StatusPaid:
		return paidState{}, nil
	case StatusShipping:
		return shippingState{}, nil
	case StatusCompleted:
		return completedState{}, nil
	case StatusCancelled:
		return cancelledState{}, nil
	}
	return nil, ErrUnknownStatus
}

// CanTransition reports whether from -> to is a lifecycle edge.
func CanTransition(from, to Status) bool {
	o := &Order{Status: from}
	return o.TransitionTo(to) == nil
}

type pendingState struct{}

func (pendingState) Status() Status                  { return StatusPending }
func (pendingState) OnPaid() (OrderState, error)      { return paidState{}, nil }
func (pendingState) OnShipped() (OrderState, error)   { return nil, ErrInvalidStateTransition }
func (pendingState) OnCompleted() (OrderState, error) { return nil, ErrInvalidStateTransition }
func (pendingState) OnCancelled() (OrderState, error) { return cancelledState{}, nil }

type paidState struct{}

func (paidState) Status() Status                  { return StatusPaid }
func (paidState) OnPaid() (OrderState, error)      { return nil, ErrInvalidStateTransition }
func (paidState) OnShipped() (OrderState, error)   { return shippingState{}, nil }
func (paidState) OnCompleted() (OrderState, error) { return nil, ErrInvalidStateTransition }
func (paidState) OnCancelled() (OrderState, error) { return nil, ErrInvalidStateTransition }

type shippingState struct{}

func (shippingState) Status() Status                  { return StatusShipping }
func (shippingState) OnPaid() (OrderState, error)      { return nil, ErrInvalidStateTransition }
func (shippingState) OnShipped() (OrderState, error)   { return nil, ErrInvalidStateTransition }
func (shippingState) OnCompleted() (OrderState, error) { return completedState{}, nil }
func (shippingState) OnCancelled() (OrderState, error) { return nil, ErrInvalidStateTransition }

type completedState struct{}

func (completedState) Status() Status                  { return StatusCompleted }
func (completedState) OnPaid() (OrderState, error)      { return nil, ErrInvalidStateTransition }
func (completedState) OnShipped() (OrderState, error)   { return nil, ErrInvalidStateTransition }
func (completedState) OnCompleted() (OrderState, error) { return nil, ErrInvalidStateTransition }
func (completedState) OnCancelled() (OrderState, error) { return nil, ErrInvalidStateTransition }

type cancelledState struct{}

func (cancelledState) Status() Status                  { return StatusCancelled }
func (cancelledState) OnPaid() (OrderState, error)      { return nil, ErrInvalidStateTransition }
func (cancelledState) OnShipped() (OrderState, error)   { return nil, ErrInvalidStateTransition }
func (cancelledState) OnCompleted() (OrderState, error) { return nil, ErrInvalidStateTransition }
func (cancelledState) OnCancelled() (OrderState, error) { return nil, ErrInvalidStateTransition }
