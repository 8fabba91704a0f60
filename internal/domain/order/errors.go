package order

import "fmt"

// IllegalOperationError indicates a mutation that is not valid in the order's
// current lifecycle state, e.g. modifying lines after checkout has started.
type IllegalOperationError struct {
	Op      string
	OrderID string
	State   State
}

func (e *IllegalOperationError) Error() string {
	return fmt.Sprintf("%s is not allowed on order %s in state %s", e.Op, e.OrderID, e.State)
}

// NotFoundError indicates an unknown entity id was supplied by the caller.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// UserInputError indicates invalid caller input: a bad quantity, an unknown
// or expired coupon code, an ineligible shipping method. The well-known cases
// are exposed as sentinel values so callers can match with errors.Is.
type UserInputError struct {
	Msg string
}

func (e *UserInputError) Error() string {
	return e.Msg
}

var (
	ErrQuantityInvalid           = &UserInputError{Msg: "quantity must be greater than zero"}
	ErrCouponNotFound            = &UserInputError{Msg: "coupon code is not valid"}
	ErrCouponExpired             = &UserInputError{Msg: "coupon code has expired"}
	ErrCouponLimitReached        = &UserInputError{Msg: "coupon code usage limit reached"}
	ErrShippingMethodNotEligible = &UserInputError{Msg: "shipping method is not eligible for this order"}
	ErrNothingToCancel           = &UserInputError{Msg: "nothing to cancel"}
	ErrNothingToFulfill          = &UserInputError{Msg: "nothing to fulfill"}
	ErrNothingToRefund           = &UserInputError{Msg: "nothing to refund"}
	ErrPaymentNotCovering        = &UserInputError{Msg: "payment does not cover the order total"}
)
