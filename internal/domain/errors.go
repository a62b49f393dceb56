package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuctionNotFound     = errors.New("auction not found")
	ErrConcurrencyTimeout  = errors.New("timed out waiting for auction turn, retry")
	ErrStoreUnavailable    = errors.New("auction store unavailable")
	ErrDuplicateSubmission = errors.New("bid with this idempotency key already exists")

	ErrInvalidStartTime  = errors.New("start time cannot be in the past")
	ErrInvalidEndTime    = errors.New("end time must be after start time")
	ErrInvalidStartPrice = errors.New("start price must be greater than 0")
	ErrInvalidIncrement  = errors.New("bid increment must be greater than 0")
	ErrInvalidBuyNow     = errors.New("buy now price must be above start price")
	ErrTitleRequired     = errors.New("title is required")
	ErrAlreadyTerminal   = errors.New("auction is already completed or cancelled")
)

type RejectReason string

const (
	ReasonAuctionNotActive     RejectReason = "AuctionNotActive"
	ReasonInvalidAmount        RejectReason = "InvalidAmount"
	ReasonBidTooLow            RejectReason = "BidTooLow"
	ReasonAutoBidCeilingTooLow RejectReason = "AutoBidCeilingTooLow"
	ReasonSelfBidRejected      RejectReason = "SelfBidRejected"
)

// Sentinels for errors.Is against a *ValidationError.
var (
	ErrAuctionNotActive     = &ValidationError{Reason: ReasonAuctionNotActive}
	ErrInvalidAmount        = &ValidationError{Reason: ReasonInvalidAmount}
	ErrBidTooLow            = &ValidationError{Reason: ReasonBidTooLow}
	ErrAutoBidCeilingTooLow = &ValidationError{Reason: ReasonAutoBidCeilingTooLow}
	ErrSelfBidRejected      = &ValidationError{Reason: ReasonSelfBidRejected}
)

// ValidationError is a synchronous bid rejection. No state changes accompany it.
type ValidationError struct {
	Reason        RejectReason
	MinimumAmount int64
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonBidTooLow:
		return fmt.Sprintf("bid too low: minimum acceptable amount is %d", e.MinimumAmount)
	case ReasonAutoBidCeilingTooLow:
		return fmt.Sprintf("auto-bid ceiling too low: minimum acceptable ceiling is %d", e.MinimumAmount)
	case ReasonAuctionNotActive:
		return "auction is not accepting bids"
	case ReasonInvalidAmount:
		return "bid amount must be a positive integer"
	case ReasonSelfBidRejected:
		return "bidder already holds the leading bid"
	default:
		return string(e.Reason)
	}
}

func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

// IsRetryable reports whether the caller may resubmit with the same idempotency key.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyTimeout) || errors.Is(err, ErrStoreUnavailable)
}

// ErrorCode names err for clients of the HTTP and websocket surfaces.
func ErrorCode(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return string(verr.Reason)
	case errors.Is(err, ErrAuctionNotFound):
		return "AuctionNotFound"
	case errors.Is(err, ErrConcurrencyTimeout):
		return "ConcurrencyTimeout"
	case errors.Is(err, ErrStoreUnavailable):
		return "StoreUnavailable"
	case errors.Is(err, ErrDuplicateSubmission):
		return "DuplicateSubmission"
	case errors.Is(err, ErrAlreadyTerminal):
		return "AlreadyTerminal"
	}
	return "InvalidRequest"
}
