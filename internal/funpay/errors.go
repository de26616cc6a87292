package funpay

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when FunPay rejects the session, either with a
// 403 status code or by serving a page without the logged-in account block.
// Retrying with the same golden_key is pointless; the caller must rotate
// credentials.
var ErrUnauthorized = errors.New("unauthorized (invalid or expired golden_key?)")

// ErrNotLoggedIn is returned when a method requiring account data is called
// before a successful Login.
var ErrNotLoggedIn = errors.New("client is not logged in, call Login first")

// RequestError reports a request that came back with an unexpected status
// code. It is transient: the next poll cycle may succeed.
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status code %d", e.Method, e.URL, e.StatusCode)
}

// ParseError reports a response whose markup did not match the expected
// layout. Callers must treat it as transient (retry next poll), not fatal.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unparseable %s: %v", e.What, e.Err)
	}
	return fmt.Sprintf("unparseable %s", e.What)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MessageNotDeliveredError is returned when FunPay accepts a send request but
// reports a delivery error in the response body.
type MessageNotDeliveredError struct {
	ChatID  ChatID
	Message string
}

func (e *MessageNotDeliveredError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("message to chat %s not delivered: %s", e.ChatID, e.Message)
	}
	return fmt.Sprintf("message to chat %s not delivered", e.ChatID)
}

// RaiseError is returned when a lot-raise request fails. WaitTime carries the
// cooldown FunPay asked for, when it could be extracted from the error text.
type RaiseError struct {
	CategoryID int64
	Message    string
	WaitTime   int // seconds; 0 if unknown
}

func (e *RaiseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("failed to raise lots of category %d: %s", e.CategoryID, e.Message)
	}
	return fmt.Sprintf("failed to raise lots of category %d", e.CategoryID)
}

// RefundError is returned when an order refund request is rejected.
type RefundError struct {
	OrderID string
	Message string
}

func (e *RefundError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("failed to refund order #%s: %s", e.OrderID, e.Message)
	}
	return fmt.Sprintf("failed to refund order #%s", e.OrderID)
}
