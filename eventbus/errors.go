package eventbus

import (
	"fmt"
	"time"
)

// NoHandlerError means no handler is registered for a message type, or
// middleware refused to let the message reach one.
type NoHandlerError struct {
	MessageType string
}

func (e *NoHandlerError) Error() string {
	return fmt.Sprintf("no handler registered for %s", e.MessageType)
}

// NewNoHandlerError creates a NoHandlerError.
func NewNoHandlerError(messageType string) *NoHandlerError {
	return &NoHandlerError{MessageType: messageType}
}

// HandlerAlreadyRegisteredError means a second handler was registered for a
// message type that already has one.
type HandlerAlreadyRegisteredError struct {
	MessageType string
}

func (e *HandlerAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("handler already registered for %s", e.MessageType)
}

// NewHandlerAlreadyRegisteredError creates a HandlerAlreadyRegisteredError.
func NewHandlerAlreadyRegisteredError(messageType string) *HandlerAlreadyRegisteredError {
	return &HandlerAlreadyRegisteredError{MessageType: messageType}
}

// QueryTimeoutError means a query's handler did not answer within the bus
// timeout.
type QueryTimeoutError struct {
	MessageType string
	Timeout     time.Duration
}

func (e *QueryTimeoutError) Error() string {
	return fmt.Sprintf("query %s timed out after %s", e.MessageType, e.Timeout)
}

// NewQueryTimeoutError creates a QueryTimeoutError.
func NewQueryTimeoutError(messageType string, timeout time.Duration) *QueryTimeoutError {
	return &QueryTimeoutError{MessageType: messageType, Timeout: timeout}
}
