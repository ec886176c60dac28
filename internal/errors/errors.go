package errors

import (
	"fmt"
)

// UpstreamUnavailableError represents a failure to provision on the VPN panel
// after the single permitted auth-refresh retry
type UpstreamUnavailableError struct {
	Operation string
	Err       error
}

// Error returns the error message
func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("vpn panel unavailable during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *UpstreamUnavailableError) Unwrap() error {
	return e.Err
}

// StorageError represents a failure of a durable-storage operation
type StorageError struct {
	Operation string
	Err       error
}

// Error returns the error message
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *StorageError) Unwrap() error {
	return e.Err
}

// DeliveryError represents a failed outbound message to a Telegram account
type DeliveryError struct {
	AccountID int64
	Err       error
}

// Error returns the error message
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("message delivery to account %d failed: %v", e.AccountID, e.Err)
}

// Unwrap returns the underlying error
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// ValidationError represents an error when validation fails
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the error message
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}
