package billing

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidSignature      = errors.New("invalid webhook signature")
	ErrPaymentNotFound       = errors.New("payment record not found")
	ErrClientProfileNotFound = errors.New("client profile not found")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrInvalidTransition     = errors.New("invalid subscription transition")
)

type NormalizationReason string

const (
	ReasonMalformed          NormalizationReason = "malformed"
	ReasonMissingCorrelation NormalizationReason = "missing_correlation"
)

// NormalizationError means a payload could not be turned into a PaymentEvent.
// Callers acknowledge the delivery and do not reconcile it.
type NormalizationError struct {
	Provider  string
	EventType string
	Reason    NormalizationReason
	Err       error
}

func (e *NormalizationError) Error() string {
	msg := fmt.Sprintf("%s webhook %s", e.Provider, e.Reason)
	if e.EventType != "" {
		msg += " (" + e.EventType + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// InfrastructureError wraps record-store, timeout and transport failures. The
// provider must be allowed to retry the delivery.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

func infraErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *InfrastructureError
	if errors.As(err, &ie) {
		return err
	}
	return &InfrastructureError{Op: op, Err: err}
}

// IsRetryable reports whether err should be answered with a retryable status.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ie *InfrastructureError
	if errors.As(err, &ie) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
