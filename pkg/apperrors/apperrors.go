// Package apperrors holds the typed error variants the aggregator
// surfaces across component boundaries: ConfigError, RelayError,
// ProtocolError, ExecutionError, EncryptionUnsupported, ExecutionTimeout,
// PaymentError, ValidationError. Callers branch on these with
// errors.Is/errors.As rather than string matching; sentinel errors are
// wrapped with fmt.Errorf's %w verb (see Errorf below).
package apperrors

import "fmt"

// Sentinel errors identifying the taxonomy. Wrap these with fmt.Errorf's
// %w verb to attach context while keeping errors.Is working.
var (
	ErrConfig                = &Kind{name: "ConfigError"}
	ErrRelay                 = &Kind{name: "RelayError"}
	ErrNoRelayAcknowledged   = &Kind{name: "NoRelayAcknowledged"}
	ErrProtocol              = &Kind{name: "ProtocolError"}
	ErrExecution             = &Kind{name: "ExecutionError"}
	ErrEncryptionUnsupported = &Kind{name: "EncryptionUnsupported"}
	ErrExecutionTimeout      = &Kind{name: "ExecutionTimeout"}
	ErrNotificationError     = &Kind{name: "NotificationError"}
	ErrPayment               = &Kind{name: "PaymentError"}
	ErrValidation            = &Kind{name: "ValidationError"}
	ErrInvalidKey            = &Kind{name: "InvalidKey"}
)

// Kind is a taxonomy member. It implements error itself so it can be
// returned bare, and is the target of errors.Is checks against wrapped
// instances.
type Kind struct{ name string }

func (k *Kind) Error() string { return k.name }

// Errorf attaches a formatted message to a Kind while keeping
// errors.Is(err, kind) true via %w: apperrors.Errorf(apperrors.ErrExecutionTimeout, "after %s", d).
func Errorf(k *Kind, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%w: %s", k, msg)
}
