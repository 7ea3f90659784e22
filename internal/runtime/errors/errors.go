package errors

import sterrors "errors"

var (
	ErrServiceRequired     = sterrors.New("hubflow: service is required")
	ErrConfigRequired      = sterrors.New("hubflow: configuration is required")
	ErrLoggerRequired      = sterrors.New("hubflow: logger is required")
	ErrClientRequired      = sterrors.New("hubflow: transport client is required")
	ErrReceiverRequired    = sterrors.New("hubflow: receiver is required")
	ErrStreamRequired      = sterrors.New("hubflow: stream name is required")
	ErrEnvelopeRequired    = sterrors.New("hubflow: envelope is required")
	ErrMessageRequired     = sterrors.New("hubflow: message is required")
	ErrMessageTypeRequired = sterrors.New("hubflow: message type is required")
	ErrMessageTooLarge     = sterrors.New("hubflow: encoded message exceeds transport limit")
	ErrInvalidEndpoint     = sterrors.New("hubflow: invalid endpoint address")
	ErrStreamNotFound      = sterrors.New("hubflow: stream not found")
	ErrAlreadyStarted      = sterrors.New("hubflow: listener already started")
	ErrHandlerRequired     = sterrors.New("hubflow: handler is required")
	ErrPointerTypeRequired = sterrors.New("hubflow: message type must be a pointer")

	// ErrNotSupported is returned by operations the partitioned broker model
	// cannot offer (teardown). Callers branch on it with errors.Is.
	ErrNotSupported = sterrors.New("hubflow: operation not supported by the broker")
)

// ConfigValidationError wraps the joined validation failures of a Config.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "hubflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
