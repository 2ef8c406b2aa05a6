package avatar

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the category of an avatar error.
//
// Retry behavior and user-facing guidance are attached to the kind through
// fixed tables, so callers never need to inspect error messages.
type Kind int

const (
	// KindInvalidFile indicates the declared content type is not accepted
	KindInvalidFile Kind = iota + 1

	// KindFileTooLarge indicates the declared size exceeds the limit
	KindFileTooLarge

	// KindProcessingFailed indicates the image could not be decoded or resized
	KindProcessingFailed

	// KindUploadFailed indicates an object could not be written to storage,
	// or a failure that has no more specific category
	KindUploadFailed

	// KindDatabaseUpdateFailed indicates the user record could not be written
	KindDatabaseUpdateFailed

	// KindRollbackFailed indicates the original URLs could not be restored.
	// The user record may be left pointing at deleted objects.
	KindRollbackFailed

	// KindSyncFailed indicates post-commit consistency checks failed
	KindSyncFailed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidFile:
		return "INVALID_FILE"
	case KindFileTooLarge:
		return "FILE_TOO_LARGE"
	case KindProcessingFailed:
		return "PROCESSING_FAILED"
	case KindUploadFailed:
		return "UPLOAD_FAILED"
	case KindDatabaseUpdateFailed:
		return "DATABASE_UPDATE_FAILED"
	case KindRollbackFailed:
		return "ROLLBACK_FAILED"
	case KindSyncFailed:
		return "SYNC_FAILED"
	default:
		return "UNKNOWN"
	}
}

// RetryPolicy describes how a kind of failure may be retried.
type RetryPolicy struct {
	Retryable  bool
	MaxRetries int
	Delay      time.Duration
}

var retryPolicies = map[Kind]RetryPolicy{
	KindInvalidFile:          {Retryable: false},
	KindFileTooLarge:         {Retryable: false},
	KindProcessingFailed:     {Retryable: true, MaxRetries: 2, Delay: 2 * time.Second},
	KindUploadFailed:         {Retryable: true, MaxRetries: 3, Delay: 3 * time.Second},
	KindDatabaseUpdateFailed: {Retryable: true, MaxRetries: 2, Delay: 1 * time.Second},
	KindRollbackFailed:       {Retryable: false},
	KindSyncFailed:           {Retryable: true, MaxRetries: 1, Delay: 5 * time.Second},
}

var guidance = map[Kind]string{
	KindInvalidFile:          "Please choose a JPEG, PNG, or WebP image.",
	KindFileTooLarge:         "Please compress your image or choose a smaller file.",
	KindProcessingFailed:     "We couldn't process this image. Please try again or choose a different file.",
	KindUploadFailed:         "The upload didn't go through. Please check your connection and try again.",
	KindDatabaseUpdateFailed: "Your image was uploaded but your profile couldn't be updated. Please try again.",
	KindRollbackFailed:       "Something went wrong and your previous avatar couldn't be restored. Please contact support.",
	KindSyncFailed:           "Your new avatar was saved but may take a moment to appear everywhere.",
}

// PolicyFor returns the retry policy of kind k. Unknown kinds are not retryable.
func PolicyFor(k Kind) RetryPolicy {
	return retryPolicies[k]
}

// Guidance returns the user-facing guidance string for kind k.
func Guidance(k Kind) string {
	if g, ok := guidance[k]; ok {
		return g
	}
	return "Something went wrong. Please try again."
}

// ErrorContext carries structured details about a failure.
type ErrorContext struct {
	UserID      string
	FileName    string
	ContentType string
	FileSize    int64
	MaxSize     int64

	// Details holds anything that does not fit the fields above
	// (accepted types, human readable sizes, object keys).
	Details map[string]any
}

// Error is the typed error returned across the public surface.
type Error struct {
	// Kind is the error category
	Kind Kind

	// Message is a human-readable error description
	Message string

	// Context describes the upload the error belongs to
	Context ErrorContext

	// Err is the underlying cause, if any
	Err error

	// Recoverable is false only when the system may be left inconsistent
	Recoverable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the kind of e may be retried.
func (e *Error) Retryable() bool {
	return PolicyFor(e.Kind).Retryable
}

// Policy returns the retry policy of e's kind.
func (e *Error) Policy() RetryPolicy {
	return PolicyFor(e.Kind)
}

// Guidance returns the user-facing guidance for e's kind.
func (e *Error) Guidance() string {
	return Guidance(e.Kind)
}

// NewError builds an Error of kind k. Every kind except KindRollbackFailed is
// recoverable.
func NewError(k Kind, message string, ctx ErrorContext, cause error) *Error {
	return &Error{
		Kind:        k,
		Message:     message,
		Context:     ctx,
		Err:         cause,
		Recoverable: k != KindRollbackFailed,
	}
}

// Errorf builds an Error of kind k with a formatted message and no context.
func Errorf(k Kind, format string, args ...any) *Error {
	return NewError(k, fmt.Sprintf(format, args...), ErrorContext{}, nil)
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	if e, ok := AsError(err); ok {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries an *Error of kind k.
func IsKind(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}

// IsRetryable reports whether err is a typed error whose kind may be retried.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable()
	}
	return false
}

// Wrap returns err unchanged when it already carries an *Error; otherwise it
// wraps err as kind k with the given message.
func Wrap(err error, k Kind, message string, ctx ErrorContext) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	return NewError(k, message, ctx, err)
}
